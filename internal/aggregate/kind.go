// Package aggregate reduces per-hour measurement series into whole-run
// statistics.
package aggregate

import (
	"fmt"
	"strings"
)

// Metric is the column family a measurement is reported in.
type Metric uint8

const (
	Lane Metric = iota + 1 // one column per detector
	Link                   // one value per counter, spread over its heads
	TT                     // one column per travel-time section
	Node                   // one column per node
)

func (m Metric) String() string {
	switch m {
	case Lane:
		return "Lane"
	case Link:
		return "Link"
	case TT:
		return "TT"
	case Node:
		return "Node"
	}
	return fmt.Sprintf("Metric(%d)", uint8(m))
}

// Rule is how hourly values combine into an overall value.
type Rule uint8

const (
	// Sum adds hourly totals.
	Sum Rule = iota + 1
	// TimeWeighted averages hourly rates weighted by the seconds each hour
	// covers.
	TimeWeighted
	// Worst keeps the highest hourly value, for ordinal grades where a
	// larger number is a worse grade.
	Worst
)

// Kind identifies one measured quantity. Each kind carries exactly one
// combination rule and one column family.
type Kind uint8

const (
	VehicleCount Kind = iota + 1
	OccupancyRate
	QueueStops
	TravelSpeed
	EmissionCO
	EmissionVOC
	LinkDelay
	LinkDensity
	LinkSpeed
	NodeLOS
)

// AllKinds lists every kind in reporting order.
var AllKinds = []Kind{
	VehicleCount, OccupancyRate, QueueStops,
	LinkDelay, LinkDensity, LinkSpeed,
	TravelSpeed, NodeLOS, EmissionCO, EmissionVOC,
}

var kindNames = map[Kind]string{
	VehicleCount:  "vehicle_count",
	OccupancyRate: "occupancy_rate",
	QueueStops:    "queue_stops",
	TravelSpeed:   "travel_speed",
	EmissionCO:    "emission_co",
	EmissionVOC:   "emission_voc",
	LinkDelay:     "link_delay",
	LinkDensity:   "link_density",
	LinkSpeed:     "link_speed",
	NodeLOS:       "node_los",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown measurement kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("unknown measurement kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Metric returns the column family of k.
func (k Kind) Metric() Metric {
	switch k {
	case VehicleCount, OccupancyRate:
		return Lane
	case QueueStops, LinkDelay, LinkDensity, LinkSpeed:
		return Link
	case TravelSpeed:
		return TT
	default:
		return Node
	}
}

// Rule returns the combination rule of k.
func (k Kind) Rule() Rule {
	switch k {
	case OccupancyRate, TravelSpeed, LinkDelay, LinkDensity, LinkSpeed:
		return TimeWeighted
	case NodeLOS:
		return Worst
	default:
		return Sum
	}
}

// PerLength reports whether k is divided by link length after summing.
func (k Kind) PerLength() bool {
	return k == QueueStops
}

// Unit is the display unit of stored values.
func (k Kind) Unit() string {
	switch k {
	case VehicleCount:
		return "veh"
	case OccupancyRate:
		return "%"
	case QueueStops:
		return "stops/m"
	case TravelSpeed, LinkSpeed:
		return "km/h"
	case LinkDelay:
		return "% delay"
	case LinkDensity:
		return "veh/km"
	case NodeLOS:
		return "LOS"
	default:
		return "g"
	}
}
