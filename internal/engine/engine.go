// Package engine is the boundary to the external microscopic simulation
// engine. The engine is an opaque black box: it runs to a requested instant,
// accepts controller state pushes and answers numeric measurement queries.
package engine

import (
	"context"

	"github.com/banshee-data/corridor.report/internal/cluster"
	"github.com/banshee-data/corridor.report/internal/signal"
)

// Quantity names a raw measurement the engine can report per hour.
type Quantity string

const (
	Vehicles     Quantity = "vehs"          // data collection point, vehicles passed
	Occupancy    Quantity = "occup_rate"    // data collection point, fraction of time occupied
	QueueStops   Quantity = "qstops"        // queue counter, stops in queue
	TravelTime   Quantity = "trav_tm"       // travel time section, mean seconds
	EmissionsCO  Quantity = "emissions_co"  // node, grams CO
	EmissionsVOC Quantity = "emissions_voc" // node, grams VOC

	LinkDelayRel   Quantity = "delay_rel" // link, relative delay in percent
	LinkDensity    Quantity = "density"   // link, vehicles per km
	LinkSpeed      Quantity = "speed"     // link, mean km/h, 0 when unused
	LevelOfService Quantity = "los"       // node, grade A to F, null when unrated
)

// Settings configures an engine session before the network is inspected.
type Settings struct {
	Horizon              int
	Seed                 int
	Quick                bool
	VehicleInputInterval int
}

// Controller is a signal controller known to the network.
type Controller struct {
	Name string `json:"name"`
	// Groups is the number of signal groups; 0 when the engine does not say.
	Groups int `json:"groups"`
}

// TravelTimeSection measures travel time between two links.
type TravelTimeSection struct {
	ID        int     `json:"id"`
	StartLink int     `json:"start_link"`
	EndLink   int     `json:"end_link"`
	Distance  float64 `json:"distance"`
}

// Network is the static topology the engine reports once per session.
type Network struct {
	Controllers []Controller               `json:"controllers"`
	Detectors   []cluster.DetectorPosition `json:"detectors"`
	Sections    []TravelTimeSection        `json:"travel_time_sections"`
	Nodes       []int                      `json:"nodes"`
}

// Controller returns the controller called name.
func (n *Network) Controller(name string) (Controller, bool) {
	for _, c := range n.Controllers {
		if c.Name == name {
			return c, true
		}
	}
	return Controller{}, false
}

// Engine is a simulation session. Calls are issued one at a time by a single
// driver; implementations need not support concurrent use.
type Engine interface {
	Configure(ctx context.Context, s Settings) error
	Network(ctx context.Context) (*Network, error)
	// ResetCounters removes every queue counter and data collection point.
	ResetCounters(ctx context.Context) error
	// AddQueueCounter places a queue counter and returns its id. Ids are
	// assigned in placement order starting at 1.
	AddQueueCounter(ctx context.Context, link int, pos float64) (int, error)
	// AddDataCollection places a data collection point and returns its id.
	AddDataCollection(ctx context.Context, link, lane int, pos float64) (int, error)
	// RunUntil runs the simulation continuously up to instant seconds.
	RunUntil(ctx context.Context, instant int) error
	// RunToEnd runs the simulation to its configured horizon.
	RunToEnd(ctx context.Context) error
	SetControllerState(ctx context.Context, controller string, step signal.PhaseStep) error
	// Query returns the reading of q for element id during the 1-based hour.
	// A nil reading means the engine has no value.
	Query(ctx context.Context, q Quantity, id, hour int) (*float64, error)
	Close() error
}
