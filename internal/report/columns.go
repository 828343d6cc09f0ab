// Package report renders run series as HTML charts and PNG plots.
package report

import (
	"fmt"

	"github.com/banshee-data/corridor.report/internal/aggregate"
	"github.com/banshee-data/corridor.report/internal/sim"
)

// Columns returns the display label of every column of kind. Per-link kinds
// get one label per signal head, matching aggregate.Expand.
func Columns(l *sim.Layout, kind aggregate.Kind) []string {
	var out []string
	switch kind.Metric() {
	case aggregate.Lane:
		for _, d := range l.Detectors {
			out = append(out, d.String())
		}
	case aggregate.Link:
		for _, c := range l.Clusters {
			for _, m := range c.Members {
				out = append(out, l.Detectors[m].String())
			}
		}
	case aggregate.TT:
		for _, s := range l.Sections {
			out = append(out, fmt.Sprintf("TT %d (%d-%d)", s.ID, s.StartLink, s.EndLink))
		}
	case aggregate.Node:
		for _, n := range l.Nodes {
			out = append(out, fmt.Sprintf("Node %d", n))
		}
	}
	return out
}

// DisplayRow widens one row of kind to its display columns. The widened row
// must have exactly one value per label of Columns.
func DisplayRow(l *sim.Layout, kind aggregate.Kind, values []float64) ([]float64, error) {
	row, err := aggregate.Expand(kind.Metric(), values, l.Heads)
	if err != nil {
		return nil, &aggregate.DataShapeError{Kind: kind, Err: err}
	}
	if want := len(Columns(l, kind)); len(row) != want {
		return nil, &aggregate.DataShapeError{Kind: kind,
			Err: fmt.Errorf("%w: %d values for %d columns", aggregate.ErrMisaligned, len(row), want)}
	}
	return row, nil
}

// Title is the chart heading of kind.
func Title(kind aggregate.Kind) string {
	switch kind {
	case aggregate.VehicleCount:
		return "Vehicle count"
	case aggregate.OccupancyRate:
		return "Occupancy rate"
	case aggregate.QueueStops:
		return "Queue stops per metre"
	case aggregate.LinkDelay:
		return "Link relative delay"
	case aggregate.LinkDensity:
		return "Link density"
	case aggregate.LinkSpeed:
		return "Link speed"
	case aggregate.TravelSpeed:
		return "Travel speed"
	case aggregate.NodeLOS:
		return "Level of service"
	case aggregate.EmissionCO:
		return "Emissions CO"
	case aggregate.EmissionVOC:
		return "Emissions VOC"
	}
	return kind.String()
}
