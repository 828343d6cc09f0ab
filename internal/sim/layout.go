package sim

import (
	"context"
	"fmt"

	"github.com/banshee-data/corridor.report/internal/cluster"
	"github.com/banshee-data/corridor.report/internal/engine"
	"github.com/banshee-data/corridor.report/internal/monitoring"
	"github.com/banshee-data/corridor.report/internal/signal"
)

// DataCollectionSetback is how far upstream of its detector a data
// collection point is placed.
const DataCollectionSetback = 1.6

// Layout is the measurement equipment placed on the network for one run.
// Column order of every series follows the slices here.
type Layout struct {
	// Detectors sorted by link, lane and position; one data collection
	// point each.
	Detectors         []cluster.DetectorPosition `json:"detectors"`
	DataCollectionIDs []int                      `json:"data_collection_ids"`

	Clusters       []cluster.CounterCluster      `json:"clusters"`
	Heads          []cluster.LinkSignalHeadCount `json:"heads"`
	CounterIDs     []int                         `json:"counter_ids"`
	CounterLengths []float64                     `json:"counter_lengths"`

	Sections []engine.TravelTimeSection `json:"travel_time_sections"`
	Nodes    []int                      `json:"nodes"`
}

// Controllers lists the controllers plans drive, each with its plan's
// number of signal groups.
func Controllers(plans []*signal.SignalPlan) []engine.Controller {
	out := make([]engine.Controller, len(plans))
	for i, p := range plans {
		out[i] = engine.Controller{Name: p.Name, Groups: p.Groups()}
	}
	return out
}

// checkControllers verifies every plan drives a controller the network has,
// with the same number of signal groups when the network reports one.
func checkControllers(net *engine.Network, plans []*signal.SignalPlan) error {
	for _, p := range plans {
		c, ok := net.Controller(p.Name)
		if !ok {
			return &engine.ConsistencyError{Op: "setup", Element: p.Name, Err: engine.ErrUnknownController}
		}
		if c.Groups > 0 && c.Groups != p.Groups() {
			return &engine.ConsistencyError{Op: "setup", Element: p.Name,
				Err: fmt.Errorf("%w: plan has %d groups, controller has %d", engine.ErrGroupMismatch, p.Groups(), c.Groups)}
		}
	}
	return nil
}

// checkSections rejects two travel time sections over the same link pair.
func checkSections(sections []engine.TravelTimeSection) error {
	type pair struct{ from, to int }
	seen := make(map[pair]int, len(sections))
	for _, s := range sections {
		k := pair{s.StartLink, s.EndLink}
		if prev, ok := seen[k]; ok {
			return &engine.ConsistencyError{Op: "setup", Element: fmt.Sprintf("section %d", s.ID),
				Err: fmt.Errorf("%w: links %d to %d already measured by section %d", engine.ErrDuplicateSection, s.StartLink, s.EndLink, prev)}
		}
		seen[k] = s.ID
	}
	return nil
}

// place clusters the network's detectors and installs one queue counter per
// cluster and one data collection point per detector.
func place(ctx context.Context, eng engine.Engine, net *engine.Network) (*Layout, error) {
	l := &Layout{
		Detectors: append([]cluster.DetectorPosition(nil), net.Detectors...),
		Sections:  append([]engine.TravelTimeSection(nil), net.Sections...),
		Nodes:     append([]int(nil), net.Nodes...),
	}
	cluster.SortDetectors(l.Detectors)
	l.Clusters = cluster.Cluster(l.Detectors)
	l.Heads = cluster.HeadCounts(l.Clusters)

	if err := eng.ResetCounters(ctx); err != nil {
		return nil, fmt.Errorf("reset counters: %w", err)
	}
	for _, c := range l.Clusters {
		pos := cluster.CounterPosition(l.Detectors, c)
		id, err := eng.AddQueueCounter(ctx, c.LinkID, pos)
		if err != nil {
			return nil, fmt.Errorf("queue counter on link %d: %w", c.LinkID, err)
		}
		l.CounterIDs = append(l.CounterIDs, id)
		l.CounterLengths = append(l.CounterLengths, cluster.CounterLinkLength(l.Detectors, c))
	}
	for _, d := range l.Detectors {
		id, err := eng.AddDataCollection(ctx, d.LinkID, d.LaneID, d.Position-DataCollectionSetback)
		if err != nil {
			return nil, fmt.Errorf("data collection at %s: %w", d, err)
		}
		l.DataCollectionIDs = append(l.DataCollectionIDs, id)
	}
	monitoring.Logf("placed %d queue counters and %d data collection points on %d links",
		len(l.CounterIDs), len(l.DataCollectionIDs), len(cluster.Links(l.Detectors)))
	return l, nil
}
