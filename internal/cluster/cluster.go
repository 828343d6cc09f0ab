// Package cluster groups detector positions along a link into queue counters.
package cluster

import (
	"fmt"
	"math"
	"sort"
)

// MergeTolerance is the largest gap, in position units along the lane, at
// which a detector still joins the open cluster.
const MergeTolerance = 10.0

// DetectorPosition locates one signal head detector on the network.
type DetectorPosition struct {
	LinkID     int     `json:"link_id"`
	LaneID     int     `json:"lane_id"`
	Position   float64 `json:"position"`
	LinkLength float64 `json:"link_length"`
}

func (d DetectorPosition) String() string {
	return fmt.Sprintf("%d-%d@%.1f", d.LinkID, d.LaneID, d.Position)
}

// CounterCluster is a run of close detectors on one link that is measured by
// a single queue counter. Members index the detector slice given to Cluster,
// ordered by position.
type CounterCluster struct {
	LinkID  int   `json:"link_id"`
	Members []int `json:"members"`
}

// Size returns the number of detectors in the cluster.
func (c CounterCluster) Size() int { return len(c.Members) }

// LinkSignalHeadCount is the number of display columns a per-link value
// expands to.
type LinkSignalHeadCount struct {
	LinkID    int `json:"link_id"`
	HeadCount int `json:"head_count"`
}

// SortDetectors orders detectors by link, lane and position, the order in
// which per-detector series are reported.
func SortDetectors(ds []DetectorPosition) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i], ds[j]
		if a.LinkID != b.LinkID {
			return a.LinkID < b.LinkID
		}
		if a.LaneID != b.LaneID {
			return a.LaneID < b.LaneID
		}
		return a.Position < b.Position
	})
}

// Greedy partitions positions, which must already be sorted ascending, into
// runs. A position joins the open run when it lies within MergeTolerance of
// the run's most recently added member; otherwise it opens a new run. The
// result holds indices into positions.
func Greedy(positions []float64) [][]int {
	var runs [][]int
	last := math.Inf(-1)
	for i, pos := range positions {
		if len(runs) == 0 || math.Abs(pos-last) >= MergeTolerance {
			runs = append(runs, []int{i})
		} else {
			runs[len(runs)-1] = append(runs[len(runs)-1], i)
		}
		last = pos
	}
	return runs
}

// Cluster groups detectors link by link. Links appear in ascending link id
// order and clusters within a link in ascending position order, regardless
// of the input order. Every detector lands in exactly one cluster.
func Cluster(ds []DetectorPosition) []CounterCluster {
	byLink := make(map[int][]int)
	var links []int
	for i, d := range ds {
		if _, ok := byLink[d.LinkID]; !ok {
			links = append(links, d.LinkID)
		}
		byLink[d.LinkID] = append(byLink[d.LinkID], i)
	}
	sort.Ints(links)

	var out []CounterCluster
	for _, link := range links {
		idx := byLink[link]
		sort.SliceStable(idx, func(a, b int) bool {
			return ds[idx[a]].Position < ds[idx[b]].Position
		})
		positions := make([]float64, len(idx))
		for k, i := range idx {
			positions[k] = ds[i].Position
		}
		for _, run := range Greedy(positions) {
			members := make([]int, len(run))
			for k, r := range run {
				members[k] = idx[r]
			}
			out = append(out, CounterCluster{LinkID: link, Members: members})
		}
	}
	return out
}

// CounterPosition is where the queue counter for c is placed: at its
// furthest-downstream member.
func CounterPosition(ds []DetectorPosition, c CounterCluster) float64 {
	return ds[c.Members[len(c.Members)-1]].Position
}

// CounterLinkLength returns the length of the link c lies on.
func CounterLinkLength(ds []DetectorPosition, c CounterCluster) float64 {
	return ds[c.Members[0]].LinkLength
}

// HeadCounts emits one entry per cluster with its size.
func HeadCounts(clusters []CounterCluster) []LinkSignalHeadCount {
	out := make([]LinkSignalHeadCount, len(clusters))
	for i, c := range clusters {
		out[i] = LinkSignalHeadCount{LinkID: c.LinkID, HeadCount: c.Size()}
	}
	return out
}

// LinkHeadCounts counts detectors per link for detectors already sorted by
// SortDetectors, one entry per run of equal link ids.
func LinkHeadCounts(ds []DetectorPosition) []LinkSignalHeadCount {
	var out []LinkSignalHeadCount
	for _, d := range ds {
		if n := len(out); n > 0 && out[n-1].LinkID == d.LinkID {
			out[n-1].HeadCount++
			continue
		}
		out = append(out, LinkSignalHeadCount{LinkID: d.LinkID, HeadCount: 1})
	}
	return out
}

// Links returns the distinct link ids of sorted detectors in order.
func Links(ds []DetectorPosition) []int {
	var out []int
	for _, h := range LinkHeadCounts(ds) {
		out = append(out, h.LinkID)
	}
	return out
}
