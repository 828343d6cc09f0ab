package aggregate

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/corridor.report/internal/cluster"
	"github.com/banshee-data/corridor.report/internal/units"
)

// Result holds the reduced series of one kind.
type Result struct {
	Kind   Kind        `json:"kind"`
	Hourly [][]float64 `json:"hourly"`
	// Overall has one value per column for the whole run.
	Overall []float64 `json:"overall"`
	// RawOverall is Overall before per-length normalization; nil for kinds
	// that are not normalized.
	RawOverall []float64 `json:"raw_overall,omitempty"`
}

// Summary is every reduced kind of one run.
type Summary struct {
	Horizon int      `json:"horizon"`
	Results []Result `json:"results"`
}

// Get returns the result for kind.
func (s *Summary) Get(kind Kind) (Result, bool) {
	for _, r := range s.Results {
		if r.Kind == kind {
			return r, true
		}
	}
	return Result{}, false
}

// Reduce combines hourly rows of kind into one overall row.
//
// Sum kinds add every observed hour. TimeWeighted kinds take the mean of the
// observed hours weighted by the seconds each hour covers. Worst kinds keep
// the highest observed hour. Sentinel hours are skipped by every rule, and a
// column resolves to the sentinel only when every hour of it was a sentinel.
func Reduce(kind Kind, hourly [][]float64, horizon int) ([]float64, error) {
	if err := checkShape(kind, hourly, horizon); err != nil {
		return nil, err
	}
	weights := Weights(horizon)
	width := len(hourly[0])
	overall := make([]float64, width)

	values := make([]float64, 0, len(hourly))
	w := make([]float64, 0, len(hourly))
	for col := 0; col < width; col++ {
		values, w = values[:0], w[:0]
		for h, row := range hourly {
			if row[col] == units.NoObservation {
				continue
			}
			values = append(values, row[col])
			w = append(w, weights[h])
		}
		switch {
		case len(values) == 0:
			overall[col] = units.NoObservation
		case kind.Rule() == TimeWeighted:
			overall[col] = stat.Mean(values, w)
		case kind.Rule() == Worst:
			overall[col] = floats.Max(values)
		default:
			overall[col] = floats.Sum(values)
		}
	}
	return overall, nil
}

// NormalizePerLength divides every non-sentinel value of hourly and overall
// in place by the link length of its column.
func NormalizePerLength(kind Kind, hourly [][]float64, overall []float64, lengths []float64) error {
	if len(lengths) != len(overall) {
		return shapeErrorf(kind, ErrMisaligned, "%d link lengths for %d columns", len(lengths), len(overall))
	}
	for i, l := range lengths {
		if l <= 0 {
			return shapeErrorf(kind, ErrMisaligned, "column %d has link length %v", i, l)
		}
	}
	divide := func(row []float64) {
		for i, v := range row {
			if v != units.NoObservation {
				row[i] = v / lengths[i]
			}
		}
	}
	for _, row := range hourly {
		if len(row) != len(lengths) {
			return shapeErrorf(kind, ErrMisaligned, "hourly row has %d columns, expected %d", len(row), len(lengths))
		}
	}
	for _, row := range hourly {
		divide(row)
	}
	divide(overall)
	return nil
}

// Aggregate reduces every kind in acc. counterLengths gives the link length
// of each queue counter, in counter order, for per-length kinds.
func Aggregate(acc *Accumulator, counterLengths []float64) (*Summary, error) {
	kinds := acc.Kinds()
	if len(kinds) == 0 {
		return nil, shapeErrorf(0, ErrEmptySeries, "no measurements were recorded")
	}
	sum := &Summary{Horizon: acc.Horizon()}
	for _, kind := range kinds {
		hourly := acc.Hourly(kind)
		overall, err := Reduce(kind, hourly, acc.Horizon())
		if err != nil {
			return nil, err
		}
		res := Result{Kind: kind, Hourly: hourly, Overall: overall}
		if kind.PerLength() {
			res.RawOverall = append([]float64(nil), overall...)
			if err := NormalizePerLength(kind, hourly, overall, counterLengths); err != nil {
				return nil, err
			}
		}
		sum.Results = append(sum.Results, res)
	}
	return sum, nil
}

// Expand widens one row of values to display columns. Link values are
// repeated HeadCount times each; every other family maps one to one.
func Expand(metric Metric, values []float64, heads []cluster.LinkSignalHeadCount) ([]float64, error) {
	if metric != Link {
		return append([]float64(nil), values...), nil
	}
	if len(values) != len(heads) {
		return nil, fmt.Errorf("%w: %d link values for %d head groups", ErrMisaligned, len(values), len(heads))
	}
	var out []float64
	for i, h := range heads {
		for j := 0; j < h.HeadCount; j++ {
			out = append(out, values[i])
		}
	}
	return out, nil
}

func checkShape(kind Kind, hourly [][]float64, horizon int) error {
	if len(hourly) == 0 {
		return &DataShapeError{Kind: kind, Err: ErrEmptySeries}
	}
	if want := Hours(horizon); len(hourly) != want {
		return shapeErrorf(kind, ErrMisaligned, "%d hourly rows for a %d second run (%d hours)", len(hourly), horizon, want)
	}
	for h, row := range hourly {
		if len(row) != len(hourly[0]) {
			return shapeErrorf(kind, ErrMisaligned, "hour %d has %d samples, hour 1 has %d", h+1, len(row), len(hourly[0]))
		}
	}
	return nil
}
