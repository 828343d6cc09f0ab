package aggregate

// HourSeconds is the length of one reporting interval.
const HourSeconds = 3600

// Hours returns how many reporting intervals a run of horizon seconds spans,
// counting a partial final hour.
func Hours(horizon int) int {
	if horizon <= 0 {
		return 0
	}
	return (horizon + HourSeconds - 1) / HourSeconds
}

// Weights returns the seconds covered by each reporting interval: a full
// hour for all but the last, which covers ((horizon-1) mod 3600)+1 seconds.
func Weights(horizon int) []float64 {
	n := Hours(horizon)
	w := make([]float64, n)
	for i := range w {
		w[i] = HourSeconds
	}
	if n > 0 {
		w[n-1] = float64((horizon-1)%HourSeconds + 1)
	}
	return w
}

// Accumulator collects HourlySeries for one run. Rows must arrive in hour
// order because the final row is weighted as the partial hour.
type Accumulator struct {
	horizon int
	series  map[Kind][][]float64
}

// NewAccumulator creates an empty accumulator for a run of horizon seconds.
func NewAccumulator(horizon int) *Accumulator {
	return &Accumulator{horizon: horizon, series: make(map[Kind][][]float64)}
}

// Horizon returns the run length the accumulator was created for.
func (a *Accumulator) Horizon() int { return a.horizon }

// Append records the samples of kind for the given 1-based hour. Hours must
// be appended consecutively and every row of a kind must have the same width.
func (a *Accumulator) Append(kind Kind, hour int, samples []float64) error {
	rows := a.series[kind]
	if hour != len(rows)+1 {
		return shapeErrorf(kind, ErrMisaligned, "hour %d appended after %d hours", hour, len(rows))
	}
	if hour > Hours(a.horizon) {
		return shapeErrorf(kind, ErrMisaligned, "hour %d beyond a %d second run", hour, a.horizon)
	}
	if len(rows) > 0 && len(rows[0]) != len(samples) {
		return shapeErrorf(kind, ErrMisaligned, "hour %d has %d samples, hour 1 has %d", hour, len(samples), len(rows[0]))
	}
	row := make([]float64, len(samples))
	copy(row, samples)
	a.series[kind] = append(rows, row)
	return nil
}

// Hourly returns a copy of the rows recorded for kind.
func (a *Accumulator) Hourly(kind Kind) [][]float64 {
	return cloneRows(a.series[kind])
}

// Kinds returns the kinds that have at least one row, in reporting order.
func (a *Accumulator) Kinds() []Kind {
	var out []Kind
	for _, k := range AllKinds {
		if len(a.series[k]) > 0 {
			out = append(out, k)
		}
	}
	return out
}

func cloneRows(rows [][]float64) [][]float64 {
	if rows == nil {
		return nil
	}
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = append([]float64(nil), r...)
	}
	return out
}
