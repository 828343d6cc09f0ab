package signal

import (
	"fmt"
	"math"
)

// RawPlan is one controller's plan as supplied by configuration, before
// validation. Durations stay float64 so that non-integral input can be
// detected and rejected.
type RawPlan struct {
	Name           string
	Offset         int
	MainPhaseIndex int // 1-based
	Phases         [][]string
	Durations      []float64
}

// SignalPlan is a compiled controller timeline.
type SignalPlan struct {
	Name           string
	Offset         int
	MainPhaseIndex int

	// PhaseStates is rotated so that the main phase is at index 0.
	PhaseStates []PhaseStep
	// PhaseDurations holds one entry per step, possibly spanning several
	// cycles; its length is a multiple of len(PhaseStates).
	PhaseDurations []int
	// Breakpoints are the strictly increasing instants at which this
	// controller changes state. Breakpoints[i] activates
	// PhaseStates[i%len(PhaseStates)]. The last entry is the end of the
	// plan clipped to the horizon.
	Breakpoints []int
}

// Groups returns the number of signal groups driven by the controller.
func (p *SignalPlan) Groups() int {
	if len(p.PhaseStates) == 0 {
		return 0
	}
	return len(p.PhaseStates[0])
}

// Period returns the length of the first cycle block.
func (p *SignalPlan) Period() int {
	return blockPeriods(p.PhaseDurations, len(p.PhaseStates))[0]
}

// Cycles returns how many full cycle blocks the durations describe.
func (p *SignalPlan) Cycles() int {
	if len(p.PhaseStates) == 0 {
		return 0
	}
	return len(p.PhaseDurations) / len(p.PhaseStates)
}

// Total is the unclipped end of the plan: offset plus every duration.
func (p *SignalPlan) Total() int {
	total := p.Offset
	for _, d := range p.PhaseDurations {
		total += d
	}
	return total
}

// Step returns the phase step activated by the i-th breakpoint.
func (p *SignalPlan) Step(i int) PhaseStep {
	return p.PhaseStates[i%len(p.PhaseStates)]
}

func (p *SignalPlan) String() string {
	return fmt.Sprintf("%s(offset=%d, steps=%d, cycles=%d, breakpoints=%d)",
		p.Name, p.Offset, len(p.PhaseStates), p.Cycles(), len(p.Breakpoints))
}

func blockPeriods(durations []int, steps int) []int {
	if steps == 0 {
		return []int{0}
	}
	periods := make([]int, 0, len(durations)/steps)
	for start := 0; start+steps <= len(durations); start += steps {
		sum := 0
		for _, d := range durations[start : start+steps] {
			sum += d
		}
		periods = append(periods, sum)
	}
	if len(periods) == 0 {
		periods = append(periods, 0)
	}
	return periods
}

func integralDuration(v float64) (int, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 1 || v != math.Trunc(v) || v > math.MaxInt32 {
		return 0, false
	}
	return int(v), true
}
