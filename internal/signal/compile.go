package signal

import (
	"fmt"
)

// Compile validates a raw plan and derives its breakpoints for a run of
// horizon seconds.
//
// The phase table is rotated so that MainPhaseIndex comes first. Breakpoints
// start at the offset and accumulate every duration; durations are applied to
// the rotated steps cyclically and are never split at the offset boundary.
// Breakpoints past the horizon are dropped and the timeline is closed at the
// horizon. A plan that ends before the horizon, or whose offset is not before
// it, is rejected.
func Compile(raw RawPlan, horizon int) (*SignalPlan, error) {
	name := raw.Name
	if name == "" {
		return nil, &ConfigError{Err: fmt.Errorf("signal plan without a name")}
	}
	if horizon <= 0 {
		return nil, configErrorf(name, ErrHorizonExceedsPlan, "horizon must be positive, got %d", horizon)
	}
	if len(raw.Phases) == 0 {
		return nil, &ConfigError{Plan: name, Err: ErrEmptyPlan}
	}

	steps, err := parseSteps(name, raw.Phases)
	if err != nil {
		return nil, err
	}
	n := len(steps)

	main := raw.MainPhaseIndex
	if main == 0 {
		main = 1
	}
	if main < 1 || main > n {
		return nil, configErrorf(name, ErrMainPhase, "got %d, plan has %d steps", raw.MainPhaseIndex, n)
	}

	durations, err := parseDurations(name, raw.Durations, n)
	if err != nil {
		return nil, err
	}

	if raw.Offset < 0 {
		return nil, configErrorf(name, ErrOffsetExceedsPeriod, "offset must be non-negative, got %d", raw.Offset)
	}
	for block, period := range blockPeriods(durations, n) {
		if raw.Offset >= period {
			return nil, configErrorf(name, ErrOffsetExceedsPeriod,
				"offset %d, cycle %d period %d", raw.Offset, block+1, period)
		}
	}

	if raw.Offset >= horizon {
		return nil, configErrorf(name, ErrOffsetPastHorizon, "offset %d, horizon %d", raw.Offset, horizon)
	}

	plan := &SignalPlan{
		Name:           name,
		Offset:         raw.Offset,
		MainPhaseIndex: main,
		PhaseStates:    rotate(steps, main-1),
		PhaseDurations: durations,
	}

	total := plan.Total()
	if total < horizon {
		return nil, configErrorf(name, ErrHorizonExceedsPlan, "plan ends at %d, horizon is %d", total, horizon)
	}
	plan.Breakpoints = breakpoints(raw.Offset, durations, horizon)
	return plan, nil
}

// CompileAll compiles every plan against the same horizon. Controller names
// must be unique.
func CompileAll(raws []RawPlan, horizon int) ([]*SignalPlan, error) {
	if len(raws) == 0 {
		return nil, &ConfigError{Err: fmt.Errorf("%w: no signal plans configured", ErrEmptyPlan)}
	}
	seen := make(map[string]bool, len(raws))
	plans := make([]*SignalPlan, 0, len(raws))
	for _, raw := range raws {
		if seen[raw.Name] {
			return nil, &ConfigError{Plan: raw.Name, Err: ErrDuplicatePlan}
		}
		seen[raw.Name] = true
		p, err := Compile(raw, horizon)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func parseSteps(name string, phases [][]string) ([]PhaseStep, error) {
	steps := make([]PhaseStep, len(phases))
	for i, row := range phases {
		if len(row) == 0 {
			return nil, configErrorf(name, ErrRaggedPhase, "step %d has no signal groups", i+1)
		}
		if i > 0 && len(row) != len(phases[0]) {
			return nil, configErrorf(name, ErrRaggedPhase, "step %d has %d groups, step 1 has %d", i+1, len(row), len(phases[0]))
		}
		step := make(PhaseStep, len(row))
		for j, sym := range row {
			s, err := ParseState(sym)
			if err != nil {
				return nil, &ConfigError{Plan: name, Err: fmt.Errorf("step %d group %d: %w", i+1, j+1, err)}
			}
			step[j] = s
		}
		steps[i] = step
	}
	return steps, nil
}

func parseDurations(name string, raw []float64, steps int) ([]int, error) {
	if len(raw) == 0 || len(raw)%steps != 0 {
		return nil, configErrorf(name, ErrBadDuration,
			"%d durations is not a whole number of %d-step cycles", len(raw), steps)
	}
	out := make([]int, len(raw))
	for i, v := range raw {
		d, ok := integralDuration(v)
		if !ok {
			return nil, configErrorf(name, ErrBadDuration, "duration %d is %v", i+1, v)
		}
		out[i] = d
	}
	return out, nil
}

func rotate(steps []PhaseStep, k int) []PhaseStep {
	out := make([]PhaseStep, 0, len(steps))
	out = append(out, steps[k:]...)
	return append(out, steps[:k]...)
}

// breakpoints expects offset < horizon, so the first breakpoint is always
// the offset.
func breakpoints(offset int, durations []int, horizon int) []int {
	out := make([]int, 0, len(durations)+1)
	at := offset
	out = append(out, at)
	for _, d := range durations {
		at += d
		if at >= horizon {
			break
		}
		out = append(out, at)
	}
	return append(out, horizon)
}
