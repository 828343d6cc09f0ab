// Package schedule merges compiled signal plans into one global timeline and
// resolves, for any instant on it, which controllers change and to what.
package schedule

import (
	"errors"
	"fmt"
	"sort"

	"github.com/banshee-data/corridor.report/internal/signal"
)

// ErrInvariant marks a schedule instant that no plan claims. Merge makes this
// impossible, so seeing it means the schedule and plans have diverged.
var ErrInvariant = errors.New("schedule invariant violated")

// GlobalSchedule is the sorted, de-duplicated union of every plan's
// breakpoints strictly inside (0, horizon). It is immutable.
type GlobalSchedule struct {
	instants []int
	horizon  int
}

// Merge builds the global schedule. Time zero is excluded because initial
// states are applied separately; the horizon and anything past it are
// excluded because a plan's final breakpoint only marks its end.
func Merge(plans []*signal.SignalPlan, horizon int) (*GlobalSchedule, error) {
	if horizon <= 0 {
		return nil, &signal.ConfigError{Err: fmt.Errorf("simulation horizon must be positive, got %d", horizon)}
	}
	set := make(map[int]struct{})
	for _, p := range plans {
		for _, at := range p.Breakpoints {
			if at <= 0 || at >= horizon {
				continue
			}
			set[at] = struct{}{}
		}
	}
	instants := make([]int, 0, len(set))
	for at := range set {
		instants = append(instants, at)
	}
	sort.Ints(instants)
	return &GlobalSchedule{instants: instants, horizon: horizon}, nil
}

// Horizon returns the run length in seconds.
func (g *GlobalSchedule) Horizon() int { return g.horizon }

// Len returns the number of actionable instants.
func (g *GlobalSchedule) Len() int { return len(g.instants) }

// At returns the i-th instant.
func (g *GlobalSchedule) At(i int) int { return g.instants[i] }

// Instants returns a copy of the instants in increasing order.
func (g *GlobalSchedule) Instants() []int {
	out := make([]int, len(g.instants))
	copy(out, g.instants)
	return out
}

// ResolveState returns the phase step plan must switch to at instant, or
// ok=false when instant is not one of the plan's own breakpoints.
func ResolveState(plan *signal.SignalPlan, instant int) (step signal.PhaseStep, ok bool) {
	i := sort.SearchInts(plan.Breakpoints, instant)
	if i == len(plan.Breakpoints) || plan.Breakpoints[i] != instant {
		return nil, false
	}
	return plan.Step(i), true
}

// InitialState is the step applied at time zero. An unshifted plan starts on
// its main phase; a shifted plan sits in the tail of the previous cycle, which
// is the step cyclically preceding the main phase, until its offset.
func InitialState(plan *signal.SignalPlan) signal.PhaseStep {
	if step, ok := ResolveState(plan, 0); ok {
		return step
	}
	return plan.PhaseStates[len(plan.PhaseStates)-1]
}

// Change is one state push due at an instant.
type Change struct {
	Controller string
	Step       signal.PhaseStep
}

// ChangesAt resolves every plan at instant. It returns ErrInvariant when the
// instant belongs to the schedule yet no plan changes there.
func ChangesAt(plans []*signal.SignalPlan, instant int) ([]Change, error) {
	var changes []Change
	for _, p := range plans {
		if step, ok := ResolveState(p, instant); ok {
			changes = append(changes, Change{Controller: p.Name, Step: step})
		}
	}
	if len(changes) == 0 {
		return nil, fmt.Errorf("%w: no controller changes at t=%d", ErrInvariant, instant)
	}
	return changes, nil
}

// InitialChanges returns the time-zero state for every plan, in plan order.
func InitialChanges(plans []*signal.SignalPlan) []Change {
	changes := make([]Change, 0, len(plans))
	for _, p := range plans {
		changes = append(changes, Change{Controller: p.Name, Step: InitialState(p)})
	}
	return changes
}
