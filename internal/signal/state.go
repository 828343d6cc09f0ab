// Package signal models fixed-time intersection signal plans and compiles
// phase tables into per-controller breakpoint timelines.
package signal

import (
	"fmt"
	"strings"
)

// State is the indication shown by one signal group.
type State uint8

const (
	Red State = iota + 1
	Green
	Amber
)

func (s State) String() string {
	switch s {
	case Red:
		return "RED"
	case Green:
		return "GREEN"
	case Amber:
		return "AMBER"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// ParseState accepts the single-letter phase table symbols (R, G, Y) as well
// as the engine names (RED, GREEN, AMBER).
func ParseState(sym string) (State, error) {
	switch strings.ToUpper(strings.TrimSpace(sym)) {
	case "R", "RED":
		return Red, nil
	case "G", "GREEN":
		return Green, nil
	case "Y", "A", "AMBER":
		return Amber, nil
	}
	return 0, fmt.Errorf("%w: %q (use R, G or Y)", ErrBadSymbol, sym)
}

// PhaseStep is a simultaneous assignment of a state to every signal group of
// one controller.
type PhaseStep []State

// Strings renders the step using engine state names.
func (p PhaseStep) Strings() []string {
	out := make([]string, len(p))
	for i, s := range p {
		out[i] = s.String()
	}
	return out
}

func (p PhaseStep) String() string {
	return strings.Join(p.Strings(), ",")
}

// Equal reports whether both steps assign the same states in the same order.
func (p PhaseStep) Equal(o PhaseStep) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}
