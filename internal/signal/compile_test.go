package signal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoPhase(offset int, cycles int) RawPlan {
	durations := make([]float64, 0, 2*cycles)
	for i := 0; i < cycles; i++ {
		durations = append(durations, 30, 30)
	}
	return RawPlan{
		Name:      "A",
		Offset:    offset,
		Phases:    [][]string{{"G", "R"}, {"R", "G"}},
		Durations: durations,
	}
}

func TestCompileUnshiftedPlan(t *testing.T) {
	p, err := Compile(twoPhase(0, 3), 90)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 30, 60, 90}, p.Breakpoints)
	assert.Equal(t, 60, p.Period())
	assert.Equal(t, 3, p.Cycles())
	assert.Equal(t, 180, p.Total())
	assert.Equal(t, 2, p.Groups())
	assert.True(t, p.Step(1).Equal(PhaseStep{Red, Green}))
	assert.True(t, p.Step(2).Equal(PhaseStep{Green, Red}))
}

func TestCompileOffsetPlan(t *testing.T) {
	p, err := Compile(twoPhase(20, 3), 90)
	require.NoError(t, err)
	assert.Equal(t, []int{20, 50, 80, 90}, p.Breakpoints)
}

func TestCompileRotatesMainPhase(t *testing.T) {
	raw := RawPlan{
		Name:           "B",
		MainPhaseIndex: 3,
		Phases:         [][]string{{"G"}, {"Y"}, {"R"}},
		Durations:      []float64{10, 3, 7},
	}
	p, err := Compile(raw, 20)
	require.NoError(t, err)

	require.Len(t, p.PhaseStates, 3)
	assert.Equal(t, PhaseStep{Red}, p.PhaseStates[0])
	assert.Equal(t, PhaseStep{Green}, p.PhaseStates[1])
	assert.Equal(t, PhaseStep{Amber}, p.PhaseStates[2])
	// Durations keep their table order; only the states rotate.
	assert.Equal(t, []int{10, 3, 7}, p.PhaseDurations)
	assert.Equal(t, []int{0, 10, 13, 20}, p.Breakpoints)
}

func TestCompileBreakpointProperties(t *testing.T) {
	cases := []struct {
		offset, cycles, horizon int
	}{
		{0, 1, 60}, {0, 4, 200}, {15, 2, 100}, {59, 3, 150}, {1, 10, 599}, {20, 3, 21}, {0, 3, 1},
	}
	for _, tc := range cases {
		p, err := Compile(twoPhase(tc.offset, tc.cycles), tc.horizon)
		require.NoError(t, err)

		bp := p.Breakpoints
		require.NotEmpty(t, bp)
		assert.Equal(t, tc.offset, bp[0])
		want := p.Total()
		if tc.horizon < want {
			want = tc.horizon
		}
		assert.Equal(t, want, bp[len(bp)-1])
		for i := 1; i < len(bp); i++ {
			assert.Less(t, bp[i-1], bp[i], "breakpoints must be strictly increasing: %v", bp)
		}
	}
}

func TestCompileRejectsBadInput(t *testing.T) {
	cases := []struct {
		name  string
		raw   RawPlan
		horiz int
		cause error
	}{
		{"offset equals period", twoPhase(60, 3), 90, ErrOffsetExceedsPeriod},
		{"negative offset", twoPhase(-1, 3), 90, ErrOffsetExceedsPeriod},
		{"plan shorter than horizon", twoPhase(0, 1), 90, ErrHorizonExceedsPlan},
		{"offset at horizon", twoPhase(20, 3), 20, ErrOffsetPastHorizon},
		{"offset past horizon", twoPhase(20, 3), 15, ErrOffsetPastHorizon},
		{"fractional duration", RawPlan{Name: "A", Phases: [][]string{{"G"}}, Durations: []float64{12.5}}, 10, ErrBadDuration},
		{"zero duration", RawPlan{Name: "A", Phases: [][]string{{"G"}, {"R"}}, Durations: []float64{0, 5}}, 5, ErrBadDuration},
		{"partial cycle", RawPlan{Name: "A", Phases: [][]string{{"G"}, {"R"}}, Durations: []float64{5, 5, 5}}, 5, ErrBadDuration},
		{"bad symbol", RawPlan{Name: "A", Phases: [][]string{{"G", "X"}}, Durations: []float64{5}}, 5, ErrBadSymbol},
		{"ragged steps", RawPlan{Name: "A", Phases: [][]string{{"G", "R"}, {"R"}}, Durations: []float64{5, 5}}, 5, ErrRaggedPhase},
		{"main phase out of range", RawPlan{Name: "A", MainPhaseIndex: 3, Phases: [][]string{{"G"}, {"R"}}, Durations: []float64{5, 5}}, 5, ErrMainPhase},
		{"no phases", RawPlan{Name: "A"}, 5, ErrEmptyPlan},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.raw, tc.horiz)
			require.Error(t, err)
			assert.True(t, IsConfigError(err))
			assert.True(t, errors.Is(err, tc.cause), "got %v", err)
			var ce *ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, "A", ce.Plan)
		})
	}
}

func TestCompileOffsetCheckedPerCycle(t *testing.T) {
	raw := RawPlan{
		Name:      "A",
		Offset:    40,
		Phases:    [][]string{{"G"}, {"R"}},
		Durations: []float64{30, 30, 20, 10},
	}
	_, err := Compile(raw, 50)
	require.ErrorIs(t, err, ErrOffsetExceedsPeriod)
	assert.Contains(t, err.Error(), "cycle 2")
}

func TestCompileAllDuplicateNames(t *testing.T) {
	_, err := CompileAll([]RawPlan{twoPhase(0, 3), twoPhase(10, 3)}, 90)
	require.ErrorIs(t, err, ErrDuplicatePlan)

	_, err = CompileAll(nil, 90)
	require.ErrorIs(t, err, ErrEmptyPlan)
}

func TestParseState(t *testing.T) {
	for sym, want := range map[string]State{"R": Red, "g": Green, "Y": Amber, "AMBER": Amber, " red ": Red} {
		got, err := ParseState(sym)
		require.NoError(t, err, sym)
		assert.Equal(t, want, got, sym)
	}
	_, err := ParseState("B")
	assert.ErrorIs(t, err, ErrBadSymbol)
	assert.Equal(t, "GREEN,RED,AMBER", PhaseStep{Green, Red, Amber}.String())
}
