package signal

import (
	"errors"
	"fmt"
)

var (
	ErrBadSymbol           = errors.New("invalid signal symbol")
	ErrBadDuration         = errors.New("phase duration must be a positive integer")
	ErrRaggedPhase         = errors.New("phase steps have differing signal group counts")
	ErrMainPhase           = errors.New("main phase index out of range")
	ErrOffsetExceedsPeriod = errors.New("offset is not shorter than the cycle period")
	ErrHorizonExceedsPlan  = errors.New("plan ends before the simulation horizon")
	ErrOffsetPastHorizon   = errors.New("offset is not before the simulation horizon")
	ErrEmptyPlan           = errors.New("plan has no phases")
	ErrDuplicatePlan       = errors.New("duplicate controller name")
)

// ConfigError reports invalid or inconsistent plan input. It is always fatal:
// any breakpoint computed from the offending plan would be wrong.
type ConfigError struct {
	// Plan names the offending controller; empty for run-level problems.
	Plan string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Plan == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error in signal plan %q: %v", e.Plan, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(plan string, cause error, format string, args ...interface{}) error {
	return &ConfigError{Plan: plan, Err: fmt.Errorf("%w: "+format, append([]interface{}{cause}, args...)...)}
}

// IsConfigError reports whether err carries a ConfigError anywhere in its chain.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
