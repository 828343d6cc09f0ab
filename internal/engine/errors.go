package engine

import (
	"errors"
	"fmt"
)

var (
	ErrNegativeReading   = errors.New("negative reading")
	ErrUnknownController = errors.New("unknown controller")
	ErrUnknownElement    = errors.New("unknown network element")
	ErrDuplicateSection  = errors.New("duplicate travel time section")
	ErrGroupMismatch     = errors.New("signal group count mismatch")
	ErrBadGrade          = errors.New("level of service grade out of range")
)

// ConsistencyError reports an engine answer that contradicts the plan or
// physics: a negative reading or an element the network does not have.
type ConsistencyError struct {
	Op      string
	Element string
	Err     error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("engine consistency: %s %s: %v", e.Op, e.Element, e.Err)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }

// IsConsistencyError reports whether err wraps a *ConsistencyError.
func IsConsistencyError(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}

// Guard turns a raw reading into a usable number. A missing reading is 0 and
// a negative one is a ConsistencyError.
func Guard(op, element string, v *float64) (float64, error) {
	if v == nil {
		return 0, nil
	}
	if *v < 0 {
		return 0, &ConsistencyError{Op: op, Element: element, Err: fmt.Errorf("%w: %v", ErrNegativeReading, *v)}
	}
	return *v, nil
}
