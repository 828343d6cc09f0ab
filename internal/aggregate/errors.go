package aggregate

import (
	"errors"
	"fmt"
)

var (
	ErrEmptySeries = errors.New("series is empty")
	ErrMisaligned  = errors.New("series are not positionally aligned")
)

// DataShapeError reports series that cannot be combined without corrupting
// detector-to-column correspondence.
type DataShapeError struct {
	Kind Kind
	Err  error
}

func (e *DataShapeError) Error() string {
	if e.Kind == 0 {
		return fmt.Sprintf("data shape error: %v", e.Err)
	}
	return fmt.Sprintf("data shape error in %s series: %v", e.Kind, e.Err)
}

func (e *DataShapeError) Unwrap() error { return e.Err }

func shapeErrorf(kind Kind, cause error, format string, args ...interface{}) error {
	return &DataShapeError{Kind: kind, Err: fmt.Errorf("%w: "+format, append([]interface{}{cause}, args...)...)}
}
