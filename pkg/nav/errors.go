package nav

import (
	"errors"
	"fmt"
)

// ErrInvalidPose is matched by every InvalidPoseError via errors.Is.
var ErrInvalidPose = errors.New("nav: invalid pose")

// InvalidPoseError reports a heading outside the single-wrap range the
// rotation normalization relies on.
type InvalidPoseError struct {
	// Field names the offending input ("origin", "target", "goal").
	Field   string
	Heading float64
}

// Error implements the error interface.
func (e *InvalidPoseError) Error() string {
	return fmt.Sprintf("nav: invalid %s heading %v (want finite value in [-π, π])", e.Field, e.Heading)
}

// Is makes errors.Is(err, ErrInvalidPose) work.
func (e *InvalidPoseError) Is(target error) bool {
	return target == ErrInvalidPose
}
