package fusion

import (
	"github.com/pkg/errors"
)

var (
	// ErrNotInitialized is returned by Execute before Init.
	ErrNotInitialized = errors.New("fusion session is not initialized")
	// ErrDepthSizeMismatch is returned when a frame does not match the camera resolution.
	// The session is left untouched.
	ErrDepthSizeMismatch = errors.New("depth map size does not match camera")
	// ErrTrackingLost is returned when the tracker fails. The session drops to StatusLost and the
	// frame is not integrated.
	ErrTrackingLost = errors.New("tracking lost")
)

// trackingLostError reports ErrTrackingLost while keeping the tracker's error as its cause.
type trackingLostError struct {
	cause error
}

func (e *trackingLostError) Error() string {
	return ErrTrackingLost.Error() + ": " + e.cause.Error()
}

func (e *trackingLostError) Unwrap() error {
	return e.cause
}

func (e *trackingLostError) Is(target error) bool {
	return target == ErrTrackingLost
}

// Cause returns the tracker error.
func (e *trackingLostError) Cause() error {
	return e.cause
}
