package fusion

import (
	"go.viam.com/kinfu/rimage"
	"go.viam.com/kinfu/spatialmath"
	"go.viam.com/kinfu/tsdf"
)

// Status names the phase a session is in.
type Status int

const (
	// StatusUninitialized is a session that has not been given a camera and volume.
	StatusUninitialized Status = iota
	// StatusTracking is a session whose pose, cast and map are trusted.
	StatusTracking
	// StatusLost is a session waiting to bootstrap, either after Init, Reset or a tracking failure.
	StatusLost
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "UNINITIALIZED"
	case StatusTracking:
		return "TRACKING"
	case StatusLost:
		return "LOST"
	default:
		return "UNKNOWN"
	}
}

// State is the tagged session state: one of Uninitialized, Tracking or Lost.
type State interface {
	Status() Status
	isState()
}

// Uninitialized carries nothing.
type Uninitialized struct{}

// Tracking carries the trusted outputs of the last successful frame.
type Tracking struct {
	Pose   spatialmath.Pose
	Cast   *rimage.PointNormalMap
	Volume *tsdf.Volume
}

// Lost carries the volume, which is discarded on the next frame, and the pose the next frame
// bootstraps from.
type Lost struct {
	Volume *tsdf.Volume
	pose   spatialmath.Pose
}

// Status returns StatusUninitialized.
func (Uninitialized) Status() Status { return StatusUninitialized }

// Status returns StatusTracking.
func (Tracking) Status() Status { return StatusTracking }

// Status returns StatusLost.
func (Lost) Status() Status { return StatusLost }

func (Uninitialized) isState() {}
func (Tracking) isState()      {}
func (Lost) isState()          {}
