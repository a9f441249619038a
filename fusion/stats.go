package fusion

import (
	"time"
)

// FrameStats summarizes one call to Execute.
type FrameStats struct {
	// Frame counts Execute calls since Init, starting at 1.
	Frame  int
	Start  time.Time
	Status Status
	Err    error

	// Tracker results; zero on bootstrap frames.
	Correspondences int
	Iterations      int
	RMS             float64

	// CastPoints is the number of valid pixels in the new cast.
	CastPoints int

	Filter    time.Duration
	Track     time.Duration
	Integrate time.Duration
	RayCast   time.Duration
	Total     time.Duration
}

// fields returns the stats as structured logging key value pairs.
func (fs FrameStats) fields() []interface{} {
	return []interface{}{
		"frame", fs.Frame,
		"status", fs.Status.String(),
		"correspondences", fs.Correspondences,
		"iterations", fs.Iterations,
		"rms", fs.RMS,
		"cast_points", fs.CastPoints,
		"filter", fs.Filter,
		"track", fs.Track,
		"integrate", fs.Integrate,
		"raycast", fs.RayCast,
		"total", fs.Total,
	}
}
