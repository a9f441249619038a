// Package fusion runs the per frame depth fusion loop: filter, track, integrate and ray cast.
package fusion

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.viam.com/kinfu/logging"
	"go.viam.com/kinfu/registration"
	"go.viam.com/kinfu/rimage"
	"go.viam.com/kinfu/rimage/transform"
	"go.viam.com/kinfu/spatialmath"
	"go.viam.com/kinfu/tsdf"
)

// Session owns the state of one reconstruction. Execute must not run concurrently with itself;
// the read accessors may be called from other goroutines and observe the last completed frame.
type Session struct {
	mu     sync.RWMutex
	id     uuid.UUID
	logger logging.Logger
	clock  clock.Clock

	cfg    Config
	cam    *transform.PinholeCameraModel
	state  State
	frames int

	lastStats    FrameStats
	hasLastStats bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithClock sets the clock used for frame timings.
func WithClock(clk clock.Clock) SessionOption {
	return func(s *Session) {
		s.clock = clk
	}
}

// NewSession returns an uninitialized session. A nil logger means the global logger.
func NewSession(logger logging.Logger, opts ...SessionOption) *Session {
	if logger == nil {
		logger = logging.Global()
	}
	id := uuid.New()
	s := &Session{
		id:     id,
		logger: logger.Sublogger("session-" + id.String()[:8]),
		clock:  clock.New(),
		state:  Uninitialized{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Init allocates a zeroed volume and sets the pose the first frame is integrated at. The session
// starts out lost; the first Execute bootstraps it. Calling Init again discards everything.
func (s *Session) Init(cfg Config, cam *transform.PinholeCameraModel, base spatialmath.Pose) error {
	cfg = cfg.withDefaults()
	if err := cfg.Validate("config"); err != nil {
		return err
	}
	if err := cam.CheckValid(); err != nil {
		return err
	}
	if base == nil {
		base = spatialmath.NewZeroPose()
	}
	vol, err := tsdf.NewVolume(cfg.VolumeSize, cfg.VoxelUnit, cfg.Center(), cfg.Truncation, cfg.MaxWeight)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.cam = cam
	s.state = Lost{Volume: vol, pose: base}
	s.frames = 0
	s.lastStats = FrameStats{}
	s.hasLastStats = false

	width, height := cam.Size()
	s.logger.Infow("initialized",
		"width", width,
		"height", height,
		"volume_size", cfg.VolumeSize,
		"voxel_unit_m", cfg.VoxelUnit,
		"base_pose", base,
	)
	return nil
}

// Execute fuses one depth frame, in meters with zero marking missing data.
//
// A frame whose size does not match the camera is rejected with ErrDepthSizeMismatch and changes
// nothing. When tracking, the filtered frame is aligned against the last cast; if that fails the
// session becomes lost, the frame is dropped and an error wrapping ErrTrackingLost is returned.
// A lost session discards its volume and integrates the frame at the last trusted pose. ctx is
// checked between stages; once integration starts the frame runs to completion.
func (s *Session) Execute(ctx context.Context, depth *rimage.DepthMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.(Uninitialized); ok {
		return ErrNotInitialized
	}
	if depth == nil || depth.Width() != s.cam.Width || depth.Height() != s.cam.Height {
		w, h := 0, 0
		if depth != nil {
			w, h = depth.Width(), depth.Height()
		}
		return errors.Wrapf(ErrDepthSizeMismatch, "got %dx%d, camera is %dx%d", w, h, s.cam.Width, s.cam.Height)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.frames++
	stats := FrameStats{Frame: s.frames, Start: s.clock.Now()}
	stageCtx := context.WithoutCancel(ctx)

	var (
		vol  *tsdf.Volume
		pose spatialmath.Pose
	)
	switch st := s.state.(type) {
	case Tracking:
		vol, pose = st.Volume, st.Pose
		tracked, err := s.track(ctx, stageCtx, depth, st.Cast, pose, &stats)
		if err != nil {
			return s.finish(stats, err)
		}
		pose = tracked
	case Lost:
		vol, pose = st.Volume, st.pose
		vol.Zero()
		s.logger.Debugw("bootstrapping", "frame", stats.Frame, "pose", pose)
	}

	if err := ctx.Err(); err != nil {
		return s.finish(stats, err)
	}

	start := s.clock.Now()
	if err := tsdf.Integrate(stageCtx, vol, s.cam, pose, depth); err != nil {
		return s.finish(stats, err)
	}
	stats.Integrate = s.clock.Since(start)

	start = s.clock.Now()
	cast, err := tsdf.RayCast(stageCtx, vol, s.cam, pose, s.cfg.RayCast)
	if err != nil {
		return s.finish(stats, err)
	}
	stats.RayCast = s.clock.Since(start)
	stats.CastPoints = cast.ValidCount()

	s.state = Tracking{Pose: pose, Cast: cast, Volume: vol}
	return s.finish(stats, nil)
}

// track filters the frame and aligns it with the previous cast, returning the updated pose. On
// tracker failure the session is demoted to lost at the prior pose.
func (s *Session) track(
	ctx, stageCtx context.Context,
	depth *rimage.DepthMap,
	prevCast *rimage.PointNormalMap,
	pose spatialmath.Pose,
	stats *FrameStats,
) (spatialmath.Pose, error) {
	start := s.clock.Now()
	filtered, err := rimage.BilateralFilterDepth(stageCtx, depth, s.cfg.BilateralSigmaSpatial, s.cfg.BilateralSigmaRange)
	if err != nil {
		return nil, err
	}
	live, err := transform.DepthToPointNormals(stageCtx, s.cam, filtered)
	if err != nil {
		return nil, err
	}
	stats.Filter = s.clock.Since(start)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = s.clock.Now()
	res, err := registration.ProjectiveICP(stageCtx, s.cam, live, prevCast, s.cfg.ICP)
	stats.Track = s.clock.Since(start)
	if err != nil {
		vol := s.state.(Tracking).Volume
		s.state = Lost{Volume: vol, pose: pose}
		s.logger.Warnw("tracking lost", "frame", stats.Frame, "error", err)
		return nil, &trackingLostError{cause: err}
	}
	stats.Correspondences = res.Correspondences
	stats.Iterations = res.Iterations
	stats.RMS = res.RMS
	if !res.Converged {
		s.logger.Debugw("tracker hit the iteration limit", "frame", stats.Frame, "iterations", res.Iterations)
	}
	return spatialmath.Compose(spatialmath.PoseInverse(res.Delta), pose), nil
}

func (s *Session) finish(stats FrameStats, err error) error {
	stats.Err = err
	stats.Status = s.state.Status()
	stats.Total = s.clock.Since(stats.Start)
	s.lastStats = stats
	s.hasLastStats = true
	if err == nil {
		s.logger.Debugw("frame fused", stats.fields()...)
	}
	return err
}

// Reset forces the session to re-bootstrap on the next frame. The volume is kept until then.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.state.(Tracking); ok {
		s.state = Lost{Volume: st.Volume, pose: st.Pose}
		s.logger.Info("reset")
	}
}

// State returns the current tagged state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Status returns the current status.
func (s *Session) Status() Status {
	return s.State().Status()
}

// Valid reports whether the session is tracking.
func (s *Session) Valid() bool {
	return s.Status() == StatusTracking
}

// Pose returns the world to camera pose of the last frame, only while tracking.
func (s *Session) Pose() (spatialmath.Pose, bool) {
	if st, ok := s.State().(Tracking); ok {
		return st.Pose, true
	}
	return nil, false
}

// Cast returns the surface predicted from the last pose, only while tracking.
func (s *Session) Cast() (*rimage.PointNormalMap, bool) {
	if st, ok := s.State().(Tracking); ok {
		return st.Cast, true
	}
	return nil, false
}

// Map returns the volume, only while tracking. It is mutated by the next Execute.
func (s *Session) Map() (*tsdf.Volume, bool) {
	if st, ok := s.State().(Tracking); ok {
		return st.Volume, true
	}
	return nil, false
}

// Camera returns the camera the session was initialized with.
func (s *Session) Camera() *transform.PinholeCameraModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cam
}

// Config returns the config in effect, with defaults filled in.
func (s *Session) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// LastFrameStats returns statistics for the most recent Execute that got past validation.
func (s *Session) LastFrameStats() (FrameStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastStats, s.hasLastStats
}
