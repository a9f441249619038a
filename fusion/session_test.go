package fusion

import (
	"context"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/kinfu/logging"
	"go.viam.com/kinfu/registration"
	"go.viam.com/kinfu/rimage"
	"go.viam.com/kinfu/rimage/transform"
	"go.viam.com/kinfu/spatialmath"
	"go.viam.com/kinfu/testutils"
)

func roomConfig() Config {
	return Config{
		VolumeSize:   64,
		VoxelUnit:    0.02,
		VolumeCenter: []float64{0, 0, 0.8},
	}
}

func roomFrame(cam *transform.PinholeCameraModel, pose spatialmath.Pose) *rimage.DepthMap {
	return testutils.RenderBox(cam, pose, testutils.Room())
}

func newRoomSession(t *testing.T) (*Session, *transform.PinholeCameraModel, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	s := NewSession(logging.NewTestLogger(t), WithClock(clk))
	cam := transform.DefaultCameraModel(80, 60)
	test.That(t, s.Init(roomConfig(), cam, nil), test.ShouldBeNil)
	return s, cam, clk
}

func TestSessionUninitialized(t *testing.T) {
	s := NewSession(logging.NewTestLogger(t))
	test.That(t, s.Status(), test.ShouldEqual, StatusUninitialized)
	test.That(t, s.State(), test.ShouldResemble, Uninitialized{})
	test.That(t, s.Valid(), test.ShouldBeFalse)

	err := s.Execute(context.Background(), rimage.NewEmptyDepthMap(80, 60))
	test.That(t, errors.Is(err, ErrNotInitialized), test.ShouldBeTrue)
	_, ok := s.LastFrameStats()
	test.That(t, ok, test.ShouldBeFalse)

	test.That(t, s.Init(roomConfig(), nil, nil), test.ShouldNotBeNil)
	test.That(t, s.Init(Config{VolumeSize: -1}, transform.DefaultCameraModel(80, 60), nil), test.ShouldNotBeNil)
	test.That(t, s.Status(), test.ShouldEqual, StatusUninitialized)
}

func TestSessionBootstrap(t *testing.T) {
	s, cam, clk := newRoomSession(t)
	test.That(t, s.Status(), test.ShouldEqual, StatusLost)
	test.That(t, s.Valid(), test.ShouldBeFalse)
	_, ok := s.Pose()
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = s.Cast()
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = s.Map()
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, s.Camera(), test.ShouldEqual, cam)
	test.That(t, s.Config().Truncation, test.ShouldAlmostEqual, 0.08)

	test.That(t, s.Execute(context.Background(), roomFrame(cam, spatialmath.NewZeroPose())), test.ShouldBeNil)
	test.That(t, s.Status(), test.ShouldEqual, StatusTracking)
	test.That(t, s.Valid(), test.ShouldBeTrue)

	pose, ok := s.Pose()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, spatialmath.PoseAlmostCoincident(pose, spatialmath.NewZeroPose()), test.ShouldBeTrue)
	cast, ok := s.Cast()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, cast.ValidCount(), test.ShouldBeGreaterThan, 1000)
	vol, ok := s.Map()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, vol.ObservedCount(), test.ShouldBeGreaterThan, 0)

	stats, ok := s.LastFrameStats()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, stats.Frame, test.ShouldEqual, 1)
	test.That(t, stats.Status, test.ShouldEqual, StatusTracking)
	test.That(t, stats.Err, test.ShouldBeNil)
	test.That(t, stats.Iterations, test.ShouldEqual, 0)
	test.That(t, stats.CastPoints, test.ShouldEqual, cast.ValidCount())
	test.That(t, stats.Start, test.ShouldEqual, clk.Now())
	test.That(t, stats.Total, test.ShouldEqual, 0)
}

func TestSessionTracksMotion(t *testing.T) {
	s, cam, _ := newRoomSession(t)
	ctx := context.Background()
	test.That(t, s.Execute(ctx, roomFrame(cam, spatialmath.NewZeroPose())), test.ShouldBeNil)

	motion := spatialmath.NewZeroPose()
	step := spatialmath.NewPose(r3.Vector{0.008, -0.006, 0.01}, &spatialmath.R4AA{Theta: 0.008, RX: 0.2, RY: 1, RZ: -0.4})
	for i := 0; i < 2; i++ {
		motion = spatialmath.Compose(step, motion)
		test.That(t, s.Execute(ctx, roomFrame(cam, motion)), test.ShouldBeNil)

		pose, ok := s.Pose()
		test.That(t, ok, test.ShouldBeTrue)
		// the step alone is larger than the tolerance, so standing still would fail
		test.That(t, spatialmath.PoseAlmostEqualEps(pose, motion, 1e-2), test.ShouldBeTrue)

		stats, _ := s.LastFrameStats()
		test.That(t, stats.Frame, test.ShouldEqual, i+2)
		test.That(t, stats.Iterations, test.ShouldBeGreaterThan, 0)
		test.That(t, stats.Correspondences, test.ShouldBeGreaterThanOrEqualTo, 64)
	}
}

func TestSessionRejectsWrongSize(t *testing.T) {
	s, cam, _ := newRoomSession(t)
	ctx := context.Background()
	test.That(t, s.Execute(ctx, roomFrame(cam, spatialmath.NewZeroPose())), test.ShouldBeNil)
	pose, _ := s.Pose()
	cast, _ := s.Cast()
	stats, _ := s.LastFrameStats()

	err := s.Execute(ctx, rimage.NewEmptyDepthMap(40, 30))
	test.That(t, errors.Is(err, ErrDepthSizeMismatch), test.ShouldBeTrue)
	err = s.Execute(ctx, nil)
	test.That(t, errors.Is(err, ErrDepthSizeMismatch), test.ShouldBeTrue)

	test.That(t, s.Status(), test.ShouldEqual, StatusTracking)
	after, _ := s.Pose()
	test.That(t, after, test.ShouldEqual, pose)
	afterCast, _ := s.Cast()
	test.That(t, afterCast, test.ShouldEqual, cast)
	afterStats, _ := s.LastFrameStats()
	test.That(t, afterStats, test.ShouldResemble, stats)
}

func TestSessionReset(t *testing.T) {
	s, cam, _ := newRoomSession(t)
	ctx := context.Background()
	frame := roomFrame(cam, spatialmath.NewZeroPose())
	test.That(t, s.Execute(ctx, frame), test.ShouldBeNil)
	vol, _ := s.Map()
	observed := vol.ObservedCount()

	s.Reset()
	test.That(t, s.Valid(), test.ShouldBeFalse)
	test.That(t, s.Status(), test.ShouldEqual, StatusLost)
	_, ok := s.Pose()
	test.That(t, ok, test.ShouldBeFalse)

	// the volume survives the reset itself
	lost, ok := s.State().(Lost)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, lost.Volume, test.ShouldEqual, vol)
	test.That(t, lost.Volume.ObservedCount(), test.ShouldEqual, observed)

	// resetting again is harmless
	s.Reset()
	test.That(t, s.Status(), test.ShouldEqual, StatusLost)

	test.That(t, s.Execute(ctx, frame), test.ShouldBeNil)
	test.That(t, s.Valid(), test.ShouldBeTrue)
	vol, _ = s.Map()
	// the bootstrap frame rebuilt the volume from scratch rather than fusing on top
	v, _ := vol.At(32, 32, 32)
	test.That(t, v.Weight, test.ShouldBeLessThanOrEqualTo, float32(1))
}

func TestSessionTrackingLost(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	s := NewSession(logger, WithClock(clock.NewMock()))
	cam := transform.DefaultCameraModel(80, 60)
	base := spatialmath.NewPoseFromPoint(r3.Vector{0, 0, 0.01})
	test.That(t, s.Init(roomConfig(), cam, base), test.ShouldBeNil)

	ctx := context.Background()
	test.That(t, s.Execute(ctx, roomFrame(cam, base)), test.ShouldBeNil)

	// a frame with no depth leaves nothing to track
	err := s.Execute(ctx, rimage.NewEmptyDepthMap(80, 60))
	test.That(t, errors.Is(err, ErrTrackingLost), test.ShouldBeTrue)
	test.That(t, errors.Is(err, registration.ErrInsufficientCorrespondences), test.ShouldBeTrue)
	test.That(t, s.Status(), test.ShouldEqual, StatusLost)
	test.That(t, logs.FilterMessage("tracking lost").Len(), test.ShouldEqual, 1)

	stats, _ := s.LastFrameStats()
	test.That(t, stats.Status, test.ShouldEqual, StatusLost)
	test.That(t, errors.Is(stats.Err, ErrTrackingLost), test.ShouldBeTrue)

	// the next frame bootstraps from the last trusted pose
	test.That(t, s.Execute(ctx, roomFrame(cam, base)), test.ShouldBeNil)
	pose, ok := s.Pose()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, spatialmath.PoseAlmostCoincident(pose, base), test.ShouldBeTrue)
}

func TestSessionCanceled(t *testing.T) {
	s, cam, _ := newRoomSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Execute(ctx, roomFrame(cam, spatialmath.NewZeroPose()))
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	test.That(t, s.Status(), test.ShouldEqual, StatusLost)
	_, ok := s.LastFrameStats()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestStatusString(t *testing.T) {
	test.That(t, StatusUninitialized.String(), test.ShouldEqual, "UNINITIALIZED")
	test.That(t, StatusTracking.String(), test.ShouldEqual, "TRACKING")
	test.That(t, StatusLost.String(), test.ShouldEqual, "LOST")
	test.That(t, Status(9).String(), test.ShouldEqual, "UNKNOWN")
}

func TestSessionGlobalLogger(t *testing.T) {
	s := NewSession(nil)
	test.That(t, s.Status(), test.ShouldEqual, StatusUninitialized)
	test.That(t, s.ID(), test.ShouldNotEqual, NewSession(nil).ID())
}
