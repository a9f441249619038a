package tsdf

import (
	"context"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/kinfu/rimage"
	"go.viam.com/kinfu/rimage/transform"
	"go.viam.com/kinfu/spatialmath"
	"go.viam.com/kinfu/testutils"
)

const (
	testUnit       = 0.01
	testTruncation = 4 * testUnit
)

func testVolume(t *testing.T, maxWeight float64) *Volume {
	t.Helper()
	vol, err := NewVolume(64, testUnit, r3.Vector{0, 0, 1}, testTruncation, maxWeight)
	test.That(t, err, test.ShouldBeNil)
	return vol
}

func TestIntegrateSingleObservation(t *testing.T) {
	cam := transform.DefaultCameraModel(40, 30)
	pose := spatialmath.NewZeroPose()
	vol := testVolume(t, 64)
	depth := testutils.RenderPlane(cam, pose, 1)

	test.That(t, Integrate(context.Background(), vol, cam, pose, depth), test.ShouldBeNil)
	test.That(t, vol.ObservedCount(), test.ShouldBeGreaterThan, 0)

	// voxel centers along the optical axis sit at z = 0.685 + 0.01k
	front, _ := vol.At(32, 32, 31)
	test.That(t, front.Weight, test.ShouldEqual, float32(1))
	test.That(t, front.Distance, test.ShouldAlmostEqual, 0.005, 1e-5)
	behind, _ := vol.At(32, 32, 32)
	test.That(t, behind.Weight, test.ShouldEqual, float32(1))
	test.That(t, behind.Distance, test.ShouldAlmostEqual, -0.005, 1e-5)

	// free space is clamped to the band
	free, _ := vol.At(32, 32, 0)
	test.That(t, free.Weight, test.ShouldEqual, float32(1))
	test.That(t, free.Distance, test.ShouldAlmostEqual, testTruncation, 1e-6)

	// occluded voxels stay unobserved
	occluded, _ := vol.At(32, 32, 63)
	test.That(t, occluded.Observed(), test.ShouldBeFalse)
}

func TestIntegrateTwice(t *testing.T) {
	cam := transform.DefaultCameraModel(40, 30)
	pose := spatialmath.NewZeroPose()
	vol := testVolume(t, 64)
	depth := testutils.RenderPlane(cam, pose, 1)

	test.That(t, Integrate(context.Background(), vol, cam, pose, depth), test.ShouldBeNil)
	once, _ := vol.At(32, 32, 31)
	test.That(t, Integrate(context.Background(), vol, cam, pose, depth), test.ShouldBeNil)
	twice, _ := vol.At(32, 32, 31)

	test.That(t, twice.Distance, test.ShouldAlmostEqual, once.Distance, 1e-6)
	test.That(t, twice.Weight, test.ShouldEqual, once.Weight+1)
}

func TestIntegrateWeightSaturates(t *testing.T) {
	cam := transform.DefaultCameraModel(40, 30)
	pose := spatialmath.NewZeroPose()
	vol := testVolume(t, 3)
	depth := testutils.RenderPlane(cam, pose, 1)

	for i := 0; i < 5; i++ {
		test.That(t, Integrate(context.Background(), vol, cam, pose, depth), test.ShouldBeNil)
	}
	v, _ := vol.At(32, 32, 31)
	test.That(t, v.Weight, test.ShouldEqual, float32(3))
	test.That(t, v.Distance, test.ShouldAlmostEqual, 0.005, 1e-5)
}

func TestIntegrateRejectsMismatch(t *testing.T) {
	cam := transform.DefaultCameraModel(40, 30)
	vol := testVolume(t, 64)
	err := Integrate(context.Background(), vol, cam, spatialmath.NewZeroPose(), rimage.NewEmptyDepthMap(20, 15))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, vol.ObservedCount(), test.ShouldEqual, 0)

	err = Integrate(context.Background(), vol, nil, spatialmath.NewZeroPose(), rimage.NewEmptyDepthMap(40, 30))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestIntegrateCanceled(t *testing.T) {
	cam := transform.DefaultCameraModel(40, 30)
	vol := testVolume(t, 64)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Integrate(ctx, vol, cam, spatialmath.NewZeroPose(), testutils.RenderPlane(cam, spatialmath.NewZeroPose(), 1))
	test.That(t, err, test.ShouldBeError, context.Canceled)
}
