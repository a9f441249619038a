package transform

import (
	"context"
	"testing"

	"go.viam.com/test"

	"go.viam.com/kinfu/rimage"
)

// slantedPlane renders depth of the plane z = 1 + 0.01*u for a camera.
func slantedPlane(cam *PinholeCameraModel) *rimage.DepthMap {
	dm := rimage.NewEmptyDepthMap(cam.Width, cam.Height)
	for v := 0; v < cam.Height; v++ {
		for u := 0; u < cam.Width; u++ {
			dm.Set(u, v, 1+0.01*float64(u))
		}
	}
	return dm
}

func TestDepthToPointNormals(t *testing.T) {
	cam := DefaultCameraModel(16, 12)
	dm := slantedPlane(cam)
	dm.Set(5, 5, 0)

	pns, err := DepthToPointNormals(context.Background(), cam, dm)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pns.Width(), test.ShouldEqual, 16)

	for v := 0; v < 12; v++ {
		for u := 0; u < 16; u++ {
			pn, ok := pns.At(u, v)
			// invalid on the last row/column and wherever the pixel or its right/down neighbour is empty
			expectValid := u < 15 && v < 11 &&
				!(u == 5 && v == 5) && !(u == 4 && v == 5) && !(u == 5 && v == 4)
			test.That(t, ok, test.ShouldEqual, expectValid)
			if !ok {
				continue
			}
			test.That(t, pn.Point.Z, test.ShouldEqual, dm.Get(u, v))
			test.That(t, pn.Normal.Norm(), test.ShouldAlmostEqual, 1)
			// facing the camera
			test.That(t, pn.Normal.Z, test.ShouldBeLessThan, 0)
			test.That(t, pn.Normal.Dot(pn.Point), test.ShouldBeLessThan, 0)
		}
	}

	_, err = DepthToPointNormals(context.Background(), cam, rimage.NewEmptyDepthMap(3, 3))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDepthPointsRoundTrip(t *testing.T) {
	cam := distortedCamera()
	dm := slantedPlane(cam)
	dm.Set(0, 0, 0)
	dm.Set(10, 7, 0)

	points, err := DepthToPoints(cam, dm)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, points.ValidCount(), test.ShouldEqual, dm.ValidCount())
	back := PointsToDepth(points)
	test.That(t, back.Data(), test.ShouldResemble, dm.Data())

	pns, err := DepthToPointNormals(context.Background(), cam, dm)
	test.That(t, err, test.ShouldBeNil)
	fromPN := PointNormalsToDepth(pns)
	for v := 0; v < dm.Height(); v++ {
		for u := 0; u < dm.Width(); u++ {
			if _, ok := pns.At(u, v); ok {
				test.That(t, fromPN.Get(u, v), test.ShouldEqual, dm.Get(u, v))
			} else {
				test.That(t, fromPN.Valid(u, v), test.ShouldBeFalse)
			}
		}
	}

	_, err = DepthToPoints(cam, rimage.NewEmptyDepthMap(1, 1))
	test.That(t, err, test.ShouldNotBeNil)
}
