package transform

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func distortedCamera() *PinholeCameraModel {
	bc, _ := NewBrownConrady([]float64{0.1, -0.05, 0.01, 0.001, -0.002})
	return NewPinholeCameraModel(&PinholeCameraIntrinsics{
		Width: 64, Height: 48, Fx: 60, Fy: 62, Ppx: 31.5, Ppy: 23.5,
	}, bc)
}

func TestIntrinsicsCheckValid(t *testing.T) {
	var nilIntrinsics *PinholeCameraIntrinsics
	test.That(t, errors.Is(nilIntrinsics.CheckValid(), ErrNoIntrinsics), test.ShouldBeTrue)

	in := &PinholeCameraIntrinsics{Width: 10, Height: 10, Fx: 1, Fy: 1, Ppx: 5, Ppy: 5}
	test.That(t, in.CheckValid(), test.ShouldBeNil)
	for _, bad := range []PinholeCameraIntrinsics{
		{Width: 0, Height: 10, Fx: 1, Fy: 1},
		{Width: 10, Height: 10, Fx: 0, Fy: 1},
		{Width: 10, Height: 10, Fx: 1, Fy: -1},
		{Width: 10, Height: 10, Fx: 1, Fy: 1, Ppx: -1},
	} {
		bad := bad
		test.That(t, errors.Is(bad.CheckValid(), ErrNoIntrinsics), test.ShouldBeTrue)
	}

	var nilModel *PinholeCameraModel
	test.That(t, nilModel.CheckValid(), test.ShouldNotBeNil)
	test.That(t, distortedCamera().CheckValid(), test.ShouldBeNil)

	x, y, z := in.PixelToPoint(7, 3, 2)
	test.That(t, []float64{x, y, z}, test.ShouldResemble, []float64{4, -4, 2})
	x, y, z = nilIntrinsics.PixelToPoint(7, 3, 2)
	test.That(t, []float64{x, y, z}, test.ShouldResemble, []float64{0, 0, 0})
}

func TestUnprojectDepthIdeal(t *testing.T) {
	cam := DefaultCameraModel(64, 48)
	px := r2.Point{X: 10.5, Y: 40}
	p := cam.UnprojectDepth(px, 2)
	x, y, z := cam.PixelToPoint(px.X, px.Y, 2)
	test.That(t, p, test.ShouldResemble, r3.Vector{X: x, Y: y, Z: z})
	ray := cam.Unproject(px)
	test.That(t, p.X, test.ShouldAlmostEqual, 2*ray.X, 1e-12)
	test.That(t, p.Y, test.ShouldAlmostEqual, 2*ray.Y, 1e-12)
}

func TestProjectUnprojectRoundTrip(t *testing.T) {
	for _, cam := range []*PinholeCameraModel{DefaultCameraModel(64, 48), distortedCamera()} {
		for _, p := range []r3.Vector{{0.1, -0.05, 1}, {-0.3, 0.2, 2.5}, {0, 0, 0.7}} {
			px, ok := cam.Project(p)
			test.That(t, ok, test.ShouldBeTrue)
			back := cam.UnprojectDepth(px, p.Z)
			test.That(t, back.X, test.ShouldAlmostEqual, p.X, 1e-8)
			test.That(t, back.Y, test.ShouldAlmostEqual, p.Y, 1e-8)
			test.That(t, back.Z, test.ShouldEqual, p.Z)
		}
		_, ok := cam.Project(r3.Vector{0, 0, -1})
		test.That(t, ok, test.ShouldBeFalse)
	}
}

func TestDistortUndistort(t *testing.T) {
	cam := distortedCamera()
	npx := r2.Point{X: 0.3, Y: -0.2}
	d := cam.Distort(npx)
	test.That(t, d, test.ShouldNotResemble, npx)
	u := cam.Undistort(d)
	test.That(t, u.X, test.ShouldAlmostEqual, npx.X, 1e-9)
	test.That(t, u.Y, test.ShouldAlmostEqual, npx.Y, 1e-9)

	ideal := DefaultCameraModel(10, 10)
	test.That(t, ideal.Distort(npx), test.ShouldResemble, npx)
	test.That(t, ideal.Undistort(npx), test.ShouldResemble, npx)

	px := cam.NormalizedToPixel(npx)
	back := cam.PixelToNormalized(px)
	test.That(t, back.X, test.ShouldAlmostEqual, npx.X)
	test.That(t, back.Y, test.ShouldAlmostEqual, npx.Y)
}

func TestProjectionJacobian(t *testing.T) {
	cam := distortedCamera()
	p := r3.Vector{0.12, -0.08, 1.3}
	jacob, ok := cam.ProjectionJacobian(p)
	test.That(t, ok, test.ShouldBeTrue)

	const h = 1e-7
	base, _ := cam.Project(p)
	for c := 0; c < 6; c++ {
		twist := make([]float64, 6)
		twist[c] = h
		w := r3.Vector{twist[0], twist[1], twist[2]}
		v := r3.Vector{twist[3], twist[4], twist[5]}
		moved, ok := cam.Project(p.Add(w.Cross(p)).Add(v))
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, (moved.X-base.X)/h, test.ShouldAlmostEqual, jacob[c], 1e-3)
		test.That(t, (moved.Y-base.Y)/h, test.ShouldAlmostEqual, jacob[6+c], 1e-3)
	}

	_, ok = cam.ProjectionJacobian(r3.Vector{1, 1, 0})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestRescale(t *testing.T) {
	cam := DefaultCameraModel(641, 481)
	half := cam.PyrDown()
	test.That(t, half.Width, test.ShouldEqual, 321)
	test.That(t, half.Height, test.ShouldEqual, 241)
	test.That(t, half.Fx, test.ShouldAlmostEqual, cam.Fx/2)
	test.That(t, half.Ppy, test.ShouldAlmostEqual, cam.Ppy/2)
	// the original is untouched
	test.That(t, cam.Width, test.ShouldEqual, 641)

	scaled := cam.Rescale(2, 0.5)
	test.That(t, scaled.Width, test.ShouldEqual, 1282)
	test.That(t, scaled.Fy, test.ShouldAlmostEqual, cam.Fy/2)
}

func TestDefaultCameraModel(t *testing.T) {
	cam := DefaultCameraModel(640, 480)
	test.That(t, cam.Fx, test.ShouldAlmostEqual, 0.8*1120)
	test.That(t, cam.Ppx, test.ShouldAlmostEqual, 319.5)
	test.That(t, cam.Ppy, test.ShouldAlmostEqual, 239.5)
	test.That(t, cam.Distortion, test.ShouldBeNil)
	w, h := cam.Size()
	test.That(t, w, test.ShouldEqual, 640)
	test.That(t, h, test.ShouldEqual, 480)
}

func TestCameraModelJSON(t *testing.T) {
	cam := distortedCamera()
	data, err := json.Marshal(cam)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldContainSubstring, `"model":"brown_conrady"`)

	path := filepath.Join(t.TempDir(), "camera.json")
	test.That(t, os.WriteFile(path, data, 0o600), test.ShouldBeNil)
	read, err := NewPinholeCameraModelFromJSONFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, read.PinholeCameraIntrinsics, test.ShouldResemble, cam.PinholeCameraIntrinsics)
	test.That(t, read.Distortion.Parameters(), test.ShouldResemble, cam.Distortion.Parameters())

	noDist := []byte(`{"intrinsic_parameters": {"width_px": 4, "height_px": 3, "fx": 2, "fy": 2, "ppx": 1.5, "ppy": 1}}`)
	test.That(t, os.WriteFile(path, noDist, 0o600), test.ShouldBeNil)
	read, err = NewPinholeCameraModelFromJSONFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, read.Distortion, test.ShouldBeNil)

	badModel := []byte(`{"intrinsic_parameters": {"width_px": 4, "height_px": 3, "fx": 2, "fy": 2},
		"distortion": {"model": "fisheye", "parameters": []}}`)
	test.That(t, os.WriteFile(path, badModel, 0o600), test.ShouldBeNil)
	_, err = NewPinholeCameraModelFromJSONFile(path)
	test.That(t, err, test.ShouldNotBeNil)

	noIntrinsics := []byte(`{}`)
	test.That(t, os.WriteFile(path, noIntrinsics, 0o600), test.ShouldBeNil)
	_, err = NewPinholeCameraModelFromJSONFile(path)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)

	_, err = NewPinholeCameraModelFromJSONFile(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}
