package rimage

import (
	"bytes"
	"image"
	"image/png"
	"math"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestDepthMapAccessors(t *testing.T) {
	dm := NewEmptyDepthMap(4, 3)
	test.That(t, dm.HasData(), test.ShouldBeTrue)
	test.That(t, dm.Bounds(), test.ShouldResemble, image.Rect(0, 0, 4, 3))
	test.That(t, dm.ValidCount(), test.ShouldEqual, 0)

	dm.Set(1, 2, 1.5)
	dm.Set(9, 9, 2) // ignored
	d, ok := dm.Lookup(1, 2)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d, test.ShouldEqual, 1.5)
	test.That(t, dm.Data()[2*4+1], test.ShouldEqual, 1.5)

	_, ok = dm.Lookup(0, 0)
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = dm.Lookup(-1, 0)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, dm.Get(4, 0), test.ShouldEqual, 0.)

	dm.Set(0, 0, math.NaN())
	dm.Set(2, 0, -1)
	dm.Set(3, 0, math.Inf(1))
	test.That(t, dm.Valid(0, 0), test.ShouldBeFalse)
	test.That(t, dm.Valid(2, 0), test.ShouldBeFalse)
	test.That(t, dm.Valid(3, 0), test.ShouldBeFalse)
	test.That(t, dm.ValidCount(), test.ShouldEqual, 1)

	minD, maxD, ok := dm.MinMax()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, minD, test.ShouldEqual, 1.5)
	test.That(t, maxD, test.ShouldEqual, 1.5)

	clone := dm.Clone()
	clone.Set(1, 2, 3)
	test.That(t, dm.Get(1, 2), test.ShouldEqual, 1.5)

	dm.Resize(2, 2)
	test.That(t, dm.Width(), test.ShouldEqual, 2)
	test.That(t, dm.ValidCount(), test.ShouldEqual, 0)
	_, _, ok = dm.MinMax()
	test.That(t, ok, test.ShouldBeFalse)

	_, err := NewDepthMapFromData(2, 2, []float64{1, 2, 3})
	test.That(t, err, test.ShouldNotBeNil)
	fromData, err := NewDepthMapFromData(2, 1, []float64{1, 0})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fromData.ValidCount(), test.ShouldEqual, 1)
}

func TestDepthMapPNGRoundTrip(t *testing.T) {
	dm := NewEmptyDepthMap(5, 4)
	dm.Set(0, 0, 0.5)
	dm.Set(4, 3, 1.234)
	dm.Set(2, 1, 70) // beyond the 16-bit range at millimeter scale

	path := filepath.Join(t.TempDir(), "depth.png")
	test.That(t, WriteDepthMap(path, dm, DefaultDepthScale), test.ShouldBeNil)

	read, err := ReadDepthMap(path, DefaultDepthScale)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, read.Width(), test.ShouldEqual, 5)
	test.That(t, read.Height(), test.ShouldEqual, 4)
	test.That(t, read.Get(0, 0), test.ShouldAlmostEqual, 0.5)
	test.That(t, read.Get(4, 3), test.ShouldAlmostEqual, 1.234)
	test.That(t, read.Get(2, 1), test.ShouldAlmostEqual, 65.535)
	test.That(t, read.ValidCount(), test.ShouldEqual, 3)

	_, err = ReadDepthMap(filepath.Join(t.TempDir(), "missing.png"), DefaultDepthScale)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDecodeDepthMapRejectsColor(t *testing.T) {
	var buf bytes.Buffer
	test.That(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))), test.ShouldBeNil)
	_, err := DecodeDepthMap(&buf, DefaultDepthScale)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "16-bit")

	_, err = DecodeDepthMap(&buf, 0)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPointNormalMap(t *testing.T) {
	pm := NewPointNormalMap(3, 2)
	_, ok := pm.At(1, 1)
	test.That(t, ok, test.ShouldBeFalse)

	pn := PointNormal{Point: r3v(1, 2, 3), Normal: r3v(0, 0, -1)}
	pm.Set(1, 1, pn)
	pm.Set(5, 5, pn)
	got, ok := pm.At(1, 1)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, got, test.ShouldResemble, pn)
	test.That(t, pm.ValidCount(), test.ShouldEqual, 1)

	visited := 0
	pm.Iterate(func(x, y int, p PointNormal) bool {
		test.That(t, x, test.ShouldEqual, 1)
		test.That(t, y, test.ShouldEqual, 1)
		visited++
		return true
	})
	test.That(t, visited, test.ShouldEqual, 1)

	clone := pm.Clone()
	pm.Invalidate(1, 1)
	test.That(t, pm.ValidCount(), test.ShouldEqual, 0)
	test.That(t, clone.ValidCount(), test.ShouldEqual, 1)

	points := NewPointMap(2, 2)
	points.Set(0, 1, r3v(0, 0, 2))
	p, ok := points.At(0, 1)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, p.Z, test.ShouldEqual, 2.)
	test.That(t, points.ValidCount(), test.ShouldEqual, 1)
}
