package rimage

import (
	"image/color"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestShadeNormals(t *testing.T) {
	pm := NewPointNormalMap(3, 2)
	pm.Set(0, 0, PointNormal{Point: r3.Vector{0, 0, 1}, Normal: r3.Vector{0, 0, -1}})
	pm.Set(1, 0, PointNormal{Point: r3.Vector{0, 0, 1}, Normal: r3.Vector{1, 0, 0}})
	pm.Set(2, 1, PointNormal{Point: r3.Vector{0, 0, 1}, Normal: r3.Vector{0, 0.6, -0.8}})

	img := ShadeNormals(pm)
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, 3)
	test.That(t, img.Bounds().Dy(), test.ShouldEqual, 2)
	test.That(t, img.NRGBAAt(0, 0), test.ShouldResemble, color.NRGBA{255, 255, 255, 255})
	test.That(t, img.NRGBAAt(1, 0), test.ShouldResemble, color.NRGBA{0, 0, 0, 255})
	test.That(t, img.NRGBAAt(2, 1), test.ShouldResemble, color.NRGBA{204, 204, 204, 255})
	test.That(t, img.NRGBAAt(0, 1), test.ShouldResemble, color.NRGBA{0, 0, 0, 255})

	big := ShadeNormalsScaled(pm, 4)
	test.That(t, big.Bounds().Dx(), test.ShouldEqual, 12)
	test.That(t, big.Bounds().Dy(), test.ShouldEqual, 8)
	test.That(t, big.NRGBAAt(1, 1), test.ShouldResemble, color.NRGBA{255, 255, 255, 255})
	test.That(t, ShadeNormalsScaled(pm, 1).Bounds(), test.ShouldResemble, img.Bounds())
}
