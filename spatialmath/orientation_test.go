package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

// represent a 45 degree rotation around the x axis in all the representations
var (
	th    = math.Pi / 4.
	q45x  = quat.Number{Real: math.Cos(th / 2.), Imag: math.Sin(th / 2.)}
	aa45x = &R4AA{th, 1., 0., 0.}
	rm45x = &RotationMatrix{[9]float64{
		1, 0, 0,
		0, math.Cos(th), -math.Sin(th),
		0, math.Sin(th), math.Cos(th),
	}}
)

func TestZeroOrientation(t *testing.T) {
	zero := NewZeroOrientation()
	test.That(t, zero.AxisAngles().Theta, test.ShouldEqual, 0.)
	test.That(t, zero.Quaternion(), test.ShouldResemble, quat.Number{1, 0, 0, 0})
	test.That(t, zero.RotationMatrix().Row(0), test.ShouldResemble, r3.Vector{1, 0, 0})
}

func TestOrientationConversions(t *testing.T) {
	qq45x := quaternion(q45x)
	for _, o := range []Orientation{&qq45x, aa45x, rm45x} {
		q := o.Quaternion()
		test.That(t, q.Real, test.ShouldAlmostEqual, q45x.Real)
		test.That(t, q.Imag, test.ShouldAlmostEqual, q45x.Imag)
		test.That(t, q.Jmag, test.ShouldAlmostEqual, q45x.Jmag)
		test.That(t, q.Kmag, test.ShouldAlmostEqual, q45x.Kmag)

		aa := o.AxisAngles()
		test.That(t, aa.Theta, test.ShouldAlmostEqual, aa45x.Theta)
		test.That(t, aa.RX, test.ShouldAlmostEqual, aa45x.RX)
		test.That(t, aa.RY, test.ShouldAlmostEqual, aa45x.RY)
		test.That(t, aa.RZ, test.ShouldAlmostEqual, aa45x.RZ)

		rm := o.RotationMatrix()
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				test.That(t, rm.At(i, j), test.ShouldAlmostEqual, rm45x.At(i, j))
			}
		}
	}
}

func TestRotationMatrixFromSlice(t *testing.T) {
	rm, err := NewRotationMatrix([]float64{0, -1, 0, 1, 0, 0, 0, 0, 1})
	test.That(t, err, test.ShouldBeNil)
	v := rm.Mul(r3.Vector{X: 1})
	test.That(t, v.X, test.ShouldAlmostEqual, 0)
	test.That(t, v.Y, test.ShouldAlmostEqual, 1)
	test.That(t, rm.Col(0), test.ShouldResemble, r3.Vector{0, 1, 0})
	test.That(t, rm.AxisAngles().Theta, test.ShouldAlmostEqual, math.Pi/2)
	test.That(t, rm.AxisAngles().RZ, test.ShouldAlmostEqual, 1)

	_, err = NewRotationMatrix([]float64{1, 2, 3})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestOrientationBetween(t *testing.T) {
	a := &R4AA{0.3, 0, 0, 1}
	b := &R4AA{0.5, 0, 0, 1}
	between := OrientationBetween(a, b)
	test.That(t, between.AxisAngles().Theta, test.ShouldAlmostEqual, 0.2)
	test.That(t, OrientationAlmostEqualEps(a, b, 0.21), test.ShouldBeTrue)
	test.That(t, OrientationAlmostEqualEps(a, b, 0.19), test.ShouldBeFalse)
	test.That(t, OrientationAlmostEqual(OrientationInverse(a), &R4AA{-0.3, 0, 0, 1}), test.ShouldBeTrue)

	// q and -q are the same rotation
	neg := quaternion(quat.Scale(-1, q45x))
	test.That(t, OrientationAlmostEqualEps(&neg, aa45x, 1e-9), test.ShouldBeTrue)
}

func TestR3ToR4(t *testing.T) {
	aa := R3ToR4(r3.Vector{0, 0.5, 0})
	test.That(t, aa.Theta, test.ShouldAlmostEqual, 0.5)
	test.That(t, aa.RY, test.ShouldAlmostEqual, 1)
	test.That(t, aa.ToR3(), test.ShouldResemble, r3.Vector{0, 0.5, 0})
	test.That(t, R3ToR4(r3.Vector{}), test.ShouldResemble, NewR4AA())
	test.That(t, R3ToR4(r3.Vector{}).ToQuat(), test.ShouldResemble, quat.Number{Real: 1})
}
