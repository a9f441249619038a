package utils

import (
	"testing"

	"go.viam.com/test"
)

func TestClamp(t *testing.T) {
	test.That(t, Clamp(-2, -1, 1), test.ShouldEqual, -1.)
	test.That(t, Clamp(2, -1, 1), test.ShouldEqual, 1.)
	test.That(t, Clamp(0.25, -1, 1), test.ShouldEqual, 0.25)
	test.That(t, ClampFloat32(5, 0, 4), test.ShouldEqual, float32(4))
}

func TestRoundInt(t *testing.T) {
	test.That(t, RoundInt(2.5), test.ShouldEqual, 3)
	test.That(t, RoundInt(-2.5), test.ShouldEqual, -3)
	test.That(t, RoundInt(0.49), test.ShouldEqual, 0)
}
