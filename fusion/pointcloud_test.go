package fusion

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/kinfu/rimage"
	"go.viam.com/kinfu/spatialmath"
)

func TestCastToPointCloud(t *testing.T) {
	cast := rimage.NewPointNormalMap(4, 3)
	cast.Set(1, 1, rimage.PointNormal{Point: r3.Vector{0, 0, 1}, Normal: r3.Vector{0, 0, -1}})
	cast.Set(2, 2, rimage.PointNormal{Point: r3.Vector{0.5, 0, 2}, Normal: r3.Vector{0, 0, -1}})

	// camera one meter down the world z axis
	pose := spatialmath.NewPoseFromPoint(r3.Vector{0, 0, -1})
	pc, err := CastToPointCloud(cast, pose)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 2)
	test.That(t, pc.MetaData().HasNormal, test.ShouldBeTrue)

	d, ok := pc.At(0, 0, 2)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d.Normal(), test.ShouldResemble, r3.Vector{0, 0, -1})
	_, ok = pc.At(0.5, 0, 3)
	test.That(t, ok, test.ShouldBeTrue)

	_, err = CastToPointCloud(nil, pose)
	test.That(t, err, test.ShouldNotBeNil)
}
