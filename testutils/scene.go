// Package testutils renders synthetic depth scenes for tests.
package testutils

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"go.viam.com/kinfu/rimage"
	"go.viam.com/kinfu/rimage/transform"
	"go.viam.com/kinfu/spatialmath"
)

// Box is an axis aligned room seen from the inside. Infinite bounds are open.
type Box struct {
	Min, Max r3.Vector
}

// Room is a 0.6m x 0.4m corridor closed by a back wall at z == 1.2, open toward negative z.
func Room() Box {
	return Box{
		Min: r3.Vector{X: -0.3, Y: -0.2, Z: math.Inf(-1)},
		Max: r3.Vector{X: 0.3, Y: 0.2, Z: 1.2},
	}
}

// RenderBox returns the depth cam sees at pose (world to camera) from inside box.
func RenderBox(cam *transform.PinholeCameraModel, pose spatialmath.Pose, box Box) *rimage.DepthMap {
	walls := [3][2]float64{{box.Min.X, box.Max.X}, {box.Min.Y, box.Max.Y}, {box.Min.Z, box.Max.Z}}
	return render(cam, pose, func(origin, dir [3]float64) float64 {
		best := math.Inf(1)
		for axis, bounds := range walls {
			if dir[axis] == 0 {
				continue
			}
			for _, wall := range bounds {
				if t := (wall - origin[axis]) / dir[axis]; t > 0 && t < best {
					best = t
				}
			}
		}
		return best
	})
}

// RenderPlane returns the depth cam sees at pose (world to camera) looking at the world plane
// z == planeZ.
func RenderPlane(cam *transform.PinholeCameraModel, pose spatialmath.Pose, planeZ float64) *rimage.DepthMap {
	return render(cam, pose, func(origin, dir [3]float64) float64 {
		if dir[2] == 0 {
			return math.Inf(1)
		}
		return (planeZ - origin[2]) / dir[2]
	})
}

// render fills each pixel with hit(origin, dir), where dir is the world direction of the pixel's
// ray scaled to unit camera depth, so the hit parameter is the depth.
func render(cam *transform.PinholeCameraModel, pose spatialmath.Pose, hit func(origin, dir [3]float64) float64) *rimage.DepthMap {
	width, height := cam.Size()
	dm := rimage.NewEmptyDepthMap(width, height)
	inv := spatialmath.PoseInverse(pose)
	c := inv.Point()
	origin := [3]float64{c.X, c.Y, c.Z}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			d := spatialmath.RotatePoint(inv, cam.Unproject(r2.Point{X: float64(x), Y: float64(y)}))
			if z := hit(origin, [3]float64{d.X, d.Y, d.Z}); z > 0 && !math.IsInf(z, 0) {
				dm.Set(x, y, z)
			}
		}
	}
	return dm
}
