package transform

import (
	"context"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/kinfu/rimage"
	"go.viam.com/kinfu/utils"
)

func checkDepthSize(cam *PinholeCameraModel, dm *rimage.DepthMap) error {
	if cam.Width != dm.Width() || cam.Height != dm.Height() {
		return errors.Errorf("depth map and intrinsics don't match Depth(%d,%d) != Intrinsics(%d,%d)",
			dm.Width(), dm.Height(), cam.Width, cam.Height)
	}
	return nil
}

// DepthToPointNormals converts a depth map to camera space points with normals. An entry is
// valid when the pixel and its right and lower neighbours all have depth; its normal is
// (down - center) x (right - center), which faces the camera for a front facing surface.
// The last row and column are always invalid.
func DepthToPointNormals(ctx context.Context, cam *PinholeCameraModel, dm *rimage.DepthMap) (*rimage.PointNormalMap, error) {
	if err := checkDepthSize(cam, dm); err != nil {
		return nil, err
	}
	width, height := dm.Width(), dm.Height()
	out := rimage.NewPointNormalMap(width, height)
	err := utils.ParallelForEachRow(ctx, height-1, func(v int) {
		for u := 0; u < width-1; u++ {
			d0, ok0 := dm.Lookup(u, v)
			d1, ok1 := dm.Lookup(u+1, v)
			d2, ok2 := dm.Lookup(u, v+1)
			if !ok0 || !ok1 || !ok2 {
				continue
			}
			p0 := cam.UnprojectDepth(r2.Point{X: float64(u), Y: float64(v)}, d0)
			p1 := cam.UnprojectDepth(r2.Point{X: float64(u + 1), Y: float64(v)}, d1)
			p2 := cam.UnprojectDepth(r2.Point{X: float64(u), Y: float64(v + 1)}, d2)

			n := p2.Sub(p0).Cross(p1.Sub(p0))
			norm := n.Norm()
			if norm == 0 {
				continue
			}
			out.Set(u, v, rimage.PointNormal{Point: p0, Normal: n.Mul(1 / norm)})
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DepthToPoints converts every pixel with depth to its camera space point.
func DepthToPoints(cam *PinholeCameraModel, dm *rimage.DepthMap) (*rimage.PointMap, error) {
	if err := checkDepthSize(cam, dm); err != nil {
		return nil, err
	}
	out := rimage.NewPointMap(dm.Width(), dm.Height())
	for v := 0; v < dm.Height(); v++ {
		for u := 0; u < dm.Width(); u++ {
			d, ok := dm.Lookup(u, v)
			if !ok {
				continue
			}
			out.Set(u, v, cam.UnprojectDepth(r2.Point{X: float64(u), Y: float64(v)}, d))
		}
	}
	return out, nil
}

// PointsToDepth returns the z of every valid point, pixel for pixel.
func PointsToDepth(points *rimage.PointMap) *rimage.DepthMap {
	dm := rimage.NewEmptyDepthMap(points.Width(), points.Height())
	for v := 0; v < points.Height(); v++ {
		for u := 0; u < points.Width(); u++ {
			if p, ok := points.At(u, v); ok {
				dm.Set(u, v, p.Z)
			}
		}
	}
	return dm
}

// PointNormalsToDepth returns the z of every valid point+normal entry, pixel for pixel.
func PointNormalsToDepth(pns *rimage.PointNormalMap) *rimage.DepthMap {
	dm := rimage.NewEmptyDepthMap(pns.Width(), pns.Height())
	pns.Iterate(func(x, y int, pn rimage.PointNormal) bool {
		dm.Set(x, y, pn.Point.Z)
		return true
	})
	return dm
}
