package fusion

import (
	"github.com/pkg/errors"

	"go.viam.com/kinfu/pointcloud"
	"go.viam.com/kinfu/rimage"
	"go.viam.com/kinfu/spatialmath"
)

// CastToPointCloud returns the valid entries of a cast taken at pose (world to camera) as a world
// space point cloud carrying the surface normals.
func CastToPointCloud(cast *rimage.PointNormalMap, pose spatialmath.Pose) (pointcloud.PointCloud, error) {
	if cast == nil {
		return nil, errors.New("no cast to convert")
	}
	if pose == nil {
		pose = spatialmath.NewZeroPose()
	}
	toWorld := spatialmath.PoseInverse(pose)
	pc := pointcloud.NewWithPrealloc(cast.ValidCount())
	var err error
	cast.Iterate(func(x, y int, pn rimage.PointNormal) bool {
		err = pc.Set(
			spatialmath.TransformPoint(toWorld, pn.Point),
			pointcloud.NewNormalData(spatialmath.RotatePoint(toWorld, pn.Normal)),
		)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return pc, nil
}
