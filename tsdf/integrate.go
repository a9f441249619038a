package tsdf

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/kinfu/rimage"
	"go.viam.com/kinfu/rimage/transform"
	"go.viam.com/kinfu/spatialmath"
	"go.viam.com/kinfu/utils"
)

// Integrate fuses a depth map seen by cam at pose (world to camera) into the volume.
//
// Each voxel center is projected to its nearest pixel. The projective signed distance is the
// measured depth minus the voxel's camera depth. Voxels farther than the truncation band behind the
// measurement are occluded and left alone; everything else is clamped to the band and averaged in
// with unit weight, saturating at the volume's max weight.
func Integrate(ctx context.Context, vol *Volume, cam *transform.PinholeCameraModel, pose spatialmath.Pose, depth *rimage.DepthMap) error {
	if cam == nil || cam.PinholeCameraIntrinsics == nil {
		return transform.NewNoIntrinsicsError("cannot integrate without a camera")
	}
	if cam.Width != depth.Width() || cam.Height != depth.Height() {
		return errors.Errorf("depth map and intrinsics don't match Depth(%d,%d) != Intrinsics(%d,%d)",
			depth.Width(), depth.Height(), cam.Width, cam.Height)
	}

	// camera space position of voxel (i, j, k) is first + i*dx + j*dy + k*dz
	first := spatialmath.TransformPoint(pose, vol.VoxelCenter(0, 0, 0))
	dx := spatialmath.RotatePoint(pose, r3.Vector{X: vol.unit})
	dy := spatialmath.RotatePoint(pose, r3.Vector{Y: vol.unit})
	dz := spatialmath.RotatePoint(pose, r3.Vector{Z: vol.unit})

	trunc := vol.truncation
	maxWeight := vol.maxWeight
	size := vol.size

	return utils.ParallelForEachRow(ctx, size*size, func(row int) {
		j, k := row%size, row/size
		p := first.Add(dy.Mul(float64(j))).Add(dz.Mul(float64(k)))
		base := vol.index(0, j, k)
		for i := 0; i < size; i, p = i+1, p.Add(dx) {
			px, ok := cam.Project(p)
			if !ok {
				continue
			}
			d, ok := depth.Lookup(utils.RoundInt(px.X), utils.RoundInt(px.Y))
			if !ok {
				continue
			}
			sdf := d - p.Z
			if sdf < -trunc {
				continue
			}
			if sdf > trunc {
				sdf = trunc
			}

			v := &vol.voxels[base+i]
			w := v.Weight
			v.Distance = (w*v.Distance + float32(sdf)) / (w + 1)
			v.Weight = utils.ClampFloat32(w+1, 0, maxWeight)
		}
	})
}
