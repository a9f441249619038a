package tsdf

import (
	"context"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/kinfu/rimage"
	"go.viam.com/kinfu/rimage/transform"
	"go.viam.com/kinfu/spatialmath"
	"go.viam.com/kinfu/utils"
)

// RayCastOptions tunes the ray marcher.
type RayCastOptions struct {
	// MinDepth is the camera depth in meters below which samples are not tested.
	MinDepth float64 `json:"min_depth_m,omitempty"`
	// StepFraction scales the marching step. Outside the band the step is StepFraction times the
	// truncation distance; inside it, StepFraction times the sampled distance, but never less
	// than StepFraction voxels.
	StepFraction float64 `json:"step_fraction,omitempty"`
}

// DefaultRayCastOptions returns the options used when none are given.
func DefaultRayCastOptions() RayCastOptions {
	return RayCastOptions{MinDepth: 0.05, StepFraction: 0.8}
}

// Validate checks the options are usable.
func (opts RayCastOptions) Validate() error {
	if opts.MinDepth < 0 || math.IsNaN(opts.MinDepth) {
		return errors.Errorf("min depth must not be negative, got %v", opts.MinDepth)
	}
	if !(opts.StepFraction > 0 && opts.StepFraction <= 1) {
		return errors.Errorf("step fraction must be in (0, 1], got %v", opts.StepFraction)
	}
	return nil
}

// RayCast renders the surface stored in vol as seen by cam at pose (world to camera). The result
// is in camera space with normals facing the camera. Pixels whose ray leaves the volume, never
// crosses the surface from the front, or first meets a back face are invalid.
func RayCast(
	ctx context.Context,
	vol *Volume,
	cam *transform.PinholeCameraModel,
	pose spatialmath.Pose,
	opts RayCastOptions,
) (*rimage.PointNormalMap, error) {
	if cam == nil || cam.PinholeCameraIntrinsics == nil {
		return nil, transform.NewNoIntrinsicsError("cannot ray cast without a camera")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	width, height := cam.Size()
	out := rimage.NewPointNormalMap(width, height)

	invPose := spatialmath.PoseInverse(pose)
	origin := invPose.Point()
	// samples must keep all eight interpolation neighbours inside the grid
	lo := vol.VoxelCenter(0, 0, 0)
	hi := vol.VoxelCenter(vol.size-1, vol.size-1, vol.size-1)

	err := utils.ParallelForEachRow(ctx, height, func(y int) {
		for x := 0; x < width; x++ {
			dirCam := cam.Unproject(r2.Point{X: float64(x), Y: float64(y)}).Normalize()
			dir := spatialmath.RotatePoint(invPose, dirCam)

			tNear, tFar, ok := clipRay(origin, dir, lo, hi)
			if !ok {
				continue
			}
			tNear = math.Max(tNear, opts.MinDepth/dirCam.Z)
			if tNear >= tFar {
				continue
			}

			pw, ok := vol.march(origin, dir, tNear, tFar, opts.StepFraction)
			if !ok {
				continue
			}
			grad, ok := vol.Gradient(pw)
			if !ok {
				continue
			}
			norm := grad.Norm()
			if norm == 0 || math.IsNaN(norm) {
				continue
			}
			out.Set(x, y, rimage.PointNormal{
				Point:  spatialmath.TransformPoint(pose, pw),
				Normal: spatialmath.RotatePoint(pose, grad.Mul(1/norm)),
			})
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// march walks origin + t*dir for t in [tNear, tFar] and returns the first front facing zero
// crossing between two valid samples, refined linearly.
func (vol *Volume) march(origin, dir r3.Vector, tNear, tFar, stepFraction float64) (r3.Vector, bool) {
	var (
		prevT     float64
		prevD     float64
		prevValid bool
	)
	for t := tNear; t <= tFar; {
		d, valid := vol.Interpolate(origin.Add(dir.Mul(t)))
		if valid && prevValid {
			if prevD > 0 && d <= 0 {
				hit := prevT + (t-prevT)*prevD/(prevD-d)
				return origin.Add(dir.Mul(hit)), true
			}
			if prevD < 0 && d > 0 {
				return r3.Vector{}, false
			}
		}

		step := vol.truncation
		if valid {
			step = math.Max(d, vol.unit)
		}
		prevT, prevD, prevValid = t, d, valid
		t += stepFraction * step
	}
	return r3.Vector{}, false
}

// clipRay intersects the ray with the box [lo, hi] using the slab method and returns the
// parameter interval inside it, starting no earlier than the ray origin.
func clipRay(origin, dir, lo, hi r3.Vector) (float64, float64, bool) {
	tNear, tFar := 0., math.Inf(1)
	o := [3]float64{origin.X, origin.Y, origin.Z}
	d := [3]float64{dir.X, dir.Y, dir.Z}
	l := [3]float64{lo.X, lo.Y, lo.Z}
	h := [3]float64{hi.X, hi.Y, hi.Z}
	for axis := 0; axis < 3; axis++ {
		if math.Abs(d[axis]) < 1e-12 {
			if o[axis] < l[axis] || o[axis] > h[axis] {
				return 0, 0, false
			}
			continue
		}
		inv := 1 / d[axis]
		t1 := (l[axis] - o[axis]) * inv
		t2 := (h[axis] - o[axis]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tNear = math.Max(tNear, t1)
		tFar = math.Min(tFar, t2)
		if tNear > tFar {
			return 0, 0, false
		}
	}
	return tNear, tFar, true
}
