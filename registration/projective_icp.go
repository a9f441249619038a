package registration

import (
	"context"
	"math"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"go.viam.com/kinfu/rimage"
	"go.viam.com/kinfu/rimage/transform"
	"go.viam.com/kinfu/spatialmath"
	"go.viam.com/kinfu/utils"
	"go.viam.com/kinfu/utils/matrix"
)

var (
	// ErrInsufficientCorrespondences is returned when an iteration finds too few matches to
	// constrain the pose.
	ErrInsufficientCorrespondences = errors.New("insufficient correspondences")
	// ErrSingularSystem is returned when the linearized problem cannot be solved.
	ErrSingularSystem = matrix.ErrSingularSystem
)

// madToSigma converts a median absolute value to a normal standard deviation.
const madToSigma = 1.4826

// Result describes a successful alignment.
type Result struct {
	// Delta maps points from the live camera frame into the reference camera frame.
	Delta           spatialmath.Pose
	Correspondences int
	Iterations      int
	// RMS is the unweighted point-to-plane residual of the last iteration's correspondences.
	RMS       float64
	Converged bool
}

type correspondence struct {
	point    r3.Vector
	normal   r3.Vector
	residual float64
	valid    bool
}

// SampleLive returns the valid entries of live on a grid of every stride-th pixel, skipping a
// border of stride pixels on each side.
func SampleLive(live *rimage.PointNormalMap, stride int) []rimage.PointNormal {
	if stride < 1 {
		stride = 1
	}
	samples := make([]rimage.PointNormal, 0, (live.Width()/stride)*(live.Height()/stride))
	for v := stride; v < live.Height()-stride; v += stride {
		for u := stride; u < live.Width()-stride; u += stride {
			if pn, ok := live.At(u, v); ok {
				samples = append(samples, pn)
			}
		}
	}
	return samples
}

// ProjectiveICP estimates the small rigid motion that carries the live map onto the reference
// map, both in camera space of cam. Each iteration associates every sampled live point with the
// reference entry at the pixel it projects to under the current estimate, then solves the
// linearized point-to-plane problem and composes the increment onto the estimate.
//
// The returned error wraps ErrInsufficientCorrespondences or ErrSingularSystem when tracking
// fails.
func ProjectiveICP(
	ctx context.Context,
	cam *transform.PinholeCameraModel,
	live, reference *rimage.PointNormalMap,
	cfg Config,
) (Result, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if cam == nil || cam.PinholeCameraIntrinsics == nil {
		return Result{}, transform.NewNoIntrinsicsError("cannot track without a camera")
	}

	samples := SampleLive(live, cfg.Stride)
	if len(samples) < cfg.MinCorrespondences {
		return Result{}, errors.Wrapf(ErrInsufficientCorrespondences, "only %d live samples", len(samples))
	}

	delta := spatialmath.NewZeroPose()
	matches := make([]correspondence, len(samples))
	residuals := make([]float64, 0, len(samples))
	result := Result{Delta: delta}

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		if err := associate(ctx, cam, reference, samples, delta, cfg.MaxCorrespondenceDistance, matches); err != nil {
			return Result{}, err
		}

		residuals = residuals[:0]
		var sumSq float64
		for _, m := range matches {
			if m.valid {
				residuals = append(residuals, m.residual)
				sumSq += m.residual * m.residual
			}
		}
		if len(residuals) < cfg.MinCorrespondences {
			return Result{}, errors.Wrapf(ErrInsufficientCorrespondences,
				"iteration %d found %d, need %d", iter, len(residuals), cfg.MinCorrespondences)
		}

		cutoff := robustCutoff(residuals, cfg.RobustScale, cfg.RobustFloor)
		ne, err := accumulate(ctx, matches, cutoff)
		if err != nil {
			return Result{}, err
		}
		if ne.Count() < cfg.MinCorrespondences {
			return Result{}, errors.Wrapf(ErrInsufficientCorrespondences,
				"iteration %d kept %d of %d after robust weighting, need %d",
				iter, ne.Count(), len(residuals), cfg.MinCorrespondences)
		}
		step, err := ne.Solve(matrix.DefaultMaxCondition)
		if err != nil {
			return Result{}, errors.Wrapf(err, "iteration %d", iter)
		}

		delta = spatialmath.Compose(spatialmath.NewPoseFromTwist(step), delta)
		result = Result{
			Delta:           delta,
			Correspondences: len(residuals),
			Iterations:      iter + 1,
			RMS:             math.Sqrt(sumSq / float64(len(residuals))),
		}
		if norm(step) < cfg.ConvergenceEpsilon {
			result.Converged = true
			break
		}
	}
	return result, nil
}

// associate fills matches[i] with the reference entry sample i lands on under delta.
func associate(
	ctx context.Context,
	cam *transform.PinholeCameraModel,
	reference *rimage.PointNormalMap,
	samples []rimage.PointNormal,
	delta spatialmath.Pose,
	maxDistance float64,
	matches []correspondence,
) error {
	return utils.GroupWorkParallel(
		ctx,
		len(samples),
		nil,
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(memberNum, workNum int) {
				matches[workNum] = correspondence{}
				p := spatialmath.TransformPoint(delta, samples[workNum].Point)
				px, ok := cam.Project(p)
				if !ok {
					return
				}
				ref, ok := reference.At(utils.RoundInt(px.X), utils.RoundInt(px.Y))
				if !ok {
					return
				}
				diff := p.Sub(ref.Point)
				if maxDistance > 0 && diff.Norm() > maxDistance {
					return
				}
				matches[workNum] = correspondence{
					point:    p,
					normal:   ref.Normal,
					residual: diff.Dot(ref.Normal),
					valid:    true,
				}
			}, nil
		},
	)
}

// accumulate builds the normal equations for the point-to-plane residual (T p - q).n linearized
// at the current estimate: each row is [p x n, n]. Rows are Tukey weighted when cutoff > 0.
func accumulate(ctx context.Context, matches []correspondence, cutoff float64) (*matrix.NormalEquations, error) {
	var mu sync.Mutex
	total := matrix.NewNormalEquations(6)
	err := utils.GroupWorkParallel(
		ctx,
		len(matches),
		nil,
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			ne := matrix.NewNormalEquations(6)
			row := make([]float64, 6)
			return func(memberNum, workNum int) {
					m := matches[workNum]
					if !m.valid {
						return
					}
					w := tukeyWeight(m.residual, cutoff)
					if w == 0 {
						return
					}
					c := m.point.Cross(m.normal)
					row[0], row[1], row[2] = c.X, c.Y, c.Z
					row[3], row[4], row[5] = m.normal.X, m.normal.Y, m.normal.Z
					ne.Add(row, m.residual, w)
				}, func() {
					mu.Lock()
					total.Merge(ne)
					mu.Unlock()
				}
		},
	)
	if err != nil {
		return nil, err
	}
	return total, nil
}

// robustCutoff returns the Tukey cutoff for the given residuals, or 0 when scale disables
// weighting. The scale comes from the median residual magnitude and the cutoff is never below
// floor.
func robustCutoff(residuals []float64, scale, floor float64) float64 {
	if scale <= 0 {
		return 0
	}
	abs := make([]float64, len(residuals))
	for i, r := range residuals {
		abs[i] = math.Abs(r)
	}
	med, err := stats.Median(abs)
	if err != nil {
		return floor
	}
	return math.Max(scale*madToSigma*med, floor)
}

func tukeyWeight(r, cutoff float64) float64 {
	if cutoff <= 0 {
		return 1
	}
	if math.Abs(r) >= cutoff {
		return 0
	}
	u := r / cutoff
	return (1 - u*u) * (1 - u*u)
}

func norm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}
