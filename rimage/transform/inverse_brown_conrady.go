package transform

import "math"

const (
	// undistortMaxIterations bounds the Newton solve in InverseBrownConrady.Transform.
	undistortMaxIterations = 10
	undistortTolerance     = 1e-10
)

// InverseBrownConrady applies the inverse of the Brown-Conrady distortion model.
// Given distorted points, it computes the corresponding undistorted points using
// an iterative Newton-Raphson method.
type InverseBrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	RadialK3     float64 `json:"rk3"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
}

// CheckValid checks if the fields for InverseBrownConrady have valid inputs.
func (ibc *InverseBrownConrady) CheckValid() error {
	if ibc == nil {
		return InvalidDistortionError("InverseBrownConrady shaped distortion_parameters not provided")
	}
	return ibc.forward().CheckValid()
}

// NewInverseBrownConrady takes in a slice of floats that will be passed into the struct in order.
func NewInverseBrownConrady(inp []float64) (*InverseBrownConrady, error) {
	p, err := fillDistortionParameters(inp)
	if err != nil {
		return nil, err
	}
	return &InverseBrownConrady{p[0], p[1], p[2], p[3], p[4]}, nil
}

// ModelType returns the type of distortion model.
func (ibc *InverseBrownConrady) ModelType() DistortionType {
	return InverseBrownConradyDistortionType
}

// Parameters returns the parameters of the distortion model as a list of floats.
func (ibc *InverseBrownConrady) Parameters() []float64 {
	if ibc == nil {
		return []float64{}
	}
	return []float64{ibc.RadialK1, ibc.RadialK2, ibc.RadialK3, ibc.TangentialP1, ibc.TangentialP2}
}

func (ibc *InverseBrownConrady) forward() *BrownConrady {
	return &BrownConrady{ibc.RadialK1, ibc.RadialK2, ibc.RadialK3, ibc.TangentialP1, ibc.TangentialP2}
}

// Inverse returns the forward Brown-Conrady model.
func (ibc *InverseBrownConrady) Inverse() Distorter {
	if ibc == nil {
		return (*BrownConrady)(nil)
	}
	return ibc.forward()
}

// Transform converts the distorted normalized point (xd, yd) to the undistorted point whose
// forward distortion lands on it. It runs at most 10 Newton steps starting from the distorted
// point and stops early once the residual is negligible. A singular Jacobian ends the solve
// with the current estimate.
func (ibc *InverseBrownConrady) Transform(xd, yd float64) (float64, float64) {
	if ibc == nil {
		return xd, yd
	}
	fwd := ibc.forward()

	xu, yu := xd, yd
	for i := 0; i < undistortMaxIterations; i++ {
		xdEst, ydEst := fwd.Transform(xu, yu)
		errX := xd - xdEst
		errY := yd - ydEst
		if math.Hypot(errX, errY) < undistortTolerance {
			break
		}

		j := fwd.Jacobian(xu, yu)
		det := j[0]*j[3] - j[1]*j[2]
		if det == 0 || math.IsNaN(det) {
			break
		}

		// [xu, yu] += J^-1 * err
		xu += (j[3]*errX - j[1]*errY) / det
		yu += (-j[2]*errX + j[0]*errY) / det
	}

	return xu, yu
}
