package transform

import (
	"math"

	"github.com/pkg/errors"
)

// BrownConrady is a distortion model for simple lenses of narrow field. It maps ideal
// normalized coordinates to distorted ones:
//
//	x_d = x (1 + k1 r² + k2 r⁴ + k3 r⁶) + 2 p1 x y + p2 (r² + 2 x²)
//	y_d = y (1 + k1 r² + k2 r⁴ + k3 r⁶) + p1 (r² + 2 y²) + 2 p2 x y
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	RadialK3     float64 `json:"rk3"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
}

// NewBrownConrady takes in a slice of floats that will be passed into the struct in order.
func NewBrownConrady(inp []float64) (*BrownConrady, error) {
	p, err := fillDistortionParameters(inp)
	if err != nil {
		return nil, err
	}
	return &BrownConrady{p[0], p[1], p[2], p[3], p[4]}, nil
}

func fillDistortionParameters(inp []float64) ([]float64, error) {
	if len(inp) > 5 {
		return nil, errors.Errorf("list of parameters too long, expected max 5, got %d", len(inp))
	}
	out := make([]float64, 5)
	copy(out, inp)
	return out, nil
}

// CheckValid checks if the fields for BrownConrady have valid inputs.
func (bc *BrownConrady) CheckValid() error {
	if bc == nil {
		return InvalidDistortionError("BrownConrady shaped distortion_parameters not provided")
	}
	for _, p := range bc.Parameters() {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return InvalidDistortionError("BrownConrady parameters must be finite")
		}
	}
	return nil
}

// ModelType returns the type of distortion model.
func (bc *BrownConrady) ModelType() DistortionType {
	return BrownConradyDistortionType
}

// Parameters returns the parameters of the distortion model as a list of floats.
func (bc *BrownConrady) Parameters() []float64 {
	if bc == nil {
		return []float64{}
	}
	return []float64{bc.RadialK1, bc.RadialK2, bc.RadialK3, bc.TangentialP1, bc.TangentialP2}
}

// Transform distorts the ideal normalized point (x, y).
func (bc *BrownConrady) Transform(x, y float64) (float64, float64) {
	if bc == nil {
		return x, y
	}
	x2, y2, xy := x*x, y*y, x*y
	r2 := x2 + y2
	r4 := r2 * r2
	r6 := r4 * r2

	k := 1.0 + bc.RadialK1*r2 + bc.RadialK2*r4 + bc.RadialK3*r6
	xd := x*k + bc.TangentialP1*(2.0*xy) + bc.TangentialP2*(2.0*x2+r2)
	yd := y*k + bc.TangentialP1*(2.0*y2+r2) + bc.TangentialP2*(2.0*xy)
	return xd, yd
}

// Jacobian returns the row major 2x2 derivative of Transform at (x, y).
func (bc *BrownConrady) Jacobian(x, y float64) [4]float64 {
	if bc == nil {
		return [4]float64{1, 0, 0, 1}
	}
	x2, y2, xy := x*x, y*y, x*y
	r2 := x2 + y2
	r4 := r2 * r2
	r6 := r4 * r2

	k := 1.0 + bc.RadialK1*r2 + bc.RadialK2*r4 + bc.RadialK3*r6
	dk := 2.0*bc.RadialK1 + 4.0*bc.RadialK2*r2 + 6.0*bc.RadialK3*r4

	cross := xy*dk + 2.0*bc.TangentialP1*x + 2.0*bc.TangentialP2*y
	return [4]float64{
		x2*dk + k + 2.0*bc.TangentialP1*y + 6.0*bc.TangentialP2*x, cross,
		cross, y2*dk + k + 6.0*bc.TangentialP1*y + 2.0*bc.TangentialP2*x,
	}
}

// Inverse returns the model mapping distorted points back to ideal ones.
func (bc *BrownConrady) Inverse() Distorter {
	if bc == nil {
		return (*InverseBrownConrady)(nil)
	}
	return &InverseBrownConrady{bc.RadialK1, bc.RadialK2, bc.RadialK3, bc.TangentialP1, bc.TangentialP2}
}
