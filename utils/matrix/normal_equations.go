// Package matrix holds small dense linear algebra helpers built on gonum.
package matrix

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrSingularSystem is returned when a linear system cannot be solved reliably.
var ErrSingularSystem = errors.New("linear system is singular or ill-conditioned")

// DefaultMaxCondition is the largest condition number Solve accepts.
const DefaultMaxCondition = 1e12

// NormalEquations accumulates J^T W J and J^T W r for a weighted linear least squares problem
// with a fixed number of unknowns. It is not safe for concurrent use; parallel callers keep one
// per worker and Merge them.
type NormalEquations struct {
	n     int
	jtj   []float64
	jtr   []float64
	count int
	cost  float64
}

// NewNormalEquations returns empty normal equations for n unknowns.
func NewNormalEquations(n int) *NormalEquations {
	return &NormalEquations{
		n:   n,
		jtj: make([]float64, n*n),
		jtr: make([]float64, n),
	}
}

// Size returns the number of unknowns.
func (ne *NormalEquations) Size() int {
	return ne.n
}

// Count returns the number of rows added.
func (ne *NormalEquations) Count() int {
	return ne.count
}

// WeightedCost returns the sum of w*r^2 over the rows added.
func (ne *NormalEquations) WeightedCost() float64 {
	return ne.cost
}

// Add accumulates a single row with jacobian j, residual r and weight w. Only the upper
// triangle of J^T J is filled.
func (ne *NormalEquations) Add(j []float64, r, w float64) {
	for a := 0; a < ne.n; a++ {
		wja := w * j[a]
		if wja == 0 {
			continue
		}
		row := ne.jtj[a*ne.n:]
		for b := a; b < ne.n; b++ {
			row[b] += wja * j[b]
		}
		ne.jtr[a] += wja * r
	}
	ne.count++
	ne.cost += w * r * r
}

// Merge adds other into ne. Both must have the same size.
func (ne *NormalEquations) Merge(other *NormalEquations) {
	for i, v := range other.jtj {
		ne.jtj[i] += v
	}
	for i, v := range other.jtr {
		ne.jtr[i] += v
	}
	ne.count += other.count
	ne.cost += other.cost
}

// Reset clears all accumulated rows.
func (ne *NormalEquations) Reset() {
	for i := range ne.jtj {
		ne.jtj[i] = 0
	}
	for i := range ne.jtr {
		ne.jtr[i] = 0
	}
	ne.count = 0
	ne.cost = 0
}

// System returns J^T W J as a symmetric matrix and J^T W r as a vector.
func (ne *NormalEquations) System() (*mat.SymDense, *mat.VecDense) {
	a := mat.NewSymDense(ne.n, nil)
	for i := 0; i < ne.n; i++ {
		for j := i; j < ne.n; j++ {
			a.SetSym(i, j, ne.jtj[i*ne.n+j])
		}
	}
	b := mat.NewVecDense(ne.n, append([]float64(nil), ne.jtr...))
	return a, b
}

// Solve returns the x minimizing sum w*(J x + r)^2, i.e. the solution of (J^T W J) x = -J^T W r.
// ErrSingularSystem is returned when the system is not positive definite or its condition number
// exceeds maxCond.
func (ne *NormalEquations) Solve(maxCond float64) ([]float64, error) {
	a, b := ne.System()
	b.ScaleVec(-1, b)

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, ErrSingularSystem
	}
	if cond := chol.Cond(); math.IsNaN(cond) || math.IsInf(cond, 0) || cond > maxCond {
		return nil, errors.Wrapf(ErrSingularSystem, "condition number %g", cond)
	}

	var x mat.VecDense
	if err := chol.SolveVecTo(&x, b); err != nil {
		return nil, errors.Wrap(ErrSingularSystem, err.Error())
	}

	out := make([]float64, ne.n)
	for i := range out {
		out[i] = x.AtVec(i)
	}
	return out, nil
}

// SolveWeightedLeastSquares solves the weighted linear least squares problem with jacobian rows
// j, residuals r and weights w. A nil w weights every row by one.
func SolveWeightedLeastSquares(j [][]float64, r, w []float64) ([]float64, error) {
	if len(j) == 0 {
		return nil, errors.Wrap(ErrSingularSystem, "no rows")
	}
	if len(r) != len(j) || (w != nil && len(w) != len(j)) {
		return nil, errors.Errorf("mismatched system: %d rows, %d residuals, %d weights", len(j), len(r), len(w))
	}
	ne := NewNormalEquations(len(j[0]))
	for i, row := range j {
		if len(row) != ne.n {
			return nil, errors.Errorf("row %d has %d columns, expected %d", i, len(row), ne.n)
		}
		weight := 1.
		if w != nil {
			weight = w[i]
		}
		ne.Add(row, r[i], weight)
	}
	return ne.Solve(DefaultMaxCondition)
}
