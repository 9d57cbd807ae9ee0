// Package linearize computes linear time-invariant approximations of
// nonlinear plants about an operating point, and discretizes them for
// sampled-data controllers.
package linearize

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/pendlab/internal/sim"
)

// OperatingPoint is the state/input pair a linearization is taken about.
// Treat values as immutable once constructed.
type OperatingPoint struct {
	X sim.State
	U sim.Control
}

// Equilibrium returns the zero-state, zero-input operating point for a
// plant of the given dimensions.
func Equilibrium(stateDim, controlDim int) OperatingPoint {
	return OperatingPoint{
		X: make(sim.State, stateDim),
		U: make(sim.Control, controlDim),
	}
}

// Model is a continuous-time LTI model
//
//	dx = A (x - x0) + B (u - u0)
//	 y = C (x - x0) + D (u - u0)
//
// about the operating point (x0, u0).
type Model struct {
	A, B, C, D *mat.Dense
	Op         OperatingPoint
}

// DefaultEps is the central-difference perturbation size.
const DefaultEps = 1e-6

// Linearize computes Jacobians of dyn.Derivative at op by central finite
// differences. C defaults to identity and D to zero; use SetOutput to
// select measured outputs. It fails if any Jacobian entry is non-finite,
// which indicates the dynamics are discontinuous at the operating point;
// the caller must pick a different point.
func Linearize(dyn sim.Dynamics, op OperatingPoint, eps float64) (*Model, error) {
	if eps <= 0 {
		eps = DefaultEps
	}
	n := dyn.StateDim()
	m := dyn.ControlDim()
	if len(op.X) != n {
		return nil, fmt.Errorf("operating point state has %d entries, plant wants %d", len(op.X), n)
	}
	if len(op.U) != m {
		return nil, fmt.Errorf("operating point input has %d entries, plant wants %d", len(op.U), m)
	}

	a := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		hi := op.X.Clone()
		lo := op.X.Clone()
		hi[j] += eps
		lo[j] -= eps

		fhi := dyn.Derivative(hi, op.U, 0)
		flo := dyn.Derivative(lo, op.U, 0)
		for i := 0; i < n; i++ {
			v := (fhi[i] - flo[i]) / (2 * eps)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("non-finite state jacobian entry (%d,%d): dynamics discontinuous at operating point", i, j)
			}
			a.Set(i, j, v)
		}
	}

	b := mat.NewDense(n, m, nil)
	for j := 0; j < m; j++ {
		hi := append(sim.Control(nil), op.U...)
		lo := append(sim.Control(nil), op.U...)
		hi[j] += eps
		lo[j] -= eps

		fhi := dyn.Derivative(op.X, hi, 0)
		flo := dyn.Derivative(op.X, lo, 0)
		for i := 0; i < n; i++ {
			v := (fhi[i] - flo[i]) / (2 * eps)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("non-finite input jacobian entry (%d,%d): dynamics discontinuous at operating point", i, j)
			}
			b.Set(i, j, v)
		}
	}

	c := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		c.Set(i, i, 1)
	}

	return &Model{
		A:  a,
		B:  b,
		C:  c,
		D:  mat.NewDense(n, m, nil),
		Op: op,
	}, nil
}

// SetOutput replaces the output map y = C x. D stays zero.
func (m *Model) SetOutput(c *mat.Dense) {
	rows, cols := c.Dims()
	n, in := m.B.Dims()
	if cols != n {
		panic(fmt.Sprintf("output matrix has %d columns, model has %d states", cols, n))
	}
	m.C = mat.DenseCopyOf(c)
	m.D = mat.NewDense(rows, in, nil)
}

// Discrete is a zero-order-hold discretization of a Model.
type Discrete struct {
	A, B, C, D *mat.Dense
	Ts         float64
	Op         OperatingPoint
}

// Discretize converts the model to discrete time with sample period ts
// using the augmented matrix exponential
//
//	exp([A B; 0 0] ts) = [Ad Bd; 0 I]
func (m *Model) Discretize(ts float64) (*Discrete, error) {
	if ts <= 0 {
		return nil, fmt.Errorf("sample time must be positive, got %f", ts)
	}
	n, in := m.B.Dims()

	aug := mat.NewDense(n+in, n+in, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			aug.Set(i, j, m.A.At(i, j)*ts)
		}
		for j := 0; j < in; j++ {
			aug.Set(i, n+j, m.B.At(i, j)*ts)
		}
	}

	exp := expm(aug)

	ad := mat.NewDense(n, n, nil)
	bd := mat.NewDense(n, in, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			ad.Set(i, j, exp.At(i, j))
		}
		for j := 0; j < in; j++ {
			bd.Set(i, j, exp.At(i, n+j))
		}
	}

	return &Discrete{
		A:  ad,
		B:  bd,
		C:  mat.DenseCopyOf(m.C),
		D:  mat.DenseCopyOf(m.D),
		Ts: ts,
		Op: m.Op,
	}, nil
}

// expm computes the matrix exponential by scaling and squaring with a
// truncated Taylor series. Fine for the small, well-scaled matrices a
// sampled control model produces.
func expm(a *mat.Dense) *mat.Dense {
	n, _ := a.Dims()

	norm := 0.0
	for i := 0; i < n; i++ {
		row := 0.0
		for j := 0; j < n; j++ {
			row += math.Abs(a.At(i, j))
		}
		if row > norm {
			norm = row
		}
	}

	squarings := 0
	for norm > 0.5 {
		norm /= 2
		squarings++
	}

	scaled := mat.DenseCopyOf(a)
	scaled.Scale(1/math.Pow(2, float64(squarings)), a)

	result := eye(n)
	term := eye(n)
	for k := 1; k <= 16; k++ {
		next := mat.NewDense(n, n, nil)
		next.Mul(term, scaled)
		next.Scale(1/float64(k), next)
		term = next
		result.Add(result, term)
	}

	for s := 0; s < squarings; s++ {
		sq := mat.NewDense(n, n, nil)
		sq.Mul(result, result)
		result = sq
	}
	return result
}

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
