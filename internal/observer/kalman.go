// Package observer provides a discrete Kalman filter over a plant model
// augmented with a constant input-disturbance state, used by the MPC
// controller for offset-free tracking.
package observer

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/pendlab/internal/linearize"
)

// Kalman estimates the augmented state [x; d] of
//
//	x+ = Ad x + Bd (u + d)
//	d+ = d
//	y  = Cd x
//
// where d is an unmeasured input disturbance modeled as a random walk.
type Kalman struct {
	a, b, c *mat.Dense // augmented system
	q, r    *mat.Dense // process / measurement covariance

	xhat *mat.VecDense
	cov  *mat.Dense

	n, m, p int // plant state, input, output dims
}

// NewAugmented builds the filter from a discretized plant model. qState
// and qDist set the process noise on the plant and disturbance states,
// rMeas the measurement noise on each output.
func NewAugmented(d *linearize.Discrete, qState, qDist, rMeas float64) *Kalman {
	n, m := d.B.Dims()
	p, _ := d.C.Dims()
	na := n + m

	a := mat.NewDense(na, na, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			a.Set(i, j, d.A.At(i, j))
		}
		for j := 0; j < m; j++ {
			a.Set(i, n+j, d.B.At(i, j))
		}
	}
	for j := 0; j < m; j++ {
		a.Set(n+j, n+j, 1)
	}

	b := mat.NewDense(na, m, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			b.Set(i, j, d.B.At(i, j))
		}
	}

	c := mat.NewDense(p, na, nil)
	for i := 0; i < p; i++ {
		for j := 0; j < n; j++ {
			c.Set(i, j, d.C.At(i, j))
		}
	}

	q := mat.NewDense(na, na, nil)
	for i := 0; i < n; i++ {
		q.Set(i, i, qState)
	}
	for j := 0; j < m; j++ {
		q.Set(n+j, n+j, qDist)
	}

	r := mat.NewDense(p, p, nil)
	for i := 0; i < p; i++ {
		r.Set(i, i, rMeas)
	}

	cov := mat.NewDense(na, na, nil)
	for i := 0; i < na; i++ {
		cov.Set(i, i, 1.0)
	}

	return &Kalman{
		a: a, b: b, c: c,
		q: q, r: r,
		xhat: mat.NewVecDense(na, nil),
		cov:  cov,
		n:    n, m: m, p: p,
	}
}

// Predict propagates the estimate through the model with the applied input.
func (k *Kalman) Predict(u []float64) {
	uv := mat.NewVecDense(k.m, u)

	next := mat.NewVecDense(k.n+k.m, nil)
	next.MulVec(k.a, k.xhat)

	bu := mat.NewVecDense(k.n+k.m, nil)
	bu.MulVec(k.b, uv)
	next.AddVec(next, bu)
	k.xhat = next

	// P = A P A' + Q
	var ap, apat mat.Dense
	ap.Mul(k.a, k.cov)
	apat.Mul(&ap, k.a.T())
	apat.Add(&apat, k.q)
	k.cov = mat.DenseCopyOf(&apat)
}

// Update corrects the estimate with a measurement.
func (k *Kalman) Update(y []float64) error {
	if len(y) != k.p {
		return fmt.Errorf("measurement has %d entries, filter wants %d", len(y), k.p)
	}
	yv := mat.NewVecDense(k.p, y)

	// innovation = y - C xhat
	innov := mat.NewVecDense(k.p, nil)
	innov.MulVec(k.c, k.xhat)
	innov.SubVec(yv, innov)

	// S = C P C' + R
	var cp, s mat.Dense
	cp.Mul(k.c, k.cov)
	s.Mul(&cp, k.c.T())
	s.Add(&s, k.r)

	var sinv mat.Dense
	if err := sinv.Inverse(&s); err != nil {
		return fmt.Errorf("innovation covariance singular: %w", err)
	}

	// K = P C' S^-1
	var pct, gain mat.Dense
	pct.Mul(k.cov, k.c.T())
	gain.Mul(&pct, &sinv)

	// xhat += K innovation
	corr := mat.NewVecDense(k.n+k.m, nil)
	corr.MulVec(&gain, innov)
	k.xhat.AddVec(k.xhat, corr)

	// P = (I - K C) P
	na := k.n + k.m
	kc := mat.NewDense(na, na, nil)
	kc.Mul(&gain, k.c)
	ikc := mat.NewDense(na, na, nil)
	for i := 0; i < na; i++ {
		ikc.Set(i, i, 1)
	}
	ikc.Sub(ikc, kc)
	var newP mat.Dense
	newP.Mul(ikc, k.cov)
	k.cov = mat.DenseCopyOf(&newP)

	return nil
}

// State returns the current plant-state estimate.
func (k *Kalman) State() []float64 {
	out := make([]float64, k.n)
	for i := range out {
		out[i] = k.xhat.AtVec(i)
	}
	return out
}

// Disturbance returns the current input-disturbance estimate.
func (k *Kalman) Disturbance() []float64 {
	out := make([]float64, k.m)
	for i := range out {
		out[i] = k.xhat.AtVec(k.n + i)
	}
	return out
}

// Reset zeroes the estimate and restores the initial covariance.
func (k *Kalman) Reset() {
	na := k.n + k.m
	k.xhat = mat.NewVecDense(na, nil)
	cov := mat.NewDense(na, na, nil)
	for i := 0; i < na; i++ {
		cov.Set(i, i, 1.0)
	}
	k.cov = cov
}
