// Package mpc implements a linear receding-horizon controller. At every
// sample it solves a box-constrained quadratic program over a prediction
// horizon of the discretized plant model and applies the first move. A
// terminal weight from a discrete Riccati recursion stands in for the
// cost beyond the horizon, which keeps the horizon short and the
// condensed problem well conditioned even for unstable plants. Output
// bounds are soft: violations are penalized rather than made hard
// constraints, so the solve always returns a finite input.
package mpc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/pendlab/internal/linearize"
	"github.com/san-kum/pendlab/internal/observer"
	"github.com/san-kum/pendlab/internal/sim"
)

// Config is fixed for the lifetime of a controller.
type Config struct {
	PredictionHorizon int     // P, steps predicted ahead
	ControlHorizon    int     // M, free moves; the last is held through P
	Ts                float64 // controller sample time

	UMin, UMax []float64 // per-input bounds
	YMin, YMax []float64 // per-state soft bounds, ±Inf to disable

	QWeights  []float64 // per-state tracking weight
	UWeight   float64   // absolute input penalty, also the Riccati R
	RateR     float64   // input-rate penalty
	ECRWeight float64   // soft-constraint violation penalty

	MaxIter int // iteration budget for the QP solve
}

// DefaultConfig returns a tuning for the cart-pole position servo.
func DefaultConfig(stateDim, controlDim int) Config {
	q := make([]float64, stateDim)
	for i := range q {
		q[i] = 1
	}
	ymin := make([]float64, stateDim)
	ymax := make([]float64, stateDim)
	for i := range ymin {
		ymin[i] = math.Inf(-1)
		ymax[i] = math.Inf(1)
	}
	umin := make([]float64, controlDim)
	umax := make([]float64, controlDim)
	for i := range umin {
		umin[i] = -200
		umax[i] = 200
	}
	return Config{
		PredictionHorizon: 15,
		ControlHorizon:    8,
		Ts:                0.05,
		UMin:              umin,
		UMax:              umax,
		YMin:              ymin,
		YMax:              ymax,
		QWeights:          q,
		UWeight:           0.01,
		RateR:             0.01,
		ECRWeight:         1e4,
		MaxIter:           200,
	}
}

// Controller implements sim.Controller. It holds the last computed move
// between samples (zero-order hold) and keeps an augmented Kalman filter
// to estimate the unmeasured input disturbance.
type Controller struct {
	cfg   Config
	model *linearize.Discrete
	kf    *observer.Kalman

	setpoint []float64 // per-state reference, absolute coordinates

	n, m int

	phi   *mat.Dense // (P*n) x n free response
	theta *mat.Dense // (P*n) x (M*m) forced response, move-blocked
	psi   *mat.Dense // (P*n) x m constant-disturbance response
	pterm *mat.Dense // terminal weight from the Riccati recursion

	hBase *mat.Dense // constant part of the QP Hessian

	softRows []int // state indices with a finite Y bound

	u        []float64 // held move, deviation coordinates
	prevU    []float64
	nextTick float64
	started  bool

	fault       error
	saturations int
}

// New builds a controller around the discretized model. The full state is
// measured; cfg.QWeights chooses what is tracked.
func New(model *linearize.Discrete, cfg Config, setpoint []float64) (*Controller, error) {
	n, m := model.B.Dims()
	if cfg.PredictionHorizon <= 0 || cfg.ControlHorizon <= 0 {
		return nil, fmt.Errorf("horizons must be positive")
	}
	if cfg.ControlHorizon > cfg.PredictionHorizon {
		return nil, fmt.Errorf("control horizon %d exceeds prediction horizon %d", cfg.ControlHorizon, cfg.PredictionHorizon)
	}
	if len(cfg.QWeights) != n {
		return nil, fmt.Errorf("QWeights has %d entries, model has %d states", len(cfg.QWeights), n)
	}
	if len(cfg.UMin) != m || len(cfg.UMax) != m {
		return nil, fmt.Errorf("input bounds must have %d entries", m)
	}
	for i := range cfg.UMin {
		if cfg.UMin[i] > cfg.UMax[i] {
			return nil, fmt.Errorf("input bound %d inverted", i)
		}
	}
	if len(setpoint) != n {
		return nil, fmt.Errorf("setpoint has %d entries, model has %d states", len(setpoint), n)
	}
	if len(cfg.YMin) != n || len(cfg.YMax) != n {
		ymin := make([]float64, n)
		ymax := make([]float64, n)
		for i := range ymin {
			ymin[i] = math.Inf(-1)
			ymax[i] = math.Inf(1)
		}
		cfg.YMin, cfg.YMax = ymin, ymax
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = 200
	}
	if cfg.UWeight <= 0 {
		cfg.UWeight = 1e-3
	}

	c := &Controller{
		cfg:      cfg,
		model:    model,
		kf:       observer.NewAugmented(model, 1e-5, 1e-2, 1e-4),
		setpoint: append([]float64(nil), setpoint...),
		n:        n,
		m:        m,
		u:        make([]float64, m),
		prevU:    make([]float64, m),
	}

	for i := 0; i < n; i++ {
		if !math.IsInf(cfg.YMin[i], -1) || !math.IsInf(cfg.YMax[i], 1) {
			c.softRows = append(c.softRows, i)
		}
	}

	pterm, err := riccati(model.A, model.B, cfg.QWeights, cfg.UWeight)
	if err != nil {
		return nil, err
	}
	c.pterm = pterm

	c.buildPrediction()
	c.buildHessian()
	return c, nil
}

// riccati iterates the discrete algebraic Riccati equation to the
// infinite-horizon cost matrix. Fails if the iteration diverges, which
// means the pair (A, B) cannot be stabilized with these weights.
func riccati(a, b *mat.Dense, qw []float64, r float64) (*mat.Dense, error) {
	n, m := b.Dims()

	q := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		q.Set(i, i, qw[i])
	}

	p := mat.DenseCopyOf(q)
	rm := mat.NewDense(m, m, nil)
	for i := 0; i < m; i++ {
		rm.Set(i, i, r)
	}

	for iter := 0; iter < 2000; iter++ {
		var pa, pb, btpb, btpa mat.Dense
		pa.Mul(p, a)
		pb.Mul(p, b)
		btpb.Mul(b.T(), &pb)
		btpb.Add(&btpb, rm)
		btpa.Mul(b.T(), &pa)

		var gain mat.Dense
		if err := gain.Solve(&btpb, &btpa); err != nil {
			return nil, fmt.Errorf("riccati gain solve: %w", err)
		}

		// P+ = Q + A'PA - A'PB K
		var atpa, atpbk, next mat.Dense
		atpa.Mul(a.T(), &pa)
		var bk mat.Dense
		bk.Mul(&pb, &gain)
		atpbk.Mul(a.T(), &bk)
		next.Sub(&atpa, &atpbk)
		next.Add(&next, q)

		// symmetrize against drift
		diff := 0.0
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				v := 0.5 * (next.At(i, j) + next.At(j, i))
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return nil, fmt.Errorf("riccati iteration diverged: model not stabilizable with these weights")
				}
				diff += math.Abs(v - p.At(i, j))
				next.Set(i, j, v)
			}
		}
		p = mat.DenseCopyOf(&next)
		if diff < 1e-9 {
			return p, nil
		}
	}
	return p, nil
}

// LQRGain returns the infinite-horizon state-feedback gain K for the
// discretized model, so u = -K (x - target) is the optimal unconstrained
// regulator under the same weights the MPC uses.
func LQRGain(model *linearize.Discrete, qWeights []float64, r float64) ([][]float64, error) {
	n, m := model.B.Dims()
	if len(qWeights) != n {
		return nil, fmt.Errorf("qWeights has %d entries, model has %d states", len(qWeights), n)
	}
	if r <= 0 {
		return nil, fmt.Errorf("input weight must be positive")
	}

	p, err := riccati(model.A, model.B, qWeights, r)
	if err != nil {
		return nil, err
	}

	// K = (B'PB + R)^-1 B'PA
	var pa, pb, btpb, btpa mat.Dense
	pa.Mul(p, model.A)
	pb.Mul(p, model.B)
	btpb.Mul(model.B.T(), &pb)
	for i := 0; i < m; i++ {
		btpb.Set(i, i, btpb.At(i, i)+r)
	}
	btpa.Mul(model.B.T(), &pa)

	var gain mat.Dense
	if err := gain.Solve(&btpb, &btpa); err != nil {
		return nil, fmt.Errorf("lqr gain solve: %w", err)
	}

	k := make([][]float64, m)
	for i := 0; i < m; i++ {
		k[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			k[i][j] = gain.At(i, j)
		}
	}
	return k, nil
}

// buildPrediction precomputes the condensed prediction
//
//	xstack = phi*x0 + theta*u + psi*d
//
// where u stacks the M free moves (the last held through P) and d is the
// constant estimated disturbance.
func (c *Controller) buildPrediction() {
	p := c.cfg.PredictionHorizon
	mh := c.cfg.ControlHorizon
	n, m := c.n, c.m

	c.phi = mat.NewDense(p*n, n, nil)
	c.theta = mat.NewDense(p*n, mh*m, nil)
	c.psi = mat.NewDense(p*n, m, nil)

	// apow[k] = A^(k+1)
	apow := make([]*mat.Dense, p)
	apow[0] = mat.DenseCopyOf(c.model.A)
	for k := 1; k < p; k++ {
		apow[k] = mat.NewDense(n, n, nil)
		apow[k].Mul(apow[k-1], c.model.A)
	}

	// impulse[k] = A^k B
	impulse := make([]*mat.Dense, p)
	impulse[0] = mat.DenseCopyOf(c.model.B)
	for k := 1; k < p; k++ {
		impulse[k] = mat.NewDense(n, m, nil)
		impulse[k].Mul(apow[k-1], c.model.B)
	}

	for k := 0; k < p; k++ {
		c.phi.Slice(k*n, (k+1)*n, 0, n).(*mat.Dense).Copy(apow[k])

		// x_{k+1} = A^{k+1} x0 + sum_{j=0}^{k} A^{k-j} B u_j
		for j := 0; j <= k; j++ {
			block := impulse[k-j]

			col := j
			if col > mh-1 {
				col = mh - 1 // move blocking
			}

			dst := c.theta.Slice(k*n, (k+1)*n, col*m, (col+1)*m).(*mat.Dense)
			var sum mat.Dense
			sum.Add(dst, block)
			dst.Copy(&sum)

			dd := c.psi.Slice(k*n, (k+1)*n, 0, m).(*mat.Dense)
			var dsum mat.Dense
			dsum.Add(dd, block)
			dd.Copy(&dsum)
		}
	}
}

// buildHessian assembles the constant Hessian
//
//	H = theta' W theta + D' R D + UWeight I
//
// with W the per-step tracking weights plus the terminal weight on the
// last block.
func (c *Controller) buildHessian() {
	mh := c.cfg.ControlHorizon
	nv := mh * c.m

	wt := c.weighted(c.stackFromTheta())
	h := mat.NewDense(nv, nv, nil)
	h.Mul(c.theta.T(), wt)

	// rate-penalty tridiagonal D'RD
	for i := 0; i < mh; i++ {
		for j := 0; j < c.m; j++ {
			idx := i*c.m + j
			h.Set(idx, idx, h.At(idx, idx)+c.cfg.RateR+c.cfg.UWeight)
			if i > 0 {
				pidx := (i-1)*c.m + j
				h.Set(pidx, pidx, h.At(pidx, pidx)+c.cfg.RateR)
				h.Set(idx, pidx, h.At(idx, pidx)-c.cfg.RateR)
				h.Set(pidx, idx, h.At(pidx, idx)-c.cfg.RateR)
			}
		}
	}

	c.hBase = h
}

// stackFromTheta returns a copy of theta (P*n x nv) to be weighted.
func (c *Controller) stackFromTheta() *mat.Dense {
	return mat.DenseCopyOf(c.theta)
}

// weighted applies W to each row-block of m (tracking weights, terminal
// weight on the final block) and returns the result.
func (c *Controller) weighted(src *mat.Dense) *mat.Dense {
	p := c.cfg.PredictionHorizon
	_, cols := src.Dims()
	out := mat.NewDense(p*c.n, cols, nil)

	for k := 0; k < p; k++ {
		for i := 0; i < c.n; i++ {
			for j := 0; j < cols; j++ {
				out.Set(k*c.n+i, j, c.cfg.QWeights[i]*src.At(k*c.n+i, j))
			}
		}
	}

	// terminal block adds P_inf
	last := (p - 1) * c.n
	blk := src.Slice(last, p*c.n, 0, cols).(*mat.Dense)
	var term mat.Dense
	term.Mul(c.pterm, blk)
	for i := 0; i < c.n; i++ {
		for j := 0; j < cols; j++ {
			out.Set(last+i, j, out.At(last+i, j)+term.At(i, j))
		}
	}
	return out
}

// Compute implements sim.Controller. Between controller samples the last
// move is held.
func (c *Controller) Compute(x sim.State, t float64) sim.Control {
	if c.started && t+1e-9 < c.nextTick {
		return c.held()
	}

	// measurement update in deviation coordinates
	dev := make([]float64, c.n)
	for i := range dev {
		dev[i] = x[i] - opState(c.model.Op, i)
	}
	if err := c.kf.Update(dev); err != nil {
		c.fault = fmt.Errorf("observer update: %w", err)
		return c.held()
	}

	xhat := c.kf.State()
	dhat := c.kf.Disturbance()

	move, err := c.solve(xhat, dhat)
	if err != nil {
		// hold the last valid input and surface the fault
		c.fault = err
	} else {
		c.fault = nil
		copy(c.prevU, c.u)
		copy(c.u, move)
	}

	c.kf.Predict(c.u)

	if !c.started {
		c.started = true
		c.nextTick = t
	}
	c.nextTick += c.cfg.Ts

	return c.held()
}

func (c *Controller) held() sim.Control {
	out := make(sim.Control, c.m)
	for i := range out {
		out[i] = c.u[i] + opInput(c.model.Op, i)
	}
	return out
}

// solve minimizes the condensed cost over the move sequence. The soft
// output penalty makes the cost piecewise quadratic, so the outer loop
// fixes the set of violated bounds, solves the resulting box QP exactly
// with a primal active-set method, and repeats until the violation set
// stops changing.
func (c *Controller) solve(x0, dist []float64) ([]float64, error) {
	p := c.cfg.PredictionHorizon
	mh := c.cfg.ControlHorizon
	nv := mh * c.m

	// b0 = phi x0 + psi d, the input-free trajectory
	b0 := make([]float64, p*c.n)
	matVec(c.phi, x0, b0)
	distResp := make([]float64, p*c.n)
	matVec(c.psi, dist, distResp)
	for i := range b0 {
		b0[i] += distResp[i]
	}

	// tracking part of the linear term: theta' W (b0 - rstack)
	resid := make([]float64, p*c.n)
	for i := range resid {
		row := i % c.n
		resid[i] = b0[i] - (c.setpoint[row] - opState(c.model.Op, row))
	}
	wres := c.weightVec(resid)
	f := make([]float64, nv)
	matTVec(c.theta, wres, f)

	// rate penalty couples the first move to the previously applied one
	for j := 0; j < c.m; j++ {
		f[j] -= c.cfg.RateR * c.prevU[j]
	}

	iterBudget := c.cfg.MaxIter

	// warm start from the held move
	u := make([]float64, nv)
	for i := 0; i < mh; i++ {
		for j := 0; j < c.m; j++ {
			u[i*c.m+j] = c.clip(c.u[j], j)
		}
	}

	violated := map[int]float64{} // stack row -> bound (deviation coords)
	for outer := 0; outer < 10; outer++ {
		h, fv := c.softened(f, b0, violated)

		var err error
		u, err = c.solveBoxQP(h, fv, u, &iterBudget)
		if err != nil {
			return nil, err
		}

		if len(c.softRows) == 0 {
			break
		}

		next := c.findViolations(b0, u)
		if sameViolations(violated, next) {
			break
		}
		violated = next
	}

	first := make([]float64, c.m)
	for j := 0; j < c.m; j++ {
		v := c.clip(u[j], j)
		if v <= c.cfg.UMin[j] || v >= c.cfg.UMax[j] {
			c.saturations++
		}
		first[j] = v
	}
	return first, nil
}

// weightVec applies the tracking weights (terminal included) to a stacked
// state vector.
func (c *Controller) weightVec(v []float64) []float64 {
	p := c.cfg.PredictionHorizon
	out := make([]float64, len(v))
	for i := range v {
		out[i] = c.cfg.QWeights[i%c.n] * v[i]
	}

	last := (p - 1) * c.n
	blk := mat.NewVecDense(c.n, v[last:last+c.n])
	term := mat.NewVecDense(c.n, nil)
	term.MulVec(c.pterm, blk)
	for i := 0; i < c.n; i++ {
		out[last+i] += term.AtVec(i)
	}
	return out
}

// softened returns the Hessian and linear term with the ECR penalty for
// the currently violated bounds folded in.
func (c *Controller) softened(f, b0 []float64, violated map[int]float64) (*mat.Dense, []float64) {
	nv := len(f)
	if len(violated) == 0 {
		return c.hBase, append([]float64(nil), f...)
	}

	h := mat.DenseCopyOf(c.hBase)
	fv := append([]float64(nil), f...)

	for row, bound := range violated {
		// penalty 0.5*ecr*(theta_row u + b0_row - bound)^2
		trow := make([]float64, nv)
		for j := 0; j < nv; j++ {
			trow[j] = c.theta.At(row, j)
		}
		for i := 0; i < nv; i++ {
			for j := 0; j < nv; j++ {
				h.Set(i, j, h.At(i, j)+c.cfg.ECRWeight*trow[i]*trow[j])
			}
			fv[i] += c.cfg.ECRWeight * trow[i] * (b0[row] - bound)
		}
	}
	return h, fv
}

// findViolations predicts the trajectory for u and returns the stack rows
// whose soft bounds are exceeded, mapped to the bound in deviation
// coordinates.
func (c *Controller) findViolations(b0, u []float64) map[int]float64 {
	p := c.cfg.PredictionHorizon
	xs := make([]float64, p*c.n)
	matVec(c.theta, u, xs)
	for i := range xs {
		xs[i] += b0[i]
	}

	out := map[int]float64{}
	for i := range xs {
		row := i % c.n
		abs := xs[i] + opState(c.model.Op, row)
		if hi := c.cfg.YMax[row]; !math.IsInf(hi, 1) && abs > hi {
			out[i] = hi - opState(c.model.Op, row)
		} else if lo := c.cfg.YMin[row]; !math.IsInf(lo, -1) && abs < lo {
			out[i] = lo - opState(c.model.Op, row)
		}
	}
	return out
}

// solveBoxQP minimizes 0.5 u'Hu + f'u subject to the input box, using a
// primal active-set method with direct solves. Decrements *budget per
// inner iteration; returns an error when the budget runs out before the
// KKT conditions hold.
func (c *Controller) solveBoxQP(h *mat.Dense, f, warm []float64, budget *int) ([]float64, error) {
	nv := len(f)
	u := make([]float64, nv)
	for i := range u {
		u[i] = c.clip(warm[i], i%c.m)
	}

	// active[i]: -1 lower bound, +1 upper bound, 0 free
	active := make([]int, nv)
	for i := range u {
		if u[i] <= c.cfg.UMin[i%c.m] {
			active[i] = -1
		} else if u[i] >= c.cfg.UMax[i%c.m] {
			active[i] = 1
		}
	}

	for *budget > 0 {
		*budget--

		free := make([]int, 0, nv)
		for i, a := range active {
			if a == 0 {
				free = append(free, i)
			}
		}

		if len(free) > 0 {
			hf := mat.NewDense(len(free), len(free), nil)
			rhs := mat.NewVecDense(len(free), nil)
			for ii, i := range free {
				acc := -f[i]
				for j := 0; j < nv; j++ {
					if active[j] != 0 {
						acc -= h.At(i, j) * u[j]
					}
				}
				rhs.SetVec(ii, acc)
				for jj, j := range free {
					hf.Set(ii, jj, h.At(i, j))
				}
			}

			sol := mat.NewVecDense(len(free), nil)
			if err := sol.SolveVec(hf, rhs); err != nil {
				return nil, fmt.Errorf("qp subproblem singular: %w", err)
			}

			// clamp the worst bound violation among the free variables
			worst, worstIdx, worstDir := 0.0, -1, 0
			for ii, i := range free {
				v := sol.AtVec(ii)
				if d := c.cfg.UMin[i%c.m] - v; d > worst {
					worst, worstIdx, worstDir = d, i, -1
				}
				if d := v - c.cfg.UMax[i%c.m]; d > worst {
					worst, worstIdx, worstDir = d, i, 1
				}
			}
			if worstIdx >= 0 {
				if worstDir < 0 {
					u[worstIdx] = c.cfg.UMin[worstIdx%c.m]
					active[worstIdx] = -1
				} else {
					u[worstIdx] = c.cfg.UMax[worstIdx%c.m]
					active[worstIdx] = 1
				}
				continue
			}

			for ii, i := range free {
				u[i] = sol.AtVec(ii)
			}
		}

		// multiplier check: release the active bound that most wants to
		// move back inside
		worst, worstIdx := 0.0, -1
		for i, a := range active {
			if a == 0 {
				continue
			}
			g := f[i]
			for j := 0; j < nv; j++ {
				g += h.At(i, j) * u[j]
			}
			// at a lower bound optimality needs g >= 0, at an upper g <= 0
			viol := 0.0
			if a == -1 && g < 0 {
				viol = -g
			} else if a == 1 && g > 0 {
				viol = g
			}
			if viol > worst+1e-12 {
				worst, worstIdx = viol, i
			}
		}
		if worstIdx >= 0 {
			active[worstIdx] = 0
			continue
		}

		return u, nil
	}

	return nil, fmt.Errorf("qp did not converge within %d iterations", c.cfg.MaxIter)
}

func (c *Controller) clip(v float64, input int) float64 {
	if v < c.cfg.UMin[input] {
		return c.cfg.UMin[input]
	}
	if v > c.cfg.UMax[input] {
		return c.cfg.UMax[input]
	}
	return v
}

// Fault implements sim.FaultReporter.
func (c *Controller) Fault() error { return c.fault }

// Saturations reports how many applied moves were clipped at the bounds.
func (c *Controller) Saturations() int { return c.saturations }

// SetSetpoint changes the tracked reference (absolute coordinates).
func (c *Controller) SetSetpoint(sp []float64) error {
	if len(sp) != c.n {
		return fmt.Errorf("setpoint has %d entries, model has %d states", len(sp), c.n)
	}
	copy(c.setpoint, sp)
	return nil
}

func sameViolations(a, b map[int]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func opState(op linearize.OperatingPoint, i int) float64 {
	if i < len(op.X) {
		return op.X[i]
	}
	return 0
}

func opInput(op linearize.OperatingPoint, i int) float64 {
	if i < len(op.U) {
		return op.U[i]
	}
	return 0
}

func matVec(a *mat.Dense, x, dst []float64) {
	r, _ := a.Dims()
	out := mat.NewVecDense(r, dst)
	out.MulVec(a, mat.NewVecDense(len(x), x))
}

func matTVec(a *mat.Dense, x, dst []float64) {
	_, cols := a.Dims()
	out := mat.NewVecDense(cols, dst)
	out.MulVec(a.T(), mat.NewVecDense(len(x), x))
}
