// Package controllers provides the classical feedback laws: PID with a
// filtered derivative, LQR state feedback, and a zero controller for
// open-loop runs.
package controllers

import (
	"math"

	"github.com/san-kum/pendlab/internal/sim"
)

// PID regulates the first state toward Target. The integral is
// trapezoidal, the derivative acts on the error through a first-order
// filter with time constant Tf, and the output is clamped to
// [UMin, UMax] with conditional integration so the integral does not
// wind up while saturated.
type PID struct {
	Kp, Ki, Kd float64
	Target     float64
	Tf         float64
	UMin, UMax float64

	integral float64
	deriv    float64
	prevErr  float64
	prevT    float64
	first    bool
}

func NewPID(kp, ki, kd, target float64) *PID {
	return &PID{
		Kp:     kp,
		Ki:     ki,
		Kd:     kd,
		Target: target,
		Tf:     0.002,
		UMin:   math.Inf(-1),
		UMax:   math.Inf(1),
		first:  true,
	}
}

func (p *PID) Compute(x sim.State, t float64) sim.Control {
	if len(x) < 1 {
		return sim.Control{0}
	}

	err := p.Target - x[0]

	if p.first {
		p.prevErr = err
		p.prevT = t
		p.first = false
		return sim.Control{p.clamp(p.Kp * err)}
	}

	dt := t - p.prevT
	if dt <= 0 {
		return sim.Control{p.clamp(p.Kp*err + p.Ki*p.integral + p.Kd*p.deriv)}
	}

	candidate := p.integral + 0.5*(err+p.prevErr)*dt
	p.deriv = (p.Tf*p.deriv + (err - p.prevErr)) / (p.Tf + dt)

	u := p.Kp*err + p.Ki*candidate + p.Kd*p.deriv
	clamped := p.clamp(u)
	if clamped == u {
		p.integral = candidate
	}

	p.prevErr = err
	p.prevT = t

	return sim.Control{clamped}
}

func (p *PID) clamp(u float64) float64 {
	if u < p.UMin {
		return p.UMin
	}
	if u > p.UMax {
		return p.UMax
	}
	return u
}

// Reset clears the accumulated state so the controller can be reused
// across runs.
func (p *PID) Reset() {
	p.integral = 0
	p.deriv = 0
	p.prevErr = 0
	p.prevT = 0
	p.first = true
}
