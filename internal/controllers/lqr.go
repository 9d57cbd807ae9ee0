package controllers

import "github.com/san-kum/pendlab/internal/sim"

// LQR applies state feedback u = -K (x - target).
type LQR struct {
	K      [][]float64
	Target sim.State
}

func NewLQR(k [][]float64, target sim.State) *LQR {
	return &LQR{K: k, Target: target}
}

func (l *LQR) Compute(x sim.State, t float64) sim.Control {
	u := make(sim.Control, len(l.K))
	for i, row := range l.K {
		for j, kij := range row {
			if j >= len(x) {
				break
			}
			ref := 0.0
			if j < len(l.Target) {
				ref = l.Target[j]
			}
			u[i] -= kij * (x[j] - ref)
		}
	}
	return u
}

// SetTarget changes the regulated reference.
func (l *LQR) SetTarget(target sim.State) {
	l.Target = target.Clone()
}
