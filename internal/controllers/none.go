package controllers

import "github.com/san-kum/pendlab/internal/sim"

// None returns zero control, for open-loop runs.
type None struct {
	dim int
}

func NewNone(dim int) *None {
	return &None{dim: dim}
}

func (n *None) Compute(x sim.State, t float64) sim.Control {
	return make(sim.Control, n.dim)
}
