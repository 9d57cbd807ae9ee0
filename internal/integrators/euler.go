package integrators

import "github.com/san-kum/pendlab/internal/sim"

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(dyn sim.Dynamics, x sim.State, u sim.Control, t, dt float64) sim.State {
	n := len(x)
	dx := dyn.Derivative(x, u, t)

	next := make(sim.State, n)
	for i := 0; i < n; i++ {
		next[i] = x[i] + dt*dx[i]
	}
	return next
}
