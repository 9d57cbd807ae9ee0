package integrators

import "github.com/san-kum/pendlab/internal/sim"

// SemiImplicitEuler updates velocities first, then positions with the new
// velocities. It assumes the mechanical state layout [q0, q0', q1, q1', ...]
// used by the plants in this repo, where even indices are positions and
// odd indices their rates. Better energy behavior than explicit Euler for
// oscillatory systems at the same cost.
type SemiImplicitEuler struct{}

func NewSemiImplicitEuler() *SemiImplicitEuler {
	return &SemiImplicitEuler{}
}

func (s *SemiImplicitEuler) Step(dyn sim.Dynamics, x sim.State, u sim.Control, t float64, dt float64) sim.State {
	dx := dyn.Derivative(x, u, t)
	result := x.Clone()

	for i := 1; i < len(x); i += 2 {
		result[i] = x[i] + dt*dx[i]
	}
	for i := 0; i < len(x); i += 2 {
		rate := dx[i]
		if i+1 < len(result) {
			rate = result[i+1]
		}
		result[i] = x[i] + dt*rate
	}
	return result
}
