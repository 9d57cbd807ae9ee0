package physics

import (
	"fmt"

	"github.com/san-kum/pendlab/internal/sim"
)

// SecondOrder is the linear SISO reference plant
//
//	y'' + A1 y' + A0 y = u
//
// i.e. transfer function 1/(s^2 + A1 s + A0). State is [y, ydot]. The
// defaults give 1/(s^2 + 10s + 20), the plant the PID bench gains are
// tuned against.
type SecondOrder struct {
	A0 float64
	A1 float64
}

func NewSecondOrder() *SecondOrder {
	return &SecondOrder{A0: 20.0, A1: 10.0}
}

func (s *SecondOrder) StateDim() int   { return 2 }
func (s *SecondOrder) ControlDim() int { return 1 }

func (s *SecondOrder) Derivative(x sim.State, u sim.Control, t float64) sim.State {
	y := x[0]
	ydot := x[1]

	in := 0.0
	if len(u) > 0 {
		in = u[0]
	}

	return sim.State{ydot, in - s.A1*ydot - s.A0*y}
}

func (s *SecondOrder) GetParams() map[string]float64 {
	return map[string]float64{"a0": s.A0, "a1": s.A1}
}

func (s *SecondOrder) SetParam(name string, value float64) error {
	switch name {
	case "a0":
		s.A0 = value
	case "a1":
		s.A1 = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}
