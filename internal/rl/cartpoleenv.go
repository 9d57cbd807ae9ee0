package rl

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/pendlab/internal/integrators"
	"github.com/san-kum/pendlab/internal/physics"
	"github.com/san-kum/pendlab/internal/sim"
)

// CartPoleEnv is the continuous-force balance task. Observation is
// [x, xdot, sin θ, cos θ, θdot]; the episode ends when the cart or the
// pole leaves its bounds, with the cause recorded in the step info.
type CartPoleEnv struct {
	MaxForce   float64
	MaxSteps   int
	Dt         float64
	PosLimit   float64
	AngleLimit float64

	plant *physics.CartPole
	rk    *integrators.RK4
	rng   *rand.Rand

	state sim.State
	steps int
	done  bool
}

func NewCartPoleEnv(rng *rand.Rand) *CartPoleEnv {
	return &CartPoleEnv{
		MaxForce:   10.0,
		MaxSteps:   500,
		Dt:         0.02,
		PosLimit:   2.4,
		AngleLimit: 0.5,
		plant:      physics.NewCartPole(),
		rk:         integrators.NewRK4(),
		rng:        rng,
		state:      sim.State{0, 0, 0, 0},
		done:       true,
	}
}

func (e *CartPoleEnv) ObservationSize() int { return 5 }
func (e *CartPoleEnv) ActionSize() int      { return 1 }
func (e *CartPoleEnv) ActionBound() float64 { return e.MaxForce }

func (e *CartPoleEnv) Reset() Observation {
	e.state = sim.State{
		(2*e.rng.Float64() - 1) * 0.05,
		(2*e.rng.Float64() - 1) * 0.05,
		(2*e.rng.Float64() - 1) * 0.05,
		(2*e.rng.Float64() - 1) * 0.05,
	}
	e.steps = 0
	e.done = false
	return e.observe()
}

func (e *CartPoleEnv) Step(action []float64) (StepResult, error) {
	if e.done {
		return StepResult{}, fmt.Errorf("step after episode end; call Reset")
	}
	if len(action) != 1 {
		return StepResult{}, fmt.Errorf("action has %d entries, want 1", len(action))
	}

	u := clip(action[0], -e.MaxForce, e.MaxForce)
	if math.IsNaN(u) {
		e.done = true
		return StepResult{Obs: e.observe(), Done: true, Info: map[string]any{"cause": "nonfinite"}}, nil
	}

	t := float64(e.steps) * e.Dt
	e.state = e.rk.Step(e.plant, e.state, sim.Control{u}, t, e.Dt)
	e.steps++

	info := map[string]any{}
	switch {
	case !e.state.IsValid():
		e.done = true
		info["cause"] = "nonfinite"
	case math.Abs(e.state[0]) > e.PosLimit:
		e.done = true
		info["cause"] = "position"
	case math.Abs(e.state[2]) > e.AngleLimit:
		e.done = true
		info["cause"] = "angle"
	case e.steps >= e.MaxSteps:
		e.done = true
		info["cause"] = "steps"
	}

	// alive bonus shaped by how upright and centered the pole is
	reward := 0.0
	if cause, over := info["cause"]; !over || cause == "steps" {
		reward = 1.0 - 0.1*e.state[2]*e.state[2] - 0.01*e.state[0]*e.state[0]
	}
	return StepResult{Obs: e.observe(), Reward: reward, Done: e.done, Info: info}, nil
}

func (e *CartPoleEnv) observe() Observation {
	return Observation{
		e.state[0],
		e.state[1],
		math.Sin(e.state[2]),
		math.Cos(e.state[2]),
		e.state[3],
	}
}
