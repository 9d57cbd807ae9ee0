package rl

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/pendlab/internal/integrators"
	"github.com/san-kum/pendlab/internal/physics"
	"github.com/san-kum/pendlab/internal/sim"
)

// PendulumEnv is the torque-limited pendulum damping task: episodes
// start swung out, the agent is rewarded for bringing the pendulum to
// rest with little torque. Observation is [cos θ, sin θ, θdot].
type PendulumEnv struct {
	MaxTorque  float64
	MaxSteps   int
	Dt         float64
	ThetaRange float64 // reset draws θ from ±ThetaRange
	OmegaRange float64

	plant *physics.Pendulum
	rk    *integrators.RK4
	rng   *rand.Rand

	state sim.State
	steps int
	done  bool
}

func NewPendulumEnv(rng *rand.Rand) *PendulumEnv {
	return &PendulumEnv{
		MaxTorque:  2.0,
		MaxSteps:   400,
		Dt:         0.05,
		ThetaRange: 1.0,
		OmegaRange: 1.0,
		plant:      physics.NewPendulum(),
		rk:         integrators.NewRK4(),
		rng:        rng,
		state:      sim.State{0, 0},
		done:       true,
	}
}

func (e *PendulumEnv) ObservationSize() int { return 3 }
func (e *PendulumEnv) ActionSize() int      { return 1 }
func (e *PendulumEnv) ActionBound() float64 { return e.MaxTorque }

func (e *PendulumEnv) Reset() Observation {
	theta := (2*e.rng.Float64() - 1) * e.ThetaRange
	omega := (2*e.rng.Float64() - 1) * e.OmegaRange
	e.state = sim.State{theta, omega}
	e.steps = 0
	e.done = false
	return e.observe()
}

func (e *PendulumEnv) Step(action []float64) (StepResult, error) {
	if e.done {
		return StepResult{}, fmt.Errorf("step after episode end; call Reset")
	}
	if len(action) != 1 {
		return StepResult{}, fmt.Errorf("action has %d entries, want 1", len(action))
	}

	u := clip(action[0], -e.MaxTorque, e.MaxTorque)
	if math.IsNaN(u) {
		e.done = true
		return StepResult{Obs: e.observe(), Done: true, Info: map[string]any{"cause": "nonfinite"}}, nil
	}

	t := float64(e.steps) * e.Dt
	e.state = e.rk.Step(e.plant, e.state, sim.Control{u}, t, e.Dt)
	e.steps++

	if !e.state.IsValid() {
		e.done = true
		return StepResult{Obs: e.observe(), Done: true, Info: map[string]any{"cause": "nonfinite"}}, nil
	}

	th := wrapAngle(e.state[0])
	om := e.state[1]
	reward := -(th*th + 0.1*om*om + 0.001*u*u)

	info := map[string]any{}
	if e.steps >= e.MaxSteps {
		e.done = true
		info["cause"] = "steps"
	}
	return StepResult{Obs: e.observe(), Reward: reward, Done: e.done, Info: info}, nil
}

func (e *PendulumEnv) observe() Observation {
	return Observation{math.Cos(e.state[0]), math.Sin(e.state[0]), e.state[1]}
}

// wrapAngle maps an angle into (-π, π].
func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
