// Package rl wraps the plants as reinforcement-learning environments and
// provides a DDPG agent: replay buffer, actor-critic networks with
// target copies, and exploration noise.
package rl

// Observation is the agent-facing view of the plant state.
type Observation []float64

func (o Observation) Clone() Observation {
	out := make(Observation, len(o))
	copy(out, o)
	return out
}

// StepResult carries one transition's outcome. Info holds diagnostic
// tags such as the termination cause.
type StepResult struct {
	Obs    Observation
	Reward float64
	Done   bool
	Info   map[string]any
}

// Environment is an episodic control task. Step after the episode has
// finished returns an error until Reset is called.
type Environment interface {
	Reset() Observation
	Step(action []float64) (StepResult, error)
	ObservationSize() int
	ActionSize() int
	ActionBound() float64
}
