package experiment

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/pendlab/internal/rl"
)

// Report is the outcome of one scenario.
type Report struct {
	Name    string
	Pass    bool
	Details map[string]float64
}

// Scenario is a self-contained pass/fail experiment.
type Scenario interface {
	Name() string
	Run(ctx context.Context) (Report, error)
}

// Scenarios returns the built-in acceptance scenarios.
func Scenarios() []Scenario {
	return []Scenario{
		&CartPoleMPCScenario{Setpoint: 10, ReachWithin: 4, Band: 0.05, AngleTol: 0.01, Duration: 6},
		&PIDScenario{Kp: 350, Ki: 300, Kd: 50, SettleWithin: 2, Band: 0.05, Duration: 3},
		&DDPGScenario{Episodes: 200, MaxSteps: 400, Window: 20, Seed: 7},
	}
}

// CartPoleMPCScenario steps the cart setpoint and requires the MPC to
// reach the band in time with the pole back upright at the end.
type CartPoleMPCScenario struct {
	Setpoint    float64
	ReachWithin float64
	Band        float64 // fraction of the setpoint
	AngleTol    float64
	Duration    float64
}

func (s *CartPoleMPCScenario) Name() string { return "cartpole-mpc-step" }

func (s *CartPoleMPCScenario) Run(ctx context.Context) (Report, error) {
	reg := NewRegistry()
	exp := New(Config{
		Model:      "cartpole",
		Integrator: "rk4",
		Controller: "mpc",
		InitState:  []float64{0, 0, 0, 0},
		Dt:         0.01,
		Duration:   s.Duration,
		Params: map[string]float64{
			"target": s.Setpoint,
			"q0":     1, "q2": 5,
			"ymin2": -0.35, "ymax2": 0.35,
		},
	})
	if err := exp.Setup(reg); err != nil {
		return Report{}, err
	}
	result, err := exp.Run(ctx)
	if err != nil {
		return Report{}, err
	}

	width := s.Band * math.Abs(s.Setpoint)
	reached := math.Inf(1)
	for i, x := range result.States {
		if math.Abs(x[0]-s.Setpoint) <= width {
			reached = result.Times[i]
			break
		}
	}
	final := result.States[len(result.States)-1]

	pass := len(result.Faults) == 0 &&
		reached <= s.ReachWithin &&
		math.Abs(final[0]-s.Setpoint) <= width &&
		math.Abs(final[2]) <= s.AngleTol

	return Report{
		Name: s.Name(),
		Pass: pass,
		Details: map[string]float64{
			"reached_at":  reached,
			"final_pos":   final[0],
			"final_angle": final[2],
			"faults":      float64(len(result.Faults)),
		},
	}, nil
}

// PIDScenario runs the reference gains on the second-order plant and
// requires the step response to settle in time.
type PIDScenario struct {
	Kp, Ki, Kd   float64
	SettleWithin float64
	Band         float64
	Duration     float64
}

func (s *PIDScenario) Name() string { return "pid-secondorder-step" }

func (s *PIDScenario) Run(ctx context.Context) (Report, error) {
	reg := NewRegistry()
	exp := New(Config{
		Model:      "secondorder",
		Integrator: "rk4",
		Controller: "pid",
		InitState:  []float64{0, 0},
		Dt:         0.001,
		Duration:   s.Duration,
		Params: map[string]float64{
			"kp": s.Kp, "ki": s.Ki, "kd": s.Kd, "target": 1,
		},
	})
	if err := exp.Setup(reg); err != nil {
		return Report{}, err
	}
	result, err := exp.Run(ctx)
	if err != nil {
		return Report{}, err
	}

	settled := 0.0
	for i, x := range result.States {
		if math.Abs(x[0]-1) > s.Band {
			settled = result.Times[i]
		}
	}
	final := result.States[len(result.States)-1]

	pass := settled <= s.SettleWithin && math.Abs(final[0]-1) <= 0.02

	return Report{
		Name: s.Name(),
		Pass: pass,
		Details: map[string]float64{
			"settled_at":   settled,
			"final_output": final[0],
		},
	}, nil
}

// DDPGScenario trains on the pendulum task and requires the windowed
// mean reward to improve over training.
type DDPGScenario struct {
	Episodes int
	MaxSteps int
	Window   int
	Seed     int64
}

func (s *DDPGScenario) Name() string { return "ddpg-pendulum-trend" }

func (s *DDPGScenario) Run(ctx context.Context) (Report, error) {
	rng := rand.New(rand.NewSource(s.Seed))
	env := rl.NewPendulumEnv(rng)
	env.MaxSteps = s.MaxSteps

	cfg := rl.AgentConfig{
		HiddenSizes: []int{16, 16},
		ActorLR:     1e-3,
		CriticLR:    1e-3,
		Gamma:       0.99,
		Tau:         0.01,
		BatchSize:   16,
		BufferSize:  100000,
		WarmupSteps: 300,
	}
	agent, err := rl.NewAgent(env, cfg, rl.NewGaussianNoise(0.6, 0.05, 0.9), rng)
	if err != nil {
		return Report{}, err
	}

	stats, err := agent.Train(ctx, env, rl.TrainOptions{
		MaxEpisodes: s.Episodes,
		MaxSteps:    s.MaxSteps,
		UpdateEvery: 2,
	})
	if err != nil {
		return Report{}, err
	}
	if len(stats) < 2*s.Window {
		return Report{}, fmt.Errorf("need at least %d episodes for the trend, got %d", 2*s.Window, len(stats))
	}

	early, late := 0.0, 0.0
	for _, st := range stats[:s.Window] {
		early += st.Reward
	}
	for _, st := range stats[len(stats)-s.Window:] {
		late += st.Reward
	}
	early /= float64(s.Window)
	late /= float64(s.Window)

	return Report{
		Name: s.Name(),
		Pass: late > early,
		Details: map[string]float64{
			"early_mean_reward": early,
			"late_mean_reward":  late,
			"episodes":          float64(len(stats)),
		},
	}, nil
}
