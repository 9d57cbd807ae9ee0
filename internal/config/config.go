package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDt       = 0.01
	DefaultDuration = 10.0
	DefaultTheta    = 0.5
	DefaultKp       = 350.0
	DefaultKi       = 300.0
	DefaultKd       = 50.0
	DefaultTs       = 0.05
)

type Config struct {
	Model            string           `yaml:"model"`
	Integrator       string           `yaml:"integrator"`
	Controller       string           `yaml:"controller"`
	Dt               float64          `yaml:"dt"`
	Duration         float64          `yaml:"duration"`
	Seed             int64            `yaml:"seed"`
	InitState        InitStateConfig  `yaml:"init_state"`
	ControllerParams ControllerConfig `yaml:"controller_params"`
	Training         TrainingConfig   `yaml:"training"`
}

type InitStateConfig struct {
	Theta float64 `yaml:"theta"`
	Omega float64 `yaml:"omega"`
	Pos   float64 `yaml:"pos"`
	Vel   float64 `yaml:"vel"`
}

type ControllerConfig struct {
	Kp     float64 `yaml:"kp"`
	Ki     float64 `yaml:"ki"`
	Kd     float64 `yaml:"kd"`
	Target float64 `yaml:"target"`

	// MPC tuning. QWeights are per-state; zero entries are allowed.
	Ts       float64   `yaml:"ts"`
	QWeights []float64 `yaml:"q_weights"`
	UWeight  float64   `yaml:"u_weight"`
	AngleMin float64   `yaml:"angle_min"`
	AngleMax float64   `yaml:"angle_max"`
}

type TrainingConfig struct {
	Env         string  `yaml:"env"`
	Episodes    int     `yaml:"episodes"`
	MaxSteps    int     `yaml:"max_steps"`
	Hidden      []int   `yaml:"hidden"`
	ActorLR     float64 `yaml:"actor_lr"`
	CriticLR    float64 `yaml:"critic_lr"`
	BatchSize   int     `yaml:"batch_size"`
	NoiseSigma  float64 `yaml:"noise_sigma"`
	NoiseDecay  float64 `yaml:"noise_decay"`
	UpdateEvery int     `yaml:"update_every"`
	Checkpoint  string  `yaml:"checkpoint"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:      "pendulum",
		Integrator: "rk4",
		Controller: "none",
		Dt:         DefaultDt,
		Duration:   DefaultDuration,
		InitState: InitStateConfig{
			Theta: DefaultTheta,
		},
		ControllerParams: ControllerConfig{
			Kp: DefaultKp,
			Ki: DefaultKi,
			Kd: DefaultKd,
			Ts: DefaultTs,
		},
		Training: TrainingConfig{
			Env:         "pendulum",
			Episodes:    200,
			MaxSteps:    400,
			Hidden:      []int{64, 64},
			ActorLR:     1e-3,
			CriticLR:    1e-3,
			BatchSize:   64,
			NoiseSigma:  0.6,
			NoiseDecay:  0.95,
			UpdateEvery: 1,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) GetInitState() []float64 {
	switch c.Model {
	case "cartpole":
		return []float64{c.InitState.Pos, c.InitState.Vel, c.InitState.Theta, c.InitState.Omega}
	case "secondorder":
		return []float64{c.InitState.Pos, c.InitState.Vel}
	default:
		return []float64{c.InitState.Theta, c.InitState.Omega}
	}
}

// GetControllerParams flattens the controller section into the map the
// experiment registry consumes.
func (c *Config) GetControllerParams() map[string]float64 {
	p := map[string]float64{
		"kp":     c.ControllerParams.Kp,
		"ki":     c.ControllerParams.Ki,
		"kd":     c.ControllerParams.Kd,
		"target": c.ControllerParams.Target,
	}
	if c.ControllerParams.Ts > 0 {
		p["ts"] = c.ControllerParams.Ts
	}
	for i, q := range c.ControllerParams.QWeights {
		p["q"+strconv.Itoa(i)] = q
	}
	if c.ControllerParams.UWeight > 0 {
		p["uweight"] = c.ControllerParams.UWeight
	}
	if c.ControllerParams.AngleMin != 0 || c.ControllerParams.AngleMax != 0 {
		p["ymin2"] = c.ControllerParams.AngleMin
		p["ymax2"] = c.ControllerParams.AngleMax
	}
	return p
}
