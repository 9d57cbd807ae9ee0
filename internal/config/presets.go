package config

var Presets = map[string]map[string]*Config{
	"pendulum": {
		"small": {
			Model: "pendulum", Integrator: "rk4", Dt: 0.01, Duration: 20.0,
			InitState: InitStateConfig{Theta: 0.2, Omega: 0.0},
		},
		"large": {
			Model: "pendulum", Integrator: "rk4", Dt: 0.01, Duration: 20.0,
			InitState: InitStateConfig{Theta: 2.5, Omega: 0.0},
		},
		"spinning": {
			Model: "pendulum", Integrator: "semiimplicit", Dt: 0.01, Duration: 30.0,
			InitState: InitStateConfig{Theta: 0.1, Omega: 8.0},
		},
	},
	"cartpole": {
		"servo": {
			Model: "cartpole", Integrator: "rk4", Controller: "mpc", Dt: 0.01, Duration: 6.0,
			InitState: InitStateConfig{},
			ControllerParams: ControllerConfig{
				Target:   10,
				Ts:       0.05,
				QWeights: []float64{1, 0, 5, 0},
				UWeight:  0.01,
				AngleMin: -0.35,
				AngleMax: 0.35,
			},
		},
		"regulate": {
			Model: "cartpole", Integrator: "rk4", Controller: "mpc", Dt: 0.01, Duration: 5.0,
			InitState: InitStateConfig{Theta: 0.1},
			ControllerParams: ControllerConfig{
				Ts:       0.05,
				QWeights: []float64{1, 0, 5, 0},
				UWeight:  0.01,
			},
		},
		"balance-lqr": {
			Model: "cartpole", Integrator: "rk4", Controller: "lqr", Dt: 0.01, Duration: 10.0,
			InitState: InitStateConfig{Theta: 0.1},
			ControllerParams: ControllerConfig{
				QWeights: []float64{1, 0, 5, 0},
				UWeight:  0.01,
			},
		},
		"freefall": {
			Model: "cartpole", Integrator: "rk4", Dt: 0.01, Duration: 5.0,
			InitState: InitStateConfig{Theta: 0.1},
		},
	},
	"secondorder": {
		"step": {
			Model: "secondorder", Integrator: "rk4", Controller: "pid", Dt: 0.001, Duration: 3.0,
			ControllerParams: ControllerConfig{Kp: 350, Ki: 300, Kd: 50, Target: 1.0},
		},
		"free": {
			Model: "secondorder", Integrator: "rk4", Dt: 0.001, Duration: 3.0,
			InitState: InitStateConfig{Pos: 1.0},
		},
	},
}

func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return cfg
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	return names
}
