// Package experiment assembles plants, integrators, and controllers by
// name, runs closed-loop simulations, and evaluates the built-in
// pass/fail scenarios.
package experiment

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/san-kum/pendlab/internal/sim"
)

// Config names the pieces of one closed-loop run.
type Config struct {
	Model      string
	Integrator string
	Controller string
	InitState  []float64
	Dt         float64
	Duration   float64
	Seed       int64
	Params     map[string]float64
}

type Experiment struct {
	cfg       Config
	reg       *Registry
	simulator *sim.Simulator
	rng       *rand.Rand
}

func New(cfg Config) *Experiment {
	return &Experiment{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Setup resolves the named components from the registry and wires the
// simulator with the default metrics.
func (e *Experiment) Setup(reg *Registry) error {
	dyn, err := reg.GetModel(e.cfg.Model)
	if err != nil {
		return err
	}
	integ, err := reg.GetIntegrator(e.cfg.Integrator)
	if err != nil {
		return err
	}
	ctl, err := reg.GetController(e.cfg.Controller, dyn, e.cfg.Params)
	if err != nil {
		return fmt.Errorf("build controller %q: %w", e.cfg.Controller, err)
	}

	if len(e.cfg.InitState) != dyn.StateDim() {
		return fmt.Errorf("initial state has %d entries, model %q has %d states",
			len(e.cfg.InitState), e.cfg.Model, dyn.StateDim())
	}

	e.reg = reg
	e.simulator = sim.New(dyn, integ, ctl)
	for _, m := range reg.DefaultMetrics(e.cfg.Params["target"]) {
		e.simulator.AddMetric(m)
	}
	return nil
}

// buildSimulator wires a fresh simulator from the already-validated
// config. Fresh controllers matter for ensemble runs: an MPC or PID
// carries state between steps and must not be shared.
func (e *Experiment) buildSimulator() *sim.Simulator {
	dyn, _ := e.reg.GetModel(e.cfg.Model)
	integ, _ := e.reg.GetIntegrator(e.cfg.Integrator)
	ctl, _ := e.reg.GetController(e.cfg.Controller, dyn, e.cfg.Params)

	s := sim.New(dyn, integ, ctl)
	for _, m := range e.reg.DefaultMetrics(e.cfg.Params["target"]) {
		s.AddMetric(m)
	}
	return s
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not set up")
	}

	x0 := make(sim.State, len(e.cfg.InitState))
	copy(x0, e.cfg.InitState)

	return e.simulator.Run(ctx, x0, sim.Config{
		Dt:            e.cfg.Dt,
		Duration:      e.cfg.Duration,
		Seed:          e.cfg.Seed,
		ValidateState: true,
	})
}

// RunEnsemble runs the configured experiment across runs seeds in
// parallel, starting at the configured seed.
func (e *Experiment) RunEnsemble(ctx context.Context, runs int) ([]*sim.Result, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not set up")
	}
	if runs <= 0 {
		return nil, fmt.Errorf("runs must be positive, got %d", runs)
	}

	x0 := make(sim.State, len(e.cfg.InitState))
	copy(x0, e.cfg.InitState)

	ens := sim.NewEnsemble(e.buildSimulator, runs, e.cfg.Seed)
	return ens.Run(ctx, x0, sim.Config{
		Dt:            e.cfg.Dt,
		Duration:      e.cfg.Duration,
		ValidateState: true,
	})
}

// Simulator exposes the underlying simulator for observers.
func (e *Experiment) Simulator() *sim.Simulator {
	return e.simulator
}
