package experiment

import (
	"fmt"

	"github.com/san-kum/pendlab/internal/controllers"
	"github.com/san-kum/pendlab/internal/integrators"
	"github.com/san-kum/pendlab/internal/linearize"
	"github.com/san-kum/pendlab/internal/metrics"
	"github.com/san-kum/pendlab/internal/mpc"
	"github.com/san-kum/pendlab/internal/physics"
	"github.com/san-kum/pendlab/internal/sim"
)

// ControllerFactory builds a controller for the plant it will drive.
// Controllers that plan on a model (mpc, lqr) linearize the plant at the
// equilibrium; the simple laws ignore the dynamics argument.
type ControllerFactory func(dyn sim.Dynamics, params map[string]float64) (sim.Controller, error)

type Registry struct {
	models      map[string]func() sim.Dynamics
	integrators map[string]func() sim.Integrator
	controllers map[string]ControllerFactory
}

func NewRegistry() *Registry {
	r := &Registry{
		models:      make(map[string]func() sim.Dynamics),
		integrators: make(map[string]func() sim.Integrator),
		controllers: make(map[string]ControllerFactory),
	}

	r.models["pendulum"] = func() sim.Dynamics { return physics.NewPendulum() }
	r.models["cartpole"] = func() sim.Dynamics { return physics.NewCartPole() }
	r.models["secondorder"] = func() sim.Dynamics { return physics.NewSecondOrder() }

	r.integrators["euler"] = func() sim.Integrator { return integrators.NewEuler() }
	r.integrators["semiimplicit"] = func() sim.Integrator { return integrators.NewSemiImplicitEuler() }
	r.integrators["rk4"] = func() sim.Integrator { return integrators.NewRK4() }

	r.controllers["none"] = func(dyn sim.Dynamics, params map[string]float64) (sim.Controller, error) {
		dim := int(params["dim"])
		if dim == 0 {
			dim = dyn.ControlDim()
		}
		return controllers.NewNone(dim), nil
	}
	r.controllers["pid"] = func(dyn sim.Dynamics, params map[string]float64) (sim.Controller, error) {
		return controllers.NewPID(params["kp"], params["ki"], params["kd"], params["target"]), nil
	}
	r.controllers["lqr"] = func(dyn sim.Dynamics, params map[string]float64) (sim.Controller, error) {
		model, err := discretized(dyn, params)
		if err != nil {
			return nil, err
		}
		n := dyn.StateDim()
		k, err := mpc.LQRGain(model, stateWeights(n, params), inputWeight(params))
		if err != nil {
			return nil, err
		}
		return controllers.NewLQR(k, targetState(n, params)), nil
	}
	r.controllers["mpc"] = func(dyn sim.Dynamics, params map[string]float64) (sim.Controller, error) {
		model, err := discretized(dyn, params)
		if err != nil {
			return nil, err
		}
		n := dyn.StateDim()

		cfg := mpc.DefaultConfig(n, dyn.ControlDim())
		cfg.Ts = model.Ts
		cfg.QWeights = stateWeights(n, params)
		if w := params["uweight"]; w > 0 {
			cfg.UWeight = w
		}
		if lo, ok := params["ymin2"]; ok && n > 2 {
			cfg.YMin[2] = lo
		}
		if hi, ok := params["ymax2"]; ok && n > 2 {
			cfg.YMax[2] = hi
		}
		return mpc.New(model, cfg, targetState(n, params))
	}

	return r
}

// discretized linearizes the plant at the equilibrium and applies
// zero-order hold at the controller sample time.
func discretized(dyn sim.Dynamics, params map[string]float64) (*linearize.Discrete, error) {
	ts := params["ts"]
	if ts <= 0 {
		ts = 0.05
	}
	model, err := linearize.Linearize(dyn, linearize.Equilibrium(dyn.StateDim(), dyn.ControlDim()), linearize.DefaultEps)
	if err != nil {
		return nil, fmt.Errorf("linearize plant: %w", err)
	}
	return model.Discretize(ts)
}

func stateWeights(n int, params map[string]float64) []float64 {
	w := make([]float64, n)
	for i := range w {
		if v, ok := params[fmt.Sprintf("q%d", i)]; ok {
			w[i] = v
		} else if i == 0 {
			w[i] = 1
		}
	}
	return w
}

func inputWeight(params map[string]float64) float64 {
	if w := params["uweight"]; w > 0 {
		return w
	}
	return 0.01
}

func targetState(n int, params map[string]float64) []float64 {
	sp := make([]float64, n)
	sp[0] = params["target"]
	return sp
}

func (r *Registry) GetModel(name string) (sim.Dynamics, error) {
	fn, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", name)
	}
	return fn(), nil
}

func (r *Registry) GetIntegrator(name string) (sim.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

func (r *Registry) GetController(name string, dyn sim.Dynamics, params map[string]float64) (sim.Controller, error) {
	fn, ok := r.controllers[name]
	if !ok {
		return nil, fmt.Errorf("unknown controller: %s", name)
	}
	return fn(dyn, params)
}

func (r *Registry) ListModels() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	return names
}

func (r *Registry) ListControllers() []string {
	names := make([]string, 0, len(r.controllers))
	for name := range r.controllers {
		names = append(names, name)
	}
	return names
}

// DefaultMetrics is the standard instrumentation for a tracking run.
func (r *Registry) DefaultMetrics(target float64) []sim.Metric {
	return []sim.Metric{
		metrics.NewStability(100.0),
		metrics.NewControlEffort(),
		metrics.NewSettling(0, target),
		metrics.NewTracking(0, target),
	}
}
