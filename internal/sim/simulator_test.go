package sim

import (
	"context"
	"errors"
	"math"
	"testing"
)

type decayDynamics struct{}

func (d *decayDynamics) Derivative(x State, u Control, t float64) State {
	return State{-x[0]}
}

func (d *decayDynamics) StateDim() int   { return 1 }
func (d *decayDynamics) ControlDim() int { return 0 }

type eulerStep struct{}

func (e *eulerStep) Step(dyn Dynamics, x State, u Control, t float64, dt float64) State {
	dx := dyn.Derivative(x, u, t)
	out := x.Clone()
	for i := range out {
		out[i] += dt * dx[i]
	}
	return out
}

type zeroController struct{}

func (z *zeroController) Compute(x State, t float64) Control { return Control{} }

func TestSimulatorRun(t *testing.T) {
	s := New(&decayDynamics{}, &eulerStep{}, &zeroController{})

	cfg := Config{Dt: 0.1, Duration: 1.0}
	result, err := s.Run(context.Background(), State{1.0}, cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(result.States) != 11 {
		t.Errorf("expected 11 states, got %d", len(result.States))
	}
	if len(result.Times) != 11 {
		t.Errorf("expected 11 times, got %d", len(result.Times))
	}
	if result.StepsTaken != 10 {
		t.Errorf("expected 10 steps, got %d", result.StepsTaken)
	}

	final := result.States[len(result.States)-1][0]
	expected := math.Exp(-1.0)
	if math.Abs(final-expected) > 0.2 {
		t.Errorf("expected final state ~%.4f, got %.4f", expected, final)
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	s := New(&decayDynamics{}, &eulerStep{}, &zeroController{})

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero dt", Config{Dt: 0, Duration: 1.0}},
		{"negative dt", Config{Dt: -0.1, Duration: 1.0}},
		{"zero duration", Config{Dt: 0.1, Duration: 0}},
		{"negative duration", Config{Dt: 0.1, Duration: -1.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Run(context.Background(), State{1.0}, tt.cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

type countingMetric struct {
	count int
}

func (m *countingMetric) Name() string                          { return "count" }
func (m *countingMetric) Observe(x State, u Control, t float64) { m.count++ }
func (m *countingMetric) Value() float64                        { return float64(m.count) }
func (m *countingMetric) Reset()                                { m.count = 0 }

func TestSimulatorMetrics(t *testing.T) {
	s := New(&decayDynamics{}, &eulerStep{}, &zeroController{})
	m := &countingMetric{count: 99} // Run must reset this
	s.AddMetric(m)

	result, err := s.Run(context.Background(), State{1.0}, Config{Dt: 0.1, Duration: 1.0})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if result.Metrics["count"] != 10 {
		t.Errorf("expected 10 observations, got %f", result.Metrics["count"])
	}
}

type blowupDynamics struct{}

func (b *blowupDynamics) Derivative(x State, u Control, t float64) State {
	return State{math.NaN()}
}

func (b *blowupDynamics) StateDim() int   { return 1 }
func (b *blowupDynamics) ControlDim() int { return 0 }

func TestSimulatorValidateState(t *testing.T) {
	s := New(&blowupDynamics{}, &eulerStep{}, &zeroController{})

	result, err := s.Run(context.Background(), State{1.0}, Config{Dt: 0.1, Duration: 1.0, ValidateState: true})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(result.Faults) == 0 {
		t.Fatal("expected a fault for the NaN state")
	}
	if result.StepsTaken != 0 {
		t.Errorf("run should stop at the first invalid step, took %d", result.StepsTaken)
	}
}

type faultyController struct{}

func (f *faultyController) Compute(x State, t float64) Control { return Control{0} }
func (f *faultyController) Fault() error                       { return errors.New("budget exhausted") }

func TestSimulatorCollectsControllerFaults(t *testing.T) {
	s := New(&decayDynamics{}, &eulerStep{}, &faultyController{})

	result, err := s.Run(context.Background(), State{1.0}, Config{Dt: 0.1, Duration: 0.5})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(result.Faults) != 5 {
		t.Fatalf("expected a fault per step, got %d", len(result.Faults))
	}
	var se SimError
	if !errors.As(result.Faults[0], &se) {
		t.Fatalf("fault is not a SimError: %v", result.Faults[0])
	}
	if se.Step != 0 {
		t.Errorf("first fault at step %d, want 0", se.Step)
	}
}

func TestSimulatorContextCancel(t *testing.T) {
	s := New(&decayDynamics{}, &eulerStep{}, &zeroController{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Run(ctx, State{1.0}, Config{Dt: 0.1, Duration: 1.0}); err == nil {
		t.Error("expected context error")
	}
}

func TestRunWithCallbackStopsEarly(t *testing.T) {
	s := New(&decayDynamics{}, &eulerStep{}, &zeroController{})

	calls := 0
	err := s.RunWithCallback(context.Background(), State{1.0}, Config{Dt: 0.1, Duration: 1.0},
		func(x State, u Control, t float64) bool {
			calls++
			return calls < 3
		})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 callback calls, got %d", calls)
	}
}

func TestStateHelpers(t *testing.T) {
	s := State{3, 4}
	if s.Norm() != 5 {
		t.Errorf("norm %f, want 5", s.Norm())
	}

	c := s.Clone()
	c[0] = 99
	if s[0] != 3 {
		t.Error("clone aliases the original")
	}

	d := s.Sub(State{1, 1})
	if d[0] != 2 || d[1] != 3 {
		t.Errorf("sub gave %v", d)
	}

	if (State{1, math.NaN()}).IsValid() {
		t.Error("NaN state reported valid")
	}
	if !(State{1, 2}).IsValid() {
		t.Error("finite state reported invalid")
	}
}

func TestEnsembleRunsEverySeed(t *testing.T) {
	build := func() *Simulator {
		return New(&decayDynamics{}, &eulerStep{}, &zeroController{})
	}

	ens := NewEnsemble(build, 8, 100)
	results, err := ens.Run(context.Background(), State{1.0}, Config{Dt: 0.1, Duration: 1.0})
	if err != nil {
		t.Fatalf("ensemble failed: %v", err)
	}

	if len(results) != 8 {
		t.Fatalf("expected 8 results, got %d", len(results))
	}
	for i, r := range results {
		if r == nil || r.StepsTaken != 10 {
			t.Errorf("run %d incomplete: %+v", i, r)
		}
	}
}
