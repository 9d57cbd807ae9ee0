package controllers

import (
	"math"
	"testing"

	"github.com/san-kum/pendlab/internal/integrators"
	"github.com/san-kum/pendlab/internal/physics"
	"github.com/san-kum/pendlab/internal/sim"
)

func TestNone(t *testing.T) {
	ctrl := NewNone(2)
	u := ctrl.Compute(sim.State{1.0, 2.0}, 0.0)

	if len(u) != 2 {
		t.Errorf("expected 2 controls, got %d", len(u))
	}
	for i, v := range u {
		if v != 0 {
			t.Errorf("control[%d] should be 0, got %f", i, v)
		}
	}
}

func TestPIDSigns(t *testing.T) {
	ctrl := NewPID(10.0, 0.1, 5.0, 0.0)
	u := ctrl.Compute(sim.State{1.0, 0.0}, 0.0)
	if len(u) != 1 {
		t.Fatalf("expected 1 control, got %d", len(u))
	}
	if u[0] >= 0 {
		t.Error("PID should output negative control for positive state above target")
	}
}

// Step response of PID 350/300/50 on the reference second-order plant.
// The loop must settle into the 5% band well inside 2 seconds and hold
// the setpoint with no steady-state error.
func TestPIDSecondOrderStepResponse(t *testing.T) {
	plant := physics.NewSecondOrder()
	ctrl := NewPID(350, 300, 50, 1.0)
	rk := integrators.NewRK4()

	dt := 0.001
	x := sim.State{0, 0}
	settled := 0.0 // last time the output was outside the band
	for i := 0; i < 3000; i++ {
		tm := float64(i) * dt
		u := ctrl.Compute(x, tm)
		x = rk.Step(plant, x, u, tm, dt)

		if math.Abs(x[0]-1.0) > 0.05 {
			settled = tm + dt
		}
	}

	if settled > 2.0 {
		t.Errorf("response settled at t=%.3f, want within 2s", settled)
	}
	if math.Abs(x[0]-1.0) > 0.02 {
		t.Errorf("final output %.4f, want 1±0.02", x[0])
	}
}

func TestPIDAntiWindup(t *testing.T) {
	ctrl := NewPID(0, 1.0, 0, 10.0)
	ctrl.UMin, ctrl.UMax = -1, 1

	// Persistent large error drives the output to the clamp; the
	// integral must stop accumulating there.
	dt := 0.01
	x := sim.State{0}
	for i := 0; i < 500; i++ {
		u := ctrl.Compute(x, float64(i)*dt)
		if u[0] > 1 || u[0] < -1 {
			t.Fatalf("output %.4f outside clamp at step %d", u[0], i)
		}
	}
	if ctrl.integral > 1.5 {
		t.Errorf("integral wound up to %.3f while saturated", ctrl.integral)
	}
}

func TestPIDReset(t *testing.T) {
	ctrl := NewPID(1, 1, 0, 1.0)
	ctrl.Compute(sim.State{0}, 0)
	ctrl.Compute(sim.State{0}, 0.1)
	if ctrl.integral == 0 {
		t.Fatal("integral should have accumulated")
	}
	ctrl.Reset()
	if ctrl.integral != 0 || !ctrl.first {
		t.Error("reset did not clear controller state")
	}
}

func TestLQR(t *testing.T) {
	k := [][]float64{{1.0, 2.0}}
	target := sim.State{0.0, 0.0}
	ctrl := NewLQR(k, target)

	u := ctrl.Compute(sim.State{0.0, 0.0}, 0.0)
	if u[0] != 0 {
		t.Errorf("expected zero control at target, got %f", u[0])
	}

	u = ctrl.Compute(sim.State{1.0, 0.0}, 0.0)
	if u[0] != -1.0 {
		t.Errorf("expected -1 away from target, got %f", u[0])
	}
}

func TestLQRTracksNonzeroTarget(t *testing.T) {
	k := [][]float64{{2.0, 0.5}}
	ctrl := NewLQR(k, sim.State{1.0, 0.0})

	u := ctrl.Compute(sim.State{1.0, 0.0}, 0.0)
	if u[0] != 0 {
		t.Errorf("expected zero control at target, got %f", u[0])
	}
}
