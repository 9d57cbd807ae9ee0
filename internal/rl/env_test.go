package rl

import (
	"math"
	"math/rand"
	"testing"

	"github.com/san-kum/pendlab/internal/sim"
)

func TestPendulumEnvResetAndBounds(t *testing.T) {
	env := NewPendulumEnv(rand.New(rand.NewSource(1)))

	for trial := 0; trial < 20; trial++ {
		obs := env.Reset()
		if len(obs) != env.ObservationSize() {
			t.Fatalf("observation has %d entries, want %d", len(obs), env.ObservationSize())
		}
		if math.Abs(obs[0]) > 1 || math.Abs(obs[1]) > 1 {
			t.Errorf("cos/sin observation outside [-1,1]: %v", obs)
		}
		if math.Abs(obs[2]) > env.OmegaRange {
			t.Errorf("angular velocity %f outside reset range", obs[2])
		}
	}
}

func TestPendulumEnvStepAfterDone(t *testing.T) {
	env := NewPendulumEnv(rand.New(rand.NewSource(2)))

	// fresh env has no episode yet
	if _, err := env.Step([]float64{0}); err == nil {
		t.Fatal("step before reset accepted")
	}

	env.Reset()
	env.MaxSteps = 3
	var done bool
	for i := 0; i < 3; i++ {
		res, err := env.Step([]float64{0})
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		done = res.Done
	}
	if !done {
		t.Fatal("episode should end at the step budget")
	}
	if _, err := env.Step([]float64{0}); err == nil {
		t.Fatal("step after done accepted")
	}

	env.Reset()
	if _, err := env.Step([]float64{0}); err != nil {
		t.Fatalf("step after reset: %v", err)
	}
}

func TestPendulumEnvRewardPrefersRest(t *testing.T) {
	env := NewPendulumEnv(rand.New(rand.NewSource(3)))
	env.Reset()
	env.state = sim.State{0, 0}
	resRest, err := env.Step([]float64{0})
	if err != nil {
		t.Fatal(err)
	}

	env.Reset()
	env.state = sim.State{2.0, 3.0}
	resSwing, err := env.Step([]float64{0})
	if err != nil {
		t.Fatal(err)
	}

	if resRest.Reward <= resSwing.Reward {
		t.Errorf("rest reward %f should beat swinging reward %f", resRest.Reward, resSwing.Reward)
	}
}

func TestPendulumEnvClipsTorque(t *testing.T) {
	env := NewPendulumEnv(rand.New(rand.NewSource(4)))
	env.Reset()
	if _, err := env.Step([]float64{1e6}); err != nil {
		t.Fatalf("oversized action should be clipped, got error %v", err)
	}
	if !env.state.IsValid() {
		t.Error("state blew up despite torque clipping")
	}
}

func TestPendulumEnvNonFiniteAction(t *testing.T) {
	env := NewPendulumEnv(rand.New(rand.NewSource(5)))
	env.Reset()
	res, err := env.Step([]float64{math.NaN()})
	if err != nil {
		t.Fatalf("nan action: %v", err)
	}
	if !res.Done || res.Info["cause"] != "nonfinite" {
		t.Errorf("nan action should end the episode with cause nonfinite, got %+v", res)
	}
}

func TestCartPoleEnvTerminationCauses(t *testing.T) {
	env := NewCartPoleEnv(rand.New(rand.NewSource(6)))

	env.Reset()
	env.state = sim.State{0, 0, 0.45, 2.0} // about to tip over
	var cause any
	for i := 0; i < 50; i++ {
		res, err := env.Step([]float64{0})
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		if res.Done {
			cause = res.Info["cause"]
			break
		}
	}
	if cause != "angle" {
		t.Errorf("termination cause %v, want angle", cause)
	}

	env.Reset()
	env.state = sim.State{2.35, 3.0, 0, 0} // running off the track
	cause = nil
	for i := 0; i < 50; i++ {
		res, err := env.Step([]float64{0})
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		if res.Done {
			cause = res.Info["cause"]
			break
		}
	}
	if cause != "position" {
		t.Errorf("termination cause %v, want position", cause)
	}

	if _, err := env.Step([]float64{0}); err == nil {
		t.Error("step after done accepted")
	}
}

func TestWrapAngle(t *testing.T) {
	cases := map[float64]float64{
		0:               0,
		3 * math.Pi:     math.Pi,
		-3 * math.Pi:    math.Pi,
		math.Pi / 2:     math.Pi / 2,
		2*math.Pi + 0.1: 0.1,
	}
	for in, want := range cases {
		if got := wrapAngle(in); math.Abs(got-want) > 1e-12 {
			t.Errorf("wrapAngle(%f) = %f, want %f", in, got, want)
		}
	}
}
