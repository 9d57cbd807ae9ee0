package storage

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/pendlab/internal/rl"
	"github.com/san-kum/pendlab/internal/sim"
)

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	result := &sim.Result{
		States: []sim.State{
			{1.0, 0.0},
			{0.9, -0.1},
		},
		Controls: []sim.Control{
			{0.0},
		},
		Times: []float64{0.0, 0.01},
		Metrics: map[string]float64{
			"settling_time": 1.5,
		},
	}

	runID, err := st.Save("pendulum", 0.01, 1.0, 42, "rk4", "pid", result)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Error("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Model != "pendulum" {
		t.Errorf("expected model pendulum, got %q", meta.Model)
	}
	if meta.Seed != 42 {
		t.Errorf("expected seed 42, got %d", meta.Seed)
	}
	if meta.Metrics["settling_time"] != 1.5 {
		t.Errorf("expected settling_time 1.5, got %f", meta.Metrics["settling_time"])
	}

	states, times, err := st.LoadStates(runID)
	if err != nil {
		t.Fatalf("load states failed: %v", err)
	}
	if len(states) != 2 {
		t.Errorf("expected 2 states, got %d", len(states))
	}
	if len(times) != 2 {
		t.Errorf("expected 2 times, got %d", len(times))
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	result := &sim.Result{
		States:   []sim.State{{1.0}},
		Controls: []sim.Control{},
		Times:    []float64{0.0},
		Metrics:  map[string]float64{},
	}

	if _, err := st.Save("pendulum", 0.01, 1.0, 42, "rk4", "none", result); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("expected 1 run, got %d", len(runs))
	}
}

func TestStoreFileStructure(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	result := &sim.Result{
		States:   []sim.State{{1.0}},
		Controls: []sim.Control{},
		Times:    []float64{0.0},
		Metrics:  map[string]float64{},
	}

	runID, err := st.Save("pendulum", 0.01, 1.0, 42, "rk4", "none", result)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runDir := filepath.Join(tmpDir, runID)
	if _, err := os.Stat(filepath.Join(runDir, "metadata.json")); os.IsNotExist(err) {
		t.Error("metadata.json not created")
	}
	if _, err := os.Stat(filepath.Join(runDir, "states.csv")); os.IsNotExist(err) {
		t.Error("states.csv not created")
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	st := New(t.TempDir())

	rng := rand.New(rand.NewSource(1))
	actor, err := rl.NewMLP([]int{3, 8, 1}, rl.TanhScaled, 2.0, rng)
	if err != nil {
		t.Fatalf("build actor: %v", err)
	}
	critic, err := rl.NewMLP([]int{4, 8, 1}, rl.Linear, 0, rng)
	if err != nil {
		t.Fatalf("build critic: %v", err)
	}

	path, err := st.SaveCheckpoint("agent", rl.Checkpoint{Actor: actor, Critic: critic})
	if err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("checkpoint file missing: %v", err)
	}

	ck, err := st.LoadCheckpoint("agent")
	if err != nil {
		t.Fatalf("load checkpoint: %v", err)
	}

	in := mat.NewDense(1, 3, []float64{0.1, -0.2, 0.3})
	want := actor.Forward(in).At(0, 0)
	got := ck.Actor.Forward(in).At(0, 0)
	if want != got {
		t.Errorf("restored actor output %f, want %f", got, want)
	}
}

func TestLoadMissingCheckpoint(t *testing.T) {
	st := New(t.TempDir())
	if _, err := st.LoadCheckpoint("nope"); err == nil {
		t.Error("missing checkpoint accepted")
	}
}
