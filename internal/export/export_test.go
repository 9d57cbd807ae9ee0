package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/pendlab/internal/rl"
	"github.com/san-kum/pendlab/internal/sim"
)

func sampleResult() *sim.Result {
	return &sim.Result{
		States:   []sim.State{{0, 0}, {0.1, 0.2}, {0.2, 0.1}},
		Controls: []sim.Control{{1.0}, {0.5}, {0.0}},
		Times:    []float64{0, 0.01, 0.02},
		Metrics:  map[string]float64{"control_effort": 1.25},
	}
}

func TestJSONExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	if err := JSON(path, "pendulum", "rk4", "pid", 0.01, 0.02, sampleResult()); err != nil {
		t.Fatalf("export: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var run RunData
	if err := json.Unmarshal(data, &run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.Steps != 3 {
		t.Errorf("steps %d, want 3", run.Steps)
	}
	if run.Metrics["control_effort"] != 1.25 {
		t.Errorf("metrics not preserved: %v", run.Metrics)
	}
}

func TestStatePlotWritesPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "states.png")
	if err := StatePlot(path, "pendulum", sampleResult(), []string{"theta", "omega"}); err != nil {
		t.Fatalf("plot: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() == 0 {
		t.Error("empty plot file")
	}
}

func TestControlPlotWritesPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "u.png")
	if err := ControlPlot(path, "pendulum", sampleResult()); err != nil {
		t.Fatalf("plot: %v", err)
	}
}

func TestRewardPlotWritesPNG(t *testing.T) {
	stats := []rl.EpisodeStat{
		{Episode: 0, Steps: 100, Reward: -40},
		{Episode: 1, Steps: 100, Reward: -25},
		{Episode: 2, Steps: 100, Reward: -10},
	}
	path := filepath.Join(t.TempDir(), "rewards.png")
	if err := RewardPlot(path, "training", stats); err != nil {
		t.Fatalf("plot: %v", err)
	}
}

func TestPlotRejectsEmpty(t *testing.T) {
	empty := &sim.Result{}
	if err := StatePlot("unused.png", "t", empty, nil); err == nil {
		t.Error("empty result accepted")
	}
	if err := ControlPlot("unused.png", "t", empty); err == nil {
		t.Error("empty controls accepted")
	}
	if err := RewardPlot("unused.png", "t", nil); err == nil {
		t.Error("empty stats accepted")
	}
}
