package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model != "pendulum" {
		t.Errorf("expected model pendulum, got %s", cfg.Model)
	}
	if cfg.Dt <= 0 {
		t.Error("dt should be positive")
	}
	if cfg.Duration <= 0 {
		t.Error("duration should be positive")
	}
	if cfg.Training.Episodes <= 0 {
		t.Error("training episodes should be positive")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := GetPreset("cartpole", "servo")
	path := filepath.Join(t.TempDir(), "cfg.yaml")

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.Controller != "mpc" {
		t.Errorf("controller %q, want mpc", loaded.Controller)
	}
	if loaded.ControllerParams.Target != 10 {
		t.Errorf("target %f, want 10", loaded.ControllerParams.Target)
	}
	if len(loaded.ControllerParams.QWeights) != 4 {
		t.Errorf("q weights %v", loaded.ControllerParams.QWeights)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("model: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed yaml accepted")
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("cartpole", "servo")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.ControllerParams.AngleMax != 0.35 {
		t.Errorf("expected angle bound 0.35, got %f", cfg.ControllerParams.AngleMax)
	}

	if GetPreset("cartpole", "nonexistent") != nil {
		t.Error("expected nil for nonexistent preset")
	}
	if GetPreset("nonexistent", "servo") != nil {
		t.Error("expected nil for nonexistent model")
	}
}

func TestListPresets(t *testing.T) {
	if len(ListPresets("pendulum")) == 0 {
		t.Error("expected presets for pendulum")
	}
	if ListPresets("nonexistent") != nil {
		t.Error("expected nil for nonexistent model")
	}
}

func TestGetInitState(t *testing.T) {
	tests := []struct {
		model    string
		expected int
	}{
		{"pendulum", 2},
		{"cartpole", 4},
		{"secondorder", 2},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		cfg.Model = tt.model
		state := cfg.GetInitState()
		if len(state) != tt.expected {
			t.Errorf("model %s: expected %d states, got %d", tt.model, tt.expected, len(state))
		}
	}
}

func TestGetControllerParams(t *testing.T) {
	cfg := GetPreset("cartpole", "servo")
	params := cfg.GetControllerParams()

	if params["target"] != 10 {
		t.Errorf("target %f", params["target"])
	}
	if params["q2"] != 5 {
		t.Errorf("q2 %f", params["q2"])
	}
	if params["ymax2"] != 0.35 || params["ymin2"] != -0.35 {
		t.Errorf("angle bounds %f %f", params["ymin2"], params["ymax2"])
	}
}
