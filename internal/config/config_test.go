package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/talgya/seir-sim/internal/pathfind"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.NPeople != 500 || cfg.MaxTimestep != 8000 || cfg.NRuns != 3 {
		t.Errorf("unexpected scenario defaults: n_people=%d max_timestep=%d n_runs=%d",
			cfg.NPeople, cfg.MaxTimestep, cfg.NRuns)
	}
	if cfg.InitialInfectious != 3 {
		t.Errorf("expected 3 initial infectious, got %d", cfg.InitialInfectious)
	}
	if cfg.Heatmap.Mode != "auto" {
		t.Errorf("expected heatmap mode 'auto', got '%s'", cfg.Heatmap.Mode)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiment.yaml")
	content := `
run_name: lecture-hall
save_plots: true
n_people: 120
infection_prob: 0.25
avg_incubation_time: 300
avg_infectious_time: 700
max_timestep: 2000
start_seed: 40
n_runs: 5
speedup_factor: 4
debug_mode: true
FPS: 30
movement:
  speed: 20
heatmap:
  mode: load
  dir: /tmp/heatmaps
layout:
  kind: generated
  seed: 9
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.RunName != "lecture-hall" || !cfg.SavePlots || cfg.FPS != 30 {
		t.Errorf("external flags not loaded: %+v", cfg)
	}
	if cfg.NPeople != 120 || cfg.InfectionProb != 0.25 || cfg.NRuns != 5 || cfg.StartSeed != 40 {
		t.Errorf("run parameters not loaded: %+v", cfg)
	}
	if cfg.Movement.Speed != 20 {
		t.Errorf("expected movement.speed 20, got %v", cfg.Movement.Speed)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Movement.SteerRate != 0.015 {
		t.Errorf("expected default steer_rate, got %v", cfg.Movement.SteerRate)
	}
	if cfg.Heatmap.Mode != "load" || cfg.Heatmap.Dir != "/tmp/heatmaps" {
		t.Errorf("heatmap config not loaded: %+v", cfg.Heatmap)
	}
	if cfg.LogLevel() != "debug" {
		t.Errorf("debug_mode should force debug level, got %q", cfg.LogLevel())
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("n_people: [1, 2\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SEIR_N_PEOPLE":       "42",
		"SEIR_INFECTION_PROB": "0.5",
		"SEIR_START_SEED":     "100",
		"SEIR_HEATMAP_MODE":   "compute",
		"SEIR_LOG_LEVEL":      "warn",
	}
	cfg := Default()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.NPeople != 42 || cfg.InfectionProb != 0.5 || cfg.StartSeed != 100 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Heatmap.Mode != "compute" || cfg.Logging.Level != "warn" {
		t.Errorf("string overrides not applied: %+v %+v", cfg.Heatmap, cfg.Logging)
	}

	bad := Default()
	err := bad.ApplyEnv(func(k string) string {
		if k == "SEIR_N_RUNS" {
			return "three"
		}
		return ""
	})
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Field != "SEIR_N_RUNS" {
		t.Errorf("expected ConfigError for SEIR_N_RUNS, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Experiment)
		field  string
	}{
		{"zero population", func(c *Experiment) { c.NPeople = 0 }, "n_people"},
		{"negative population", func(c *Experiment) { c.NPeople = -5 }, "n_people"},
		{"probability above one", func(c *Experiment) { c.InfectionProb = 1.5 }, "infection_prob"},
		{"negative probability", func(c *Experiment) { c.InfectionProb = -0.1 }, "infection_prob"},
		{"zero incubation", func(c *Experiment) { c.AvgIncubationTime = 0 }, "avg_incubation_time"},
		{"negative infectious time", func(c *Experiment) { c.AvgInfectiousTime = -1 }, "avg_infectious_time"},
		{"zero max timestep", func(c *Experiment) { c.MaxTimestep = 0 }, "max_timestep"},
		{"zero runs", func(c *Experiment) { c.NRuns = 0 }, "n_runs"},
		{"too many initial infectious", func(c *Experiment) { c.NPeople = 2; c.InitialInfectious = 3 }, "initial_infectious"},
		{"zero contact radius", func(c *Experiment) { c.ContactRadius = 0 }, "contact_radius"},
		{"zero duration shape", func(c *Experiment) { c.DurationShape = 0 }, "duration_shape"},
		{"inverted retarget range", func(c *Experiment) { c.Movement.RetargetMax = 10 }, "movement.retarget_min"},
		{"steer rate above one", func(c *Experiment) { c.Movement.SteerRate = 2 }, "movement.steer_rate"},
		{"infinite speed", func(c *Experiment) { c.Movement.Speed = math.Inf(1) }, "movement.speed"},
		{"infinite jitter", func(c *Experiment) { c.Movement.Jitter = math.Inf(1) }, "movement.jitter"},
		{"infinite spawn spread", func(c *Experiment) { c.Movement.SpawnSpread = math.Inf(1) }, "movement.spawn_spread"},
		{"infinite initial speed", func(c *Experiment) { c.Movement.InitialSpeed = math.Inf(1) }, "movement.initial_speed"},
		{"NaN speed", func(c *Experiment) { c.Movement.Speed = math.NaN() }, "movement.speed"},
		{"unknown layout", func(c *Experiment) { c.Layout.Kind = "mall" }, "layout.kind"},
		{"unknown heatmap mode", func(c *Experiment) { c.Heatmap.Mode = "precomputed" }, "heatmap.mode"},
		{"unknown log level", func(c *Experiment) { c.Logging.Level = "loud" }, "logging.level"},
		{"empty run name", func(c *Experiment) { c.RunName = " " }, "run_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
			if ce.Field != tt.field {
				t.Errorf("ConfigError.Field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestValidateRejectsYAMLInfinity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inf.yaml")
	if err := os.WriteFile(path, []byte("movement:\n  speed: .inf\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	var ce *ConfigError
	if err := cfg.Validate(); !errors.As(err, &ce) || ce.Field != "movement.speed" {
		t.Fatalf("expected movement.speed ConfigError, got %v", err)
	}
}

func TestRunSnapshot(t *testing.T) {
	cfg := Default()
	cfg.StartSeed = 10

	r := cfg.Run(2)
	if r.Index != 2 || r.Seed != 12 {
		t.Errorf("Run(2) index/seed = %d/%d, want 2/12", r.Index, r.Seed)
	}

	// The snapshot is a copy.
	cfg.NPeople = 1
	cfg.Movement.Speed = 0
	if r.NPeople != 500 || r.Movement.Speed != 30 {
		t.Error("RunConfig changed with its Experiment")
	}
}

func TestBuildLayoutAndProvider(t *testing.T) {
	cfg := Default()
	l, err := cfg.BuildLayout()
	if err != nil {
		t.Fatalf("BuildLayout() error = %v", err)
	}
	if l.Name != "campus" {
		t.Errorf("expected campus layout, got %q", l.Name)
	}

	cfg.Heatmap.Mode = "load"
	p, err := cfg.Provider(nil)
	if err != nil {
		t.Fatalf("Provider() error = %v", err)
	}
	if p.Mode != pathfind.ModeLoad || p.Params.WallAvoidance != cfg.Heatmap.WallAvoidance {
		t.Errorf("unexpected provider: %+v", p)
	}
}
