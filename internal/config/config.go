// Package config loads and validates experiment configuration.
// Values come from built-in defaults, an optional YAML file, and SEIR_*
// environment variables, in that order.
package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/talgya/seir-sim/internal/logging"
	"github.com/talgya/seir-sim/internal/pathfind"
	"github.com/talgya/seir-sim/internal/world"
)

// ConfigError reports an invalid configuration value. It is returned before
// any simulation tick runs.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Experiment is the full configuration of a batch of seeded runs.
type Experiment struct {
	// RunName labels the experiment in the result store.
	RunName string `json:"run_name" yaml:"run_name"`

	// SavePlots, SpeedupFactor and FPS belong to external renderers and
	// reporting. They are stored with the experiment but do not affect runs.
	SavePlots     bool    `json:"save_plots" yaml:"save_plots"`
	SpeedupFactor float64 `json:"speedup_factor" yaml:"speedup_factor"`
	FPS           int     `json:"FPS" yaml:"FPS"`

	// DebugMode lowers the log level to debug.
	DebugMode bool `json:"debug_mode" yaml:"debug_mode"`

	NPeople           int     `json:"n_people" yaml:"n_people"`
	InfectionProb     float64 `json:"infection_prob" yaml:"infection_prob"`
	AvgIncubationTime float64 `json:"avg_incubation_time" yaml:"avg_incubation_time"`
	AvgInfectiousTime float64 `json:"avg_infectious_time" yaml:"avg_infectious_time"`
	MaxTimestep       int     `json:"max_timestep" yaml:"max_timestep"`
	StartSeed         int64   `json:"start_seed" yaml:"start_seed"`
	NRuns             int     `json:"n_runs" yaml:"n_runs"`

	// InitialInfectious agents start the run Infectious.
	InitialInfectious int `json:"initial_infectious" yaml:"initial_infectious"`

	// ContactRadius is the distance under which two agents are in contact.
	ContactRadius float64 `json:"contact_radius" yaml:"contact_radius"`

	// DurationShape is the Erlang shape of incubation and infectious
	// durations. 1 gives memoryless (geometric) durations.
	DurationShape int `json:"duration_shape" yaml:"duration_shape"`

	// Workers bounds the number of runs executing at once. 0 means GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers"`

	Movement Movement      `json:"movement" yaml:"movement"`
	Layout   LayoutConfig  `json:"layout" yaml:"layout"`
	Heatmap  HeatmapConfig `json:"heatmap" yaml:"heatmap"`
	Storage  StorageConfig `json:"storage" yaml:"storage"`
	Logging  LoggingConfig `json:"logging" yaml:"logging"`
}

// Movement holds the agent steering parameters.
type Movement struct {
	// Speed scales the unit heatmap direction into a target velocity.
	Speed float64 `json:"speed" yaml:"speed"`
	// SteerRate is the fraction of the target velocity blended in per tick.
	SteerRate float64 `json:"steer_rate" yaml:"steer_rate"`
	// Jitter bounds the uniform noise added to each velocity component.
	Jitter float64 `json:"jitter" yaml:"jitter"`
	// DT is the integration time step per tick.
	DT float64 `json:"dt" yaml:"dt"`
	// RetargetMin and RetargetMax bound the ticks an agent keeps a target.
	RetargetMin int `json:"retarget_min" yaml:"retarget_min"`
	RetargetMax int `json:"retarget_max" yaml:"retarget_max"`
	// SpawnSpread is the standard deviation of spawn positions around the
	// first target.
	SpawnSpread float64 `json:"spawn_spread" yaml:"spawn_spread"`
	// InitialSpeed bounds the uniform initial velocity components.
	InitialSpeed float64 `json:"initial_speed" yaml:"initial_speed"`
}

// LayoutConfig selects the map.
type LayoutConfig struct {
	// Kind is "campus" (built-in) or "generated" (procedural).
	Kind      string  `json:"kind" yaml:"kind"`
	Width     int     `json:"width" yaml:"width"`
	Height    int     `json:"height" yaml:"height"`
	Seed      int64   `json:"seed" yaml:"seed"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Targets   int     `json:"targets" yaml:"targets"`
}

// HeatmapConfig controls the heatmap artifact cache.
type HeatmapConfig struct {
	// Mode is "compute", "load" or "auto".
	Mode          string  `json:"mode" yaml:"mode"`
	Dir           string  `json:"dir" yaml:"dir"`
	WallAvoidance float64 `json:"wall_avoidance" yaml:"wall_avoidance"`
}

// StorageConfig locates the result database.
type StorageConfig struct {
	DBPath string `json:"db_path" yaml:"db_path"`
}

// LoggingConfig sets the log verbosity: "debug", "info", "warn" or "error".
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
}

// Default returns an Experiment with sensible defaults.
func Default() *Experiment {
	gen := world.DefaultGenConfig()
	return &Experiment{
		RunName:           "default",
		SpeedupFactor:     1,
		FPS:               60,
		NPeople:           500,
		InfectionProb:     0.3,
		AvgIncubationTime: 500,
		AvgInfectiousTime: 1000,
		MaxTimestep:       8000,
		StartSeed:         1,
		NRuns:             3,
		InitialInfectious: 3,
		ContactRadius:     4,
		DurationShape:     3,
		Movement: Movement{
			Speed:        30,
			SteerRate:    0.015,
			Jitter:       2,
			DT:           1.0 / 60,
			RetargetMin:  9000,
			RetargetMax:  72000,
			SpawnSpread:  25,
			InitialSpeed: 20,
		},
		Layout: LayoutConfig{
			Kind:      "campus",
			Width:     gen.Width,
			Height:    gen.Height,
			Seed:      gen.Seed,
			Threshold: gen.Threshold,
			Targets:   gen.Targets,
		},
		Heatmap: HeatmapConfig{
			Mode:          string(pathfind.ModeAuto),
			Dir:           "data/heatmaps",
			WallAvoidance: pathfind.DefaultParams().WallAvoidance,
		},
		Storage: StorageConfig{DBPath: "data/experiments.db"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadFromFile reads a YAML file over the defaults.
func LoadFromFile(path string) (*Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Load returns the defaults, overlaid with path when it is non-empty and
// then with environment overrides. The result is not yet validated.
func Load(path string) (*Experiment, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv applies SEIR_* overrides looked up through getenv.
func (c *Experiment) ApplyEnv(getenv func(string) string) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"SEIR_N_PEOPLE", &c.NPeople},
		{"SEIR_MAX_TIMESTEP", &c.MaxTimestep},
		{"SEIR_N_RUNS", &c.NRuns},
		{"SEIR_WORKERS", &c.Workers},
		{"SEIR_INITIAL_INFECTIOUS", &c.InitialInfectious},
	}
	for _, e := range ints {
		if v := getenv(e.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return invalid(e.key, "not an integer: %q", v)
			}
			*e.dst = n
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"SEIR_INFECTION_PROB", &c.InfectionProb},
		{"SEIR_AVG_INCUBATION_TIME", &c.AvgIncubationTime},
		{"SEIR_AVG_INFECTIOUS_TIME", &c.AvgInfectiousTime},
		{"SEIR_CONTACT_RADIUS", &c.ContactRadius},
	}
	for _, e := range floats {
		if v := getenv(e.key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return invalid(e.key, "not a number: %q", v)
			}
			*e.dst = f
		}
	}

	if v := getenv("SEIR_START_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return invalid("SEIR_START_SEED", "not an integer: %q", v)
		}
		c.StartSeed = n
	}
	if v := getenv("SEIR_RUN_NAME"); v != "" {
		c.RunName = v
	}
	if v := getenv("SEIR_DEBUG"); v != "" {
		c.DebugMode = v == "true" || v == "1"
	}
	if v := getenv("SEIR_HEATMAP_MODE"); v != "" {
		c.Heatmap.Mode = v
	}
	if v := getenv("SEIR_HEATMAP_DIR"); v != "" {
		c.Heatmap.Dir = v
	}
	if v := getenv("SEIR_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := getenv("SEIR_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate checks every field and returns the first *ConfigError found.
func (c *Experiment) Validate() error {
	if strings.TrimSpace(c.RunName) == "" {
		return invalid("run_name", "must not be empty")
	}
	if c.NRuns < 1 {
		return invalid("n_runs", "must be >= 1, got %d", c.NRuns)
	}
	if c.Workers < 0 {
		return invalid("workers", "must be >= 0, got %d", c.Workers)
	}
	if c.SpeedupFactor < 0 || math.IsNaN(c.SpeedupFactor) {
		return invalid("speedup_factor", "must be >= 0, got %v", c.SpeedupFactor)
	}
	if c.FPS < 0 {
		return invalid("FPS", "must be >= 0, got %d", c.FPS)
	}
	if err := c.Run(0).Validate(); err != nil {
		return err
	}

	switch c.Layout.Kind {
	case "campus":
	case "generated":
		if c.Layout.Width < 8 || c.Layout.Height < 8 {
			return invalid("layout.width", "generated layouts need at least 8x8 cells, got %dx%d", c.Layout.Width, c.Layout.Height)
		}
		if c.Layout.Threshold <= 0 || c.Layout.Threshold >= 1 {
			return invalid("layout.threshold", "must be in (0, 1), got %v", c.Layout.Threshold)
		}
		if c.Layout.Targets < 1 {
			return invalid("layout.targets", "must be >= 1, got %d", c.Layout.Targets)
		}
	default:
		return invalid("layout.kind", "unknown kind %q (valid: campus, generated)", c.Layout.Kind)
	}

	if _, err := pathfind.ParseMode(c.Heatmap.Mode); err != nil {
		return invalid("heatmap.mode", "%v", err)
	}
	if c.Heatmap.Dir == "" {
		return invalid("heatmap.dir", "must not be empty")
	}
	if c.Heatmap.WallAvoidance < 0 || math.IsNaN(c.Heatmap.WallAvoidance) {
		return invalid("heatmap.wall_avoidance", "must be >= 0, got %v", c.Heatmap.WallAvoidance)
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return invalid("logging.level", "unknown level %q (valid: debug, info, warn, error)", c.Logging.Level)
	}
	return nil
}

// LogLevel returns the effective log level name.
func (c *Experiment) LogLevel() string {
	if c.DebugMode {
		return "debug"
	}
	return c.Logging.Level
}

// Seed returns the seed of run i.
func (c *Experiment) Seed(i int) int64 {
	return c.StartSeed + int64(i)
}

// Run returns the by-value configuration of run i.
func (c *Experiment) Run(i int) RunConfig {
	return RunConfig{
		Index:             i,
		Seed:              c.Seed(i),
		NPeople:           c.NPeople,
		InfectionProb:     c.InfectionProb,
		AvgIncubationTime: c.AvgIncubationTime,
		AvgInfectiousTime: c.AvgInfectiousTime,
		MaxTimestep:       c.MaxTimestep,
		InitialInfectious: c.InitialInfectious,
		ContactRadius:     c.ContactRadius,
		DurationShape:     c.DurationShape,
		Movement:          c.Movement,
	}
}

// BuildLayout returns the configured map.
func (c *Experiment) BuildLayout() (world.Layout, error) {
	switch c.Layout.Kind {
	case "generated":
		return world.Generate(world.GenConfig{
			Width:     c.Layout.Width,
			Height:    c.Layout.Height,
			Seed:      c.Layout.Seed,
			Threshold: c.Layout.Threshold,
			Targets:   c.Layout.Targets,
		})
	case "campus":
		return world.CampusLayout(), nil
	default:
		return world.Layout{}, invalid("layout.kind", "unknown kind %q", c.Layout.Kind)
	}
}

// Provider returns the heatmap provider for the configured cache.
func (c *Experiment) Provider(logger *slog.Logger) (*pathfind.Provider, error) {
	mode, err := pathfind.ParseMode(c.Heatmap.Mode)
	if err != nil {
		return nil, invalid("heatmap.mode", "%v", err)
	}
	return &pathfind.Provider{
		Dir:    c.Heatmap.Dir,
		Mode:   mode,
		Params: pathfind.Params{WallAvoidance: c.Heatmap.WallAvoidance},
		Logger: logger,
	}, nil
}

// RunConfig is the immutable parameter snapshot of one run.
type RunConfig struct {
	Index             int
	Seed              int64
	NPeople           int
	InfectionProb     float64
	AvgIncubationTime float64
	AvgInfectiousTime float64
	MaxTimestep       int
	InitialInfectious int
	ContactRadius     float64
	DurationShape     int
	Movement          Movement
}

// Validate checks the run parameters.
func (r RunConfig) Validate() error {
	if r.NPeople <= 0 {
		return invalid("n_people", "must be > 0, got %d", r.NPeople)
	}
	if !(r.InfectionProb >= 0 && r.InfectionProb <= 1) {
		return invalid("infection_prob", "must be in [0, 1], got %v", r.InfectionProb)
	}
	if !(r.AvgIncubationTime > 0) || math.IsInf(r.AvgIncubationTime, 0) {
		return invalid("avg_incubation_time", "must be > 0, got %v", r.AvgIncubationTime)
	}
	if !(r.AvgInfectiousTime > 0) || math.IsInf(r.AvgInfectiousTime, 0) {
		return invalid("avg_infectious_time", "must be > 0, got %v", r.AvgInfectiousTime)
	}
	if r.MaxTimestep <= 0 {
		return invalid("max_timestep", "must be > 0, got %d", r.MaxTimestep)
	}
	if r.InitialInfectious < 0 || r.InitialInfectious > r.NPeople {
		return invalid("initial_infectious", "must be in [0, n_people=%d], got %d", r.NPeople, r.InitialInfectious)
	}
	if !(r.ContactRadius > 0) || math.IsInf(r.ContactRadius, 0) {
		return invalid("contact_radius", "must be > 0, got %v", r.ContactRadius)
	}
	if r.DurationShape < 1 {
		return invalid("duration_shape", "must be >= 1, got %d", r.DurationShape)
	}

	m := r.Movement
	if !(m.Speed >= 0) || math.IsInf(m.Speed, 0) {
		return invalid("movement.speed", "must be >= 0, got %v", m.Speed)
	}
	if !(m.SteerRate >= 0 && m.SteerRate <= 1) {
		return invalid("movement.steer_rate", "must be in [0, 1], got %v", m.SteerRate)
	}
	if !(m.Jitter >= 0) || math.IsInf(m.Jitter, 0) {
		return invalid("movement.jitter", "must be >= 0, got %v", m.Jitter)
	}
	if !(m.DT > 0) || math.IsInf(m.DT, 0) {
		return invalid("movement.dt", "must be > 0, got %v", m.DT)
	}
	if m.RetargetMin < 1 || m.RetargetMax < m.RetargetMin {
		return invalid("movement.retarget_min", "need 1 <= retarget_min <= retarget_max, got %d..%d", m.RetargetMin, m.RetargetMax)
	}
	if !(m.SpawnSpread >= 0) || math.IsInf(m.SpawnSpread, 0) {
		return invalid("movement.spawn_spread", "must be >= 0, got %v", m.SpawnSpread)
	}
	if !(m.InitialSpeed >= 0) || math.IsInf(m.InitialSpeed, 0) {
		return invalid("movement.initial_speed", "must be >= 0, got %v", m.InitialSpeed)
	}
	return nil
}
