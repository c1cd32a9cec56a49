package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/talgya/seir-sim/internal/agents"
	"github.com/talgya/seir-sim/internal/config"
	"github.com/talgya/seir-sim/internal/entropy"
	"github.com/talgya/seir-sim/internal/world"
)

// Simulation holds the complete state of one run.
type Simulation struct {
	Config   config.RunConfig
	Grid     *world.Grid
	Nav      agents.Navigator
	Agents   []*agents.Agent
	Result   *RunResult
	LastTick int

	rng     *entropy.Set
	picker  *agents.TargetPicker
	disease agents.DiseaseParams

	// Per-tick scratch, reused across steps.
	hash    *SpatialHash
	pos     []agents.Vec2
	states  []agents.DiseaseState
	exposed []int // Source index per agent exposed this tick, -1 otherwise
	pairs   []Pair
	pending []int
}

// NewSimulation validates cfg, spawns the population and seeds the initial
// infectious agents. nav and grid are shared read-only between runs.
func NewSimulation(cfg config.RunConfig, grid *world.Grid, nav agents.Navigator, targets []world.Target) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if grid == nil || nav == nil {
		return nil, fmt.Errorf("new simulation: grid and navigator are required")
	}

	picker, err := agents.NewTargetPicker(targets)
	if err != nil {
		return nil, fmt.Errorf("new simulation: %w", err)
	}
	rng := entropy.NewSet(cfg.Seed)
	spawner, err := agents.NewSpawner(rng.Spawn, grid, targets, picker, cfg.Movement)
	if err != nil {
		return nil, fmt.Errorf("new simulation: %w", err)
	}

	n := cfg.NPeople
	sim := &Simulation{
		Config:  cfg,
		Grid:    grid,
		Nav:     nav,
		Agents:  spawner.SpawnPopulation(n, 0),
		rng:     rng,
		picker:  picker,
		disease: agents.DiseaseParams{IncubationMean: cfg.AvgIncubationTime, InfectiousMean: cfg.AvgInfectiousTime, Shape: cfg.DurationShape},
		hash:    NewSpatialHash(grid.Width, grid.Height, cfg.ContactRadius),
		pos:     make([]agents.Vec2, n),
		states:  make([]agents.DiseaseState, n),
		exposed: make([]int, n),
	}

	for _, i := range rng.Spawn.Perm(n)[:cfg.InitialInfectious] {
		if err := sim.Agents[i].Infect(0, sim.disease, rng.Disease); err != nil {
			return nil, fmt.Errorf("seeding initial cases: %w", err)
		}
	}

	sim.Result = &RunResult{
		Run:     cfg.Index,
		Seed:    cfg.Seed,
		NPeople: n,
		Initial: sim.Counts(),
		Counts:  make([]Counts, 0, cfg.MaxTimestep),
	}
	return sim, nil
}

// Counts tallies the current compartments.
func (s *Simulation) Counts() Counts {
	var c Counts
	for _, a := range s.Agents {
		c.add(a.State)
	}
	return c
}

// Step advances the run by one tick:
//  1. retarget, steer and move every agent
//  2. find all agent pairs within the contact radius
//  3. roll transmission for each (Infectious, Susceptible) pair using the
//     states from before the tick, then commit all exposures together
//  4. advance timed transitions of agents not exposed this tick
//  5. record the tick's counts
func (s *Simulation) Step(tick int) error {
	s.LastTick = tick
	m := s.Config.Movement

	for i, a := range s.Agents {
		s.states[i] = a.State
		s.exposed[i] = -1
		a.Retarget(tick, s.picker, m, s.rng.Movement)
		a.Steer(s.Nav, m, s.rng.Movement)
		a.Move(s.Grid, m.DT)
		s.pos[i] = a.Position
	}

	s.hash.Build(s.pos)
	s.pairs = s.hash.Pairs(s.pos, s.pairs[:0])

	s.pending = s.pending[:0]
	for _, p := range s.pairs {
		src, dst := p.I, p.J
		switch {
		case s.states[src] == agents.Infectious && s.states[dst] == agents.Susceptible:
		case s.states[dst] == agents.Infectious && s.states[src] == agents.Susceptible:
			src, dst = dst, src
		default:
			continue
		}
		if s.rng.Transmission.Float64() >= s.Config.InfectionProb {
			continue
		}
		if s.exposed[dst] >= 0 {
			continue
		}
		s.exposed[dst] = src
		s.pending = append(s.pending, dst)
	}

	for _, i := range s.pending {
		a := s.Agents[i]
		if err := a.Expose(tick, s.disease, s.rng.Disease); err != nil {
			return err
		}
		s.Result.Exposures = append(s.Result.Exposures, Exposure{
			Tick:   tick,
			Agent:  a.ID,
			Source: s.Agents[s.exposed[i]].ID,
			X:      a.Position.X,
			Y:      a.Position.Y,
		})
	}

	for i, a := range s.Agents {
		if s.exposed[i] >= 0 {
			continue
		}
		if _, err := a.Advance(tick, s.disease, s.rng.Disease); err != nil {
			return err
		}
	}

	s.Result.Counts = append(s.Result.Counts, s.Counts())
	return nil
}

// RunOnce executes a complete run of cfg.MaxTimestep ticks. It returns
// either the full result or an error, never a truncated result.
func RunOnce(ctx context.Context, cfg config.RunConfig, grid *world.Grid, nav agents.Navigator, targets []world.Target, logger *slog.Logger) (*RunResult, error) {
	sim, err := NewSimulation(cfg, grid, nav, targets)
	if err != nil {
		return nil, err
	}
	return sim.Run(ctx, logger)
}

// Run steps the simulation through ticks 1..MaxTimestep.
func (s *Simulation) Run(ctx context.Context, logger *slog.Logger) (*RunResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := s.Config

	eng := NewEngine(cfg.MaxTimestep)
	eng.OnTick = s.Step
	eng.OnReport = func(tick int) {
		c := s.Result.Counts[len(s.Result.Counts)-1]
		logger.Debug("run progress", "run", cfg.Index, "tick", tick,
			"s", c.S, "e", c.E, "i", c.I, "r", c.R)
	}

	if err := eng.Run(ctx); err != nil {
		return nil, fmt.Errorf("run %d (seed %d) stopped at tick %d: %w", cfg.Index, cfg.Seed, eng.Tick, err)
	}
	return s.Result, nil
}
