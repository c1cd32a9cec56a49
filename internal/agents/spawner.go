// Agent spawning. The initial population starts near weighted target
// buildings.
package agents

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/talgya/seir-sim/internal/config"
	"github.com/talgya/seir-sim/internal/world"
)

const spawnAttempts = 64

// TargetPicker draws target indices proportionally to their weights.
type TargetPicker struct {
	cumulative []float64
}

// NewTargetPicker builds a picker over the layout targets.
func NewTargetPicker(targets []world.Target) (*TargetPicker, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("target picker: no targets")
	}
	cum := make([]float64, len(targets))
	total := 0.0
	for i, t := range targets {
		if !(t.Weight > 0) {
			return nil, fmt.Errorf("target picker: target %q has weight %v", t.Name, t.Weight)
		}
		total += t.Weight
		cum[i] = total
	}
	return &TargetPicker{cumulative: cum}, nil
}

// Pick returns a target index.
func (p *TargetPicker) Pick(rng *rand.Rand) int {
	r := rng.Float64() * p.cumulative[len(p.cumulative)-1]
	i := sort.SearchFloat64s(p.cumulative, r)
	if i < len(p.cumulative) && p.cumulative[i] == r {
		i++
	}
	if i >= len(p.cumulative) {
		i = len(p.cumulative) - 1
	}
	return i
}

// Len returns the number of targets.
func (p *TargetPicker) Len() int {
	return len(p.cumulative)
}

// Spawner creates the agents of one run.
type Spawner struct {
	rng     *rand.Rand
	nextID  AgentID
	grid    *world.Grid
	targets []world.Target
	picker  *TargetPicker
	move    config.Movement
}

// NewSpawner creates a spawner drawing from rng. Every target must be a
// walkable cell of grid.
func NewSpawner(rng *rand.Rand, grid *world.Grid, targets []world.Target, picker *TargetPicker, move config.Movement) (*Spawner, error) {
	for _, t := range targets {
		if !grid.Walkable(t.Pos.X, t.Pos.Y) {
			return nil, fmt.Errorf("spawner: target %q at (%d,%d) is not walkable", t.Name, t.Pos.X, t.Pos.Y)
		}
	}
	if picker.Len() != len(targets) {
		return nil, fmt.Errorf("spawner: picker has %d targets, layout has %d", picker.Len(), len(targets))
	}
	return &Spawner{
		rng:     rng,
		nextID:  1,
		grid:    grid,
		targets: targets,
		picker:  picker,
		move:    move,
	}, nil
}

// SpawnPopulation creates count susceptible agents at tick.
func (s *Spawner) SpawnPopulation(count, tick int) []*Agent {
	agents := make([]*Agent, 0, count)
	for i := 0; i < count; i++ {
		agents = append(agents, s.spawnOne(tick))
	}
	return agents
}

func (s *Spawner) spawnOne(tick int) *Agent {
	id := s.nextID
	s.nextID++

	target := s.picker.Pick(s.rng)
	v := s.move.InitialSpeed
	return &Agent{
		ID:             id,
		Position:       s.positionNear(s.targets[target].Pos),
		Velocity:       Vec2{X: (2*s.rng.Float64() - 1) * v, Y: (2*s.rng.Float64() - 1) * v},
		State:          Susceptible,
		StateEntry:     tick,
		NextTransition: NoTransition,
		Target:         target,
		RetargetAt:     tick + RetargetDelay(s.move, s.rng),
	}
}

// positionNear draws a Gaussian position around p, redrawing blocked
// samples. After spawnAttempts misses the agent starts on p itself.
func (s *Spawner) positionNear(p world.Point) Vec2 {
	cx, cy := float64(p.X)+0.5, float64(p.Y)+0.5
	maxX := float64(s.grid.Width) - 1e-6
	maxY := float64(s.grid.Height) - 1e-6
	for i := 0; i < spawnAttempts; i++ {
		pos := Vec2{
			X: math.Min(math.Max(cx+s.rng.NormFloat64()*s.move.SpawnSpread, 0), maxX),
			Y: math.Min(math.Max(cy+s.rng.NormFloat64()*s.move.SpawnSpread, 0), maxY),
		}
		if x, y := pos.Cell(); s.grid.Walkable(x, y) {
			return pos
		}
	}
	return Vec2{X: cx, Y: cy}
}

// RetargetDelay draws the ticks until an agent picks its next target,
// uniform in [RetargetMin, RetargetMax].
func RetargetDelay(m config.Movement, rng *rand.Rand) int {
	span := m.RetargetMax - m.RetargetMin
	if span <= 0 {
		return m.RetargetMin
	}
	return m.RetargetMin + rng.Intn(span+1)
}
