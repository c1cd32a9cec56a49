// Package agents provides the particle model: position, velocity, disease
// state, steering toward target buildings, and the SEIR state machine.
package agents

import (
	"fmt"
	"math"
)

// AgentID is a unique identifier for an agent within a run.
type AgentID uint32

// DiseaseState is an agent's SEIR compartment.
type DiseaseState uint8

const (
	Susceptible DiseaseState = iota
	Exposed
	Infectious
	Removed
)

// String returns the compartment name.
func (s DiseaseState) String() string {
	switch s {
	case Susceptible:
		return "susceptible"
	case Exposed:
		return "exposed"
	case Infectious:
		return "infectious"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Letter returns the one-letter compartment code (S, E, I, R).
func (s DiseaseState) Letter() string {
	switch s {
	case Susceptible:
		return "S"
	case Exposed:
		return "E"
	case Infectious:
		return "I"
	case Removed:
		return "R"
	default:
		return "?"
	}
}

// Vec2 is a continuous 2-D vector in grid units.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }

// Sub returns v - o.
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }

// Scale returns v * k.
func (v Vec2) Scale(k float64) Vec2 { return Vec2{v.X * k, v.Y * k} }

// Len2 returns the squared length.
func (v Vec2) Len2() float64 { return v.X*v.X + v.Y*v.Y }

// IsNaN reports whether either component is NaN.
func (v Vec2) IsNaN() bool { return math.IsNaN(v.X) || math.IsNaN(v.Y) }

// Cell returns the grid cell containing v.
func (v Vec2) Cell() (int, int) {
	return int(math.Floor(v.X)), int(math.Floor(v.Y))
}

// Agent is a particle walking between target buildings.
type Agent struct {
	ID       AgentID `json:"id"`
	Position Vec2    `json:"position"`
	Velocity Vec2    `json:"velocity"`

	// Disease
	State          DiseaseState `json:"state"`
	StateEntry     int          `json:"state_entry"`     // Tick the current state began
	NextTransition int          `json:"next_transition"` // Tick the timed state ends; NoTransition otherwise

	// Navigation
	Target     int `json:"target"`      // Index into the layout targets
	RetargetAt int `json:"retarget_at"` // Tick a new target is drawn
}

// NoTransition marks an agent whose current state has no timed exit.
const NoTransition = -1

func (a *Agent) String() string {
	return fmt.Sprintf("agent %d %s at (%.1f, %.1f) -> target %d", a.ID, a.State.Letter(), a.Position.X, a.Position.Y, a.Target)
}
