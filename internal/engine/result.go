package engine

import (
	"fmt"

	"github.com/talgya/seir-sim/internal/agents"
)

// Counts is the number of agents in each compartment at one tick.
type Counts struct {
	S int `json:"s" db:"susceptible"`
	E int `json:"e" db:"exposed"`
	I int `json:"i" db:"infectious"`
	R int `json:"r" db:"removed"`
}

// Total returns the population size.
func (c Counts) Total() int {
	return c.S + c.E + c.I + c.R
}

func (c *Counts) add(s agents.DiseaseState) {
	switch s {
	case agents.Susceptible:
		c.S++
	case agents.Exposed:
		c.E++
	case agents.Infectious:
		c.I++
	case agents.Removed:
		c.R++
	}
}

func (c Counts) String() string {
	return fmt.Sprintf("S=%d E=%d I=%d R=%d", c.S, c.E, c.I, c.R)
}

// Exposure records one transmission event.
type Exposure struct {
	Tick   int            `json:"tick" db:"tick"`
	Agent  agents.AgentID `json:"agent" db:"agent_id"`
	Source agents.AgentID `json:"source" db:"source_id"`
	X      float64        `json:"x" db:"x"`
	Y      float64        `json:"y" db:"y"`
}

// RunResult is the complete output of one run.
type RunResult struct {
	Run     int   `json:"run"`
	Seed    int64 `json:"seed"`
	NPeople int   `json:"n_people"`

	// Initial holds the counts after seeding, before tick 1.
	Initial Counts `json:"initial"`

	// Counts[t-1] holds the counts at the end of tick t.
	Counts []Counts `json:"counts"`

	Exposures []Exposure `json:"exposures"`
}

// Summary holds derived statistics of a run.
type Summary struct {
	PeakInfectious int     `json:"peak_infectious"`
	PeakTick       int     `json:"peak_tick"`
	AttackRate     float64 `json:"attack_rate"`
	Final          Counts  `json:"final"`
	Exposures      int     `json:"exposures"`
}

// Final returns the counts after the last tick.
func (r *RunResult) Final() Counts {
	if len(r.Counts) == 0 {
		return r.Initial
	}
	return r.Counts[len(r.Counts)-1]
}

// Peak returns the tick with the most infectious agents and that count.
// Tick 0 refers to the initial counts.
func (r *RunResult) Peak() (tick, infectious int) {
	infectious = r.Initial.I
	for i, c := range r.Counts {
		if c.I > infectious {
			tick, infectious = i+1, c.I
		}
	}
	return tick, infectious
}

// AttackRate returns the fraction of the population that left Susceptible.
func (r *RunResult) AttackRate() float64 {
	if r.NPeople == 0 {
		return 0
	}
	return float64(r.NPeople-r.Final().S) / float64(r.NPeople)
}

// Summary computes the derived statistics.
func (r *RunResult) Summary() Summary {
	tick, peak := r.Peak()
	return Summary{
		PeakInfectious: peak,
		PeakTick:       tick,
		AttackRate:     r.AttackRate(),
		Final:          r.Final(),
		Exposures:      len(r.Exposures),
	}
}
