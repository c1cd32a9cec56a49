// SEIR state machine. Transitions only move forward, one compartment at a
// time: S→E on exposure, E→I and I→R when the drawn duration elapses.
package agents

import (
	"fmt"
	"math"
	"math/rand"
)

// ConsistencyError reports an impossible disease transition. It aborts the
// run it occurs in.
type ConsistencyError struct {
	AgentID AgentID
	From    DiseaseState
	To      DiseaseState
	Tick    int
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("agent %d: invalid transition %s -> %s at tick %d", e.AgentID, e.From, e.To, e.Tick)
}

// DiseaseParams holds the duration distributions of a run.
type DiseaseParams struct {
	IncubationMean float64 // Mean ticks spent Exposed
	InfectiousMean float64 // Mean ticks spent Infectious
	Shape          int     // Erlang shape; 1 is memoryless
}

// Duration draws an Erlang(shape) duration with the given mean, rounded up
// to whole ticks and never shorter than one tick. Shape 1 matches a constant
// per-tick hazard of roughly 1/mean.
func (p DiseaseParams) Duration(mean float64, rng *rand.Rand) int {
	k := p.Shape
	if k < 1 {
		k = 1
	}
	var total float64
	for i := 0; i < k; i++ {
		total += rng.ExpFloat64()
	}
	d := int(math.Ceil(total * mean / float64(k)))
	if d < 1 {
		d = 1
	}
	return d
}

// Expose moves a susceptible agent to Exposed and draws its incubation.
func (a *Agent) Expose(tick int, p DiseaseParams, rng *rand.Rand) error {
	if err := a.transition(Exposed, tick); err != nil {
		return err
	}
	a.NextTransition = tick + p.Duration(p.IncubationMean, rng)
	return nil
}

// Infect seeds a susceptible agent directly as Infectious. Only used for the
// initial cases of a run.
func (a *Agent) Infect(tick int, p DiseaseParams, rng *rand.Rand) error {
	if a.State != Susceptible {
		return &ConsistencyError{AgentID: a.ID, From: a.State, To: Infectious, Tick: tick}
	}
	a.State = Infectious
	a.StateEntry = tick
	a.NextTransition = tick + p.Duration(p.InfectiousMean, rng)
	return nil
}

// Advance applies the timed transition that is due at tick, if any, and
// reports whether the state changed.
func (a *Agent) Advance(tick int, p DiseaseParams, rng *rand.Rand) (bool, error) {
	switch a.State {
	case Susceptible, Removed:
		return false, nil
	case Exposed, Infectious:
		if a.NextTransition == NoTransition {
			return false, &ConsistencyError{AgentID: a.ID, From: a.State, To: a.State + 1, Tick: tick}
		}
		if tick < a.NextTransition {
			return false, nil
		}
	default:
		return false, &ConsistencyError{AgentID: a.ID, From: a.State, To: a.State + 1, Tick: tick}
	}

	if a.State == Exposed {
		if err := a.transition(Infectious, tick); err != nil {
			return false, err
		}
		a.NextTransition = tick + p.Duration(p.InfectiousMean, rng)
		return true, nil
	}
	if err := a.transition(Removed, tick); err != nil {
		return false, err
	}
	a.NextTransition = NoTransition
	return true, nil
}

// transition enforces single forward steps in S→E→I→R order.
func (a *Agent) transition(to DiseaseState, tick int) error {
	if to != a.State+1 || to > Removed || tick < a.StateEntry {
		return &ConsistencyError{AgentID: a.ID, From: a.State, To: to, Tick: tick}
	}
	a.State = to
	a.StateEntry = tick
	return nil
}
