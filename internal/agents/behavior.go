// Agent movement: steering along the navigation heatmap with jitter, wall
// reflection and periodic retargeting.
package agents

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/talgya/seir-sim/internal/config"
)

// Navigator returns the unit grid step from a cell toward a target.
type Navigator interface {
	Direction(x, y, target int, rng *rand.Rand) (int, int)
}

// Obstacles reports blocked cells. Cells outside the map are blocked.
type Obstacles interface {
	Blocked(x, y int) bool
}

// Retarget draws a new target once RetargetAt has passed.
func (a *Agent) Retarget(tick int, picker *TargetPicker, m config.Movement, rng *rand.Rand) bool {
	if tick < a.RetargetAt {
		return false
	}
	a.Target = picker.Pick(rng)
	a.RetargetAt = tick + RetargetDelay(m, rng)
	return true
}

// Steer blends the velocity toward the heatmap direction:
//
//	v' = (1-rate)·v + rate·speed·dir + U(-jitter, jitter)
func (a *Agent) Steer(nav Navigator, m config.Movement, rng *rand.Rand) {
	x, y := a.Position.Cell()
	dx, dy := nav.Direction(x, y, a.Target, rng)

	keep := 1 - m.SteerRate
	a.Velocity = Vec2{
		X: keep*a.Velocity.X + m.SteerRate*m.Speed*float64(dx) + (2*rng.Float64()-1)*m.Jitter,
		Y: keep*a.Velocity.Y + m.SteerRate*m.Speed*float64(dy) + (2*rng.Float64()-1)*m.Jitter,
	}
}

// Move integrates the velocity over dt. A component that would carry the
// agent into a blocked cell is reflected with elasticity 1 and the agent
// stays put along that axis. Long steps are split into sub-steps of at most
// one cell so walls cannot be tunneled through.
func (a *Agent) Move(obs Obstacles, dt float64) {
	step := a.Velocity.Scale(dt)
	n := int(math.Ceil(math.Max(math.Abs(step.X), math.Abs(step.Y))))
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		a.moveOnce(obs, a.Velocity.Scale(dt/float64(n)))
	}
	if a.Position.IsNaN() || a.Velocity.IsNaN() {
		panic(fmt.Sprintf("agents: non-finite state for agent %d: pos=%v vel=%v", a.ID, a.Position, a.Velocity))
	}
}

func (a *Agent) moveOnce(obs Obstacles, d Vec2) {
	p := a.Position
	next := p.Add(d)

	cx, cy := p.Cell()
	nx, ny := next.Cell()
	if nx != cx && obs.Blocked(nx, cy) {
		a.Velocity.X = -a.Velocity.X
		next.X = p.X
		nx = cx
	}
	if ny != cy && obs.Blocked(cx, ny) {
		a.Velocity.Y = -a.Velocity.Y
		next.Y = p.Y
		ny = cy
	}
	// Diagonal corner: both axes are open on their own but the corner cell
	// is not.
	if obs.Blocked(nx, ny) {
		a.Velocity = a.Velocity.Scale(-1)
		next = p
	}
	a.Position = next
}
