package pathfind

import (
	"math"
	"math/rand"
	"testing"

	"github.com/talgya/seir-sim/internal/world"
)

// corridorLayout has a wall hanging from the top edge at x=15 so the two
// targets are only connected through the gap below it.
func corridorLayout() world.Layout {
	return world.Layout{
		Name:   "corridor",
		Width:  30,
		Height: 20,
		Walls: []world.Wall{
			{From: world.Point{X: 15, Y: 0}, To: world.Point{X: 15, Y: 12}, Thickness: 1},
		},
		Targets: []world.Target{
			{Name: "left", Pos: world.Point{X: 5, Y: 5}, Weight: 1},
			{Name: "right", Pos: world.Point{X: 25, Y: 5}, Weight: 1},
		},
	}
}

func mustCompute(t *testing.T, l world.Layout) *Heatmap {
	t.Helper()
	hm, err := Compute(l, DefaultParams())
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	return hm
}

func TestComputeIdempotent(t *testing.T) {
	a := mustCompute(t, corridorLayout())
	b := mustCompute(t, corridorLayout())
	if !a.Equal(b) {
		t.Fatal("two computations of the same layout differ")
	}
	if a.Targets() != 2 {
		t.Errorf("expected 2 target fields, got %d", a.Targets())
	}
}

func TestCostIncreasesTowardObstacles(t *testing.T) {
	hm := mustCompute(t, world.Layout{
		Name: "open", Width: 20, Height: 20,
		Targets: []world.Target{{Name: "c", Pos: world.Point{X: 10, Y: 10}, Weight: 1}},
	})

	if got := hm.CostAt(0, 10); got != 1 {
		t.Errorf("CostAt(border) = %v, want 1", got)
	}
	prev := hm.CostAt(0, 10)
	for x := 1; x <= 9; x++ {
		c := hm.CostAt(x, 10)
		if c >= prev {
			t.Fatalf("cost not decreasing away from border: x=%d cost=%v prev=%v", x, c, prev)
		}
		prev = c
	}
	if got := hm.CostAt(-3, 4); got != 1 {
		t.Errorf("CostAt(off grid) = %v, want 1", got)
	}
}

func TestTargetFieldShape(t *testing.T) {
	hm := mustCompute(t, corridorLayout())

	if d := hm.Distance(0, 5, 5); d != 0 {
		t.Errorf("distance at target = %v, want 0", d)
	}
	if d := hm.Distance(0, 15, 5); !math.IsInf(d, 1) {
		t.Errorf("distance inside wall = %v, want +Inf", d)
	}
	// Straight-line distance is 20; the detour around the wall is longer.
	if d := hm.Distance(0, 25, 5); d <= 20 || math.IsInf(d, 1) {
		t.Errorf("distance around the wall = %v, want finite and > 20", d)
	}
	if d := hm.Distance(5, 1, 1); !math.IsInf(d, 1) {
		t.Errorf("distance for unknown target = %v, want +Inf", d)
	}
}

func TestDirectionDescendsToTarget(t *testing.T) {
	hm := mustCompute(t, corridorLayout())
	rng := rand.New(rand.NewSource(1))

	x, y := 25, 5
	for step := 0; step < 200; step++ {
		if x == 5 && y == 5 {
			return
		}
		before := hm.Distance(0, x, y)
		dx, dy := hm.Direction(x, y, 0, rng)
		x, y = x+dx, y+dy
		if after := hm.Distance(0, x, y); after >= before {
			t.Fatalf("step %d did not descend: %v -> %v at (%d,%d)", step, before, after, x, y)
		}
	}
	t.Fatalf("did not reach the target, stopped at (%d,%d)", x, y)
}

func TestDirectionRandomWhenUnreachable(t *testing.T) {
	l := world.Layout{
		Name: "enclosed", Width: 30, Height: 12,
		Blocks: []world.Rect{
			{X: 20, Y: 2, W: 6, H: 1},
			{X: 20, Y: 8, W: 6, H: 1},
			{X: 20, Y: 2, W: 1, H: 7},
			{X: 25, Y: 2, W: 1, H: 7},
		},
		Targets: []world.Target{{Name: "out", Pos: world.Point{X: 5, Y: 5}, Weight: 1}},
	}
	hm := mustCompute(t, l)
	if d := hm.Distance(0, 22, 5); !math.IsInf(d, 1) {
		t.Fatalf("enclosed cell distance = %v, want +Inf", d)
	}

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		dx, dy := hm.Direction(22, 5, 0, rng)
		if dx < -1 || dx > 1 || dy < -1 || dy > 1 {
			t.Fatalf("Direction() = (%d,%d), want unit step", dx, dy)
		}
	}
}

func TestComputeRejectsInvalidInput(t *testing.T) {
	bad := corridorLayout()
	bad.Targets = nil
	if _, err := Compute(bad, DefaultParams()); err == nil {
		t.Error("expected error for layout without targets")
	}
	if _, err := Compute(corridorLayout(), Params{WallAvoidance: -1}); err == nil {
		t.Error("expected error for negative wall avoidance")
	}
}

func TestKeyDependsOnParams(t *testing.T) {
	l := corridorLayout()
	if Key(&l, Params{WallAvoidance: 1}) == Key(&l, Params{WallAvoidance: 2}) {
		t.Error("key must change with params")
	}
}
