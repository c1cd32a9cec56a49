package world

import (
	"math"
	"strings"
	"testing"
)

func TestCampusLayoutValid(t *testing.T) {
	l := CampusLayout()
	if err := l.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(l.Targets) != 30 {
		t.Errorf("expected 30 targets, got %d", len(l.Targets))
	}
	total := 0.0
	for i, tg := range l.Targets {
		total += tg.Weight
		want := 1.0 / 35
		if i == 3 || i == 27 {
			want = 1.0 / 10
		}
		if math.Abs(tg.Weight-want) > 1e-12 {
			t.Errorf("target %d (%s) weight = %v, want %v", i, tg.Name, tg.Weight, want)
		}
	}
	if math.Abs(total-1) > 1e-9 {
		t.Errorf("target weights sum to %v, want 1", total)
	}
	if l.Targets[3].Name != "Building 4" || l.Targets[27].Name != "IKMZ" {
		t.Errorf("popular targets = %s, %s", l.Targets[3].Name, l.Targets[27].Name)
	}

	// Every target must be reachable from every other through the doorways.
	g := l.Rasterize()
	region := LargestRegion(g)
	for _, tg := range l.Targets {
		if !region[g.Index(tg.Pos.X, tg.Pos.Y)] {
			t.Errorf("target %s at %v is not in the main walkable region", tg.Name, tg.Pos)
		}
	}
}

func TestRasterizeBorderAndWalls(t *testing.T) {
	l := Layout{
		Name:   "box",
		Width:  20,
		Height: 20,
		Walls: []Wall{
			{From: Point{X: 10, Y: 2}, To: Point{X: 10, Y: 8}, Thickness: 1},
		},
		Blocks:  []Rect{{X: 3, Y: 14, W: 2, H: 2}},
		Targets: []Target{{Name: "t", Pos: Point{X: 4, Y: 4}, Weight: 1}},
	}
	g := l.Rasterize()

	for i := 0; i < 20; i++ {
		if !g.Blocked(i, 0) || !g.Blocked(i, 19) || !g.Blocked(0, i) || !g.Blocked(19, i) {
			t.Fatalf("border cell at index %d not blocked", i)
		}
	}

	// Thickness 1 plus a one-cell buffer blocks x=9..11, y=1..9.
	for _, p := range []Point{{9, 1}, {10, 5}, {11, 9}} {
		if !g.Blocked(p.X, p.Y) {
			t.Errorf("expected wall cell %v to be blocked", p)
		}
	}
	for _, p := range []Point{{8, 5}, {12, 5}, {10, 10}} {
		if g.Blocked(p.X, p.Y) {
			t.Errorf("expected cell %v to be open", p)
		}
	}
	if !g.Blocked(4, 15) || g.Blocked(5, 15) {
		t.Error("block rectangle rasterized incorrectly")
	}
	if !g.Blocked(-1, 5) || !g.Blocked(5, 20) {
		t.Error("off-grid cells must count as blocked")
	}
}

func TestValidateRejectsBadWalls(t *testing.T) {
	base := func() Layout {
		return Layout{
			Name: "bad", Width: 20, Height: 20,
			Targets: []Target{{Name: "t", Pos: Point{X: 4, Y: 4}, Weight: 1}},
		}
	}

	tests := []struct {
		name string
		wall Wall
		want string
	}{
		{"dot", Wall{From: Point{5, 5}, To: Point{5, 5}, Thickness: 3}, "dot"},
		{"diagonal", Wall{From: Point{5, 5}, To: Point{8, 8}, Thickness: 3}, "axis"},
		{"even thickness", Wall{From: Point{5, 5}, To: Point{5, 9}, Thickness: 2}, "odd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := base()
			l.Walls = []Wall{tt.wall}
			err := l.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateRejectsBlockedTarget(t *testing.T) {
	l := Layout{
		Name: "blocked", Width: 20, Height: 20,
		Targets: []Target{{Name: "edge", Pos: Point{X: 0, Y: 5}, Weight: 1}},
	}
	if err := l.Validate(); err == nil {
		t.Fatal("expected error for target on the border")
	}
}

func TestHashChangesWithLayout(t *testing.T) {
	a := CampusLayout()
	b := CampusLayout()
	if a.Hash() != b.Hash() {
		t.Fatal("identical layouts must hash identically")
	}
	b.Targets[0].Weight = 2
	if a.Hash() == b.Hash() {
		t.Error("changing a target weight must change the hash")
	}
}

func TestGenerateDeterministic(t *testing.T) {
	cfg := SmallTestConfig()
	a, err := Generate(cfg)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	b, err := Generate(cfg)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if a.Hash() != b.Hash() {
		t.Error("same config produced different layouts")
	}
	if len(a.Targets) != cfg.Targets {
		t.Errorf("expected %d targets, got %d", cfg.Targets, len(a.Targets))
	}
	if err := a.Validate(); err != nil {
		t.Errorf("generated layout invalid: %v", err)
	}
}

func TestGenerateRejectsTinyGrid(t *testing.T) {
	cfg := SmallTestConfig()
	cfg.Width = 4
	if _, err := Generate(cfg); err == nil {
		t.Fatal("expected error for tiny grid")
	}
}

func TestLargestRegion(t *testing.T) {
	// A full-height block at x=8 leaves 7 open columns on the left and 10
	// on the right.
	l := Layout{
		Name: "split", Width: 20, Height: 12,
		Blocks: []Rect{{X: 8, Y: 0, W: 1, H: 12}},
	}
	g := l.Rasterize()
	region := LargestRegion(g)

	if region[g.Index(4, 5)] {
		t.Error("left half should not be in the largest region")
	}
	if !region[g.Index(15, 5)] {
		t.Error("right half should be in the largest region")
	}
}
