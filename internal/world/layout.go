// Package world provides the campus layout, its rasterized grid, and
// procedural layout generation.
// Coordinates are integer cells with the origin at the top-left corner.
package world

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Point is a cell coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Wall is an axis-aligned wall segment. Thickness must be odd so the wall
// can be centered on its line.
type Wall struct {
	From      Point `json:"from"`
	To        Point `json:"to"`
	Thickness int   `json:"thickness"`
}

// Rect is a filled rectangular obstacle covering [X, X+W) × [Y, Y+H).
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Target is a destination agents walk toward.
type Target struct {
	Name   string  `json:"name"`
	Pos    Point   `json:"pos"`
	Weight float64 `json:"weight"` // Relative pick probability
}

// Layout describes the static environment of a run.
type Layout struct {
	Name    string   `json:"name"`
	Width   int      `json:"width"`
	Height  int      `json:"height"`
	Walls   []Wall   `json:"walls"`
	Blocks  []Rect   `json:"blocks"`
	Targets []Target `json:"targets"`
}

// Validate checks walls, blocks and targets against the layout bounds.
func (l *Layout) Validate() error {
	if l.Width < 3 || l.Height < 3 {
		return fmt.Errorf("layout %q: size %dx%d too small", l.Name, l.Width, l.Height)
	}
	for i, w := range l.Walls {
		if err := w.validate(); err != nil {
			return fmt.Errorf("layout %q: wall %d: %w", l.Name, i, err)
		}
	}
	for i, b := range l.Blocks {
		if b.W <= 0 || b.H <= 0 {
			return fmt.Errorf("layout %q: block %d has empty extent %dx%d", l.Name, i, b.W, b.H)
		}
	}
	if len(l.Targets) == 0 {
		return fmt.Errorf("layout %q: no targets", l.Name)
	}

	g := l.Rasterize()
	for i, t := range l.Targets {
		if t.Weight <= 0 {
			return fmt.Errorf("layout %q: target %d (%s) has non-positive weight", l.Name, i, t.Name)
		}
		if !g.Walkable(t.Pos.X, t.Pos.Y) {
			return fmt.Errorf("layout %q: target %d (%s) at (%d,%d) is not walkable",
				l.Name, i, t.Name, t.Pos.X, t.Pos.Y)
		}
	}
	return nil
}

func (w Wall) validate() error {
	if w.From == w.To {
		return fmt.Errorf("wall cannot be a dot")
	}
	if w.From.X != w.To.X && w.From.Y != w.To.Y {
		return fmt.Errorf("wall must be parallel to an axis")
	}
	if w.Thickness <= 0 || w.Thickness%2 == 0 {
		return fmt.Errorf("wall thickness must be a positive odd number, got %d", w.Thickness)
	}
	return nil
}

// Cells returns every cell the wall occupies, including a buffer of
// bufferCells on each side so walkers do not graze it.
func (w Wall) Cells(bufferCells int) []Point {
	extra := w.Thickness/2 + bufferCells

	var cells []Point
	if w.From.X == w.To.X {
		// Vertical wall.
		y0, y1 := minInt(w.From.Y, w.To.Y), maxInt(w.From.Y, w.To.Y)
		for y := y0 - extra; y <= y1+extra; y++ {
			for x := w.From.X - extra; x <= w.From.X+extra; x++ {
				cells = append(cells, Point{X: x, Y: y})
			}
		}
		return cells
	}

	// Horizontal wall.
	x0, x1 := minInt(w.From.X, w.To.X), maxInt(w.From.X, w.To.X)
	for x := x0 - extra; x <= x1+extra; x++ {
		for y := w.From.Y - extra; y <= w.From.Y+extra; y++ {
			cells = append(cells, Point{X: x, Y: y})
		}
	}
	return cells
}

// Hash returns a hex sha256 digest of the canonical layout encoding.
// Two layouts with the same hash rasterize to the same grid.
func (l *Layout) Hash() string {
	data, err := json.Marshal(l)
	if err != nil {
		// Layout contains only plain values; Marshal cannot fail.
		panic(fmt.Sprintf("world: encode layout: %v", err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// String returns a summary of the layout.
func (l *Layout) String() string {
	return fmt.Sprintf("Layout(%s, %dx%d, walls=%d, blocks=%d, targets=%d)",
		l.Name, l.Width, l.Height, len(l.Walls), len(l.Blocks), len(l.Targets))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
