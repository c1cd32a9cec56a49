package world

import "fmt"

// WallBuffer is the number of extra blocked cells rasterized on each side
// of a wall.
const WallBuffer = 1

// Neighbor8 lists the eight neighbor offsets in a fixed scan order.
var Neighbor8 = [8]Point{
	{X: -1, Y: -1}, {X: 0, Y: -1}, {X: 1, Y: -1},
	{X: -1, Y: 0}, {X: 1, Y: 0},
	{X: -1, Y: 1}, {X: 0, Y: 1}, {X: 1, Y: 1},
}

// Grid is the rasterized walkable bitmap of a layout.
// It is immutable after Rasterize and safe for concurrent reads.
type Grid struct {
	Width   int
	Height  int
	blocked []bool
}

// NewGrid creates an open grid of the given size.
func NewGrid(width, height int) *Grid {
	return &Grid{
		Width:   width,
		Height:  height,
		blocked: make([]bool, width*height),
	}
}

// Rasterize converts the layout into a grid. The outer border is always
// blocked.
func (l *Layout) Rasterize() *Grid {
	g := NewGrid(l.Width, l.Height)

	for _, w := range l.Walls {
		for _, c := range w.Cells(WallBuffer) {
			g.setBlocked(c.X, c.Y)
		}
	}
	for _, b := range l.Blocks {
		for y := b.Y; y < b.Y+b.H; y++ {
			for x := b.X; x < b.X+b.W; x++ {
				g.setBlocked(x, y)
			}
		}
	}

	for x := 0; x < g.Width; x++ {
		g.setBlocked(x, 0)
		g.setBlocked(x, g.Height-1)
	}
	for y := 0; y < g.Height; y++ {
		g.setBlocked(0, y)
		g.setBlocked(g.Width-1, y)
	}
	return g
}

func (g *Grid) setBlocked(x, y int) {
	if g.InBounds(x, y) {
		g.blocked[g.Index(x, y)] = true
	}
}

// InBounds returns true if (x, y) lies on the grid.
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.Width && y < g.Height
}

// Index returns the row-major index of (x, y).
func (g *Grid) Index(x, y int) int {
	return y*g.Width + x
}

// Blocked reports whether (x, y) is an obstacle. Cells off the grid count
// as blocked.
func (g *Grid) Blocked(x, y int) bool {
	if !g.InBounds(x, y) {
		return true
	}
	return g.blocked[g.Index(x, y)]
}

// Walkable is the inverse of Blocked.
func (g *Grid) Walkable(x, y int) bool {
	return !g.Blocked(x, y)
}

// Cells returns the total number of cells.
func (g *Grid) Cells() int {
	return g.Width * g.Height
}

// OpenCells counts walkable cells.
func (g *Grid) OpenCells() int {
	n := 0
	for _, b := range g.blocked {
		if !b {
			n++
		}
	}
	return n
}

// String returns a summary of the grid.
func (g *Grid) String() string {
	return fmt.Sprintf("Grid(%dx%d, open=%d)", g.Width, g.Height, g.OpenCells())
}
