// Package pathfind precomputes the navigation heatmaps agents follow.
//
// A Heatmap holds two kinds of scalar fields over the layout grid:
//
//  1. Cost - obstacle proximity, 1/(1+d) where d is the 8-neighbor chamfer
//     distance to the nearest blocked cell. Blocked cells have cost 1.
//  2. One distance field per target - Dijkstra distance from the target over
//     walkable cells, where entering a cell is penalized by its Cost so
//     paths keep away from walls. Unreachable cells hold +Inf.
//
// Heatmaps are immutable once computed and safe for concurrent reads.
package pathfind

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/talgya/seir-sim/internal/world"
)

// FormatVersion is bumped whenever the field algorithm or the artifact
// encoding changes, invalidating every stored artifact.
const FormatVersion = 1

// Params tunes the field computation. Params are part of the cache key.
type Params struct {
	WallAvoidance float64 `json:"wall_avoidance" yaml:"wall_avoidance"` // Extra step cost per unit of Cost
}

// DefaultParams returns the standard field parameters.
func DefaultParams() Params {
	return Params{WallAvoidance: 2}
}

// Heatmap is the precomputed navigation data for one layout.
type Heatmap struct {
	Width  int
	Height int
	Key    string // Cache key: layout hash + params + format version
	Layout string // Layout name, informational
	Params Params
	Cost   []float32
	Fields [][]float32 // One per layout target, same order
}

// Key returns the cache key for a layout computed with params.
func Key(l *world.Layout, p Params) string {
	pj, _ := json.Marshal(p)
	h := sha256.New()
	fmt.Fprintf(h, "v%d\n%s\n%s", FormatVersion, l.Hash(), pj)
	return hex.EncodeToString(h.Sum(nil))
}

// Compute builds the heatmap for a layout. It is deterministic in
// (layout, params) and has no side effects.
func Compute(l world.Layout, p Params) (*Heatmap, error) {
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("compute heatmap: %w", err)
	}
	if p.WallAvoidance < 0 || math.IsNaN(p.WallAvoidance) {
		return nil, fmt.Errorf("compute heatmap: wall_avoidance must be >= 0, got %v", p.WallAvoidance)
	}

	g := l.Rasterize()
	hm := &Heatmap{
		Width:  g.Width,
		Height: g.Height,
		Key:    Key(&l, p),
		Layout: l.Name,
		Params: p,
		Cost:   obstacleCost(g),
		Fields: make([][]float32, len(l.Targets)),
	}

	// Target fields are independent; fill them in parallel. Each goroutine
	// writes only its own slot.
	var eg errgroup.Group
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i, t := range l.Targets {
		eg.Go(func() error {
			hm.Fields[i] = targetField(g, hm.Cost, t.Pos, p.WallAvoidance)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("compute heatmap: %w", err)
	}
	return hm, nil
}

// obstacleCost runs a multi-source Dijkstra from every blocked cell.
func obstacleCost(g *world.Grid) []float32 {
	dist := make([]float64, g.Cells())
	pq := newQueue(g.Cells() / 4)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			idx := g.Index(x, y)
			if g.Blocked(x, y) {
				pq.push(idx, 0)
			} else {
				dist[idx] = math.Inf(1)
			}
		}
	}

	for pq.Len() > 0 {
		it := pq.pop()
		if it.dist > dist[it.idx] {
			continue
		}
		x, y := it.idx%g.Width, it.idx/g.Width
		for _, d := range world.Neighbor8 {
			nx, ny := x+d.X, y+d.Y
			if !g.InBounds(nx, ny) {
				continue
			}
			ni := g.Index(nx, ny)
			nd := it.dist + stepLength(d)
			if nd < dist[ni] {
				dist[ni] = nd
				pq.push(ni, nd)
			}
		}
	}

	cost := make([]float32, len(dist))
	for i, d := range dist {
		if math.IsInf(d, 1) {
			// Grid without any blocked cell; cannot happen with a blocked border.
			cost[i] = 0
			continue
		}
		cost[i] = float32(1 / (1 + d))
	}
	return cost
}

// targetField runs Dijkstra outward from a target over walkable cells.
func targetField(g *world.Grid, cost []float32, target world.Point, wallAvoidance float64) []float32 {
	dist := make([]float64, g.Cells())
	for i := range dist {
		dist[i] = math.Inf(1)
	}
	start := g.Index(target.X, target.Y)
	dist[start] = 0

	pq := newQueue(1024)
	pq.push(start, 0)
	for pq.Len() > 0 {
		it := pq.pop()
		if it.dist > dist[it.idx] {
			continue
		}
		x, y := it.idx%g.Width, it.idx/g.Width
		for _, d := range world.Neighbor8 {
			nx, ny := x+d.X, y+d.Y
			if !passable(g, x, y, d) {
				continue
			}
			ni := g.Index(nx, ny)
			nd := it.dist + stepLength(d)*(1+wallAvoidance*float64(cost[ni]))
			if nd < dist[ni] {
				dist[ni] = nd
				pq.push(ni, nd)
			}
		}
	}

	field := make([]float32, len(dist))
	for i, d := range dist {
		field[i] = float32(d)
	}
	return field
}

// passable reports whether a step from (x, y) by d is allowed. Diagonal steps
// may not cut a blocked corner.
func passable(g *world.Grid, x, y int, d world.Point) bool {
	if g.Blocked(x+d.X, y+d.Y) {
		return false
	}
	if d.X != 0 && d.Y != 0 {
		return g.Walkable(x+d.X, y) && g.Walkable(x, y+d.Y)
	}
	return true
}

func stepLength(d world.Point) float64 {
	if d.X != 0 && d.Y != 0 {
		return math.Sqrt2
	}
	return 1
}

// Targets returns the number of target fields.
func (h *Heatmap) Targets() int {
	return len(h.Fields)
}

func (h *Heatmap) inBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < h.Width && y < h.Height
}

// CostAt returns the obstacle proximity cost at (x, y). Cells off the grid
// have cost 1.
func (h *Heatmap) CostAt(x, y int) float64 {
	if !h.inBounds(x, y) {
		return 1
	}
	return float64(h.Cost[y*h.Width+x])
}

// Distance returns the field value of target at (x, y); +Inf off the grid or
// where the target is unreachable.
func (h *Heatmap) Distance(target, x, y int) float64 {
	if !h.inBounds(x, y) || target < 0 || target >= len(h.Fields) {
		return math.Inf(1)
	}
	return float64(h.Fields[target][y*h.Width+x])
}

// Direction returns the unit step (dx, dy) toward the neighbor of (x, y) with
// the smallest distance to target. When no neighbor can reach the target,
// a random step from rng is returned so stuck agents keep moving.
func (h *Heatmap) Direction(x, y, target int, rng *rand.Rand) (int, int) {
	best := math.Inf(1)
	bx, by := 0, 0
	found := false
	for _, d := range world.Neighbor8 {
		v := h.Distance(target, x+d.X, y+d.Y)
		if v < best {
			best = v
			bx, by = d.X, d.Y
			found = true
		}
	}
	if !found {
		return rng.Intn(3) - 1, rng.Intn(3) - 1
	}
	return bx, by
}

// Equal reports whether two heatmaps hold identical fields.
func (h *Heatmap) Equal(o *Heatmap) bool {
	if h.Width != o.Width || h.Height != o.Height || h.Key != o.Key || len(h.Fields) != len(o.Fields) {
		return false
	}
	if !equalField(h.Cost, o.Cost) {
		return false
	}
	for i := range h.Fields {
		if !equalField(h.Fields[i], o.Fields[i]) {
			return false
		}
	}
	return true
}

func equalField(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] && !(math.IsInf(float64(a[i]), 1) && math.IsInf(float64(b[i]), 1)) {
			return false
		}
	}
	return true
}

// String returns a summary of the heatmap.
func (h *Heatmap) String() string {
	return fmt.Sprintf("Heatmap(%s, %dx%d, targets=%d, key=%.12s)", h.Layout, h.Width, h.Height, len(h.Fields), h.Key)
}
