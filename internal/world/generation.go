// Procedural layout generation using layered simplex noise.
// Noise peaks become obstacle blocks (ponds, hedges, construction sites);
// targets are then placed on open cells of the largest connected region.
package world

import (
	"fmt"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds layout generation parameters.
type GenConfig struct {
	Width     int     // Grid width in cells
	Height    int     // Grid height in cells
	Seed      int64   // Noise and placement seed
	Threshold float64 // Normalized noise level above which a cell is blocked (0.0–1.0)
	Targets   int     // Number of targets to place
}

// DefaultGenConfig returns a reasonable starting configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Width:     200,
		Height:    200,
		Seed:      1,
		Threshold: 0.68,
		Targets:   8,
	}
}

// SmallTestConfig returns a tiny layout for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Width:     48,
		Height:    48,
		Seed:      42,
		Threshold: 0.7,
		Targets:   3,
	}
}

const (
	targetClearance   = 2  // Open cells required around a target
	targetMinDistance = 10 // Chebyshev spacing between targets
	placementAttempts = 5000
)

// Generate creates a layout from the config. The result is deterministic
// in the config.
func Generate(cfg GenConfig) (Layout, error) {
	if cfg.Width < 8 || cfg.Height < 8 {
		return Layout{}, fmt.Errorf("generate: size %dx%d too small", cfg.Width, cfg.Height)
	}
	if cfg.Targets <= 0 {
		return Layout{}, fmt.Errorf("generate: need at least one target, got %d", cfg.Targets)
	}

	noise := opensimplex.NewNormalized(cfg.Seed)

	l := Layout{
		Name:   fmt.Sprintf("generated-%d", cfg.Seed),
		Width:  cfg.Width,
		Height: cfg.Height,
	}

	// Each row of blocked cells is stored as run-length rectangles so the
	// layout stays compact and hashable.
	for y := 1; y < cfg.Height-1; y++ {
		runStart := -1
		for x := 1; x < cfg.Width; x++ {
			blocked := x < cfg.Width-1 &&
				octaveNoise(noise, float64(x), float64(y), 3, 0.045, 0.5) > cfg.Threshold
			switch {
			case blocked && runStart < 0:
				runStart = x
			case !blocked && runStart >= 0:
				l.Blocks = append(l.Blocks, Rect{X: runStart, Y: y, W: x - runStart, H: 1})
				runStart = -1
			}
		}
	}

	targets, err := placeTargets(&l, cfg)
	if err != nil {
		return Layout{}, err
	}
	l.Targets = targets
	return l, nil
}

// placeTargets picks well-separated open cells inside the largest connected
// walkable region so every target is reachable from everywhere agents spawn.
func placeTargets(l *Layout, cfg GenConfig) ([]Target, error) {
	rng := rand.New(rand.NewSource(cfg.Seed + 100))
	g := l.Rasterize()
	region := LargestRegion(g)

	var targets []Target
	for attempt := 0; attempt < placementAttempts && len(targets) < cfg.Targets; attempt++ {
		p := Point{X: 1 + rng.Intn(cfg.Width-2), Y: 1 + rng.Intn(cfg.Height-2)}
		if !region[g.Index(p.X, p.Y)] || !clearAround(g, p, targetClearance) {
			continue
		}
		tooClose := false
		for _, t := range targets {
			if absInt(t.Pos.X-p.X) < targetMinDistance && absInt(t.Pos.Y-p.Y) < targetMinDistance {
				tooClose = true
				break
			}
		}
		if tooClose {
			continue
		}
		targets = append(targets, Target{
			Name:   fmt.Sprintf("Site %d", len(targets)+1),
			Pos:    p,
			Weight: 1,
		})
	}

	if len(targets) < cfg.Targets {
		return nil, fmt.Errorf("generate: placed %d of %d targets (threshold %.2f leaves too little open space)",
			len(targets), cfg.Targets, cfg.Threshold)
	}
	return targets, nil
}

func clearAround(g *Grid, p Point, r int) bool {
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if g.Blocked(p.X+dx, p.Y+dy) {
				return false
			}
		}
	}
	return true
}

// LargestRegion returns a mask of the largest 8-connected walkable region.
func LargestRegion(g *Grid) []bool {
	label := make([]int, g.Cells())
	var sizes []int
	stack := make([]Point, 0, 64)

	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			idx := g.Index(x, y)
			if g.Blocked(x, y) || label[idx] != 0 {
				continue
			}
			id := len(sizes) + 1
			size := 0
			label[idx] = id
			stack = append(stack[:0], Point{X: x, Y: y})
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				size++
				for _, d := range Neighbor8 {
					nx, ny := p.X+d.X, p.Y+d.Y
					if g.Blocked(nx, ny) {
						continue
					}
					ni := g.Index(nx, ny)
					if label[ni] == 0 {
						label[ni] = id
						stack = append(stack, Point{X: nx, Y: ny})
					}
				}
			}
			sizes = append(sizes, size)
		}
	}

	best := 0
	for i, s := range sizes {
		if best == 0 || s > sizes[best-1] {
			best = i + 1
		}
	}

	mask := make([]bool, g.Cells())
	if best == 0 {
		return mask
	}
	for i, l := range label {
		mask[i] = l == best
	}
	return mask
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
