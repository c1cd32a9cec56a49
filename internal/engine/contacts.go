package engine

import (
	"math"

	"github.com/talgya/seir-sim/internal/agents"
)

// Pair is two agent indices in contact, with I < J.
type Pair struct {
	I, J int
}

// SpatialHash buckets agent positions into square cells of the contact
// radius so a contact search only visits the 3x3 neighborhood of a cell.
// Buckets are never smaller than one grid cell.
type SpatialHash struct {
	radius     float64
	size       float64 // Bucket edge, max(radius, 1)
	cols, rows int
	head       []int // First agent index per cell, -1 when empty
	next       []int // Next agent index in the same cell
	cellOf     []int
}

// NewSpatialHash creates a hash covering a width x height map.
func NewSpatialHash(width, height int, radius float64) *SpatialHash {
	size := math.Max(radius, 1)
	cols := int(math.Ceil(float64(width)/size)) + 1
	rows := int(math.Ceil(float64(height)/size)) + 1
	h := &SpatialHash{
		radius: radius,
		size:   size,
		cols:   cols,
		rows:   rows,
		head:   make([]int, cols*rows),
	}
	return h
}

func (h *SpatialHash) cell(p agents.Vec2) (int, int) {
	cx := int(p.X / h.size)
	cy := int(p.Y / h.size)
	return clamp(cx, 0, h.cols-1), clamp(cy, 0, h.rows-1)
}

// Build indexes positions. Agents are inserted in reverse so each cell lists
// them in ascending index order.
func (h *SpatialHash) Build(pos []agents.Vec2) {
	for i := range h.head {
		h.head[i] = -1
	}
	if cap(h.next) < len(pos) {
		h.next = make([]int, len(pos))
		h.cellOf = make([]int, len(pos))
	}
	h.next = h.next[:len(pos)]
	h.cellOf = h.cellOf[:len(pos)]
	for i := len(pos) - 1; i >= 0; i-- {
		cx, cy := h.cell(pos[i])
		c := cy*h.cols + cx
		h.cellOf[i] = c
		h.next[i] = h.head[c]
		h.head[c] = i
	}
}

// Pairs appends every pair within the radius to dst, ordered by I and then
// by a fixed neighbor-cell visiting order.
func (h *SpatialHash) Pairs(pos []agents.Vec2, dst []Pair) []Pair {
	r2 := h.radius * h.radius
	for i, p := range pos {
		c := h.cellOf[i]
		cx, cy := c%h.cols, c/h.cols
		for dy := -1; dy <= 1; dy++ {
			y := cy + dy
			if y < 0 || y >= h.rows {
				continue
			}
			for dx := -1; dx <= 1; dx++ {
				x := cx + dx
				if x < 0 || x >= h.cols {
					continue
				}
				for j := h.head[y*h.cols+x]; j >= 0; j = h.next[j] {
					if j <= i {
						continue
					}
					if pos[j].Sub(p).Len2() <= r2 {
						dst = append(dst, Pair{I: i, J: j})
					}
				}
			}
		}
	}
	return dst
}

// BruteForcePairs is the O(n²) reference used to check the hash.
func BruteForcePairs(pos []agents.Vec2, radius float64) []Pair {
	var out []Pair
	r2 := radius * radius
	for i := range pos {
		for j := i + 1; j < len(pos); j++ {
			if pos[j].Sub(pos[i]).Len2() <= r2 {
				out = append(out, Pair{I: i, J: j})
			}
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
