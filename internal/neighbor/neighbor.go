// Package neighbor implements a per-subdomain flat spatial hash: a
// cell_start/particle_index pair built by counting sort, sized so that a
// radius query only has to examine the 3x3x3 stencil around a point. It
// is the same three-pass counting-sort shape the subdomain classifier
// uses one level up, reused here for the finer, per-subdomain cell grid.
package neighbor

import (
	"fmt"

	"github.com/soypat/surfrecon/internal/d3"
	"github.com/soypat/surfrecon/internal/grid"
	"gonum.org/v1/gonum/spatial/r3"
)

// Index is a flat spatial hash over a fixed set of positions.
type Index struct {
	positions []r3.Vec
	mapper    grid.Map3
	// CellStart holds, for cell c, the half-open range
	// [CellStart[c], CellStart[c+1]) of ParticleIndex entries in that cell.
	CellStart []int32
	// ParticleIndex holds positions' indices bucketed by cell.
	ParticleIndex []int32
}

// Build constructs a neighborhood index over positions, using a cell size
// equal to the compact support radius so a 3x3x3 stencil always covers
// every particle within support of a query point. bb must enclose every
// position in positions (the subdomain's ghost-expanded AABB).
func Build(positions []r3.Vec, cellSize float64, bb d3.Box) (*Index, error) {
	m, err := grid.NewMap3(bb, cellSize)
	if err != nil {
		return nil, fmt.Errorf("neighbor: %w", err)
	}
	idx := &Index{positions: positions, mapper: m}
	idx.build()
	return idx, nil
}

func (idx *Index) build() {
	n := idx.mapper.NumCells()
	counts := make([]int32, n+1)
	cellOf := make([]int32, len(idx.positions))
	for i, p := range idx.positions {
		ci := idx.mapper.ClampIndex(idx.mapper.CellIndex(p))
		flat := int32(idx.mapper.Flat(ci))
		cellOf[i] = flat
		counts[flat+1]++
	}
	// prefix-sum counts into cell_start.
	for c := 0; c < n; c++ {
		counts[c+1] += counts[c]
	}
	cellStart := counts
	cursor := make([]int32, n)
	copy(cursor, cellStart[:n])
	particleIndex := make([]int32, len(idx.positions))
	for i, flat := range cellOf {
		slot := cursor[flat]
		particleIndex[slot] = int32(i)
		cursor[flat]++
	}
	idx.CellStart = cellStart
	idx.ParticleIndex = particleIndex
}

// Query enumerates every position q (by index into the positions slice
// passed to Build) with ||p-q|| < support, visiting the 27 cells adjacent
// to p's cell. If mask is non-nil, indices i with mask[i] == false are
// skipped before the distance check (postprocess uses this to leave free
// particles out of its per-vertex sums).
func (idx *Index) Query(p r3.Vec, support float64, mask []bool, visit func(q int)) {
	center := idx.mapper.CellIndex(p)
	support2 := support * support
	dims := idx.mapper.Dims()
	for di := -1; di <= 1; di++ {
		ci := center.I + di
		if ci < 0 || ci >= dims.I {
			continue
		}
		for dj := -1; dj <= 1; dj++ {
			cj := center.J + dj
			if cj < 0 || cj >= dims.J {
				continue
			}
			for dk := -1; dk <= 1; dk++ {
				ck := center.K + dk
				if ck < 0 || ck >= dims.K {
					continue
				}
				flat := idx.mapper.Flat(grid.Index3{I: ci, J: cj, K: ck})
				start, end := idx.CellStart[flat], idx.CellStart[flat+1]
				for s := start; s < end; s++ {
					q := int(idx.ParticleIndex[s])
					if mask != nil && !mask[q] {
						continue
					}
					d := r3.Sub(p, idx.positions[q])
					if r3.Dot(d, d) < support2 {
						visit(q)
					}
				}
			}
		}
	}
}

// NumCells returns the total number of cells in the index's local grid.
func (idx *Index) NumCells() int { return idx.mapper.NumCells() }
