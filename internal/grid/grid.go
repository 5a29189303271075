// Package grid implements the uniform background Marching Cubes grid and
// its coarser subdomain partition.
package grid

import (
	"fmt"
	"math"

	"github.com/soypat/surfrecon/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Index3 is a (i,j,k) cell or subdomain index. Lexicographic ordering of
// Index3 values is the canonical tie-break the stitcher uses to decide
// which of several sharing subdomains owns a boundary vertex.
type Index3 struct {
	I, J, K int
}

// Less reports whether a sorts before b under the canonical lexicographic
// order on (I,J,K).
func (a Index3) Less(b Index3) bool {
	if a.I != b.I {
		return a.I < b.I
	}
	if a.J != b.J {
		return a.J < b.J
	}
	return a.K < b.K
}

// Add returns a+b component-wise.
func (a Index3) Add(b Index3) Index3 {
	return Index3{a.I + b.I, a.J + b.J, a.K + b.K}
}

// ToVec converts the index to a float vector, e.g. for multiplying by a cell size.
func (a Index3) ToVec() r3.Vec {
	return r3.Vec{X: float64(a.I), Y: float64(a.J), Z: float64(a.K)}
}

func (a Index3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", a.I, a.J, a.K)
}

// Map3 maps a 3d region to integer cell coordinates. Indexing is
// half-open [min,max):
// a point on an upper cell boundary belongs to the next cell over, so
// callers must pad the enclosing box by at least one cell size before it
// is guaranteed to cover all relevant geometry.
type Map3 struct {
	bb   d3.Box
	dims Index3
	cell float64 // edge length of a cubical cell
}

// NewMap3 returns a region-to-grid map of cubical cells with the given edge
// length, covering bb. The cell count on each axis is rounded up to a whole
// number of cells, so the cells may reach past bb.Max; bb itself is kept as
// given and is what Bounds returns. A point exactly on bb.Max maps to index
// dims on an axis whose extent is a whole multiple of the cell size.
func NewMap3(bb d3.Box, cellSize float64) (Map3, error) {
	size := bb.Size()
	if cellSize <= 0 {
		return Map3{}, fmt.Errorf("grid: cell size must be positive, got %v", cellSize)
	}
	if d3.LTEZero(size) {
		return Map3{}, fmt.Errorf("grid: degenerate bounding box %+v", bb)
	}
	nx := int(math.Ceil(size.X / cellSize))
	ny := int(math.Ceil(size.Y / cellSize))
	nz := int(math.Ceil(size.Z / cellSize))
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return Map3{}, fmt.Errorf("grid: resulting grid dimensions are non-positive (%d,%d,%d)", nx, ny, nz)
	}
	return Map3{bb: bb, dims: Index3{nx, ny, nz}, cell: cellSize}, nil
}

// CellSize returns the edge length of a single grid cell.
func (m Map3) CellSize() float64 { return m.cell }

// Dims returns the number of cells along each axis.
func (m Map3) Dims() Index3 { return m.dims }

// Bounds returns the map's bounding box.
func (m Map3) Bounds() d3.Box { return m.bb }

// NumCells returns the total number of cells covered by the map.
func (m Map3) NumCells() int { return m.dims.I * m.dims.J * m.dims.K }

// CellOrigin returns the minimum-corner world coordinate of cell idx.
func (m Map3) CellOrigin(idx Index3) r3.Vec {
	return r3.Add(m.bb.Min, r3.Scale(m.cell, idx.ToVec()))
}

// CellCenter returns the center world coordinate of cell idx.
func (m Map3) CellCenter(idx Index3) r3.Vec {
	return r3.Add(m.CellOrigin(idx), d3.Elem(0.5*m.cell))
}

// CellIndex converts a world coordinate to the cell index containing it.
// Points outside the map's bounds map to out-of-range indices; callers
// that need clamped results should use ClampIndex.
func (m Map3) CellIndex(p r3.Vec) Index3 {
	rel := r3.Sub(p, m.bb.Min)
	return Index3{
		I: int(math.Floor(rel.X / m.cell)),
		J: int(math.Floor(rel.Y / m.cell)),
		K: int(math.Floor(rel.Z / m.cell)),
	}
}

// ClampIndex clamps idx to the valid [0,dims) range.
func (m Map3) ClampIndex(idx Index3) Index3 {
	return Index3{
		I: clampInt(idx.I, 0, m.dims.I-1),
		J: clampInt(idx.J, 0, m.dims.J-1),
		K: clampInt(idx.K, 0, m.dims.K-1),
	}
}

// InBounds reports whether idx addresses a valid cell.
func (m Map3) InBounds(idx Index3) bool {
	return idx.I >= 0 && idx.I < m.dims.I &&
		idx.J >= 0 && idx.J < m.dims.J &&
		idx.K >= 0 && idx.K < m.dims.K
}

// Flat returns the row-major flat offset of idx, assuming InBounds(idx).
func (m Map3) Flat(idx Index3) int {
	return (idx.K*m.dims.J+idx.J)*m.dims.I + idx.I
}

func clampInt(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// EnclosingAABB returns the minimum enclosing box of a set of points,
// expanded by margin on every side.
func EnclosingAABB(points []r3.Vec, margin float64) (d3.Box, error) {
	if len(points) == 0 {
		return d3.Box{}, fmt.Errorf("grid: no points to enclose")
	}
	box := d3.Box{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		box = box.Include(p)
	}
	return box.Enlarge(d3.Elem(2 * margin)), nil
}
