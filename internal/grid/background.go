package grid

import (
	"fmt"

	"github.com/soypat/surfrecon/internal/d3"
)

// Background is the uniform background Marching Cubes grid: a uniform
// axis-aligned grid of cubical MC cells covering the particle AABB
// expanded by one compact-support radius.
type Background struct {
	Map3
}

// NewBackground builds the background grid for a particle AABB, given the
// MC voxel edge length and the SPH compact support radius (the margin).
func NewBackground(particleAABB d3.Box, voxelEdge, supportRadius float64) (Background, error) {
	bb := particleAABB.Enlarge(d3.Elem(2 * supportRadius))
	m, err := NewMap3(bb, voxelEdge)
	if err != nil {
		return Background{}, fmt.Errorf("grid: building background grid: %w", err)
	}
	return Background{Map3: m}, nil
}

// Subdomain is a single cubical block of S³ background MC cells, the unit
// of parallel work in the pipeline.
type Subdomain struct {
	Index     Index3 // (I,J,K) in the subdomain grid
	CellMin   Index3 // first background cell owned by this subdomain (inclusive)
	CellsSide int    // S: background cells per axis owned by this subdomain
	// AABB is the subdomain's own (ghost-free) world-space box, spanning
	// its S owned MC cells; GhostAABB additionally includes the ghost
	// margin of one compact support radius on every side.
	AABB      d3.Box
	GhostAABB d3.Box
}

// Subdomains partitions a background grid into cubical subdomains of
// cubesPerAxis³ MC cells each. When the background grid's dimension on an
// axis is not an exact multiple of cubesPerAxis, the subdomains on that
// axis's far edge extend past the grid's minimal bounding box rather than
// shrink: every subdomain is exactly cubesPerAxis cells on a side, and the
// extra cells in a boundary block simply never see a particle, so the
// classifier's sparse/pruned handling absorbs them at no extra cost.
func Subdomains(bg Background, cubesPerAxis int, supportRadius float64) ([]Subdomain, error) {
	if cubesPerAxis <= 0 || cubesPerAxis > 256 {
		return nil, fmt.Errorf("grid: subdomain_cubes must be in (0,256], got %d", cubesPerAxis)
	}
	sdims := SubdomainDims(bg, cubesPerAxis)
	nx, ny, nz := sdims.I, sdims.J, sdims.K
	total := nx * ny * nz
	const maxIndex32 = 1 << 31
	if total <= 0 || total >= maxIndex32 {
		return nil, fmt.Errorf("grid: subdomain count %d overflows addressable index space", total)
	}

	out := make([]Subdomain, 0, total)
	for I := 0; I < nx; I++ {
		for J := 0; J < ny; J++ {
			for K := 0; K < nz; K++ {
				cellMin := Index3{I * cubesPerAxis, J * cubesPerAxis, K * cubesPerAxis}
				cellMax := cellMin.Add(Index3{cubesPerAxis, cubesPerAxis, cubesPerAxis})
				lo := bg.CellOrigin(cellMin)
				hi := bg.CellOrigin(cellMax)
				aabb := d3.Box{Min: lo, Max: hi}
				out = append(out, Subdomain{
					Index:     Index3{I, J, K},
					CellMin:   cellMin,
					CellsSide: cubesPerAxis,
					AABB:      aabb,
					GhostAABB: aabb.Enlarge(d3.Elem(2 * supportRadius)),
				})
			}
		}
	}
	return out, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// SubdomainDims returns the number of subdomains along each axis that
// Subdomains(bg, cubesPerAxis, ...) will produce, without building them.
// Callers that need the subdomain grid's dimensions ahead of time (to
// classify particles against it) use this instead of duplicating the
// ceil-division.
func SubdomainDims(bg Background, cubesPerAxis int) Index3 {
	dims := bg.Dims()
	return Index3{
		I: ceilDiv(dims.I, cubesPerAxis),
		J: ceilDiv(dims.J, cubesPerAxis),
		K: ceilDiv(dims.K, cubesPerAxis),
	}
}

// NeighborOffsets enumerates the 26 possible neighbor offsets of a
// subdomain in its (I,J,K) grid, used by the classifier to find the
// subdomains that might share a ghost margin with a given subdomain.
func NeighborOffsets() []Index3 {
	offsets := make([]Index3, 0, 26)
	for di := -1; di <= 1; di++ {
		for dj := -1; dj <= 1; dj++ {
			for dk := -1; dk <= 1; dk++ {
				if di == 0 && dj == 0 && dk == 0 {
					continue
				}
				offsets = append(offsets, Index3{di, dj, dk})
			}
		}
	}
	return offsets
}

// CornerVertices returns the 8 MC-vertex cell indices (background grid
// space) at the corners of background cell c.
func CornerVertices(c Index3) [8]Index3 {
	return [8]Index3{
		c,
		c.Add(Index3{1, 0, 0}),
		c.Add(Index3{1, 1, 0}),
		c.Add(Index3{0, 1, 0}),
		c.Add(Index3{0, 0, 1}),
		c.Add(Index3{1, 0, 1}),
		c.Add(Index3{1, 1, 1}),
		c.Add(Index3{0, 1, 1}),
	}
}
