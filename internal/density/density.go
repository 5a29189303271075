// Package density implements a two-stage density evaluator: Stage A
// computes per-particle SPH densities via the neighborhood index, Stage B
// splats those particles onto a per-subdomain voxel scalar field in a
// fixed canonical order so two subdomains sharing a boundary compute
// bit-identical values there.
package density

import (
	"math"
	"sort"

	"github.com/soypat/surfrecon/internal/d3"
	"github.com/soypat/surfrecon/internal/kernel"
	"github.com/soypat/surfrecon/internal/neighbor"
	"github.com/soypat/surfrecon/internal/scalar"
	"gonum.org/v1/gonum/spatial/r3"
)

// Field is the per-subdomain Marching-Cubes-vertex scalar field: a
// cubical array of (S+1) samples per axis, either dense (Values != nil)
// or sparse (Sparse != nil), selected by the classifier's sparsity flag.
type Field[F scalar.Float] struct {
	Origin    r3.Vec // world position of local vertex (0,0,0)
	VoxelEdge float64
	N         int // vertices per axis, S+1

	Values []F // len N^3 when dense; nil when sparse
	Sparse map[int]F

	// Touched flags, per MC cell (N-1 per axis, length (N-1)^3), whether
	// any particle's support reached one of the cell's 8 corners. mc
	// uses this to skip guaranteed-empty cells.
	Touched []bool
}

// NewDenseField allocates a zero-initialized dense field.
func NewDenseField[F scalar.Float](origin r3.Vec, voxelEdge float64, n int) *Field[F] {
	return &Field[F]{
		Origin:    origin,
		VoxelEdge: voxelEdge,
		N:         n,
		Values:    make([]F, n*n*n),
		Touched:   make([]bool, cellCount(n)),
	}
}

// NewSparseField allocates a field backed by an associative array, for
// subdomains the classifier flagged sparse.
func NewSparseField[F scalar.Float](origin r3.Vec, voxelEdge float64, n int) *Field[F] {
	return &Field[F]{
		Origin:    origin,
		VoxelEdge: voxelEdge,
		N:         n,
		Sparse:    make(map[int]F),
		Touched:   make([]bool, cellCount(n)),
	}
}

func cellCount(n int) int {
	m := n - 1
	if m < 0 {
		m = 0
	}
	return m * m * m
}

// IsDense reports whether the field uses the dense array path.
func (f *Field[F]) IsDense() bool { return f.Values != nil }

// Dims returns the number of vertices per axis, S+1.
func (f *Field[F]) Dims() int { return f.N }

// TouchedCell reports whether MC cell (i,j,k) received any contribution
// on any of its 8 corners.
func (f *Field[F]) TouchedCell(i, j, k int) bool {
	return f.Touched[f.flatCell(i, j, k)]
}

func (f *Field[F]) flatVertex(i, j, k int) int {
	return (k*f.N+j)*f.N + i
}

func (f *Field[F]) flatCell(i, j, k int) int {
	m := f.N - 1
	return (k*m+j)*m + i
}

// Get returns the scalar value at vertex (i,j,k), zero if never written.
func (f *Field[F]) Get(i, j, k int) F {
	if f.IsDense() {
		return f.Values[f.flatVertex(i, j, k)]
	}
	return f.Sparse[f.flatVertex(i, j, k)]
}

// add accumulates v into vertex (i,j,k) and marks every adjacent cell
// touched.
func (f *Field[F]) add(i, j, k int, v F) {
	flat := f.flatVertex(i, j, k)
	if f.IsDense() {
		f.Values[flat] += v
	} else {
		f.Sparse[flat] += v
	}
	if v == 0 {
		return
	}
	for di := -1; di <= 0; di++ {
		ci := i + di
		if ci < 0 || ci >= f.N-1 {
			continue
		}
		for dj := -1; dj <= 0; dj++ {
			cj := j + dj
			if cj < 0 || cj >= f.N-1 {
				continue
			}
			for dk := -1; dk <= 0; dk++ {
				ck := k + dk
				if ck < 0 || ck >= f.N-1 {
					continue
				}
				f.Touched[f.flatCell(ci, cj, ck)] = true
			}
		}
	}
}

// VertexPos returns the world-space position of vertex (i,j,k).
func (f *Field[F]) VertexPos(i, j, k int) r3.Vec {
	return r3.Add(f.Origin, r3.Vec{
		X: float64(i) * f.VoxelEdge,
		Y: float64(j) * f.VoxelEdge,
		Z: float64(k) * f.VoxelEdge,
	})
}

// ParticleDensities implements Stage A: for every particle index in
// owned+ghost (both as indices into positions), computes ρ_p as the SPH
// sum over all working-set neighbors within support, using the
// neighborhood index for O(1) radius queries. The returned slices are
// parallel to owned and ghost respectively.
//
// globalRho, when non-nil, selects the precomputed-global-density mode:
// ghost densities are looked up from a precomputed array indexed by
// original particle index instead of being recomputed from this
// subdomain's working set, trading memory for the redundant per-subdomain
// computation the default performs.
func ParticleDensities[F scalar.Float](positions []r3.Vec, owned, ghost []int32, bb d3.Box, supportRadius float64, k kernel.CubicSpline3D[F], mass F, globalRho []F) (ownedRho, ghostRho []F, err error) {
	working := make([]int32, 0, len(owned)+len(ghost))
	working = append(working, owned...)
	working = append(working, ghost...)
	sub := make([]r3.Vec, len(working))
	for i, idx := range working {
		sub[i] = positions[idx]
	}
	idx, err := neighbor.Build(sub, supportRadius, bb)
	if err != nil {
		return nil, nil, err
	}
	rho := make([]F, len(working))
	for i, p := range sub {
		if globalRho != nil && i >= len(owned) {
			rho[i] = globalRho[working[i]]
			continue
		}
		var sum F
		idx.Query(p, supportRadius, nil, func(q int) {
			sum += mass * k.Eval(distF[F](p, sub[q]))
		})
		rho[i] = sum
	}
	return rho[:len(owned)], rho[len(owned):], nil
}

// EvaluateField implements Stage B: splats working-set particles onto
// field's Marching-Cubes vertices in ascending globalKey order. Two
// subdomains sharing a boundary see the same contributing particles,
// thanks to the ghost margin, and iterating in this fixed canonical order
// regardless of which subdomain is doing the summing makes their shared
// vertices sum to bit-identical values despite floating-point addition
// not being associative.
//
// working holds indices into positions (owned followed by ghost particles
// of one subdomain); globalKey is the full-length canonical key array
// produced by the classifier.
func EvaluateField[F scalar.Float](field *Field[F], positions []r3.Vec, working []int32, globalKey []uint64, supportRadius float64, k kernel.CubicSpline3D[F], mass F) {
	order := append([]int32(nil), working...)
	sort.Slice(order, func(a, b int) bool {
		return globalKey[order[a]] < globalKey[order[b]]
	})

	inv := 1 / field.VoxelEdge
	n := field.N
	for _, pi := range order {
		p := positions[pi]
		rel := r3.Sub(p, field.Origin)
		loI := clampInt(int(math.Floor((rel.X-supportRadius)*inv)), 0, n-1)
		loJ := clampInt(int(math.Floor((rel.Y-supportRadius)*inv)), 0, n-1)
		loK := clampInt(int(math.Floor((rel.Z-supportRadius)*inv)), 0, n-1)
		hiI := clampInt(int(math.Ceil((rel.X+supportRadius)*inv)), 0, n-1)
		hiJ := clampInt(int(math.Ceil((rel.Y+supportRadius)*inv)), 0, n-1)
		hiK := clampInt(int(math.Ceil((rel.Z+supportRadius)*inv)), 0, n-1)

		for i := loI; i <= hiI; i++ {
			for j := loJ; j <= hiJ; j++ {
				for kk := loK; kk <= hiK; kk++ {
					v := field.VertexPos(i, j, kk)
					d := distF[F](v, p)
					if d >= F(supportRadius) {
						continue
					}
					field.add(i, j, kk, mass*k.Eval(d))
				}
			}
		}
	}
}

// distF computes the distance between two world-space points in the
// kernel's own precision F, rather than in float64 and down-casting: when F
// is float32, the subtraction and sum-of-squares happen in float32 too, so
// a caller that selects the float32 precision path gets reduced-precision
// arithmetic through the whole per-particle kernel evaluation, not just at
// the final W(dist) lookup.
func distF[F scalar.Float](a, b r3.Vec) F {
	dx := F(a.X) - F(b.X)
	dy := F(a.Y) - F(b.Y)
	dz := F(a.Z) - F(b.Z)
	return scalar.Sqrt(dx*dx + dy*dy + dz*dz)
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
