// Package mc implements the per-subdomain Marching Cubes triangulation:
// dense and sparse scalar fields share the same triangulation code
// (density.Field already branches dense/sparse in its Get), the standard
// 256-configuration lookup tables, and a canonical edge key that lets the
// stitcher recognize the same edge computed independently by two
// neighboring subdomains.
package mc

import (
	"github.com/soypat/surfrecon/internal/density"
	"github.com/soypat/surfrecon/internal/grid"
	"github.com/soypat/surfrecon/internal/scalar"
	"gonum.org/v1/gonum/spatial/r3"
)

// Axis tags which world direction an EdgeKey's edge runs along.
type Axis uint8

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// EdgeKey canonically identifies a background-grid edge: the absolute
// (background-grid-space) index of its minimum-coordinate endpoint, plus
// the axis it runs along. Two subdomains that both triangulate a cell
// touching the same background edge compute the same key, which is what
// lets the stitcher deduplicate the vertex on it.
type EdgeKey struct {
	Vertex grid.Index3
	Axis   Axis
}

// Vertex is one MC-interpolated point on the surface, tagged with the
// edge it lies on and whether that edge might be shared with a
// neighboring subdomain.
type Vertex struct {
	Pos      r3.Vec
	Key      EdgeKey
	Boundary bool
}

// Patch is the triangulated output of one subdomain: Triangles indexes
// into Vertices in groups of 3, one group per triangle.
type Patch struct {
	Vertices  []Vertex
	Triangles []int32
}

// cubeCorner gives, for cube corner c (0-7), the offset from the cube's
// minimum-index corner, matching grid.CornerVertices.
var cubeCorner = [8]grid.Index3{
	{I: 0, J: 0, K: 0}, {I: 1, J: 0, K: 0}, {I: 1, J: 1, K: 0}, {I: 0, J: 1, K: 0},
	{I: 0, J: 0, K: 1}, {I: 1, J: 0, K: 1}, {I: 1, J: 1, K: 1}, {I: 0, J: 1, K: 1},
}

// Triangulate extracts the iso-surface τ·ρ₀ from a subdomain's scalar
// field. sub supplies the absolute background-grid offset (CellMin) used
// to build globally-comparable EdgeKeys. edgeTable/triTable are built for
// the classic Lorensen-Cline convention: a corner sets its cubeindex bit
// when its field value is *below* threshold, not above.
func Triangulate[F scalar.Float](field *density.Field[F], sub grid.Subdomain, threshold F) Patch {
	n := field.Dims()
	cells := n - 1
	var patch Patch
	edgeVertex := make(map[EdgeKey]int32)

	for i := 0; i < cells; i++ {
		for j := 0; j < cells; j++ {
			for k := 0; k < cells; k++ {
				if !field.TouchedCell(i, j, k) {
					continue
				}
				var corner [8]grid.Index3
				var val [8]F
				cubeindex := 0
				for c := 0; c < 8; c++ {
					off := cubeCorner[c]
					corner[c] = grid.Index3{I: i + off.I, J: j + off.J, K: k + off.K}
					val[c] = field.Get(corner[c].I, corner[c].J, corner[c].K)
					if val[c] < threshold {
						cubeindex |= 1 << c
					}
				}
				bits := edgeTable[cubeindex]
				if bits == 0 {
					continue
				}
				var vertlist [12]int32
				for e := 0; e < 12; e++ {
					if bits&(1<<uint(e)) == 0 {
						continue
					}
					a, b := edgeEndpoints[e][0], edgeEndpoints[e][1]
					key, boundary := edgeKey(sub, i, j, k, e, n)
					if existing, ok := edgeVertex[key]; ok {
						vertlist[e] = existing
						continue
					}
					pos := interpolate(field, corner[a], corner[b], val[a], val[b], threshold)
					idx := int32(len(patch.Vertices))
					patch.Vertices = append(patch.Vertices, Vertex{Pos: pos, Key: key, Boundary: boundary})
					edgeVertex[key] = idx
					vertlist[e] = idx
				}
				tri := triTable[cubeindex]
				for t := 0; tri[t] != -1; t += 3 {
					patch.Triangles = append(patch.Triangles,
						vertlist[tri[t]], vertlist[tri[t+1]], vertlist[tri[t+2]])
				}
			}
		}
	}
	return patch
}

// interpolate finds the iso-surface crossing point along edge (a,b),
// linearly interpolating by field value. An endpoint exactly at threshold
// maps to that endpoint's position exactly.
func interpolate[F scalar.Float](field *density.Field[F], a, b grid.Index3, valA, valB, threshold F) r3.Vec {
	posA := field.VertexPos(a.I, a.J, a.K)
	posB := field.VertexPos(b.I, b.J, b.K)
	denom := valB - valA
	var t F = 0.5
	if denom != 0 {
		t = (threshold - valA) / denom
	}
	t = scalar.Max(F(0), scalar.Min(F(1), t))
	tf := float64(t)
	return r3.Add(posA, r3.Scale(tf, r3.Sub(posB, posA)))
}

// edgeKey reduces cell (i,j,k)'s local edge e to its canonical
// (min-corner, axis) form and reports whether that min corner sits on the
// subdomain's outer vertex shell, where it might be shared with a
// neighbor — the boundary-edge key stitch consumes.
func edgeKey(sub grid.Subdomain, i, j, k, e, n int) (EdgeKey, bool) {
	local, axis := edgeCanonical[e](i, j, k)
	abs := sub.CellMin.Add(local)
	boundary := local.I == 0 || local.I == n-1 ||
		local.J == 0 || local.J == n-1 ||
		local.K == 0 || local.K == n-1
	return EdgeKey{Vertex: abs, Axis: axis}, boundary
}

// edgeCanonical[e] returns the local (i,j,k)-space minimum corner of edge
// e of the cell at (i,j,k), and the axis the edge runs along.
var edgeCanonical = [12]func(i, j, k int) (grid.Index3, Axis){
	func(i, j, k int) (grid.Index3, Axis) { return grid.Index3{I: i, J: j, K: k}, AxisX },         // e0: v0-v1
	func(i, j, k int) (grid.Index3, Axis) { return grid.Index3{I: i + 1, J: j, K: k}, AxisY },      // e1: v1-v2
	func(i, j, k int) (grid.Index3, Axis) { return grid.Index3{I: i, J: j + 1, K: k}, AxisX },      // e2: v2-v3
	func(i, j, k int) (grid.Index3, Axis) { return grid.Index3{I: i, J: j, K: k}, AxisY },          // e3: v3-v0
	func(i, j, k int) (grid.Index3, Axis) { return grid.Index3{I: i, J: j, K: k + 1}, AxisX },      // e4: v4-v5
	func(i, j, k int) (grid.Index3, Axis) { return grid.Index3{I: i + 1, J: j, K: k + 1}, AxisY },  // e5: v5-v6
	func(i, j, k int) (grid.Index3, Axis) { return grid.Index3{I: i, J: j + 1, K: k + 1}, AxisX },  // e6: v6-v7
	func(i, j, k int) (grid.Index3, Axis) { return grid.Index3{I: i, J: j, K: k + 1}, AxisY },      // e7: v7-v4
	func(i, j, k int) (grid.Index3, Axis) { return grid.Index3{I: i, J: j, K: k}, AxisZ },          // e8: v0-v4
	func(i, j, k int) (grid.Index3, Axis) { return grid.Index3{I: i + 1, J: j, K: k}, AxisZ },      // e9: v1-v5
	func(i, j, k int) (grid.Index3, Axis) { return grid.Index3{I: i + 1, J: j + 1, K: k}, AxisZ },  // e10: v2-v6
	func(i, j, k int) (grid.Index3, Axis) { return grid.Index3{I: i, J: j + 1, K: k}, AxisZ },      // e11: v3-v7
}
