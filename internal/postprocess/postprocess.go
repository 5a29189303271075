// Package postprocess implements Marching-Cubes-aware mesh cleanup,
// weighted Laplacian smoothing, normal computation and SPH attribute
// interpolation, all operating on the already-stitched global mesh.
package postprocess

import (
	"fmt"
	"math"

	"github.com/soypat/surfrecon/internal/d3"
	"github.com/soypat/surfrecon/internal/kernel"
	"github.com/soypat/surfrecon/internal/neighbor"
	"github.com/soypat/surfrecon/internal/scalar"
	"github.com/soypat/surfrecon/internal/stitch"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// adjacency holds, for each vertex, the set of vertices it shares a
// triangle edge with, and the list of incident triangle indices.
type adjacency struct {
	neighbors [][]int32
	incident  [][]int32 // triangle indices (into mesh.Triangles/3), per vertex
}

func buildAdjacency(mesh stitch.Mesh) adjacency {
	n := len(mesh.Vertices)
	adj := adjacency{
		neighbors: make([][]int32, n),
		incident:  make([][]int32, n),
	}
	seen := make([]map[int32]bool, n)
	for i := range seen {
		seen[i] = map[int32]bool{}
	}
	addEdge := func(a, b int32) {
		if !seen[a][b] {
			seen[a][b] = true
			adj.neighbors[a] = append(adj.neighbors[a], b)
		}
	}
	nTri := len(mesh.Triangles) / 3
	for t := 0; t < nTri; t++ {
		a, b, c := mesh.Triangles[3*t], mesh.Triangles[3*t+1], mesh.Triangles[3*t+2]
		addEdge(a, b)
		addEdge(b, a)
		addEdge(b, c)
		addEdge(c, b)
		addEdge(c, a)
		addEdge(a, c)
		adj.incident[a] = append(adj.incident[a], int32(t))
		adj.incident[b] = append(adj.incident[b], int32(t))
		adj.incident[c] = append(adj.incident[c], int32(t))
	}
	return adj
}

// CleanupMode is re-declared here (rather than imported from the root
// package) to keep internal packages free of a dependency on the public
// API surface; the root package's Config.MeshCleanup maps 1:1 onto it.
type CleanupMode int

const (
	CleanupNone CleanupMode = iota
	CleanupEdgeCollapse
	CleanupBarnacleDecimation
)

// Cleanup removes Marching-Cubes-specific slivers from mesh. cubeSize is
// the MC voxel edge length, which scales the relative epsilon used to
// flag degenerate triangles.
func Cleanup(mesh stitch.Mesh, cubeSize float64, mode CleanupMode) stitch.Mesh {
	switch mode {
	case CleanupEdgeCollapse:
		return collapseSlivers(mesh, cubeSize)
	case CleanupBarnacleDecimation:
		return decimateBarnacles(mesh)
	default:
		return mesh
	}
}

const (
	sliverEdgeEpsilon = 1e-3 // relative to cubeSize
	sliverAspectRatio = 12.0
)

// collapseSlivers merges the shortest edge of any triangle whose shortest
// edge is below sliverEdgeEpsilon*cubeSize, or whose aspect ratio exceeds
// sliverAspectRatio, into a single vertex.
func collapseSlivers(mesh stitch.Mesh, cubeSize float64) stitch.Mesh {
	n := len(mesh.Vertices)
	parent := make([]int32, n)
	for i := range parent {
		parent[i] = int32(i)
	}
	var find func(int32) int32
	find = func(x int32) int32 {
		for parent[x] != x {
			x = parent[x]
		}
		return x
	}
	union := func(a, b int32) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	minEdge := sliverEdgeEpsilon * cubeSize
	nTri := len(mesh.Triangles) / 3
	for t := 0; t < nTri; t++ {
		a, b, c := mesh.Triangles[3*t], mesh.Triangles[3*t+1], mesh.Triangles[3*t+2]
		pa, pb, pc := mesh.Vertices[a], mesh.Vertices[b], mesh.Vertices[c]
		lab := r3.Norm(r3.Sub(pa, pb))
		lbc := r3.Norm(r3.Sub(pb, pc))
		lca := r3.Norm(r3.Sub(pc, pa))
		shortest, sa, sb := lab, a, b
		longest := lab
		if lbc < shortest {
			shortest, sa, sb = lbc, b, c
		}
		if lbc > longest {
			longest = lbc
		}
		if lca < shortest {
			shortest, sa, sb = lca, c, a
		}
		if lca > longest {
			longest = lca
		}
		isSliver := shortest < minEdge
		if !isSliver && shortest > 0 {
			isSliver = longest/shortest > sliverAspectRatio
		}
		if isSliver {
			union(sa, sb)
		}
	}

	return rebuildAfterCollapse(mesh, parent, find)
}

func rebuildAfterCollapse(mesh stitch.Mesh, parent []int32, find func(int32) int32) stitch.Mesh {
	n := len(mesh.Vertices)
	newIndex := make([]int32, n)
	for i := range newIndex {
		newIndex[i] = -1
	}
	var out stitch.Mesh
	for i := 0; i < n; i++ {
		root := find(int32(i))
		if newIndex[root] == -1 {
			newIndex[root] = int32(len(out.Vertices))
			out.Vertices = append(out.Vertices, mesh.Vertices[root])
		}
		newIndex[i] = newIndex[root]
	}
	nTri := len(mesh.Triangles) / 3
	for t := 0; t < nTri; t++ {
		a := newIndex[mesh.Triangles[3*t]]
		b := newIndex[mesh.Triangles[3*t+1]]
		c := newIndex[mesh.Triangles[3*t+2]]
		if a == b || b == c || c == a {
			continue // degenerated away by the collapse
		}
		out.Triangles = append(out.Triangles, a, b, c)
	}
	return out
}

// decimateBarnacles removes vertices of valence 3 whose star is a single
// triangle (its three neighbors), replacing the three triangles of that
// star with the one triangle connecting the neighbors directly.
func decimateBarnacles(mesh stitch.Mesh) stitch.Mesh {
	adj := buildAdjacency(mesh)
	removed := make([]bool, len(mesh.Triangles)/3)
	var extra [][3]int32
	for v, nbrs := range adj.neighbors {
		if len(nbrs) != 3 || len(adj.incident[v]) != 3 {
			continue
		}
		allLive := true
		for _, t := range adj.incident[v] {
			if removed[t] {
				allLive = false
			}
		}
		if !allLive {
			continue
		}
		for _, t := range adj.incident[v] {
			removed[t] = true
		}
		extra = append(extra, [3]int32{nbrs[0], nbrs[1], nbrs[2]})
	}

	var out stitch.Mesh
	out.Vertices = mesh.Vertices
	nTri := len(mesh.Triangles) / 3
	for t := 0; t < nTri; t++ {
		if removed[t] {
			continue
		}
		out.Triangles = append(out.Triangles, mesh.Triangles[3*t], mesh.Triangles[3*t+1], mesh.Triangles[3*t+2])
	}
	for _, tri := range extra {
		out.Triangles = append(out.Triangles, tri[0], tri[1], tri[2])
	}
	return out
}

// FeatureWeights computes the per-vertex feature weight w(u): 1 minus a
// normalized count of particle neighbors within featureRadius, clamped to
// [0,1]. normCount is the volume ratio (featureRadius/particleRadius)^3,
// the neighbor count a uniform packing at one particle per
// particleRadius^3 would put inside a featureRadius ball — a stand-in for
// the expected neighbor count of a particle fully immersed in the fluid
// interior. Vertices near a free surface or thin feature see fewer
// neighbors and so get a weight close to 1; used as an edge weight in
// SmoothLaplacian, a uniformly-weighted neighborhood still averages
// normally, while a neighborhood with a mix of weights pulls a vertex
// preferentially toward its higher-weight (less-detailed) neighbors.
func FeatureWeights(mesh stitch.Mesh, particles []r3.Vec, featureRadius, particleRadius float64, bb d3.Box) ([]float64, error) {
	idx, err := neighbor.Build(particles, featureRadius, bb)
	if err != nil {
		return nil, err
	}
	normCount := math.Pow(featureRadius/particleRadius, 3)
	weights := make([]float64, len(mesh.Vertices))
	for i, v := range mesh.Vertices {
		var count int
		idx.Query(v, featureRadius, nil, func(int) { count++ })
		w := 1 - float64(count)/normCount
		if w < 0 {
			w = 0
		} else if w > 1 {
			w = 1
		}
		weights[i] = w
	}
	return weights, nil
}

// SmoothLaplacian runs iters iterations of weighted Laplacian smoothing.
// weights is per-vertex w(u); pass nil for the unweighted umbrella
// operator (w≡1). Updates are double-buffered: each iteration reads only
// the previous iteration's positions.
func SmoothLaplacian(mesh stitch.Mesh, iters int, weights []float64) stitch.Mesh {
	if iters <= 0 {
		return mesh
	}
	adj := buildAdjacency(mesh)
	cur := append([]r3.Vec(nil), mesh.Vertices...)
	next := make([]r3.Vec, len(cur))

	maxDegree := 0
	for _, nbrs := range adj.neighbors {
		if len(nbrs) > maxDegree {
			maxDegree = len(nbrs)
		}
	}
	w := make([]float64, maxDegree)
	dx := make([]float64, maxDegree)
	dy := make([]float64, maxDegree)
	dz := make([]float64, maxDegree)

	for it := 0; it < iters; it++ {
		for v := range cur {
			nbrs := adj.neighbors[v]
			if len(nbrs) == 0 {
				next[v] = cur[v]
				continue
			}
			wv, dxv, dyv, dzv := w[:len(nbrs)], dx[:len(nbrs)], dy[:len(nbrs)], dz[:len(nbrs)]
			for i, u := range nbrs {
				d := r3.Sub(cur[u], cur[v])
				dxv[i], dyv[i], dzv[i] = d.X, d.Y, d.Z
				if weights != nil {
					wv[i] = weights[u]
				} else {
					wv[i] = 1
				}
			}
			wsum := floats.Sum(wv)
			if wsum == 0 {
				next[v] = cur[v]
				continue
			}
			disp := r3.Vec{X: floats.Dot(wv, dxv), Y: floats.Dot(wv, dyv), Z: floats.Dot(wv, dzv)}
			next[v] = r3.Add(cur[v], r3.Scale(1/wsum, disp))
		}
		cur, next = next, cur
	}
	out := mesh
	out.Vertices = cur
	return out
}

// AreaWeightedNormals computes per-vertex normals as the area-weighted
// average of incident triangle normals, optionally smoothed and
// renormalized.
func AreaWeightedNormals(mesh stitch.Mesh, smoothIters int) []r3.Vec {
	normals := make([]r3.Vec, len(mesh.Vertices))
	nTri := len(mesh.Triangles) / 3
	for t := 0; t < nTri; t++ {
		a, b, c := mesh.Triangles[3*t], mesh.Triangles[3*t+1], mesh.Triangles[3*t+2]
		pa, pb, pc := mesh.Vertices[a], mesh.Vertices[b], mesh.Vertices[c]
		// cross product magnitude is twice the triangle area, so summing
		// it directly already area-weights the average.
		n := r3.Cross(r3.Sub(pb, pa), r3.Sub(pc, pa))
		normals[a] = r3.Add(normals[a], n)
		normals[b] = r3.Add(normals[b], n)
		normals[c] = r3.Add(normals[c], n)
	}
	normalize(normals)

	if smoothIters > 0 {
		adj := buildAdjacency(mesh)
		cur := normals
		next := make([]r3.Vec, len(cur))
		for it := 0; it < smoothIters; it++ {
			for v := range cur {
				nbrs := adj.neighbors[v]
				if len(nbrs) == 0 {
					next[v] = cur[v]
					continue
				}
				// Same umbrella-operator average SmoothLaplacian applies to
				// vertex positions (w≡1), applied here to the normal field:
				// the displacement toward the mean neighbor direction, not
				// the raw unnormalized neighbor sum.
				var sum r3.Vec
				for _, u := range nbrs {
					sum = r3.Add(sum, cur[u])
				}
				mean := r3.Scale(1/float64(len(nbrs)), sum)
				next[v] = r3.Add(cur[v], r3.Sub(mean, cur[v]))
			}
			cur, next = next, cur
		}
		normalize(cur)
		normals = cur
	}
	return normals
}

func normalize(vs []r3.Vec) {
	for i, v := range vs {
		l := r3.Norm(v)
		if l > 0 {
			vs[i] = r3.Scale(1/l, v)
		}
	}
}

// SPHGradientNormals computes ∇ρ at each mesh vertex via the SPH kernel
// gradient, negated and normalized: density increases inward, so -∇ρ
// points outward along the surface normal. include, if non-nil, excludes
// particle i from every vertex's gradient sum when include[i] is false —
// DetectFreeParticles' splash mask is the intended use, keeping an
// isolated droplet from biasing the gradient at a nearby vertex with a
// single lopsided contribution.
func SPHGradientNormals[F scalar.Float](mesh stitch.Mesh, particles []r3.Vec, include []bool, bb d3.Box, supportRadius float64, k kernel.CubicSpline3D[F], mass F) ([]r3.Vec, error) {
	idx, err := neighbor.Build(particles, supportRadius, bb)
	if err != nil {
		return nil, err
	}
	normals := make([]r3.Vec, len(mesh.Vertices))
	for i, v := range mesh.Vertices {
		var grad r3.Vec
		idx.Query(v, supportRadius, include, func(q int) {
			d := r3.Sub(v, particles[q])
			dist := r3.Norm(d)
			if dist == 0 {
				return
			}
			gm := float64(mass * k.GradMagnitude(F(dist)))
			grad = r3.Add(grad, r3.Scale(gm/dist, d))
		})
		l := r3.Norm(grad)
		if l > 0 {
			normals[i] = r3.Scale(-1/l, grad)
		}
	}
	return normals, nil
}

// InterpolateAttribute computes per-vertex attribute values as an SPH sum
// weighted by 1/ρ_p. A vertex with zero contributing particles within
// support, or whose contributing particles all have zero density, gets a
// zero value. include, if non-nil, excludes particle i from every
// vertex's sum when include[i] is false — see DetectFreeParticles.
func InterpolateAttribute[F scalar.Float](mesh stitch.Mesh, particles []r3.Vec, particleValues []float64, densities []F, include []bool, bb d3.Box, supportRadius float64, k kernel.CubicSpline3D[F], mass F) ([]float64, error) {
	idx, err := neighbor.Build(particles, supportRadius, bb)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(mesh.Vertices))
	for i, v := range mesh.Vertices {
		var sum F
		idx.Query(v, supportRadius, include, func(q int) {
			if densities[q] == 0 {
				return
			}
			w := mass * k.Eval(F(r3.Norm(r3.Sub(v, particles[q])))) / densities[q]
			sum += w * F(particleValues[q])
		})
		out[i] = float64(sum)
	}
	return out, nil
}

// DetectFreeParticles flags every particle with no other particle within
// splashRadius as a free (splash) particle: a droplet that has detached
// from the main fluid body and would otherwise reconstruct as a tiny,
// isolated blob around a single particle. splashRadius is an absolute
// distance (already scaled by the caller from a particle-radius
// multiple, the same convention supportRadius uses elsewhere in this
// package).
func DetectFreeParticles(particles []r3.Vec, splashRadius float64, bb d3.Box) ([]bool, error) {
	if splashRadius <= 0 {
		return nil, fmt.Errorf("postprocess: splash detection radius must be positive, got %v", splashRadius)
	}
	idx, err := neighbor.Build(particles, splashRadius, bb)
	if err != nil {
		return nil, err
	}
	free := make([]bool, len(particles))
	for i, p := range particles {
		neighbors := 0
		idx.Query(p, splashRadius, nil, func(q int) {
			if q != i {
				neighbors++
			}
		})
		free[i] = neighbors == 0
	}
	return free, nil
}

// ClampToAABB restricts mesh to bb. When clampVerts is false, any
// triangle with a vertex outside bb is dropped; when true, out-of-box
// vertices are clamped onto bb's faces instead, and no triangle is
// removed.
func ClampToAABB(mesh stitch.Mesh, bb d3.Box, clampVerts bool) stitch.Mesh {
	if clampVerts {
		out := mesh
		out.Vertices = append([]r3.Vec(nil), mesh.Vertices...)
		for i, v := range out.Vertices {
			out.Vertices[i] = d3.Clamp(v, bb.Min, bb.Max)
		}
		return out
	}
	inside := make([]bool, len(mesh.Vertices))
	for i, v := range mesh.Vertices {
		inside[i] = bb.Contains(v)
	}
	var out stitch.Mesh
	out.Vertices = mesh.Vertices
	nTri := len(mesh.Triangles) / 3
	for t := 0; t < nTri; t++ {
		a, b, c := mesh.Triangles[3*t], mesh.Triangles[3*t+1], mesh.Triangles[3*t+2]
		if inside[a] && inside[b] && inside[c] {
			out.Triangles = append(out.Triangles, a, b, c)
		}
	}
	return out
}
