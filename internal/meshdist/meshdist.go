// Package meshdist implements a nearest-vertex Hausdorff distance estimate
// between two triangle meshes, built on a kd-tree over mesh vertices for
// nearest-point queries. It exists for tests that compare the same
// particle set reconstructed under two different subdomain sizes and want
// a single number bounding how far apart the two output meshes are.
package meshdist

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// Hausdorff returns the two-sided nearest-vertex Hausdorff distance between
// vertex sets a and b: the larger of (the farthest any point of a is from
// its nearest point in b) and the same computed the other way around. Both
// slices must be non-empty.
func Hausdorff(a, b []r3.Vec) float64 {
	return math.Max(directed(a, b), directed(b, a))
}

// directed returns max over v in from of v's distance to its nearest point
// in to.
func directed(from, to []r3.Vec) float64 {
	tree := kdtree.New(newPoints(to), false)
	var maxDist2 float64
	for _, v := range from {
		_, dist2 := tree.Nearest(point(v))
		if dist2 > maxDist2 {
			maxDist2 = dist2
		}
	}
	return math.Sqrt(maxDist2)
}

// point is a single vertex as a kdtree.Comparable, comparing and measuring
// distance along whichever axis the tree asks for.
type point r3.Vec

func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return compDim(r3.Vec(p), r3.Vec(c.(point)), int(d))
}

func (p point) Dims() int { return 3 }

func (p point) Distance(c kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(r3.Vec(p), r3.Vec(c.(point))))
}

// points is a kdtree.Interface over a vertex slice, partitioned by
// median-of-medians pivoting.
type points []r3.Vec

func newPoints(vs []r3.Vec) points {
	return points(append([]r3.Vec(nil), vs...))
}

func (s points) Index(i int) kdtree.Comparable { return point(s[i]) }
func (s points) Len() int                      { return len(s) }

func (s points) Pivot(d kdtree.Dim) int {
	p := plane{dim: int(d), pts: s}
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

func (s points) Slice(start, end int) kdtree.Interface {
	return s[start:end]
}

type plane struct {
	dim int
	pts points
}

func (p plane) Less(i, j int) bool { return compDim(p.pts[i], p.pts[j], p.dim) < 0 }
func (p plane) Swap(i, j int)      { p.pts[i], p.pts[j] = p.pts[j], p.pts[i] }
func (p plane) Len() int           { return len(p.pts) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.pts = p.pts[start:end]
	return p
}

func compDim(a, b r3.Vec, dim int) float64 {
	switch dim {
	case 0:
		return a.X - b.X
	case 1:
		return a.Y - b.Y
	default:
		return a.Z - b.Z
	}
}
