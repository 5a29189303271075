package d3

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Elem returns a vector with all three components set to sides, e.g. for
// building an isotropic padding vector to pass to Box.Enlarge.
func Elem(sides float64) r3.Vec {
	return r3.Vec{
		X: sides,
		Y: sides,
		Z: sides,
	}
}

// EqualWithin reports whether a and b match within an absolute tolerance on
// every component. Used by tests asserting near-identical vertex positions
// (e.g. that a Laplacian smoothing pass left a regular shape's center
// fixed).
func EqualWithin(a, b r3.Vec, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol &&
		math.Abs(a.Y-b.Y) <= tol &&
		math.Abs(a.Z-b.Z) <= tol
}

// LTEZero reports whether any component of a is <= 0. grid.NewMap3 uses
// this to reject a degenerate (zero- or negative-size) bounding box before
// dividing by it.
func LTEZero(a r3.Vec) bool {
	return (a.X <= 0) || (a.Y <= 0) || (a.Z <= 0)
}

// MinElem returns the component-wise minimum of a and b.
func MinElem(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y), Z: math.Min(a.Z, b.Z)}
}

// MaxElem returns the component-wise maximum of a and b.
func MaxElem(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)}
}

// Clamp clamps each component of x between the corresponding components of
// a and b (a <= b assumed). Used by postprocess.ClampToAABB's vertex-clamp
// mode to project an out-of-box vertex back onto the box face.
func Clamp(x, a, b r3.Vec) r3.Vec {
	return r3.Vec{
		X: clamp(x.X, a.X, b.X),
		Y: clamp(x.Y, a.Y, b.Y),
		Z: clamp(x.Z, a.Z, b.Z),
	}
}

func clamp(x, a, b float64) float64 {
	return math.Min(b, math.Max(x, a))
}

// Set is a collection of points, e.g. a synthetic particle cloud generated
// by Box.RandomSet for tests.
type Set []r3.Vec
