package d3

import (
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"
)

// Box is an axis-aligned bounding box: the background grid's bounds, a
// subdomain's AABB or ghost-padded AABB, and the optional particle_aabb/
// mesh_aabb clip regions are all Box values.
type Box r3.Box

// NewBox creates a box with a given center and size.
func NewBox(center, size r3.Vec) Box {
	half := r3.Scale(0.5, size)
	return Box{Min: r3.Sub(center, half), Max: r3.Add(center, half)}
}

// Include enlarges a box to include a point. Used to grow a box one
// particle at a time when computing a particle set's enclosing AABB.
func (a Box) Include(v r3.Vec) Box {
	return Box{
		Min: MinElem(a.Min, v),
		Max: MaxElem(a.Max, v),
	}
}

// Size returns the box's extent along each axis.
func (a Box) Size() r3.Vec {
	return r3.Sub(a.Max, a.Min)
}

// Enlarge returns a box whose size grows by v in total (v/2 added to Max,
// v/2 subtracted from Min), so callers pass twice the per-side margin. Used for ghost-margin padding (one compact support
// radius) and output-clip-box padding.
func (a Box) Enlarge(v r3.Vec) Box {
	v = r3.Scale(0.5, v)
	return Box{
		Min: r3.Sub(a.Min, v),
		Max: r3.Add(a.Max, v),
	}
}

// Contains reports whether the box contains v, treating the boundary as
// inside. This is the closed-interval AABB test used for particle_aabb/
// mesh_aabb clipping; it is deliberately not the half-open [min,max) test
// grid.Map3 uses for cell bucketing, since a clip boundary should keep a
// particle that sits exactly on it rather than silently drop it.
func (a Box) Contains(v r3.Vec) bool {
	return a.Min.X <= v.X && a.Min.Y <= v.Y && a.Min.Z <= v.Z &&
		v.X <= a.Max.X && v.Y <= a.Max.Y && v.Z <= a.Max.Z
}

// Random returns a uniformly random point within the box.
func (b *Box) Random() r3.Vec {
	return r3.Vec{
		X: randomRange(b.Min.X, b.Max.X),
		Y: randomRange(b.Min.Y, b.Max.Y),
		Z: randomRange(b.Min.Z, b.Max.Z),
	}
}

// RandomSet returns n uniformly random points within the box, for
// synthesizing test particle clouds.
func (b *Box) RandomSet(n int) Set {
	s := make([]r3.Vec, n)
	for i := range s {
		s[i] = b.Random()
	}
	return s
}

func randomRange(a, b float64) float64 {
	return a + (b-a)*rand.Float64()
}
