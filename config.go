package surfrecon

import "github.com/soypat/surfrecon/internal/d3"

// NormalsMode selects how Output.Normals are computed.
type NormalsMode int

const (
	// NormalsNone disables normal computation.
	NormalsNone NormalsMode = iota
	// NormalsAreaWeighted averages incident triangle normals weighted by
	// triangle area, optionally Laplacian-smoothed and renormalized.
	NormalsAreaWeighted
	// NormalsSPHGradient computes ∇ρ at each vertex via the SPH kernel
	// gradient and uses its negated, normalized direction.
	NormalsSPHGradient
)

// CleanupMode selects the mesh-cleanup strategy.
type CleanupMode int

const (
	// CleanupNone skips post-triangulation cleanup entirely.
	CleanupNone CleanupMode = iota
	// CleanupEdgeCollapse removes slivers by collapsing their shortest
	// edge.
	CleanupEdgeCollapse
	// CleanupBarnacleDecimation removes only the "barnacle" adjacency
	// pattern: the three triangles around a vertex of valence 3 are
	// replaced by the single triangle joining its three neighbors. Only
	// valence is tested; no angle or reflex test is made on the neighbors.
	CleanupBarnacleDecimation
)

// Precision selects the floating-point width used for the particle density
// pre-pass (Stage A, see internal/density.ParticleDensities). The rest of
// the pipeline — Marching Cubes, stitching, and post-processing — always
// computes in float64 regardless of this setting: Stage A's per-particle
// SPH sum is the one stage local enough, and cheap enough per-call, that a
// caller processing a large particle count can trade its accuracy for
// throughput without touching the boundary-consistency machinery the rest
// of the pipeline depends on.
type Precision int

const (
	// PrecisionFloat64 runs Stage A in float64 (default).
	PrecisionFloat64 Precision = iota
	// PrecisionFloat32 runs Stage A in float32, via chewxy/math32.
	PrecisionFloat32
)

// Config is the immutable bundle of parameters recognized by the core. It
// is validated once, at the entry point, and is read-only for the
// duration of a reconstruction.
type Config struct {
	// ParticleRadius is r (>0): defines rest volume (4/3)πr³ and particle
	// mass.
	ParticleRadius float64
	// RestDensity is ρ₀ (>0): divisor for iso-threshold normalization.
	RestDensity float64
	// SmoothingLength is h (>0, units of r): SPH kernel parameter; compact
	// support radius is 2·h·r.
	SmoothingLength float64
	// CubeSize is Δ (>0, units of r): edge length of MC voxels.
	CubeSize float64
	// IsoSurfaceThreshold is τ, normalized density level defining the
	// surface. Defaults to 0.6.
	IsoSurfaceThreshold float64
	// SubdomainCubes is S (default 64): MC cells per subdomain axis. Must
	// be >0 and <=256.
	SubdomainCubes int
	// ParticleAABB optionally clips the input particle set before
	// reconstruction. It is used only when HasParticleAABB is set, and
	// then must have Min strictly below Max on every axis.
	ParticleAABB    d3.Box
	HasParticleAABB bool

	// GlobalDensity selects how the per-particle density array used by
	// attribute interpolation is built. When true, Stage A runs once per
	// subdomain over its owned+ghost working set and each particle takes
	// the density its owning subdomain computed. Default false: densities
	// are computed from one neighborhood index over every particle,
	// ignoring the subdomain partition.
	GlobalDensity bool

	// MeshSmoothingIters is N, the number of weighted-Laplacian smoothing
	// iterations applied to vertex positions. 0 disables smoothing.
	MeshSmoothingIters int
	// MeshSmoothingWeights enables feature-preserving weighting; when
	// false the smoother is a plain umbrella operator (w≡1).
	MeshSmoothingWeights bool
	// FeatureRadius is the neighbor-count radius used by the
	// feature-weight computation, in units of r. Only meaningful when
	// MeshSmoothingWeights is set.
	FeatureRadius float64

	// MeshCleanup selects the sliver-removal strategy.
	MeshCleanup CleanupMode

	// Normals selects the normal computation strategy.
	Normals NormalsMode
	// NormalsSmoothingIters smooths the normal field (area-weighted mode
	// only) before renormalization.
	NormalsSmoothingIters int

	// MeshAABB optionally clips the output mesh.
	MeshAABB    d3.Box
	HasMeshAABB bool
	// MeshAABBClampVerts: when true, vertices outside MeshAABB are
	// clamped to its boundary instead of dropping their triangles.
	MeshAABBClampVerts bool

	// ThreadCount bounds the number of workers particle classification
	// uses. 0 means "let the runtime decide" (GOMAXPROCS). The density and
	// triangulation stages are not bounded by it: they start one goroutine
	// per non-pruned subdomain.
	ThreadCount int

	// DensityPrecision selects the floating-point width of the Stage A
	// density pre-pass. Defaults to PrecisionFloat64.
	DensityPrecision Precision

	// SplashDetectionRadius, in units of r, flags a particle as free
	// (splash) when it has no other particle within this radius. 0
	// (default) disables splash detection entirely. A free particle's
	// position still contributes to the density field and the iso-surface
	// the same as any other particle, but is excluded from the
	// SPHGradientNormals and attribute-interpolation sums at nearby mesh
	// vertices, so a single wind-blown droplet doesn't bias the gradient
	// or attribute value computed at a vertex that happens to sit near it.
	SplashDetectionRadius float64
}

// DefaultConfig returns a Config with iso_surface_threshold=0.6 and
// subdomain_cubes=64, and every other field at its zero value. Callers
// must still set ParticleRadius, RestDensity, SmoothingLength and
// CubeSize, which have no sane default.
func DefaultConfig() Config {
	return Config{
		IsoSurfaceThreshold: 0.6,
		SubdomainCubes:      64,
	}
}

// SupportRadius returns the SPH compact support radius 2·h·r.
func (c Config) SupportRadius() float64 {
	return 2 * c.SmoothingLength * c.ParticleRadius
}

// VoxelEdge returns the Marching Cubes voxel edge length Δ·r.
func (c Config) VoxelEdge() float64 {
	return c.CubeSize * c.ParticleRadius
}

// validate checks every condition that should make Reconstruct fail fast
// with a ConfigInvalid error rather than compute on nonsensical input.
func (c Config) validate() *ReconstructionError {
	if c.ParticleRadius <= 0 {
		return newConfigError("particle_radius must be positive, got %v", c.ParticleRadius)
	}
	if c.RestDensity <= 0 {
		return newConfigError("rest_density must be positive, got %v", c.RestDensity)
	}
	if c.SmoothingLength <= 0 {
		return newConfigError("smoothing_length must be positive, got %v", c.SmoothingLength)
	}
	if c.CubeSize <= 0 {
		return newConfigError("cube_size must be positive, got %v", c.CubeSize)
	}
	if c.SubdomainCubes <= 0 || c.SubdomainCubes > 256 {
		return newConfigError("subdomain_cubes must be in (0,256], got %d", c.SubdomainCubes)
	}
	if c.HasParticleAABB && !(c.ParticleAABB.Min.X < c.ParticleAABB.Max.X &&
		c.ParticleAABB.Min.Y < c.ParticleAABB.Max.Y &&
		c.ParticleAABB.Min.Z < c.ParticleAABB.Max.Z) {
		return newConfigError("particle_aabb min must be strictly less than max, got %+v", c.ParticleAABB)
	}
	if c.HasMeshAABB && !(c.MeshAABB.Min.X < c.MeshAABB.Max.X &&
		c.MeshAABB.Min.Y < c.MeshAABB.Max.Y &&
		c.MeshAABB.Min.Z < c.MeshAABB.Max.Z) {
		return newConfigError("mesh_aabb min must be strictly less than max, got %+v", c.MeshAABB)
	}
	if c.MeshSmoothingIters < 0 {
		return newConfigError("mesh_smoothing_iters must be non-negative, got %d", c.MeshSmoothingIters)
	}
	if c.NormalsSmoothingIters < 0 {
		return newConfigError("normals_smoothing_iters must be non-negative, got %d", c.NormalsSmoothingIters)
	}
	if c.DensityPrecision != PrecisionFloat64 && c.DensityPrecision != PrecisionFloat32 {
		return newConfigError("density_precision must be PrecisionFloat64 or PrecisionFloat32, got %d", c.DensityPrecision)
	}
	if c.SplashDetectionRadius < 0 {
		return newConfigError("splash_detection_radius must be non-negative, got %v", c.SplashDetectionRadius)
	}
	return nil
}
