// Package surfrecon reconstructs a watertight triangle mesh from an SPH
// particle set by evaluating the smoothed density field on a background
// Marching Cubes grid, partitioned into independent subdomains for
// parallel, boundary-consistent processing, then stitching the
// per-subdomain patches into one indexed mesh.
package surfrecon

import (
	"time"

	"github.com/soypat/surfrecon/internal/d3"
	"github.com/soypat/surfrecon/internal/density"
	"github.com/soypat/surfrecon/internal/grid"
	"github.com/soypat/surfrecon/internal/kernel"
	"github.com/soypat/surfrecon/internal/mc"
	"github.com/soypat/surfrecon/internal/postprocess"
	"github.com/soypat/surfrecon/internal/stitch"
	"github.com/soypat/surfrecon/internal/subdomain"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
)

// Output is the result of a successful Reconstruct call.
type Output struct {
	Vertices []r3.Vec
	// Triangles indexes Vertices in groups of 3, one group per triangle.
	Triangles []int32
	// Normals is nil unless Config.Normals != NormalsNone, and is then
	// parallel to Vertices.
	Normals []r3.Vec
	// Attributes holds one interpolated slice per key of the attributes
	// map passed to Reconstruct, each parallel to Vertices.
	Attributes map[string][]float64
	Stats      Stats
}

// Stats reports sizing and per-phase timing for one reconstruction, useful
// for tuning Config.SubdomainCubes and diagnosing slow inputs.
type Stats struct {
	ParticleCount    int
	SubdomainCount   int
	SparseSubdomains int
	PrunedSubdomains int
	VertexCount      int
	TriangleCount    int
	// FreeParticleCount is the number of particles splash detection flagged
	// as isolated, or 0 if Config.SplashDetectionRadius is 0.
	FreeParticleCount int

	Classify    time.Duration
	Density     time.Duration
	Triangulate time.Duration
	Stitch      time.Duration
	Postprocess time.Duration
	Total       time.Duration
}

// Reconstruct builds a triangle mesh approximating the τ·ρ₀ iso-surface of
// the SPH density field defined by particles. attributes, if non-nil, maps
// an attribute name to one value per entry of particles; each is
// SPH-interpolated onto the output mesh's vertices under the same key.
func Reconstruct(particles []r3.Vec, attributes map[string][]float64, cfg Config) (*Output, error) {
	start := time.Now()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	pts, attrs, err := clipParticles(particles, attributes, cfg)
	if err != nil {
		return nil, err
	}
	if len(pts) == 0 {
		return nil, newEmptyInputError("no particle falls inside particle_aabb")
	}

	supportRadius := cfg.SupportRadius()
	voxelEdge := cfg.VoxelEdge()
	mass := kernel.Mass(cfg.ParticleRadius, cfg.RestDensity)
	k := kernel.New(supportRadius)
	threshold := cfg.IsoSurfaceThreshold * cfg.RestDensity

	particleBB, err := grid.EnclosingAABB(pts, 0)
	if err != nil {
		return nil, newNumericDomainError("computing particle bounds: %v", err)
	}
	bg, err := grid.NewBackground(particleBB, voxelEdge, supportRadius)
	if err != nil {
		return nil, newNumericDomainError("building background grid: %v", err)
	}
	dims := grid.SubdomainDims(bg, cfg.SubdomainCubes)
	subs, err := grid.Subdomains(bg, cfg.SubdomainCubes, supportRadius)
	if err != nil {
		return nil, newNumericDomainError("partitioning subdomains: %v", err)
	}

	classifyStart := time.Now()
	classification, err := subdomain.Classify(pts, subs, dims, cfg.SubdomainCubes, cfg.ThreadCount)
	if err != nil {
		return nil, newNumericDomainError("classifying particles: %v", err)
	}
	classifyDur := time.Since(classifyStart)

	densityStart := time.Now()
	globalDensity, err := computeParticleDensities(cfg, pts, classification, subs, supportRadius, k, mass)
	if err != nil {
		return nil, newNumericDomainError("computing particle densities: %v", err)
	}
	densityDur := time.Since(densityStart)

	var freeParticles []bool
	if cfg.SplashDetectionRadius > 0 {
		splashRadius := cfg.SplashDetectionRadius * cfg.ParticleRadius
		splashBB := particleBB.Enlarge(d3.Elem(2 * splashRadius))
		freeParticles, err = postprocess.DetectFreeParticles(pts, splashRadius, splashBB)
		if err != nil {
			return nil, newNumericDomainError("detecting free particles: %v", err)
		}
	}

	triStart := time.Now()
	patches, err := triangulateSubdomains(pts, classification, subs, bg, supportRadius, voxelEdge, k, mass, threshold)
	if err != nil {
		return nil, newNumericDomainError("triangulating subdomains: %v", err)
	}
	triDur := time.Since(triStart)

	stitchStart := time.Now()
	mesh, err := stitch.Merge(subs, patches)
	if err != nil {
		return nil, newNumericDomainError("stitching patches: %v", err)
	}
	stitchDur := time.Since(stitchStart)
	if len(mesh.Triangles) == 0 {
		return nil, newDegenerateError("iso-surface extraction found zero triangles")
	}

	ppStart := time.Now()
	out, err := postprocessMesh(cfg, mesh, pts, attrs, globalDensity, freeParticles, particleBB, supportRadius, k, mass)
	if err != nil {
		return nil, err
	}
	ppDur := time.Since(ppStart)

	out.Stats = Stats{
		ParticleCount:     len(pts),
		SubdomainCount:    len(subs),
		SparseSubdomains:  countTrue(classification.Sparse),
		PrunedSubdomains:  countTrue(classification.Pruned),
		VertexCount:       len(out.Vertices),
		TriangleCount:     len(out.Triangles) / 3,
		FreeParticleCount: countTrue(freeParticles),
		Classify:          classifyDur,
		Density:           densityDur,
		Triangulate:       triDur,
		Stitch:            stitchDur,
		Postprocess:       ppDur,
		Total:             time.Since(start),
	}
	return out, nil
}

// clipParticles applies Config.ParticleAABB, if set, to both particles and
// the parallel attribute arrays, keeping every slice aligned by the kept
// indices.
func clipParticles(particles []r3.Vec, attributes map[string][]float64, cfg Config) ([]r3.Vec, map[string][]float64, error) {
	for name, values := range attributes {
		if len(values) != len(particles) {
			return nil, nil, newConfigError("attribute %q has %d values, want %d (one per particle)", name, len(values), len(particles))
		}
	}
	if !cfg.HasParticleAABB {
		return particles, attributes, nil
	}
	var pts []r3.Vec
	var keep []int32
	for i, p := range particles {
		if cfg.ParticleAABB.Contains(p) {
			pts = append(pts, p)
			keep = append(keep, int32(i))
		}
	}
	if len(attributes) == 0 {
		return pts, nil, nil
	}
	out := make(map[string][]float64, len(attributes))
	for name, values := range attributes {
		clipped := make([]float64, len(keep))
		for i, pi := range keep {
			clipped[i] = values[pi]
		}
		out[name] = clipped
	}
	return pts, out, nil
}

// computeParticleDensities builds the per-particle SPH density array that
// feeds attribute interpolation's 1/ρ_p weighting.
//
// With GlobalDensity set, it runs Stage A once per subdomain in parallel,
// reusing the owned-particle working set Stage B needs anyway; every
// particle's density comes from exactly the subdomain that owns it, so the
// array is assembled without contention. With GlobalDensity unset, it
// recomputes densities from a single neighborhood index spanning every
// particle, ignoring the subdomain partition — simpler, and unaffected by
// any subtlety in how ghost margins are sized, at the cost of one
// additional O(n) spatial index build.
func computeParticleDensities(cfg Config, pts []r3.Vec, classification *subdomain.Classification, subs []grid.Subdomain, supportRadius float64, k kernel.CubicSpline3D[float64], mass float64) ([]float64, error) {
	if cfg.DensityPrecision == PrecisionFloat32 {
		return computeParticleDensitiesFloat32(cfg, pts, classification, subs, supportRadius)
	}
	globalDensity := make([]float64, len(pts))
	if cfg.GlobalDensity {
		var g errgroup.Group
		for s := range subs {
			s := s
			if classification.Pruned[s] {
				continue
			}
			g.Go(func() error {
				owned := classification.Owned[s]
				ownedRho, _, err := density.ParticleDensities(pts, owned, classification.Ghost[s], subs[s].GhostAABB, supportRadius, k, mass, nil)
				if err != nil {
					return err
				}
				for i, pi := range owned {
					globalDensity[pi] = ownedRho[i]
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return globalDensity, nil
	}

	bb, err := grid.EnclosingAABB(pts, supportRadius)
	if err != nil {
		return nil, err
	}
	all := make([]int32, len(pts))
	for i := range all {
		all[i] = int32(i)
	}
	ownedRho, _, err := density.ParticleDensities(pts, all, nil, bb, supportRadius, k, mass, nil)
	if err != nil {
		return nil, err
	}
	return ownedRho, nil
}

// computeParticleDensitiesFloat32 is computeParticleDensities' float32
// instantiation, selected by Config.DensityPrecision. It builds its own
// kernel and mass in float32 — the rest of the pipeline keeps using the
// float64 values computed once in Reconstruct — and casts the result back
// to float64 since its downstream consumer (attribute interpolation's
// 1/ρ_p weighting) is float64.
func computeParticleDensitiesFloat32(cfg Config, pts []r3.Vec, classification *subdomain.Classification, subs []grid.Subdomain, supportRadius float64) ([]float64, error) {
	k32 := kernel.New(float32(supportRadius))
	mass32 := kernel.Mass(float32(cfg.ParticleRadius), float32(cfg.RestDensity))

	if cfg.GlobalDensity {
		globalDensity := make([]float64, len(pts))
		var g errgroup.Group
		for s := range subs {
			s := s
			if classification.Pruned[s] {
				continue
			}
			g.Go(func() error {
				owned := classification.Owned[s]
				ownedRho, _, err := density.ParticleDensities(pts, owned, classification.Ghost[s], subs[s].GhostAABB, supportRadius, k32, mass32, nil)
				if err != nil {
					return err
				}
				for i, pi := range owned {
					globalDensity[pi] = float64(ownedRho[i])
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return globalDensity, nil
	}

	bb, err := grid.EnclosingAABB(pts, supportRadius)
	if err != nil {
		return nil, err
	}
	all := make([]int32, len(pts))
	for i := range all {
		all[i] = int32(i)
	}
	ownedRho32, _, err := density.ParticleDensities(pts, all, nil, bb, supportRadius, k32, mass32, nil)
	if err != nil {
		return nil, err
	}
	ownedRho := make([]float64, len(ownedRho32))
	for i, v := range ownedRho32 {
		ownedRho[i] = float64(v)
	}
	return ownedRho, nil
}

// triangulateSubdomains runs Stage B (density.EvaluateField) and Marching
// Cubes triangulation for every non-pruned subdomain in parallel; a pruned
// subdomain keeps the zero-value Patch at its index, which stitch.Merge
// treats as contributing nothing.
func triangulateSubdomains(pts []r3.Vec, classification *subdomain.Classification, subs []grid.Subdomain, bg grid.Background, supportRadius, voxelEdge float64, k kernel.CubicSpline3D[float64], mass, threshold float64) ([]mc.Patch, error) {
	patches := make([]mc.Patch, len(subs))
	var g errgroup.Group
	for s := range subs {
		s := s
		if classification.Pruned[s] {
			continue
		}
		g.Go(func() error {
			sub := subs[s]
			n := sub.CellsSide + 1
			origin := bg.CellOrigin(sub.CellMin)
			var field *density.Field[float64]
			if classification.Sparse[s] {
				field = density.NewSparseField[float64](origin, voxelEdge, n)
			} else {
				field = density.NewDenseField[float64](origin, voxelEdge, n)
			}
			working := make([]int32, 0, len(classification.Owned[s])+len(classification.Ghost[s]))
			working = append(working, classification.Owned[s]...)
			working = append(working, classification.Ghost[s]...)
			density.EvaluateField(field, pts, working, classification.GlobalKey, supportRadius, k, mass)
			patches[s] = mc.Triangulate(field, sub, threshold)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return patches, nil
}

// postprocessMesh runs cleanup, smoothing, normals, attribute interpolation
// and output clipping in that order, matching the data-flow order a single
// pass over the stitched mesh requires: cleanup and smoothing change vertex
// positions, so normals and attribute interpolation (which sample the SPH
// field at those positions) must run after both.
func postprocessMesh(cfg Config, mesh stitch.Mesh, pts []r3.Vec, attrs map[string][]float64, densities []float64, freeParticles []bool, particleBB d3.Box, supportRadius float64, k kernel.CubicSpline3D[float64], mass float64) (*Output, error) {
	mesh = postprocess.Cleanup(mesh, cfg.VoxelEdge(), postprocess.CleanupMode(cfg.MeshCleanup))

	if cfg.MeshSmoothingIters > 0 {
		var weights []float64
		if cfg.MeshSmoothingWeights {
			featureRadius := cfg.FeatureRadius * cfg.ParticleRadius
			bb := particleBB.Enlarge(d3.Elem(2 * featureRadius))
			w, err := postprocess.FeatureWeights(mesh, pts, featureRadius, cfg.ParticleRadius, bb)
			if err != nil {
				return nil, newNumericDomainError("computing feature weights: %v", err)
			}
			weights = w
		}
		mesh = postprocess.SmoothLaplacian(mesh, cfg.MeshSmoothingIters, weights)
	}

	supportBB := particleBB.Enlarge(d3.Elem(2 * supportRadius))

	var include []bool
	if freeParticles != nil {
		include = make([]bool, len(freeParticles))
		for i, free := range freeParticles {
			include[i] = !free
		}
	}

	var normals []r3.Vec
	var err error
	switch cfg.Normals {
	case NormalsAreaWeighted:
		normals = postprocess.AreaWeightedNormals(mesh, cfg.NormalsSmoothingIters)
	case NormalsSPHGradient:
		normals, err = postprocess.SPHGradientNormals(mesh, pts, include, supportBB, supportRadius, k, mass)
		if err != nil {
			return nil, newNumericDomainError("computing SPH-gradient normals: %v", err)
		}
	}

	var outAttrs map[string][]float64
	if len(attrs) > 0 {
		outAttrs = make(map[string][]float64, len(attrs))
		for name, values := range attrs {
			interp, err := postprocess.InterpolateAttribute(mesh, pts, values, densities, include, supportBB, supportRadius, k, mass)
			if err != nil {
				return nil, newNumericDomainError("interpolating attribute %q: %v", name, err)
			}
			outAttrs[name] = interp
		}
	}

	if cfg.HasMeshAABB {
		mesh = postprocess.ClampToAABB(mesh, cfg.MeshAABB, cfg.MeshAABBClampVerts)
		if len(mesh.Triangles) == 0 {
			return nil, newDegenerateError("mesh_aabb clipped away every triangle")
		}
	}

	return &Output{
		Vertices:   mesh.Vertices,
		Triangles:  mesh.Triangles,
		Normals:    normals,
		Attributes: outAttrs,
	}, nil
}

func countTrue(bs []bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}
