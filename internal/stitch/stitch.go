// Package stitch merges per-subdomain Marching Cubes patches into one
// indexed mesh with no duplicated vertices and no dangling edges at
// subdomain boundaries.
package stitch

import (
	"fmt"

	"github.com/soypat/surfrecon/internal/grid"
	"github.com/soypat/surfrecon/internal/mc"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh is the global indexed triangle mesh produced by Merge.
type Mesh struct {
	Vertices  []r3.Vec
	Triangles []int32 // groups of 3, indexing Vertices
}

type ownerRecord struct {
	globalIndex    int32
	ownerSubdomain int
}

func errLenMismatch(nSub, nPatch int) error {
	return fmt.Errorf("stitch: %d subdomains but %d patches", nSub, nPatch)
}

// Merge runs a two-pass merge protocol. patches[s] is the triangulation
// of subdomains[s]; a pruned subdomain has an empty Patch and contributes
// nothing. subdomains must be in the canonical (I,J,K)-ascending order
// grid.Subdomains produces — Merge relies on that order to realize the
// "smallest index among sharers owns the vertex" tie-break: the first
// subdomain (in this order) to touch a shared EdgeKey becomes its owner.
func Merge(subdomains []grid.Subdomain, patches []mc.Patch) (Mesh, error) {
	if len(subdomains) != len(patches) {
		return Mesh{}, errLenMismatch(len(subdomains), len(patches))
	}

	// Pass 1 (sequential bookkeeping): assign a global vertex index to
	// every owned vertex and resolve every boundary vertex's owner, in
	// canonical subdomain order. Because ownership resolution for a
	// shared EdgeKey only needs to see earlier subdomains, one sequential
	// sweep suffices — there is nothing to meaningfully parallelize in the
	// bookkeeping itself, only in the (separate, expensive) vertex/
	// triangle writing of pass 2.
	owners := make(map[mc.EdgeKey]ownerRecord)
	localToGlobal := make([][]int32, len(subdomains))
	ownedHere := make([][]bool, len(subdomains))
	var total int32
	for s, patch := range patches {
		l2g := make([]int32, len(patch.Vertices))
		owned := make([]bool, len(patch.Vertices))
		for i, v := range patch.Vertices {
			if !v.Boundary {
				l2g[i] = total
				owned[i] = true
				total++
				continue
			}
			if rec, ok := owners[v.Key]; ok {
				l2g[i] = rec.globalIndex
				owned[i] = false
				continue
			}
			idx := total
			owners[v.Key] = ownerRecord{globalIndex: idx, ownerSubdomain: s}
			l2g[i] = idx
			owned[i] = true
			total++
		}
		localToGlobal[s] = l2g
		ownedHere[s] = owned
	}

	mesh := Mesh{Vertices: make([]r3.Vec, total)}
	triCounts := make([]int, len(subdomains))
	triOffsets := make([]int, len(subdomains)+1)
	for s, patch := range patches {
		triCounts[s] = len(patch.Triangles)
		triOffsets[s+1] = triOffsets[s] + triCounts[s]
	}
	mesh.Triangles = make([]int32, triOffsets[len(subdomains)])

	// Pass 2 (parallel over subdomains): each subdomain writes only the
	// vertices it owns, into its own slots of the shared mesh.Vertices
	// array, and remaps its own triangle indices into a disjoint slice of
	// mesh.Triangles — no subdomain ever touches another's slots, so no
	// synchronization is needed inside the loop.
	var g errgroup.Group
	for s := range subdomains {
		s := s
		g.Go(func() error {
			patch := patches[s]
			l2g := localToGlobal[s]
			owned := ownedHere[s]
			for i, v := range patch.Vertices {
				if owned[i] {
					mesh.Vertices[l2g[i]] = v.Pos
				}
			}
			dst := mesh.Triangles[triOffsets[s]:triOffsets[s+1]]
			for i, localIdx := range patch.Triangles {
				dst[i] = l2g[localIdx]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Mesh{}, err
	}
	return mesh, nil
}
