// Package subdomain classifies particles against a subdomain partition: it
// buckets the global particle array into owned and ghost working sets per
// subdomain, using the same counting-sort shape the neighbor package uses
// one level down, and computes the canonical global particle key that
// internal/density needs for its fixed summation order.
package subdomain

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/soypat/surfrecon/internal/grid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
)

// Classification is the output of Classify: per-subdomain owned and ghost
// particle index sets, plus the bookkeeping the rest of the pipeline needs
// to treat each subdomain as an independent unit.
type Classification struct {
	Subdomains []grid.Subdomain
	dims       grid.Index3

	// Owned[s] holds, for subdomain s, the indices into the original
	// particles slice that subdomain owns (centers inside its AABB).
	Owned [][]int32
	// Ghost[s] holds indices of particles owned by a different subdomain
	// but whose compact support reaches into subdomain s.
	Ghost [][]int32
	// Sparse[s] flags subdomains whose owned count is below 5% of the
	// maximum owned count across all subdomains; the root package reads
	// this to give such a subdomain a map-backed density.Field instead of
	// the dense array.
	Sparse []bool
	// Pruned[s] flags subdomains with zero owned particles; they emit no
	// patch and are skipped by every later stage.
	Pruned []bool

	// GlobalKey[i] is the canonical sort key of original particle i,
	// packing (owner subdomain flat index, index within that owner's
	// Owned slice) into a single uint64 so density evaluation can iterate
	// contributing particles in a fixed cross-subdomain order. Particles
	// with no owner (pruned/out-of-range) get the sentinel key
	// ^uint64(0).
	GlobalKey []uint64
}

// NoOwner is the GlobalKey sentinel for a particle with no owning
// subdomain.
const NoOwner = ^uint64(0)

// Classify buckets positions into the subdomains of subs (as produced by
// grid.Subdomains, whose GhostAABB already carries the ghost
// margin). threadCount bounds worker parallelism; 0 lets the runtime
// decide.
func Classify(positions []r3.Vec, subs []grid.Subdomain, dims grid.Index3, cubesPerAxis int, threadCount int) (*Classification, error) {
	if len(subs) != dims.I*dims.J*dims.K {
		return nil, fmt.Errorf("subdomain: subdomain slice length %d does not match dims %v", len(subs), dims)
	}
	c := &Classification{
		Subdomains: subs,
		dims:       dims,
		Owned:      make([][]int32, len(subs)),
		Ghost:      make([][]int32, len(subs)),
		Sparse:     make([]bool, len(subs)),
		Pruned:     make([]bool, len(subs)),
		GlobalKey:  make([]uint64, len(positions)),
	}
	for i := range c.GlobalKey {
		c.GlobalKey[i] = NoOwner
	}

	owner := make([]int32, len(positions)) // flat subdomain index, or -1
	if err := c.assignOwners(positions, owner, cubesPerAxis, threadCount); err != nil {
		return nil, err
	}
	c.bucketOwned(positions, owner)
	c.markSparse()
	c.addGhosts(positions, threadCount)
	return c, nil
}

// assignOwners computes, for each particle, the flat index of the
// subdomain whose AABB contains it, or -1 if the particle falls outside
// every subdomain (clip region boundary effects). Parallelized over
// contiguous chunks of the particle array via errgroup — each goroutine
// only writes its own disjoint slice of owner, so no synchronization is
// needed inside the loop.
func (c *Classification) assignOwners(positions []r3.Vec, owner []int32, cubesPerAxis int, threadCount int) error {
	n := len(positions)
	if n == 0 {
		return nil
	}
	workers := threadCount
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers

	lo := c.Subdomains[0].AABB.Min // global min corner, subdomain (0,0,0)
	cell := c.Subdomains[0].AABB.Size().X / float64(cubesPerAxis)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				owner[i] = c.ownerOf(positions[i], lo, cell, cubesPerAxis)
			}
			return nil
		})
	}
	return g.Wait()
}

// ownerOf maps a world position to a flat subdomain index using the same
// cell-to-subdomain block division the grid package used to build subs:
// I = floor((cellIndex.I) / cubesPerAxis), clamped into [0,dims.I).
func (c *Classification) ownerOf(p r3.Vec, lo r3.Vec, cell float64, cubesPerAxis int) int32 {
	i := int((p.X - lo.X) / cell)
	j := int((p.Y - lo.Y) / cell)
	k := int((p.Z - lo.Z) / cell)
	I := clampInt(i/cubesPerAxis, 0, c.dims.I-1)
	J := clampInt(j/cubesPerAxis, 0, c.dims.J-1)
	K := clampInt(k/cubesPerAxis, 0, c.dims.K-1)
	idx := grid.Index3{I: I, J: J, K: K}
	flat := (idx.I*c.dims.J+idx.J)*c.dims.K + idx.K
	if !c.Subdomains[flat].AABB.Contains(p) {
		// particle sits in the ghost margin of a boundary cell's
		// rounding, not actually inside any subdomain's owned AABB.
		return -1
	}
	return int32(flat)
}

// bucketOwned is the counting-sort scatter step: a single pass counts, a
// prefix sum lays out contiguous ranges, a second pass copies particle
// indices into place. It also fills in GlobalKey for every owned
// particle.
func (c *Classification) bucketOwned(positions []r3.Vec, owner []int32) {
	counts := make([]int32, len(c.Subdomains)+1)
	for _, s := range owner {
		if s >= 0 {
			counts[s+1]++
		}
	}
	for s := range c.Owned {
		counts[s+1] += counts[s]
	}
	slots := make([]int32, counts[len(c.Subdomains)])
	for s := range c.Owned {
		c.Owned[s] = slots[counts[s]:counts[s]:counts[s+1]]
	}
	for i, s := range owner {
		if s < 0 {
			continue
		}
		within := int32(len(c.Owned[s]))
		c.Owned[s] = append(c.Owned[s], int32(i))
		c.GlobalKey[i] = packKey(uint64(s), uint64(within))
	}
}

func (c *Classification) markSparse() {
	var max int
	for _, o := range c.Owned {
		if len(o) > max {
			max = len(o)
		}
	}
	for s, o := range c.Owned {
		if len(o) == 0 {
			c.Pruned[s] = true
			continue
		}
		c.Sparse[s] = max > 0 && float64(len(o)) < 0.05*float64(max)
	}
}

// addGhosts scans, for every subdomain, the owned particles of each of its
// up-to-26 neighbors and adds those falling within the subdomain's
// ghost-expanded AABB. Subdomains are independent once Owned is
// populated, so the scan parallelizes over subdomains.
func (c *Classification) addGhosts(positions []r3.Vec, threadCount int) {
	offsets := grid.NeighborOffsets()
	workers := threadCount
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for s := range c.Subdomains {
		if c.Pruned[s] {
			continue
		}
		s := s
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			self := c.Subdomains[s].Index
			ghostBox := c.Subdomains[s].GhostAABB
			var ghosts []int32
			for _, off := range offsets {
				n := grid.Index3{I: self.I + off.I, J: self.J + off.J, K: self.K + off.K}
				if n.I < 0 || n.I >= c.dims.I || n.J < 0 || n.J >= c.dims.J || n.K < 0 || n.K >= c.dims.K {
					continue
				}
				nFlat := (n.I*c.dims.J+n.J)*c.dims.K + n.K
				for _, pi := range c.Owned[nFlat] {
					if ghostBox.Contains(positions[pi]) {
						ghosts = append(ghosts, pi)
					}
				}
			}
			c.Ghost[s] = ghosts
		}()
	}
	wg.Wait()
}

func packKey(owner, within uint64) uint64 {
	// 32 bits of owner subdomain index, 32 bits of within-owner rank; both
	// fit comfortably since subdomain counts and per-subdomain particle
	// counts are each bounded well under 2^32 in any realizable input.
	return owner<<32 | (within & 0xffffffff)
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
