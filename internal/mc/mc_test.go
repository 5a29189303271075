package mc

import (
	"testing"

	"github.com/soypat/surfrecon/internal/density"
	"github.com/soypat/surfrecon/internal/grid"
	"gonum.org/v1/gonum/spatial/r3"
)

func singleCellField(corner0High bool) *density.Field[float64] {
	f := density.NewDenseField[float64](r3.Vec{}, 1.0, 2)
	var hi, lo float64 = 1, 0
	for c := 0; c < 8; c++ {
		off := cubeCorner[c]
		v := lo
		if c == 0 && corner0High {
			v = hi
		}
		idx := (off.K*2+off.J)*2 + off.I
		f.Values[idx] = v
	}
	f.Touched[0] = true
	return f
}

func TestTriangulateSingleCorner(t *testing.T) {
	field := singleCellField(true)
	sub := grid.Subdomain{CellMin: grid.Index3{}}
	patch := Triangulate(field, sub, 0.5)
	if len(patch.Triangles) == 0 {
		t.Fatal("expected at least one triangle for a single inside corner")
	}
	if len(patch.Triangles)%3 != 0 {
		t.Fatalf("triangle index count %d not a multiple of 3", len(patch.Triangles))
	}
	for _, vi := range patch.Triangles {
		if int(vi) >= len(patch.Vertices) {
			t.Fatalf("triangle references out-of-range vertex %d", vi)
		}
	}
}

func TestTriangulateEmptyWhenUniform(t *testing.T) {
	field := singleCellField(false)
	// Uniformly below threshold: every corner sets its bit, so cubeindex is
	// 255 and edgeTable[255] == 0 (no crossing).
	sub := grid.Subdomain{}
	patch := Triangulate(field, sub, 0.5)
	if len(patch.Triangles) != 0 {
		t.Fatalf("expected no triangles for a uniform sub-threshold cube, got %d", len(patch.Triangles))
	}
}

func TestEdgeKeySharedBetweenAdjacentCells(t *testing.T) {
	// two cells sharing face at i=1 should compute the same key for the
	// edge they share.
	sub := grid.Subdomain{CellMin: grid.Index3{}}
	k1, _ := edgeKey(sub, 0, 0, 0, 1, 3) // e1 of cell(0,0,0): corner (1,0,0)-(1,1,0)
	k2, _ := edgeKey(sub, 1, 0, 0, 3, 3) // e3 of cell(1,0,0): corner (1,0,0)-(1,1,0)
	if k1 != k2 {
		t.Fatalf("expected shared edge key, got %v vs %v", k1, k2)
	}
}
