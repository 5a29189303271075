package stitch

import (
	"testing"

	"github.com/soypat/surfrecon/internal/grid"
	"github.com/soypat/surfrecon/internal/mc"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestMergeDeduplicatesSharedBoundaryVertex(t *testing.T) {
	subs := []grid.Subdomain{
		{Index: grid.Index3{I: 0, J: 0, K: 0}},
		{Index: grid.Index3{I: 1, J: 0, K: 0}},
	}
	sharedKey := mc.EdgeKey{Vertex: grid.Index3{I: 4, J: 0, K: 0}, Axis: mc.AxisY}
	patches := []mc.Patch{
		{
			Vertices: []mc.Vertex{
				{Pos: r3.Vec{X: 1}, Boundary: false},
				{Pos: r3.Vec{X: 4}, Key: sharedKey, Boundary: true},
			},
			Triangles: []int32{0, 1, 0},
		},
		{
			Vertices: []mc.Vertex{
				{Pos: r3.Vec{X: 4}, Key: sharedKey, Boundary: true}, // same world position
				{Pos: r3.Vec{X: 6}, Boundary: false},
			},
			Triangles: []int32{0, 1, 0},
		},
	}
	mesh, err := Merge(subs, patches)
	if err != nil {
		t.Fatal(err)
	}
	if len(mesh.Vertices) != 3 {
		t.Fatalf("expected 3 global vertices (1 owned + shared + 1 owned), got %d: %v", len(mesh.Vertices), mesh.Vertices)
	}
	if len(mesh.Triangles) != 6 {
		t.Fatalf("expected 6 triangle indices, got %d", len(mesh.Triangles))
	}
	// the shared vertex must be the same global index in both triangle groups.
	sharedFromFirst := mesh.Triangles[1]
	sharedFromSecond := mesh.Triangles[3]
	if sharedFromFirst != sharedFromSecond {
		t.Fatalf("expected shared boundary vertex to resolve to the same global index, got %d vs %d", sharedFromFirst, sharedFromSecond)
	}
	if mesh.Vertices[sharedFromFirst] != (r3.Vec{X: 4}) {
		t.Fatalf("shared vertex position wrong: %v", mesh.Vertices[sharedFromFirst])
	}
}

func TestMergeRejectsLengthMismatch(t *testing.T) {
	_, err := Merge([]grid.Subdomain{{}}, nil)
	if err == nil {
		t.Fatal("expected error for length mismatch")
	}
}
