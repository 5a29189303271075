package grid

import (
	"testing"

	"github.com/soypat/surfrecon/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestMap3RoundTrip(t *testing.T) {
	bb := d3.Box{Min: r3.Vec{}, Max: r3.Vec{X: 10, Y: 10, Z: 10}}
	m, err := NewMap3(bb, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if m.Dims() != (Index3{10, 10, 10}) {
		t.Fatalf("unexpected dims %v", m.Dims())
	}
	idx := m.CellIndex(r3.Vec{X: 3.5, Y: 0.1, Z: 9.9})
	if idx != (Index3{3, 0, 9}) {
		t.Fatalf("got %v", idx)
	}
	if !m.InBounds(idx) {
		t.Fatal("expected in bounds")
	}
}

func TestMap3UpperBoundaryIsHalfOpen(t *testing.T) {
	bb := d3.Box{Min: r3.Vec{}, Max: r3.Vec{X: 4, Y: 4, Z: 4}}
	m, err := NewMap3(bb, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	// a point exactly on the upper boundary maps one cell past the
	// enclosing range; callers must pad before enclosing geometry.
	idx := m.CellIndex(r3.Vec{X: 4, Y: 4, Z: 4})
	if m.InBounds(idx) {
		t.Fatalf("expected out-of-bounds index for boundary point, got %v", idx)
	}
}

func TestSubdomainsExactMultiple(t *testing.T) {
	bb := d3.Box{Min: r3.Vec{}, Max: r3.Vec{X: 8, Y: 8, Z: 8}}
	bg, err := NewBackground(bb, 1.0, 0)
	if err != nil {
		t.Fatal(err)
	}
	subs, err := Subdomains(bg, 4, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2*2*2 {
		t.Fatalf("got %d subdomains, want 8", len(subs))
	}
	for _, s := range subs {
		if s.CellsSide != 4 {
			t.Errorf("subdomain %v: unexpected CellsSide %d", s.Index, s.CellsSide)
		}
	}
}

func TestSubdomainsRejectsOversizedCubes(t *testing.T) {
	bb := d3.Box{Min: r3.Vec{}, Max: r3.Vec{X: 8, Y: 8, Z: 8}}
	bg, _ := NewBackground(bb, 1.0, 0)
	if _, err := Subdomains(bg, 257, 0); err == nil {
		t.Fatal("expected error for subdomain_cubes > 256")
	}
}

func TestIndex3Less(t *testing.T) {
	cases := []struct {
		a, b Index3
		want bool
	}{
		{Index3{0, 0, 0}, Index3{1, 0, 0}, true},
		{Index3{1, 0, 0}, Index3{0, 5, 5}, false},
		{Index3{0, 0, 1}, Index3{0, 0, 2}, true},
	}
	for _, c := range cases {
		if got := c.a.Less(c.b); got != c.want {
			t.Errorf("%v.Less(%v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
