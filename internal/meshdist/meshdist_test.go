package meshdist

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestHausdorffIdenticalSetsIsZero(t *testing.T) {
	a := []r3.Vec{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}}
	b := append([]r3.Vec(nil), a...)
	if d := Hausdorff(a, b); d != 0 {
		t.Fatalf("Hausdorff(a,a) = %v, want 0", d)
	}
}

func TestHausdorffDetectsDisplacedPoint(t *testing.T) {
	a := []r3.Vec{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}}
	b := []r3.Vec{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 3}}
	d := Hausdorff(a, b)
	if d < 2.9 || d > 3.1 {
		t.Fatalf("Hausdorff = %v, want ~3", d)
	}
}

func TestHausdorffIsSymmetric(t *testing.T) {
	a := []r3.Vec{{X: 0, Y: 0, Z: 0}, {X: 5, Y: 0, Z: 0}, {X: 0, Y: 5, Z: 0}}
	b := []r3.Vec{{X: 0, Y: 0, Z: 0.5}, {X: 5, Y: 0, Z: 0}}
	if Hausdorff(a, b) != Hausdorff(b, a) {
		t.Fatalf("Hausdorff not symmetric")
	}
}
