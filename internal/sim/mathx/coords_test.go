package mathx

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestFloorDivMod(t *testing.T) {
	cases := []struct{ a, b, q, m int }{
		{0, 16, 0, 0},
		{15, 16, 0, 15},
		{16, 16, 1, 0},
		{-1, 16, -1, 15},
		{-16, 16, -1, 0},
		{-17, 16, -2, 15},
	}
	for _, c := range cases {
		if got := FloorDiv(c.a, c.b); got != c.q {
			t.Fatalf("FloorDiv(%d,%d)=%d want %d", c.a, c.b, got, c.q)
		}
		if got := Mod(c.a, c.b); got != c.m {
			t.Fatalf("Mod(%d,%d)=%d want %d", c.a, c.b, got, c.m)
		}
	}
}

func TestChunkOfAcrossSignBoundary(t *testing.T) {
	cases := []struct {
		pos  mgl64.Vec3
		want Coords2
	}{
		{mgl64.Vec3{0, 80, 0}, Coords2{0, 0}},
		{mgl64.Vec3{-0.5, 80, 0.5}, Coords2{-1, 0}},
		{mgl64.Vec3{15.9, 0, 15.9}, Coords2{0, 0}},
		{mgl64.Vec3{16, 0, -16}, Coords2{1, -1}},
		{mgl64.Vec3{-16, 0, -16.01}, Coords2{-1, -2}},
		{mgl64.Vec3{-16.5, 0, 0}, Coords2{-2, 0}},
	}
	for _, c := range cases {
		if got := ChunkOf(c.pos, 1, 16); got != c.want {
			t.Fatalf("ChunkOf(%v)=%v want %v", c.pos, got, c.want)
		}
	}
	// dimension scales world space before flooring
	if got := ChunkOf(mgl64.Vec3{-1, 0, 63}, 2, 16); got != (Coords2{-1, 1}) {
		t.Fatalf("dimension 2: got %v", got)
	}
}

func TestCoords3RoundTripTruncates(t *testing.T) {
	c := Coords3{X: -3, Y: 7, Z: 12}
	if got := FromF(c.ToF()); got != c {
		t.Fatalf("round trip: got %v want %v", got, c)
	}
	if got := FromF(mgl64.Vec3{-1.7, 2.9, 0.2}); got != (Coords3{-1, 2, 0}) {
		t.Fatalf("truncation: got %v", got)
	}
}

func TestChebyshev(t *testing.T) {
	if d := Chebyshev(Coords2{0, 0}, Coords2{-3, 2}); d != 3 {
		t.Fatalf("got %d", d)
	}
}

func TestHash3StableAndHeightSensitive(t *testing.T) {
	if Hash3(9, -4, 70, 12) != Hash3(9, -4, 70, 12) {
		t.Fatalf("hash not stable")
	}
	if Hash3(9, -4, 70, 12) == Hash3(9, -4, 71, 12) {
		t.Fatalf("y ignored")
	}
	if Hash3(9, -4, 70, 12) == Hash3(10, -4, 70, 12) {
		t.Fatalf("seed ignored")
	}
}
