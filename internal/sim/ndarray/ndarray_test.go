package ndarray

import "testing"

func TestStridesAreRowMajor(t *testing.T) {
	a := New[uint32]([]int{4, 8, 2}, 0)
	want := []int{16, 2, 1}
	for i := range want {
		if a.Stride[i] != want[i] {
			t.Fatalf("stride[%d]=%d want %d", i, a.Stride[i], want[i])
		}
	}
	if a.Len() != 64 {
		t.Fatalf("len=%d want 64", a.Len())
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	a := New[uint32]([]int{3, 5, 3}, 0)
	v := uint32(1)
	for x := 0; x < 3; x++ {
		for y := 0; y < 5; y++ {
			for z := 0; z < 3; z++ {
				a.Set(v, x, y, z)
				v++
			}
		}
	}
	v = 1
	for x := 0; x < 3; x++ {
		for y := 0; y < 5; y++ {
			for z := 0; z < 3; z++ {
				if got := a.Get(x, y, z); got != v {
					t.Fatalf("a[%d,%d,%d]=%d want %d", x, y, z, got, v)
				}
				v++
			}
		}
	}
}

func TestFillAndClone(t *testing.T) {
	a := New[float32]([]int{2, 2}, 1.5)
	b := a.Clone()
	b.Set(3, 1, 1)
	if a.Get(1, 1) != 1.5 || b.Get(1, 1) != 3 {
		t.Fatalf("clone shares storage")
	}
}

func TestOutOfRangePanics(t *testing.T) {
	a := New[int32]([]int{2, 2}, 0)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	_ = a.Get(2, 0)
}
