package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

type AABB struct {
	Min mgl64.Vec3 `json:"min"`
	Max mgl64.Vec3 `json:"max"`
}

// NewAABB builds a box of the given size centred on center.
func NewAABB(center mgl64.Vec3, width, height, depth float64) AABB {
	half := mgl64.Vec3{width / 2, height / 2, depth / 2}
	return AABB{Min: center.Sub(half), Max: center.Add(half)}
}

func (a AABB) Size() mgl64.Vec3   { return a.Max.Sub(a.Min) }
func (a AABB) Center() mgl64.Vec3 { return a.Min.Add(a.Max).Mul(0.5) }
func (a AABB) Volume() float64 {
	s := a.Size()
	return s[0] * s[1] * s[2]
}

func (a AABB) Translate(d mgl64.Vec3) AABB {
	return AABB{Min: a.Min.Add(d), Max: a.Max.Add(d)}
}

func (a AABB) translateAxis(axis int, d float64) AABB {
	a.Min[axis] += d
	a.Max[axis] += d
	return a
}

func (a AABB) SetCenter(c mgl64.Vec3) AABB {
	return a.Translate(c.Sub(a.Center()))
}

func (a AABB) Intersects(b AABB) bool {
	for i := 0; i < 3; i++ {
		if a.Max[i] <= b.Min[i] || b.Max[i] <= a.Min[i] {
			return false
		}
	}
	return true
}

// IntersectionVolume is the volume shared by a and b.
func (a AABB) IntersectionVolume(b AABB) float64 {
	v := 1.0
	for i := 0; i < 3; i++ {
		d := math.Min(a.Max[i], b.Max[i]) - math.Max(a.Min[i], b.Min[i])
		if d <= 0 {
			return 0
		}
		v *= d
	}
	return v
}
