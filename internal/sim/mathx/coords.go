package mathx

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Coords2 addresses a chunk column.
type Coords2 struct {
	X int `json:"x"`
	Z int `json:"z"`
}

func (c Coords2) String() string { return fmt.Sprintf("%d_%d", c.X, c.Z) }

func (c Coords2) Less(o Coords2) bool {
	if c.X != o.X {
		return c.X < o.X
	}
	return c.Z < o.Z
}

// Coords3 addresses a single voxel.
type Coords3 struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (c Coords3) Add(o Coords3) Coords3 {
	return Coords3{X: c.X + o.X, Y: c.Y + o.Y, Z: c.Z + o.Z}
}

// ToF converts to the continuous frame without scaling.
func (c Coords3) ToF() mgl64.Vec3 {
	return mgl64.Vec3{float64(c.X), float64(c.Y), float64(c.Z)}
}

// FromF truncates each component toward zero.
func FromF(v mgl64.Vec3) Coords3 {
	return Coords3{X: int(v[0]), Y: int(v[1]), Z: int(v[2])}
}

// VoxelOf maps a world position into voxel space, flooring on both sides of zero.
func VoxelOf(pos mgl64.Vec3, dimension int) Coords3 {
	d := float64(dimension)
	if d <= 0 {
		d = 1
	}
	return Coords3{
		X: int(math.Floor(pos[0] / d)),
		Y: int(math.Floor(pos[1] / d)),
		Z: int(math.Floor(pos[2] / d)),
	}
}

func ChunkOfVoxel(vx, vz, chunkSize int) Coords2 {
	return Coords2{X: FloorDiv(vx, chunkSize), Z: FloorDiv(vz, chunkSize)}
}

func ChunkOf(pos mgl64.Vec3, dimension, chunkSize int) Coords2 {
	v := VoxelOf(pos, dimension)
	return ChunkOfVoxel(v.X, v.Z, chunkSize)
}

// Chebyshev is the chunk-grid distance used for render radii.
func Chebyshev(a, b Coords2) int {
	dx := AbsInt(a.X - b.X)
	dz := AbsInt(a.Z - b.Z)
	if dx > dz {
		return dx
	}
	return dz
}
