package terrain

import (
	"errors"

	"voxelforge.io/internal/sim/mathx"
	"voxelforge.io/internal/sim/ndarray"
)

var ErrZeroMargin = errors.New("space margin must be at least 1")

// Space is a read-only copy of the voxels around one chunk plus a margin, so
// meshing can look across chunk borders without touching the live store.
type Space struct {
	Center mathx.Coords2
	Margin int
	Width  int
	// Min is the voxel coordinate of local (0, 0, 0).
	Min mathx.Coords3

	maxHeight int
	voxels    *ndarray.Ndarray[uint32]
	lights    *ndarray.Ndarray[uint32]
	heightMap *ndarray.Ndarray[uint32]
}

func NewSpace(chunks *Chunks, center mathx.Coords2, margin int) (*Space, error) {
	if margin < 1 {
		return nil, ErrZeroMargin
	}
	p := chunks.Params()
	width := p.Size + 2*margin
	sp := &Space{
		Center:    center,
		Margin:    margin,
		Width:     width,
		Min:       mathx.Coords3{X: center.X*p.Size - margin, Z: center.Z*p.Size - margin},
		maxHeight: p.MaxHeight,
		voxels:    ndarray.New[uint32]([]int{width, p.MaxHeight, width}, 0),
		lights:    ndarray.New[uint32]([]int{width, p.MaxHeight, width}, 0),
		heightMap: ndarray.New[uint32]([]int{width, width}, 0),
	}
	sunlit := PackLight(MaxLightLevel, 0, 0, 0)
	for x := 0; x < width; x++ {
		for z := 0; z < width; z++ {
			vx, vz := sp.Min.X+x, sp.Min.Z+z
			c := chunks.GetChunk(chunks.chunkOfVoxel(vx, vz))
			if c == nil || !c.Generated {
				for y := 0; y < p.MaxHeight; y++ {
					sp.lights.Set(sunlit, x, y, z)
				}
				continue
			}
			lx, lz := vx-c.Min.X, vz-c.Min.Z
			for y := 0; y < p.MaxHeight; y++ {
				sp.voxels.Set(c.Voxels.Get(lx, y, lz), x, y, z)
				sp.lights.Set(c.Lights.Get(lx, y, lz), x, y, z)
			}
			sp.heightMap.Set(c.HeightMap.Get(lx, lz), x, z)
		}
	}
	return sp, nil
}

func (s *Space) Voxels() *ndarray.Ndarray[uint32]    { return s.voxels }
func (s *Space) Lights() *ndarray.Ndarray[uint32]    { return s.lights }
func (s *Space) HeightMap() *ndarray.Ndarray[uint32] { return s.heightMap }
func (s *Space) GetMaxHeight() int                   { return s.maxHeight }

func (s *Space) contains(vx, vy, vz int) bool {
	x, z := vx-s.Min.X, vz-s.Min.Z
	return x >= 0 && x < s.Width && z >= 0 && z < s.Width && vy >= 0 && vy < s.maxHeight
}

// GetRawVoxel reads in voxel coordinates. Cells outside the sampled volume are air.
func (s *Space) GetRawVoxel(vx, vy, vz int) uint32 {
	if !s.contains(vx, vy, vz) {
		return 0
	}
	return s.voxels.Get(vx-s.Min.X, vy, vz-s.Min.Z)
}

func (s *Space) GetVoxel(vx, vy, vz int) uint32 { return ExtractID(s.GetRawVoxel(vx, vy, vz)) }

// GetLight reads in voxel coordinates. Above the world is full sunlight, elsewhere dark.
func (s *Space) GetLight(vx, vy, vz int) uint32 {
	if vy >= s.maxHeight {
		return PackLight(MaxLightLevel, 0, 0, 0)
	}
	if !s.contains(vx, vy, vz) {
		return 0
	}
	return s.lights.Get(vx-s.Min.X, vy, vz-s.Min.Z)
}

// GetHeight is the highest non-air, non-plant y of the column, 0 for empty columns.
func (s *Space) GetHeight(vx, vz int) int {
	x, z := vx-s.Min.X, vz-s.Min.Z
	if x < 0 || z < 0 || x >= s.Width || z >= s.Width {
		return 0
	}
	return int(s.heightMap.Get(x, z))
}
