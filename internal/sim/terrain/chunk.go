package terrain

import (
	"voxelforge.io/internal/sim/mathx"
	"voxelforge.io/internal/sim/ndarray"
)

// Params are the per-world chunk dimensions.
type Params struct {
	Size      int
	MaxHeight int
	SubChunks int
}

func (p Params) SubHeight() int { return p.MaxHeight / p.SubChunks }

// MeshLevel selects which geometry of a chunk is requested.
type MeshLevel int

// All asks for every sub-chunk. Sub(i) asks for a single slice.
const All MeshLevel = -1

func Sub(i int) MeshLevel { return MeshLevel(i) }

type Chunk struct {
	Coords mathx.Coords2
	Min    mathx.Coords3
	Max    mathx.Coords3
	Params Params

	Voxels    *ndarray.Ndarray[uint32]
	Lights    *ndarray.Ndarray[uint32]
	HeightMap *ndarray.Ndarray[uint32]
	Meshes    map[int]*Mesh

	Generated bool
	Dirty     bool
	// LastTouched is the store tick of the last read or write.
	LastTouched uint64

	stale map[int]bool
}

func NewChunk(coords mathx.Coords2, p Params) *Chunk {
	origin := mathx.Coords3{X: coords.X * p.Size, Y: 0, Z: coords.Z * p.Size}
	c := &Chunk{
		Coords:    coords,
		Min:       origin,
		Max:       mathx.Coords3{X: origin.X + p.Size, Y: p.MaxHeight, Z: origin.Z + p.Size},
		Params:    p,
		Voxels:    ndarray.New[uint32]([]int{p.Size, p.MaxHeight, p.Size}, 0),
		Lights:    ndarray.New[uint32]([]int{p.Size, p.MaxHeight, p.Size}, 0),
		HeightMap: ndarray.New[uint32]([]int{p.Size, p.Size}, 0),
		Meshes:    map[int]*Mesh{},
		stale:     map[int]bool{},
	}
	c.markAllStale()
	return c
}

// NewChunkFromArrays rebuilds a chunk loaded from disk. The arrays must match the params.
func NewChunkFromArrays(coords mathx.Coords2, p Params, voxels, lights []uint32) *Chunk {
	c := NewChunk(coords, p)
	copy(c.Voxels.Data, voxels)
	copy(c.Lights.Data, lights)
	c.recalcHeightMap(nil)
	c.Generated = true
	return c
}

func (c *Chunk) ID() string { return c.Coords.String() }

func (c *Chunk) Contains(vx, vy, vz int) bool {
	return vx >= c.Min.X && vx < c.Max.X && vy >= 0 && vy < c.Max.Y && vz >= c.Min.Z && vz < c.Max.Z
}

func (c *Chunk) GetLocalRaw(lx, ly, lz int) uint32 { return c.Voxels.Get(lx, ly, lz) }

func (c *Chunk) SetLocalRaw(lx, ly, lz int, v uint32) { c.Voxels.Set(v, lx, ly, lz) }

func (c *Chunk) GetRawVoxel(vx, vy, vz int) uint32 {
	return c.Voxels.Get(vx-c.Min.X, vy, vz-c.Min.Z)
}

func (c *Chunk) GetLight(vx, vy, vz int) uint32 {
	return c.Lights.Get(vx-c.Min.X, vy, vz-c.Min.Z)
}

func (c *Chunk) Height(lx, lz int) int { return int(c.HeightMap.Get(lx, lz)) }

// IsMeshed reports whether every sub-chunk covered by level has up-to-date geometry.
func (c *Chunk) IsMeshed(level MeshLevel) bool {
	if !c.Generated {
		return false
	}
	if level == All {
		return len(c.stale) == 0 && len(c.Meshes) == c.Params.SubChunks
	}
	_, ok := c.Meshes[int(level)]
	return ok && !c.stale[int(level)]
}

func (c *Chunk) markAllStale() {
	for i := 0; i < c.Params.SubChunks; i++ {
		c.stale[i] = true
	}
}

// markStaleAt flags the sub-chunk owning vy and the slice touching it across a boundary.
func (c *Chunk) markStaleAt(vy int) {
	h := c.Params.SubHeight()
	i := vy / h
	c.stale[i] = true
	if vy%h == 0 && i > 0 {
		c.stale[i-1] = true
	}
	if vy%h == h-1 && i < c.Params.SubChunks-1 {
		c.stale[i+1] = true
	}
}

func (c *Chunk) staleLevels() []int {
	out := make([]int, 0, len(c.stale))
	for i := 0; i < c.Params.SubChunks; i++ {
		if c.stale[i] {
			out = append(out, i)
		}
	}
	return out
}

// recalcHeightMap rebuilds the column heights. isSkip reports ids ignored for height
// (air and plants); nil treats only id 0 as empty.
func (c *Chunk) recalcHeightMap(isSkip func(id uint32) bool) {
	for lx := 0; lx < c.Params.Size; lx++ {
		for lz := 0; lz < c.Params.Size; lz++ {
			c.recalcColumn(lx, lz, isSkip)
		}
	}
}

func (c *Chunk) recalcColumn(lx, lz int, isSkip func(id uint32) bool) {
	h := 0
	for y := c.Params.MaxHeight - 1; y >= 0; y-- {
		id := ExtractID(c.Voxels.Get(lx, y, lz))
		if id == 0 {
			continue
		}
		if isSkip != nil && isSkip(id) {
			continue
		}
		h = y
		break
	}
	c.HeightMap.Set(uint32(h), lx, lz)
}

// Snapshot returns a deep copy safe to hand to another goroutine.
func (c *Chunk) Snapshot() *Chunk {
	out := &Chunk{
		Coords:      c.Coords,
		Min:         c.Min,
		Max:         c.Max,
		Params:      c.Params,
		Voxels:      c.Voxels.Clone(),
		Lights:      c.Lights.Clone(),
		HeightMap:   c.HeightMap.Clone(),
		Meshes:      map[int]*Mesh{},
		Generated:   c.Generated,
		Dirty:       c.Dirty,
		LastTouched: c.LastTouched,
		stale:       map[int]bool{},
	}
	for k, v := range c.stale {
		out.stale[k] = v
	}
	return out
}
