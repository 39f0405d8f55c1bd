package terrain

import (
	"voxelforge.io/internal/sim/registry"
)

// Geometry is one draw batch: quads as two triangles each.
type Geometry struct {
	Positions []float32
	Indices   []int32
	Lights    []int32
	Voxels    []uint32
}

func (g *Geometry) Empty() bool { return len(g.Indices) == 0 }

// Mesh is the geometry of one sub-chunk.
type Mesh struct {
	Level       int
	Opaque      Geometry
	Transparent Geometry
}

type face struct {
	dir     [3]int
	corners [4][3]float32
}

var faces = [6]face{
	{dir: [3]int{1, 0, 0}, corners: [4][3]float32{{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {1, 0, 1}}},
	{dir: [3]int{-1, 0, 0}, corners: [4][3]float32{{0, 0, 1}, {0, 1, 1}, {0, 1, 0}, {0, 0, 0}}},
	{dir: [3]int{0, 1, 0}, corners: [4][3]float32{{0, 1, 1}, {1, 1, 1}, {1, 1, 0}, {0, 1, 0}}},
	{dir: [3]int{0, -1, 0}, corners: [4][3]float32{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}}},
	{dir: [3]int{0, 0, 1}, corners: [4][3]float32{{1, 0, 1}, {1, 1, 1}, {0, 1, 1}, {0, 0, 1}}},
	{dir: [3]int{0, 0, -1}, corners: [4][3]float32{{0, 0, 0}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0}}},
}

// meshChunk rebuilds the stale sub-chunks of c from a margin-1 Space.
func (s *Chunks) meshChunk(c *Chunk) {
	sp, err := NewSpace(s, c.Coords, 1)
	if err != nil {
		return
	}
	for _, level := range c.staleLevels() {
		c.Meshes[level] = buildMesh(sp, s.registry, c, level)
		delete(c.stale, level)
	}
}

func buildMesh(sp *Space, reg *registry.Registry, c *Chunk, level int) *Mesh {
	m := &Mesh{Level: level}
	h := c.Params.SubHeight()
	for vx := c.Min.X; vx < c.Max.X; vx++ {
		for vz := c.Min.Z; vz < c.Max.Z; vz++ {
			for vy := level * h; vy < (level+1)*h; vy++ {
				id := sp.GetVoxel(vx, vy, vz)
				if id == registry.AirID || !reg.HasType(id) {
					continue
				}
				opaque := reg.IsOpaque(id)
				for _, f := range faces {
					nx, ny, nz := vx+f.dir[0], vy+f.dir[1], vz+f.dir[2]
					if ny < 0 {
						continue
					}
					n := sp.GetVoxel(nx, ny, nz)
					if !faceVisible(reg, id, n) {
						continue
					}
					geo := &m.Transparent
					if opaque {
						geo = &m.Opaque
					}
					addFace(geo, f, vx, vy, vz, int32(sp.GetLight(nx, ny, nz)), id)
				}
			}
		}
	}
	return m
}

// faceVisible reports whether a face of id bordering n must be drawn.
func faceVisible(reg *registry.Registry, id, n uint32) bool {
	if reg.IsOpaque(n) {
		return false
	}
	if reg.IsOpaque(id) {
		return true
	}
	// Transparent and fluid runs of the same block hide their shared faces.
	return n != id
}

func addFace(g *Geometry, f face, vx, vy, vz int, light int32, id uint32) {
	base := int32(len(g.Positions) / 3)
	for _, c := range f.corners {
		g.Positions = append(g.Positions, float32(vx)+c[0], float32(vy)+c[1], float32(vz)+c[2])
		g.Lights = append(g.Lights, light)
	}
	g.Indices = append(g.Indices, base, base+1, base+2, base, base+2, base+3)
	g.Voxels = append(g.Voxels, id)
}
