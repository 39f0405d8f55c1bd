package terrain

import (
	"sort"

	"go.uber.org/zap"

	"voxelforge.io/internal/sim/mathx"
	"voxelforge.io/internal/sim/registry"
)

// Source loads previously saved chunks. A nil chunk with a nil error means "not on disk".
type Source interface {
	LoadChunk(coords mathx.Coords2, p Params) (*Chunk, error)
}

// Chunks owns every resident chunk of one world. It is not safe for concurrent use;
// the owning world goroutine is the only caller.
type Chunks struct {
	params   Params
	registry *registry.Registry
	gen      Generator
	source   Source
	log      *zap.Logger

	m    map[mathx.Coords2]*Chunk
	tick uint64

	toGenerate []mathx.Coords2
	genQueued  map[mathx.Coords2]bool
	toMesh     []mathx.Coords2
	meshQueued map[mathx.Coords2]bool
	remeshed   map[mathx.Coords2]bool
}

type Option func(*Chunks)

func WithSource(s Source) Option { return func(c *Chunks) { c.source = s } }

func WithLogger(l *zap.Logger) Option { return func(c *Chunks) { c.log = l } }

func NewChunks(p Params, reg *registry.Registry, gen Generator, opts ...Option) *Chunks {
	if p.SubChunks <= 0 || p.MaxHeight%p.SubChunks != 0 {
		p.SubChunks = 1
	}
	c := &Chunks{
		params:     p,
		registry:   reg,
		gen:        gen,
		log:        zap.NewNop(),
		m:          map[mathx.Coords2]*Chunk{},
		genQueued:  map[mathx.Coords2]bool{},
		meshQueued: map[mathx.Coords2]bool{},
		remeshed:   map[mathx.Coords2]bool{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (s *Chunks) Params() Params               { return s.params }
func (s *Chunks) Registry() *registry.Registry { return s.registry }
func (s *Chunks) Len() int                     { return len(s.m) }
func (s *Chunks) GetMaxHeight() int            { return s.params.MaxHeight }

// SetTick stamps LastTouched on chunks accessed from now on.
func (s *Chunks) SetTick(t uint64) { s.tick = t }

// Get returns the chunk only when it is generated and meshed at level. Otherwise it
// schedules the missing work and returns nil. remesh forces the geometry to be rebuilt.
func (s *Chunks) Get(coords mathx.Coords2, level MeshLevel, remesh bool) *Chunk {
	c := s.m[coords]
	if c == nil || !c.Generated {
		s.scheduleGenerate(coords)
		return nil
	}
	if remesh {
		c.markAllStale()
		s.scheduleMesh(coords)
		return nil
	}
	if !c.IsMeshed(level) {
		s.scheduleMesh(coords)
		return nil
	}
	c.LastTouched = s.tick
	return c
}

// GetChunk is an exact lookup with no side effects.
func (s *Chunks) GetChunk(coords mathx.Coords2) *Chunk {
	return s.m[coords]
}

// Coords lists resident chunk coordinates in a stable order.
func (s *Chunks) Coords() []mathx.Coords2 {
	out := make([]mathx.Coords2, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (s *Chunks) scheduleGenerate(coords mathx.Coords2) {
	if s.genQueued[coords] {
		return
	}
	s.genQueued[coords] = true
	s.toGenerate = append(s.toGenerate, coords)
}

func (s *Chunks) scheduleMesh(coords mathx.Coords2) {
	if s.meshQueued[coords] {
		return
	}
	s.meshQueued[coords] = true
	s.toMesh = append(s.toMesh, coords)
}

// Pending reports queued generation and meshing jobs.
func (s *Chunks) Pending() (generate, mesh int) {
	return len(s.toGenerate), len(s.toMesh)
}

// Generate makes sure every chunk within radius of center is generated and meshed.
// Terrain is produced one ring further out so border faces can be culled. force
// rebuilds meshes that are already current.
func (s *Chunks) Generate(center mathx.Coords2, radius int, force bool) {
	if radius < 0 {
		radius = 0
	}
	for dx := -radius - 1; dx <= radius+1; dx++ {
		for dz := -radius - 1; dz <= radius+1; dz++ {
			s.ensureTerrain(mathx.Coords2{X: center.X + dx, Z: center.Z + dz})
		}
	}
	for dx := -radius; dx <= radius; dx++ {
		for dz := -radius; dz <= radius; dz++ {
			c := s.m[mathx.Coords2{X: center.X + dx, Z: center.Z + dz}]
			if force {
				c.markAllStale()
			}
			if !c.IsMeshed(All) {
				s.meshChunk(c)
			}
			c.LastTouched = s.tick
		}
	}
}

// Update drains up to budget scheduled jobs, generation first. It returns the number done.
func (s *Chunks) Update(budget int) int {
	done := 0
	for done < budget && len(s.toGenerate) > 0 {
		coords := s.toGenerate[0]
		s.toGenerate = s.toGenerate[1:]
		delete(s.genQueued, coords)
		if c := s.m[coords]; c != nil && c.Generated {
			continue
		}
		s.ensureTerrain(coords)
		s.scheduleMesh(coords)
		done++
	}
	for done < budget && len(s.toMesh) > 0 {
		coords := s.toMesh[0]
		s.toMesh = s.toMesh[1:]
		delete(s.meshQueued, coords)
		c := s.m[coords]
		if c == nil {
			continue
		}
		if !c.Generated {
			s.ensureTerrain(coords)
		}
		for _, n := range s.ring(coords) {
			s.ensureTerrain(n)
		}
		edited := c.Generated && len(c.Meshes) > 0
		s.meshChunk(c)
		if edited {
			s.remeshed[coords] = true
		}
		done++
	}
	return done
}

// TakeRemeshed returns, in stable order, chunks whose geometry was rebuilt after an
// edit since the last call.
func (s *Chunks) TakeRemeshed() []*Chunk {
	if len(s.remeshed) == 0 {
		return nil
	}
	coords := make([]mathx.Coords2, 0, len(s.remeshed))
	for k := range s.remeshed {
		coords = append(coords, k)
	}
	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })
	s.remeshed = map[mathx.Coords2]bool{}
	out := make([]*Chunk, 0, len(coords))
	for _, k := range coords {
		if c := s.m[k]; c != nil {
			out = append(out, c)
		}
	}
	return out
}

func (s *Chunks) ring(coords mathx.Coords2) []mathx.Coords2 {
	out := make([]mathx.Coords2, 0, 8)
	for dx := -1; dx <= 1; dx++ {
		for dz := -1; dz <= 1; dz++ {
			if dx == 0 && dz == 0 {
				continue
			}
			out = append(out, mathx.Coords2{X: coords.X + dx, Z: coords.Z + dz})
		}
	}
	return out
}

func (s *Chunks) ensureTerrain(coords mathx.Coords2) *Chunk {
	c := s.m[coords]
	if c != nil && c.Generated {
		return c
	}
	if s.source != nil {
		loaded, err := s.source.LoadChunk(coords, s.params)
		if err != nil {
			s.log.Warn("chunk load failed", zap.Int("cx", coords.X), zap.Int("cz", coords.Z), zap.Error(err))
		}
		if loaded != nil {
			loaded.recalcHeightMap(s.skipForHeight)
			loaded.LastTouched = s.tick
			s.m[coords] = loaded
			return loaded
		}
	}
	if c == nil {
		c = NewChunk(coords, s.params)
		s.m[coords] = c
	}
	s.gen.Generate(c, s.registry)
	c.recalcHeightMap(s.skipForHeight)
	s.computeLights(c)
	c.Generated = true
	c.Dirty = true
	c.LastTouched = s.tick
	s.log.Debug("chunk generated", zap.Int("cx", coords.X), zap.Int("cz", coords.Z))
	return c
}

func (s *Chunks) skipForHeight(id uint32) bool {
	return s.registry.IsAir(id) || s.registry.IsPlant(id)
}

// computeLights seeds sunlight above each column and emission from light blocks.
func (s *Chunks) computeLights(c *Chunk) {
	for lx := 0; lx < s.params.Size; lx++ {
		for lz := 0; lz < s.params.Size; lz++ {
			s.computeColumnLights(c, lx, lz)
		}
	}
}

func (s *Chunks) computeColumnLights(c *Chunk, lx, lz int) {
	h := c.Height(lx, lz)
	for y := 0; y < s.params.MaxHeight; y++ {
		var sun uint32
		if y > h || (h == 0 && !s.registry.IsOpaque(ExtractID(c.Voxels.Get(lx, 0, lz)))) {
			sun = MaxLightLevel
		}
		var torch uint32
		if b := s.registry.GetBlock(ExtractID(c.Voxels.Get(lx, y, lz))); b.IsLight {
			torch = b.LightLevel
		}
		c.Lights.Set(PackLight(sun, torch, torch, torch), lx, y, lz)
	}
}

func (s *Chunks) chunkOfVoxel(vx, vz int) mathx.Coords2 {
	return mathx.ChunkOfVoxel(vx, vz, s.params.Size)
}

func (s *Chunks) clampY(vy int) int {
	if vy < 0 {
		return 0
	}
	if vy >= s.params.MaxHeight {
		return s.params.MaxHeight - 1
	}
	return vy
}

// GetRawVoxel reads the packed cell. Missing chunks read as air and y is clamped.
func (s *Chunks) GetRawVoxel(vx, vy, vz int) uint32 {
	c := s.m[s.chunkOfVoxel(vx, vz)]
	if c == nil || !c.Generated {
		return 0
	}
	return c.GetRawVoxel(vx, s.clampY(vy), vz)
}

func (s *Chunks) GetVoxelByVoxel(vx, vy, vz int) uint32 {
	return ExtractID(s.GetRawVoxel(vx, vy, vz))
}

func (s *Chunks) GetLightByVoxel(vx, vy, vz int) uint32 {
	c := s.m[s.chunkOfVoxel(vx, vz)]
	if c == nil || !c.Generated {
		return PackLight(MaxLightLevel, 0, 0, 0)
	}
	return c.GetLight(vx, s.clampY(vy), vz)
}

func (s *Chunks) GetSolidityByVoxel(vx, vy, vz int) bool {
	return s.registry.IsSolid(s.GetVoxelByVoxel(vx, vy, vz))
}

func (s *Chunks) GetFluidityByVoxel(vx, vy, vz int) bool {
	return s.registry.IsFluid(s.GetVoxelByVoxel(vx, vy, vz))
}

// SetVoxelByVoxel writes the block id, keeping rotation and stage. Writes outside
// [0, max_height) are ignored and report false.
func (s *Chunks) SetVoxelByVoxel(vx, vy, vz int, id uint32) bool {
	if vy < 0 || vy >= s.params.MaxHeight {
		return false
	}
	raw := s.GetRawVoxel(vx, vy, vz)
	return s.SetRawVoxel(vx, vy, vz, InsertID(raw, id))
}

// SetRawVoxel writes a packed cell, generating the owning chunk if needed. The owning
// chunk is marked dirty and scheduled for remesh together with every neighbor whose
// border geometry samples this cell.
func (s *Chunks) SetRawVoxel(vx, vy, vz int, raw uint32) bool {
	if vy < 0 || vy >= s.params.MaxHeight {
		return false
	}
	coords := s.chunkOfVoxel(vx, vz)
	c := s.ensureTerrain(coords)
	lx, lz := vx-c.Min.X, vz-c.Min.Z
	if c.Voxels.Get(lx, vy, lz) == raw {
		return true
	}
	c.Voxels.Set(raw, lx, vy, lz)
	c.recalcColumn(lx, lz, s.skipForHeight)
	s.computeColumnLights(c, lx, lz)
	c.Dirty = true
	c.LastTouched = s.tick
	c.markStaleAt(vy)
	s.scheduleMesh(coords)

	for _, n := range s.NeighborsOf(vx, vz) {
		nc := s.m[n]
		if nc == nil || !nc.Generated {
			continue
		}
		nc.markStaleAt(vy)
		s.scheduleMesh(n)
	}
	return true
}

// NeighborsOf lists, sorted, the chunks other than the owner whose one-voxel border
// margin covers column (vx, vz). Interior columns have none; corners have three.
func (s *Chunks) NeighborsOf(vx, vz int) []mathx.Coords2 {
	own := s.chunkOfVoxel(vx, vz)
	seen := map[mathx.Coords2]bool{}
	var out []mathx.Coords2
	for dx := -1; dx <= 1; dx++ {
		for dz := -1; dz <= 1; dz++ {
			n := s.chunkOfVoxel(vx+dx, vz+dz)
			if n == own || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Evict drops resident chunks that keep rejects, least recently touched first, until
// the store holds at most limit chunks. Evicted chunks are returned so dirty ones can
// be saved.
func (s *Chunks) Evict(keep func(mathx.Coords2) bool, limit int) []*Chunk {
	if limit <= 0 || len(s.m) <= limit {
		return nil
	}
	var candidates []*Chunk
	for k, c := range s.m {
		if !keep(k) {
			candidates = append(candidates, c)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].LastTouched != candidates[j].LastTouched {
			return candidates[i].LastTouched < candidates[j].LastTouched
		}
		return candidates[i].Coords.Less(candidates[j].Coords)
	})
	var out []*Chunk
	for _, c := range candidates {
		if len(s.m) <= limit {
			break
		}
		delete(s.m, c.Coords)
		delete(s.remeshed, c.Coords)
		out = append(out, c)
	}
	return out
}

// DirtySnapshots clones every dirty chunk and clears its flag.
func (s *Chunks) DirtySnapshots() []*Chunk {
	var out []*Chunk
	for _, k := range s.Coords() {
		c := s.m[k]
		if !c.Dirty || !c.Generated {
			continue
		}
		out = append(out, c.Snapshot())
		c.Dirty = false
	}
	return out
}
