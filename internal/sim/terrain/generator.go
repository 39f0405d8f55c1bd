package terrain

import (
	"fmt"
	"math"
	"strings"

	"github.com/aquilax/go-perlin"

	"voxelforge.io/internal/sim/mathx"
	"voxelforge.io/internal/sim/registry"
)

// Generator fills the voxels of a freshly created chunk. It must only write inside
// the chunk it is given.
type Generator interface {
	Generate(c *Chunk, reg *registry.Registry)
}

// NewGenerator resolves a worlds.json generator name.
func NewGenerator(name string, seed int64) (Generator, error) {
	switch strings.ToUpper(name) {
	case "", "FLAT":
		return FlatGenerator{Surface: 64}, nil
	case "HILLY":
		return NewHillyGenerator(seed), nil
	default:
		return nil, fmt.Errorf("unknown generator %q", name)
	}
}

func blockID(reg *registry.Registry, name string, fallback uint32) uint32 {
	if id, ok := reg.IDByName(name); ok {
		return id
	}
	return fallback
}

// FlatGenerator fills every column up to Surface (exclusive), so bodies rest on y=Surface.
type FlatGenerator struct {
	Surface int
}

func (g FlatGenerator) Generate(c *Chunk, reg *registry.Registry) {
	stone := blockID(reg, "stone", registry.Stone)
	dirt := blockID(reg, "dirt", registry.Dirt)
	grass := blockID(reg, "grass", registry.Grass)
	top := g.Surface
	if top > c.Params.MaxHeight {
		top = c.Params.MaxHeight
	}
	for lx := 0; lx < c.Params.Size; lx++ {
		for lz := 0; lz < c.Params.Size; lz++ {
			for y := 0; y < top; y++ {
				id := stone
				switch {
				case y == top-1:
					id = grass
				case y >= top-4:
					id = dirt
				}
				c.SetLocalRaw(lx, y, lz, id)
			}
		}
	}
}

// HillyGenerator shapes columns with perlin noise and sprinkles trees and flowers
// with the column hash.
type HillyGenerator struct {
	Seed      int64
	BaseLevel int
	Amplitude float64
	Scale     float64
	SeaLevel  int

	noise *perlin.Perlin
}

func NewHillyGenerator(seed int64) *HillyGenerator {
	return &HillyGenerator{
		Seed:      seed,
		BaseLevel: 56,
		Amplitude: 28,
		Scale:     0.012,
		SeaLevel:  58,
		noise:     perlin.NewPerlin(2, 2, 3, seed),
	}
}

// HeightAt returns the number of solid cells of column (vx, vz).
func (g *HillyGenerator) HeightAt(vx, vz int) int {
	n := (g.noise.Noise2D(float64(vx)*g.Scale, float64(vz)*g.Scale) + 1) / 2
	return g.BaseLevel + int(math.Round((n-0.5)*2*g.Amplitude))
}

func (g *HillyGenerator) Generate(c *Chunk, reg *registry.Registry) {
	stone := blockID(reg, "stone", registry.Stone)
	dirt := blockID(reg, "dirt", registry.Dirt)
	grass := blockID(reg, "grass", registry.Grass)
	sand := blockID(reg, "sand", registry.Sand)
	water := blockID(reg, "water", registry.Water)
	log := blockID(reg, "log", registry.Log)
	leaves := blockID(reg, "leaves", registry.Leaves)
	flower := blockID(reg, "flower", registry.Flower)

	size, maxH := c.Params.Size, c.Params.MaxHeight
	for lx := 0; lx < size; lx++ {
		for lz := 0; lz < size; lz++ {
			vx, vz := c.Min.X+lx, c.Min.Z+lz
			h := g.HeightAt(vx, vz)
			if h < 1 {
				h = 1
			}
			if h > maxH-8 {
				h = maxH - 8
			}
			beach := h <= g.SeaLevel+1
			for y := 0; y < h; y++ {
				id := stone
				if y >= h-4 {
					id = dirt
					if beach {
						id = sand
					}
				}
				if y == h-1 && !beach {
					id = grass
				}
				c.SetLocalRaw(lx, y, lz, id)
			}
			for y := h; y < g.SeaLevel && y < maxH; y++ {
				c.SetLocalRaw(lx, y, lz, water)
			}
			if beach {
				continue
			}
			// Trees stay two cells away from the chunk edge so the canopy never crosses it.
			interior := lx >= 2 && lx < size-2 && lz >= 2 && lz < size-2
			switch {
			case interior && mathx.Permille(g.Seed+7, vx, vz, 8):
				g.tree(c, lx, h, lz, log, leaves)
			case mathx.Permille(g.Seed+11, vx, vz, 30):
				if ExtractID(c.GetLocalRaw(lx, h, lz)) == 0 {
					c.SetLocalRaw(lx, h, lz, flower)
				}
			}
		}
	}
}

func (g *HillyGenerator) tree(c *Chunk, lx, base, lz int, log, leaves uint32) {
	height := 4 + int(mathx.Hash2(g.Seed+13, c.Min.X+lx, c.Min.Z+lz)%3)
	top := base + height
	if top+2 >= c.Params.MaxHeight {
		return
	}
	for y := base; y < top; y++ {
		c.SetLocalRaw(lx, y, lz, log)
	}
	for dy := -2; dy <= 1; dy++ {
		r := 2
		if dy == 1 {
			r = 1
		}
		for dx := -r; dx <= r; dx++ {
			for dz := -r; dz <= r; dz++ {
				x, y, z := lx+dx, top+dy, lz+dz
				if x < 0 || z < 0 || x >= c.Params.Size || z >= c.Params.Size {
					continue
				}
				// Canopy corners are thinned per cell.
				corner := (dx == -r || dx == r) && (dz == -r || dz == r)
				if corner && mathx.Hash3(g.Seed+17, c.Min.X+x, y, c.Min.Z+z)%2 == 0 {
					continue
				}
				if ExtractID(c.GetLocalRaw(x, y, z)) == 0 {
					c.SetLocalRaw(x, y, z, leaves)
				}
			}
		}
	}
}
