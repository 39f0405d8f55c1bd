package terrain

import (
	"voxelforge.io/internal/protocol"
)

// GetProtocol builds the wire form of the chunk with only the requested parts set.
// Callers send mesh, voxels and lights as separate frames to keep each one small.
func (c *Chunk) GetProtocol(mesh, voxels, lights bool, level MeshLevel) protocol.ChunkProtocol {
	out := protocol.ChunkProtocol{ID: c.ID(), X: c.Coords.X, Z: c.Coords.Z}
	if mesh {
		levels := []int{int(level)}
		if level == All {
			levels = levels[:0]
			for i := 0; i < c.Params.SubChunks; i++ {
				levels = append(levels, i)
			}
		}
		out.Meshes = make([]protocol.MeshProtocol, 0, len(levels))
		for _, i := range levels {
			m := c.Meshes[i]
			if m == nil {
				continue
			}
			out.Meshes = append(out.Meshes, protocol.MeshProtocol{
				Level:       m.Level,
				Opaque:      geometryProtocol(&m.Opaque),
				Transparent: geometryProtocol(&m.Transparent),
			})
		}
	}
	// Arrays are copied: the frame is encoded on the session goroutine while the
	// world keeps editing the chunk.
	if voxels {
		out.Voxels = &protocol.ArrayProtocol{
			Shape: append([]int(nil), c.Voxels.Shape...),
			Data:  append([]uint32(nil), c.Voxels.Data...),
		}
	}
	if lights {
		out.Lights = &protocol.ArrayProtocol{
			Shape: append([]int(nil), c.Lights.Shape...),
			Data:  append([]uint32(nil), c.Lights.Data...),
		}
	}
	return out
}

func geometryProtocol(g *Geometry) *protocol.GeometryProtocol {
	if g.Empty() {
		return nil
	}
	return &protocol.GeometryProtocol{
		Positions: g.Positions,
		Indices:   g.Indices,
		Lights:    g.Lights,
		Voxels:    g.Voxels,
	}
}
