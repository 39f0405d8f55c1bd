package terrain

// Voxel cells are packed into a single uint32:
//
//	bits  0-15  block id
//	bits 16-23  rotation
//	bits 24-27  stage
const (
	idMask       uint32 = 0xFFFF
	rotationMask uint32 = 0xFF << 16
	stageMask    uint32 = 0xF << 24
)

func ExtractID(v uint32) uint32 { return v & idMask }

func InsertID(v, id uint32) uint32 { return (v &^ idMask) | (id & idMask) }

func ExtractRotation(v uint32) uint32 { return (v & rotationMask) >> 16 }

func InsertRotation(v, r uint32) uint32 { return (v &^ rotationMask) | ((r << 16) & rotationMask) }

func ExtractStage(v uint32) uint32 { return (v & stageMask) >> 24 }

func InsertStage(v, s uint32) uint32 { return (v &^ stageMask) | ((s << 24) & stageMask) }

// Light cells pack sunlight and three torch channels, 4 bits each.
const MaxLightLevel uint32 = 15

func ExtractSunlight(l uint32) uint32 { return (l >> 12) & 0xF }
func ExtractRed(l uint32) uint32      { return (l >> 8) & 0xF }
func ExtractGreen(l uint32) uint32    { return (l >> 4) & 0xF }
func ExtractBlue(l uint32) uint32     { return l & 0xF }

func PackLight(sun, r, g, b uint32) uint32 {
	return (sun&0xF)<<12 | (r&0xF)<<8 | (g&0xF)<<4 | (b & 0xF)
}
