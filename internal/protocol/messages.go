package protocol

import (
	"encoding/json"

	"voxelforge.io/internal/sim/mathx"
)

// Message is the single framed unit exchanged on the socket. Which payload
// fields are set depends on Type.
type Message struct {
	Type     string           `json:"type"`
	Text     string           `json:"text,omitempty"`
	JSON     json.RawMessage  `json:"json,omitempty"`
	Chunks   []ChunkProtocol  `json:"chunks,omitempty"`
	Peers    []PeerProtocol   `json:"peers,omitempty"`
	Entities []EntityProtocol `json:"entities,omitempty"`
	Updates  []UpdateProtocol `json:"updates,omitempty"`
}

// ChunkProtocol carries exactly one of meshes, voxels or lights.
type ChunkProtocol struct {
	ID     string         `json:"id"`
	X      int            `json:"x"`
	Z      int            `json:"z"`
	Meshes []MeshProtocol `json:"meshes,omitempty"`
	Voxels *ArrayProtocol `json:"voxels,omitempty"`
	Lights *ArrayProtocol `json:"lights,omitempty"`
}

type ArrayProtocol struct {
	Shape []int    `json:"shape"`
	Data  []uint32 `json:"data"`
}

type MeshProtocol struct {
	Level       int               `json:"level"`
	Opaque      *GeometryProtocol `json:"opaque,omitempty"`
	Transparent *GeometryProtocol `json:"transparent,omitempty"`
}

type GeometryProtocol struct {
	Positions []float32 `json:"positions"`
	Indices   []int32   `json:"indices"`
	Lights    []int32   `json:"lights"`
	Voxels    []uint32  `json:"voxels"`
}

type PeerProtocol struct {
	ID           string     `json:"id"`
	Name         string     `json:"name,omitempty"`
	Position     [3]float64 `json:"position"`
	Rotation     [4]float64 `json:"rotation"`
	RenderRadius int        `json:"render_radius,omitempty"`
}

type EntityProtocol struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"`
	Position [3]float64  `json:"position"`
	Rotation [4]float64  `json:"rotation"`
	Target   *[3]float64 `json:"target,omitempty"`
}

type UpdateProtocol struct {
	VX    int    `json:"vx"`
	VY    int    `json:"vy"`
	VZ    int    `json:"vz"`
	Voxel uint32 `json:"voxel"`
	Light uint32 `json:"light,omitempty"`
}

// JoinRequest is the JSON payload of an inbound JOIN. Text carries the world name.
type JoinRequest struct {
	Name         string `json:"name,omitempty"`
	RenderRadius int    `json:"render_radius,omitempty"`
}

// ChunkRequest is the JSON payload of inbound LOAD and UNLOAD frames.
type ChunkRequest struct {
	Chunks []mathx.Coords2 `json:"chunks"`
}

type WorldParams struct {
	Name         string  `json:"name"`
	ChunkSize    int     `json:"chunk_size"`
	MaxHeight    int     `json:"max_height"`
	SubChunks    int     `json:"sub_chunks"`
	Dimension    int     `json:"dimension"`
	RenderRadius int     `json:"render_radius"`
	Generator    string  `json:"generator"`
	TickSpeed    float64 `json:"tick_speed"`
}

// InitPayload is the JSON payload of INIT.
type InitPayload struct {
	ID              string      `json:"id"`
	Params          WorldParams `json:"params"`
	Time            float64     `json:"time"`
	RegistryHash    string      `json:"registry_hash"`
	Tick            uint64      `json:"tick"`
	ProtocolVersion string      `json:"protocol_version"`
}

// ConfigPayload is the JSON payload of CONFIG.
type ConfigPayload struct {
	Time      float64 `json:"time"`
	TickSpeed float64 `json:"tick_speed"`
}

func NewMessage(typ string) Message { return Message{Type: typ} }

func (m Message) WithText(s string) Message {
	m.Text = s
	return m
}

// WithJSON marshals v into the raw json field. Values that fail to encode leave it empty.
func (m Message) WithJSON(v any) Message {
	b, err := json.Marshal(v)
	if err == nil {
		m.JSON = b
	}
	return m
}
