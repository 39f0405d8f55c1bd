package world

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"

	"voxelforge.io/internal/protocol"
)

// ErrSendFailed wraps every outbound failure. The player is evicted, never retried.
var ErrSendFailed = errors.New("send failed")

// Sender is a session's outbound handle. Send must never block the world loop.
type Sender interface {
	Send(msg protocol.Message) error
}

type JoinRequest struct {
	ID           string
	Name         string
	RenderRadius int
	// Position overrides the spawn point when set.
	Position *mgl64.Vec3
	Out      Sender
	Resp     chan JoinResponse
}

type JoinResponse struct {
	ID  string
	Err error
}

// Inbound is one client message routed to the world, tagged with its sender.
type Inbound struct {
	PlayerID string
	Msg      protocol.Message
}

// Event is a world occurrence worth persisting: joins, leaves, chat and voxel edits.
type Event struct {
	Tick   uint64 `json:"tick"`
	World  string `json:"world"`
	Kind   string `json:"kind"`
	Player string `json:"player,omitempty"`
	Name   string `json:"name,omitempty"`
	Text   string `json:"text,omitempty"`
	Pos    [3]int `json:"pos,omitempty"`
	Voxel  uint32 `json:"voxel,omitempty"`
}

const (
	EventJoin  = "join"
	EventLeave = "leave"
	EventChat  = "chat"
	EventEdit  = "edit"
	EventEvict = "evict"
)

type EventLogger interface {
	WriteEvent(e Event) error
}

// ChunkSave describes a chunk file written by the saver.
type ChunkSave struct {
	World string
	X     int
	Z     int
	Path  string
	Tick  uint64
}

type ChunkIndex interface {
	RecordChunkSave(rec ChunkSave)
}
