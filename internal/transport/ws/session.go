package ws

import (
	"errors"
	"sync"

	"voxelforge.io/internal/protocol"
)

var (
	// ErrSessionClosed is returned once the socket is gone.
	ErrSessionClosed = errors.New("session closed")
	// ErrQueueFull is returned when the client cannot keep up with the world.
	ErrQueueFull = errors.New("session outbound queue full")
)

// session is the world-facing half of one connection. Send never blocks, so a
// slow client cannot stall a world tick.
type session struct {
	id  string
	out chan protocol.Message

	done      chan struct{}
	closeOnce sync.Once
}

func newSession(id string, queue int) *session {
	if queue <= 0 {
		queue = 64
	}
	return &session{
		id:   id,
		out:  make(chan protocol.Message, queue),
		done: make(chan struct{}),
	}
}

func (s *session) Send(msg protocol.Message) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.out <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *session) close() { s.closeOnce.Do(func() { close(s.done) }) }

func (s *session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
