package world

import "voxelforge.io/internal/protocol"

// Envelope addresses one outbound message. A non-nil Include wins over Exclude.
type Envelope struct {
	Msg     protocol.Message
	Include []string
	Exclude []string
	Sender  string
}

// MessagesQueue buffers outbound envelopes until the broadcast system drains them.
type MessagesQueue struct {
	items []Envelope
}

func (q *MessagesQueue) Push(e Envelope) { q.items = append(q.items, e) }

func (q *MessagesQueue) Len() int { return len(q.items) }

// Drain returns the queued envelopes in push order and empties the queue.
func (q *MessagesQueue) Drain() []Envelope {
	out := q.items
	q.items = nil
	return out
}
