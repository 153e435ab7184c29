package queue

import (
	"context"

	"dwelltrack/internal/model"
)

// MemoryQueue is an in-process, ordered, at-least-once queue used by
// tests (spec.md's Non-goals exclude
// in-memory queue stand-ins from the production surface).
type MemoryQueue struct {
	items chan model.Observation
}

// NewMemoryQueue constructs an in-memory queue with the given buffer size.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 1024
	}
	return &MemoryQueue{items: make(chan model.Observation, buffer)}
}

func (q *MemoryQueue) Publish(ctx context.Context, obs model.Observation) error {
	select {
	case q.items <- obs:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Fetch(ctx context.Context) (Message, error) {
	select {
	case obs := <-q.items:
		return Message{Observation: obs, Ack: func(context.Context) error { return nil }}, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (q *MemoryQueue) Close() error {
	close(q.items)
	return nil
}

var _ Producer = (*MemoryQueue)(nil)
var _ Consumer = (*MemoryQueue)(nil)
