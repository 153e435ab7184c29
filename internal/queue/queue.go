// Package queue implements the Ingress Queue (spec.md §4.B): an ordered,
// at-least-once hand-off between ingestion and the Dwell Engine.
package queue

import (
	"context"

	"dwelltrack/internal/model"
)

// Producer appends normalized observations for a partition. Publish can
// block: MemoryQueue waits for buffer space until ctx is done, and
// KafkaProducer waits for the broker to acknowledge the write.
type Producer interface {
	Publish(ctx context.Context, obs model.Observation) error
	Close() error
}

// Message wraps a delivered observation with the means to acknowledge it.
// Ack should only be called after the observation has been durably
// applied to the State Store (spec.md §4.D: "the dedup set must
// therefore be updated after successful persistence").
type Message struct {
	Observation model.Observation
	Ack         func(ctx context.Context) error
}

// Consumer reads observations one message at a time, in insertion order,
// for a single logical consumer group.
type Consumer interface {
	// Fetch blocks until at least one message is available or ctx is done.
	Fetch(ctx context.Context) (Message, error)
	Close() error
}

// FeedbackMessage and FeedbackProducer carry the optional
// feedback.updates topic (spec.md §6). Nothing in this package consumes
// that topic; the Query/Feedback HTTP surface calls the Feedback Processor
// directly.
type FeedbackMessage struct {
	Type    string
	Payload map[string]string
}

type FeedbackProducer interface {
	PublishFeedback(ctx context.Context, msg FeedbackMessage) error
	Close() error
}
