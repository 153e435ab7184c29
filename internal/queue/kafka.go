package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"dwelltrack/internal/dwellerr"
	"dwelltrack/internal/model"
)

// KafkaProducer publishes Observations onto the raw.detections topic,
// partitioned on collector_id:camera_id as spec.md §6 requires.
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer builds a producer for the given topic. Partitioning is
// by message key (the partition string), using kafka-go's Hash balancer.
func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (p *KafkaProducer) Publish(ctx context.Context, obs model.Observation) error {
	data, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("%w: encode observation: %v", dwellerr.ErrInternal, err)
	}
	msg := kafka.Message{
		Key:   []byte(obs.Partition()),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%w: publish observation: %v", dwellerr.ErrStoreUnavailable, err)
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// KafkaFeedbackProducer publishes to the feedback.updates topic.
type KafkaFeedbackProducer struct {
	writer *kafka.Writer
}

func NewKafkaFeedbackProducer(brokers []string, topic string) *KafkaFeedbackProducer {
	return &KafkaFeedbackProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (p *KafkaFeedbackProducer) PublishFeedback(ctx context.Context, msg FeedbackMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encode feedback message: %v", dwellerr.ErrInternal, err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Value: data}); err != nil {
		return fmt.Errorf("%w: publish feedback: %v", dwellerr.ErrStoreUnavailable, err)
	}
	return nil
}

func (p *KafkaFeedbackProducer) Close() error {
	return p.writer.Close()
}

// KafkaConsumer reads observations from the raw.detections topic under a
// single consumer group, following the reader-config conventions of
// internal/orchestrator/kafka.go.
type KafkaConsumer struct {
	reader *kafka.Reader
}

// NewKafkaConsumer builds a reader bound to the given group and topic.
func NewKafkaConsumer(brokers []string, groupID, topic string) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			GroupID:  groupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
	}
}

func (c *KafkaConsumer) Fetch(ctx context.Context) (Message, error) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("%w: fetch message: %v", dwellerr.ErrStoreUnavailable, err)
	}
	var obs model.Observation
	if err := json.Unmarshal(m.Value, &obs); err != nil {
		return Message{}, fmt.Errorf("%w: decode observation: %v", dwellerr.ErrInvalidPayload, err)
	}
	return Message{
		Observation: obs,
		Ack: func(ctx context.Context) error {
			return c.reader.CommitMessages(ctx, m)
		},
	}, nil
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
