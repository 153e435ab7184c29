package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"dwelltrack/internal/queue"
)

// partitionStatus tracks the high-water mark and dedupe-window occupancy
// for one partition worker. The fields are updated only by the worker
// goroutine that owns the partition, but read concurrently by /status, so
// they are plain atomics rather than fields guarded by the Supervisor's
// channel-map mutex.
type partitionStatus struct {
	lastProcessedTsMs atomic.Int64
	dedupeOccupancy   atomic.Int64
}

// PartitionStatus is the read-only snapshot exposed to callers: the
// per-partition high-water mark and dedup-window occupancy that /status
// reports (SPEC_FULL.md §12).
type PartitionStatus struct {
	Partition         string `json:"partition"`
	LastProcessedTsMs int64  `json:"last_processed_ts_ms"`
	DedupeWindowSize  int64  `json:"dedupe_window_size"`
}

// Supervisor fans a single Ingress Queue consumer out across one
// cooperative, single-threaded loop per partition (spec.md §4.D, §5):
// ordering is only guaranteed within a partition, so each partition gets
// its own goroutine and its own dedupe window.
type Supervisor struct {
	engine   *Engine
	consumer queue.Consumer
	log      zerolog.Logger

	mu       sync.Mutex
	channels map[string]chan queue.Message
	statuses map[string]*partitionStatus
	workers  *errgroup.Group
}

// NewSupervisor builds a Supervisor reading from consumer and dispatching
// to per-partition workers driven by engine.
func NewSupervisor(e *Engine, consumer queue.Consumer, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		engine:   e,
		consumer: consumer,
		log:      log,
		channels: make(map[string]chan queue.Message),
		statuses: make(map[string]*partitionStatus),
		workers:  &errgroup.Group{},
	}
}

// Statuses returns a snapshot of every partition worker's high-water mark
// and dedupe-window occupancy, for the /status endpoint.
func (s *Supervisor) Statuses() []PartitionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PartitionStatus, 0, len(s.statuses))
	for partition, st := range s.statuses {
		out = append(out, PartitionStatus{
			Partition:         partition,
			LastProcessedTsMs: st.lastProcessedTsMs.Load(),
			DedupeWindowSize:  st.dedupeOccupancy.Load(),
		})
	}
	return out
}

// Run reads from the queue until ctx is canceled, routing each message to
// its partition's worker goroutine. It returns once all in-flight
// partition workers have finished the observation they were processing.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.shutdown()
	for {
		msg, err := s.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			s.log.Error().Err(err).Msg("ingress queue fetch failed")
			continue
		}
		ch := s.partitionChannel(ctx, msg.Observation.Partition())
		select {
		case ch <- msg:
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Supervisor) partitionChannel(ctx context.Context, partition string) chan queue.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[partition]
	if ok {
		return ch
	}
	ch = make(chan queue.Message, 64)
	s.channels[partition] = ch
	status := &partitionStatus{}
	s.statuses[partition] = status
	s.workers.Go(func() error {
		s.runPartitionWorker(ctx, partition, ch, status)
		return nil
	})
	return ch
}

func (s *Supervisor) runPartitionWorker(ctx context.Context, partition string, ch chan queue.Message, status *partitionStatus) {
	dedupe := s.engine.NewDedupeWindow()
	log := s.log.With().Str("partition", partition).Logger()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.applyObservation(ctx, dedupe, msg, log, status)
		case <-ctx.Done():
			return
		}
	}
}

// applyObservation persists the store write before acknowledging the
// message, so a crash mid-write leaves the observation re-deliverable
// (spec.md §4.D: "the dedup set must therefore be updated after
// successful persistence").
func (s *Supervisor) applyObservation(ctx context.Context, dedupe *dedupeWindow, msg queue.Message, log zerolog.Logger, status *partitionStatus) {
	obs := msg.Observation
	if err := s.engine.Process(ctx, dedupe, obs); err != nil {
		log.Error().
			Err(err).
			Str("object_id", obs.ObjectID).
			Str("event_id", obs.EventID).
			Int64("ts_ms", obs.TimestampMs).
			Msg("observation not applied; left for redelivery")
		return
	}
	status.lastProcessedTsMs.Store(obs.TimestampMs)
	status.dedupeOccupancy.Store(int64(dedupe.Len()))
	if err := msg.Ack(ctx); err != nil {
		log.Error().Err(err).Str("event_id", obs.EventID).Msg("failed to acknowledge observation")
	}
}

func (s *Supervisor) shutdown() {
	s.mu.Lock()
	for _, ch := range s.channels {
		close(ch)
	}
	s.mu.Unlock()
	_ = s.workers.Wait()
}
