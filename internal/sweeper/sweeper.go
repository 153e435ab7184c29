// Package sweeper implements the Timeout Sweeper (spec.md §4.G): a
// periodic scan that closes spans for objects not seen within the dwell
// timeout window.
package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"dwelltrack/internal/engine"
	"dwelltrack/internal/store"
)

// Sweeper ticks on a fixed interval and closes stale open spans.
type Sweeper struct {
	store    store.Store
	engine   *engine.Engine
	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger
	nowMs    func() int64
}

// New builds a Sweeper. nowMs must return epoch milliseconds; production
// callers pass a thin wrapper over time.Now, tests supply a fixed clock.
func New(s store.Store, e *engine.Engine, interval, timeout time.Duration, log zerolog.Logger, nowMs func() int64) *Sweeper {
	return &Sweeper{store: s, engine: e, interval: interval, timeout: timeout, log: log, nowMs: nowMs}
}

// Run ticks until ctx is canceled, running Sweep on every tick.
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sw.Sweep(ctx); err != nil {
				sw.log.Error().Err(err).Msg("sweep pass failed")
			}
		}
	}
}

// Sweep performs a single scan pass, closing every active object state
// whose last_seen_ts_ms is older than now - timeout (spec.md §4.G).
func (sw *Sweeper) Sweep(ctx context.Context) error {
	states, err := sw.store.ListAllObjectStates(ctx)
	if err != nil {
		return err
	}
	now := sw.nowMs()
	closed := 0
	for _, s := range states {
		if s.CurrentCell == nil {
			continue
		}
		if now-s.LastSeenTsMs <= sw.timeout.Milliseconds() {
			continue
		}
		if err := sw.engine.CloseStaleSpan(ctx, s); err != nil {
			sw.log.Error().
				Err(err).
				Str("collector_id", s.CollectorID).
				Str("camera_id", s.CameraID).
				Str("object_id", s.ObjectID).
				Msg("failed to close stale span")
			continue
		}
		closed++
	}
	if closed > 0 {
		sw.log.Info().Int("closed", closed).Msg("timeout sweep closed stale spans")
	}
	return nil
}
