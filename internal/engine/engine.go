// Package engine implements the Dwell Engine (spec.md §4.D): the
// per-partition state machine that turns a stream of cell observations
// into live ObjectState, CellAggregate contributions, and Timeline
// entries.
package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"dwelltrack/internal/dwellerr"
	"dwelltrack/internal/model"
	"dwelltrack/internal/store"
)

// Config holds the engine-wide tunables that originate from the process
// configuration (spec.md §6).
type Config struct {
	DwellTimeout         time.Duration
	TimelineCap          int
	RecentEventsCapacity int
	DedupeWindowSize     int
}

// Engine applies observations to per-object state. It holds no
// partition-scoped state itself; that lives in the per-partition
// dedupeWindow owned by each Supervisor partition worker (spec.md §5).
type Engine struct {
	store store.Store
	cfg   Config
	log   zerolog.Logger

	processed  atomic.Int64
	duplicates atomic.Int64
	outOfOrder atomic.Int64
	dropped    atomic.Int64
}

// New builds an Engine backed by the given store.
func New(s store.Store, cfg Config, log zerolog.Logger) *Engine {
	return &Engine{store: s, cfg: cfg, log: log}
}

// Stats are the process-level counters the Query API's /status and
// /metrics endpoints expose (SPEC_FULL.md §12).
type Stats struct {
	Processed  int64
	Duplicates int64
	OutOfOrder int64
	Dropped    int64
}

// Stats returns a snapshot of the engine's process-level counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Processed:  e.processed.Load(),
		Duplicates: e.duplicates.Load(),
		OutOfOrder: e.outOfOrder.Load(),
		Dropped:    e.dropped.Load(),
	}
}

// RecordDropped adds n to the dropped-observation counter. The ingress
// HTTP handler calls this with the normalizer's per-frame DroppedCount
// so objects that never make it past per-object validation still show
// up in /status and dwelltrack_observations_dropped_total.
func (e *Engine) RecordDropped(n int) {
	if n <= 0 {
		return
	}
	e.dropped.Add(int64(n))
}

// Process applies a single observation to the object state machine,
// following the algorithm in spec.md §4.D steps 1-5. dedupe is the
// calling partition worker's own LRU window; callers are responsible for
// routing all observations of a given (collector, camera) to the same
// worker/dedupe instance.
func (e *Engine) Process(ctx context.Context, dedupe *dedupeWindow, obs model.Observation) error {
	if dedupe.Seen(obs.EventID) {
		e.duplicates.Add(1)
		return nil
	}

	prior, found, err := e.store.GetObjectState(ctx, obs.CollectorID, obs.CameraID, obs.ObjectID)
	if err != nil {
		return err
	}

	if !found {
		if err := e.firstSighting(ctx, obs); err != nil {
			return err
		}
		dedupe.Insert(obs.EventID)
		e.processed.Add(1)
		return nil
	}

	if obs.TimestampMs < prior.LastSeenTsMs {
		e.outOfOrder.Add(1)
		e.log.Warn().
			Str("collector_id", obs.CollectorID).
			Str("camera_id", obs.CameraID).
			Str("object_id", obs.ObjectID).
			Str("event_id", obs.EventID).
			Int64("ts_ms", obs.TimestampMs).
			Int64("last_seen_ts_ms", prior.LastSeenTsMs).
			Msg("observation rejected: out of order")
		return fmt.Errorf("%w: observation ts %d behind watermark %d", dwellerr.ErrOutOfOrder, obs.TimestampMs, prior.LastSeenTsMs)
	}

	gap := obs.TimestampMs - prior.LastSeenTsMs
	if gap > e.cfg.DwellTimeout.Milliseconds() {
		if err := e.closeSpan(ctx, prior, "timeout"); err != nil {
			return err
		}
		if err := e.firstSightingAfterGap(ctx, obs, prior.AccumulatedMs); err != nil {
			return err
		}
		dedupe.Insert(obs.EventID)
		e.processed.Add(1)
		return nil
	}

	if prior.CurrentCell != nil && *prior.CurrentCell == obs.GridCellID {
		if err := e.sameCellTick(ctx, prior, obs); err != nil {
			return err
		}
		dedupe.Insert(obs.EventID)
		e.processed.Add(1)
		return nil
	}

	if err := e.transition(ctx, prior, obs); err != nil {
		return err
	}
	dedupe.Insert(obs.EventID)
	e.processed.Add(1)
	return nil
}

func (e *Engine) firstSighting(ctx context.Context, obs model.Observation) error {
	cell := obs.GridCellID
	enter := obs.TimestampMs
	st := model.ObjectState{
		CollectorID:   obs.CollectorID,
		CameraID:      obs.CameraID,
		ObjectID:      obs.ObjectID,
		CurrentCell:   &cell,
		EnterTsMs:     &enter,
		LastSeenTsMs:  obs.TimestampMs,
		AccumulatedMs: 0,
	}
	entry := model.TimelineEntry{Type: model.TimelineEnter, CellID: cell, FromTsMs: obs.TimestampMs, ToTsMs: nil}
	if err := e.store.PrependEntry(ctx, obs.CollectorID, obs.CameraID, obs.ObjectID, entry, e.cfg.TimelineCap); err != nil {
		return err
	}
	if err := e.pushEvent(ctx, model.EventEnter, obs.CollectorID, obs.CameraID, obs.ObjectID, cell, obs.TimestampMs); err != nil {
		return err
	}
	return e.store.SetObjectState(ctx, st)
}

func (e *Engine) firstSightingAfterGap(ctx context.Context, obs model.Observation, preservedAccumulated int64) error {
	cell := obs.GridCellID
	enter := obs.TimestampMs
	st := model.ObjectState{
		CollectorID:   obs.CollectorID,
		CameraID:      obs.CameraID,
		ObjectID:      obs.ObjectID,
		CurrentCell:   &cell,
		EnterTsMs:     &enter,
		LastSeenTsMs:  obs.TimestampMs,
		AccumulatedMs: preservedAccumulated,
	}
	entry := model.TimelineEntry{Type: model.TimelineEnter, CellID: cell, FromTsMs: obs.TimestampMs, ToTsMs: nil}
	if err := e.store.PrependEntry(ctx, obs.CollectorID, obs.CameraID, obs.ObjectID, entry, e.cfg.TimelineCap); err != nil {
		return err
	}
	if err := e.pushEvent(ctx, model.EventEnter, obs.CollectorID, obs.CameraID, obs.ObjectID, cell, obs.TimestampMs); err != nil {
		return err
	}
	return e.store.SetObjectState(ctx, st)
}

func (e *Engine) sameCellTick(ctx context.Context, prior model.ObjectState, obs model.Observation) error {
	prior.LastSeenTsMs = obs.TimestampMs
	if err := e.pushEvent(ctx, model.EventMove, obs.CollectorID, obs.CameraID, obs.ObjectID, obs.GridCellID, obs.TimestampMs); err != nil {
		return err
	}
	return e.store.SetObjectState(ctx, prior)
}

// transition handles a cell change (spec.md §4.D step 5): the dwell is
// closed on the new observation's timestamp, not last_seen_ts_ms, so
// contiguous tracks account for every millisecond.
func (e *Engine) transition(ctx context.Context, prior model.ObjectState, obs model.Observation) error {
	dwell := obs.TimestampMs - *prior.EnterTsMs
	if err := e.store.AddContribution(ctx, obs.CollectorID, obs.CameraID, *prior.CurrentCell, obs.ObjectID, dwell); err != nil {
		return err
	}
	leaveTo := obs.TimestampMs
	leaveEntry := model.TimelineEntry{Type: model.TimelineLeave, CellID: *prior.CurrentCell, FromTsMs: *prior.EnterTsMs, ToTsMs: &leaveTo}
	if err := e.store.PrependEntry(ctx, obs.CollectorID, obs.CameraID, obs.ObjectID, leaveEntry, e.cfg.TimelineCap); err != nil {
		return err
	}

	cell := obs.GridCellID
	enter := obs.TimestampMs
	newState := model.ObjectState{
		CollectorID:   obs.CollectorID,
		CameraID:      obs.CameraID,
		ObjectID:      obs.ObjectID,
		CurrentCell:   &cell,
		EnterTsMs:     &enter,
		LastSeenTsMs:  obs.TimestampMs,
		AccumulatedMs: prior.AccumulatedMs + dwell,
	}
	enterEntry := model.TimelineEntry{Type: model.TimelineEnter, CellID: cell, FromTsMs: obs.TimestampMs, ToTsMs: nil}
	if err := e.store.PrependEntry(ctx, obs.CollectorID, obs.CameraID, obs.ObjectID, enterEntry, e.cfg.TimelineCap); err != nil {
		return err
	}

	if err := e.pushEvent(ctx, model.EventExit, obs.CollectorID, obs.CameraID, obs.ObjectID, *prior.CurrentCell, obs.TimestampMs); err != nil {
		return err
	}
	if err := e.pushEvent(ctx, model.EventEnter, obs.CollectorID, obs.CameraID, obs.ObjectID, cell, obs.TimestampMs); err != nil {
		return err
	}
	return e.store.SetObjectState(ctx, newState)
}

// closeSpan performs the implicit close shared by the stale-observation
// path (spec.md §4.D step 3) and the Timeout Sweeper (spec.md §4.G): the
// open span is closed at last_seen_ts_ms, never at now, so accumulated
// dwell never exceeds what was actually observed.
func (e *Engine) closeSpan(ctx context.Context, s model.ObjectState, reason string) error {
	if s.CurrentCell == nil {
		return nil
	}
	dwell := s.LastSeenTsMs - *s.EnterTsMs
	if err := e.store.AddContribution(ctx, s.CollectorID, s.CameraID, *s.CurrentCell, s.ObjectID, dwell); err != nil {
		return err
	}
	to := s.LastSeenTsMs
	entry := model.TimelineEntry{
		Type:     model.TimelineLeave,
		CellID:   *s.CurrentCell,
		FromTsMs: *s.EnterTsMs,
		ToTsMs:   &to,
		Meta:     map[string]string{"reason": reason},
	}
	if err := e.store.PrependEntry(ctx, s.CollectorID, s.CameraID, s.ObjectID, entry, e.cfg.TimelineCap); err != nil {
		return err
	}
	return e.pushEvent(ctx, model.EventExit, s.CollectorID, s.CameraID, s.ObjectID, *s.CurrentCell, s.LastSeenTsMs)
}

// CloseStaleSpan is the entry point the Timeout Sweeper uses to close an
// object's open span and clear its current cell (spec.md §4.G).
func (e *Engine) CloseStaleSpan(ctx context.Context, s model.ObjectState) error {
	if err := e.closeSpan(ctx, s, "timeout"); err != nil {
		return err
	}
	s.CurrentCell = nil
	s.EnterTsMs = nil
	return e.store.SetObjectState(ctx, s)
}

func (e *Engine) pushEvent(ctx context.Context, typ model.RecentEventType, collectorID, cameraID, objectID, cellID string, tsMs int64) error {
	return e.store.PushEvent(ctx, model.RecentEvent{
		Type:        typ,
		CollectorID: collectorID,
		CameraID:    cameraID,
		ObjectID:    objectID,
		CellID:      cellID,
		TsMs:        tsMs,
	}, e.cfg.RecentEventsCapacity)
}

// NewDedupeWindow constructs a fresh per-partition-worker dedup window
// sized per the engine's configuration.
func (e *Engine) NewDedupeWindow() *dedupeWindow {
	return newDedupeWindow(e.cfg.DedupeWindowSize)
}
