// Package feedback implements the Feedback Processor (spec.md §4.E): the
// three human-in-the-loop operations that retroactively mutate object
// state, cell aggregates, and timelines outside the normal observation
// stream.
package feedback

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"dwelltrack/internal/dwellerr"
	"dwelltrack/internal/model"
	"dwelltrack/internal/store"
)

// Config carries the one open-question policy toggle the source left
// ambiguous (spec.md §9 "Open question — delete_span and aggregates").
type Config struct {
	// SubtractDeletedSpans controls whether delete_span also removes the
	// deleted interval's dwell from the cell aggregate it contributed to.
	// Default false preserves the source's audit-only behavior.
	SubtractDeletedSpans bool
	// TimelineCap bounds per-object timeline length, matching the engine's
	// configured cap so feedback-authored entries obey the same retention.
	TimelineCap int
}

// Processor applies relabel, correct_cell, and delete_span against a Store.
// The writes of one operation are not transactional. Relabel writes the
// state first, then the aggregates, then the timeline; DeleteSpan edits the
// aggregate (when configured) before appending its timeline entry.
// CorrectCell removes the original cell's contribution and appends the
// correct entry before it writes the new state.
type Processor struct {
	store store.Store
	cfg   Config
	log   zerolog.Logger
	// now returns the current wall-clock time in epoch milliseconds. It is
	// a field, not time.Now, so tests can supply a fixed clock.
	now func() int64
	// mirror optionally duplicates every audit entry to a secondary sink
	// (e.g. the Postgres audit mirror) after the primary store write
	// succeeds. A mirror failure is logged, never propagated: the State
	// Store's audit list is the source of truth.
	mirror func(ctx context.Context, a model.FeedbackAudit) error
}

// New builds a Processor. nowFn must return epoch milliseconds.
func New(s store.Store, cfg Config, log zerolog.Logger, nowFn func() int64) *Processor {
	return &Processor{store: s, cfg: cfg, log: log, now: nowFn}
}

// SetMirror registers an optional secondary audit sink.
func (p *Processor) SetMirror(fn func(ctx context.Context, a model.FeedbackAudit) error) {
	p.mirror = fn
}

// Relabel moves all state for oldObjectID to newObjectID. In the current
// cell, the old id's contribution plus any open-span dwell is carried
// forward as a closed contribution under the new id (spec.md §4.E relabel).
func (p *Processor) Relabel(ctx context.Context, collectorID, cameraID, oldObjectID, newObjectID string) error {
	s, found, err := p.store.GetObjectState(ctx, collectorID, cameraID, oldObjectID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: object %s has no state", dwellerr.ErrNotFound, oldObjectID)
	}
	if _, exists, err := p.store.GetObjectState(ctx, collectorID, cameraID, newObjectID); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: relabel target %s already has state", dwellerr.ErrConflict, newObjectID)
	}

	newState := s
	newState.ObjectID = newObjectID
	if err := p.store.SetObjectState(ctx, newState); err != nil {
		return err
	}
	if err := p.store.DeleteObjectState(ctx, collectorID, cameraID, oldObjectID); err != nil {
		return err
	}

	if s.CurrentCell != nil {
		openDwell := p.now() - *s.EnterTsMs
		prior, err := p.store.GetAggregate(ctx, collectorID, cameraID, *s.CurrentCell)
		if err != nil {
			return err
		}
		if err := p.store.RemoveContribution(ctx, collectorID, cameraID, *s.CurrentCell, oldObjectID); err != nil {
			return err
		}
		carried := prior.Contributions[oldObjectID] + openDwell
		if err := p.store.AddContribution(ctx, collectorID, cameraID, *s.CurrentCell, newObjectID, carried); err != nil {
			return err
		}
	}

	if err := p.store.MoveTimeline(ctx, collectorID, cameraID, oldObjectID, newObjectID, p.cfg.TimelineCap); err != nil {
		return err
	}

	return p.audit(ctx, "relabel", map[string]string{
		"collector_id": collectorID,
		"camera_id":    cameraID,
		"old_object":   oldObjectID,
		"new_object":   newObjectID,
	})
}

// CorrectCell overrides an object's current cell without changing
// accumulated_ms (spec.md §4.E correct_cell).
func (p *Processor) CorrectCell(ctx context.Context, collectorID, cameraID, objectID string, frameTsMs int64, correctCellID string) (noChange bool, err error) {
	s, found, err := p.store.GetObjectState(ctx, collectorID, cameraID, objectID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, fmt.Errorf("%w: object %s has no state", dwellerr.ErrNotFound, objectID)
	}
	if s.CurrentCell != nil && *s.CurrentCell == correctCellID {
		return true, nil
	}

	originalCell := ""
	if s.CurrentCell != nil {
		originalCell = *s.CurrentCell
		if err := p.store.RemoveContribution(ctx, collectorID, cameraID, originalCell, objectID); err != nil {
			return false, err
		}
		entry := model.TimelineEntry{
			Type:     model.TimelineCorrect,
			CellID:   originalCell,
			FromTsMs: *s.EnterTsMs,
			ToTsMs:   &frameTsMs,
			Meta:     map[string]string{"original": originalCell, "corrected": correctCellID},
		}
		if err := p.store.PrependEntry(ctx, collectorID, cameraID, objectID, entry, p.cfg.TimelineCap); err != nil {
			return false, err
		}
	}

	cell := correctCellID
	enter := frameTsMs
	s.CurrentCell = &cell
	s.EnterTsMs = &enter
	s.LastSeenTsMs = frameTsMs
	if err := p.store.SetObjectState(ctx, s); err != nil {
		return false, err
	}

	enterEntry := model.TimelineEntry{
		Type:     model.TimelineEnter,
		CellID:   correctCellID,
		FromTsMs: frameTsMs,
		ToTsMs:   nil,
		Meta:     map[string]string{"reason": "correction"},
	}
	if err := p.store.PrependEntry(ctx, collectorID, cameraID, objectID, enterEntry, p.cfg.TimelineCap); err != nil {
		return false, err
	}

	if err := p.audit(ctx, "correct_cell", map[string]string{
		"collector_id":   collectorID,
		"camera_id":      cameraID,
		"object_id":      objectID,
		"original_cell":  originalCell,
		"corrected_cell": correctCellID,
	}); err != nil {
		return false, err
	}
	return false, nil
}

// DeleteSpan appends a false-positive-removal timeline entry over
// [fromTsMs, toTsMs). Whether this also subtracts from the cell aggregate
// is governed by Config.SubtractDeletedSpans (spec.md §9, open question).
func (p *Processor) DeleteSpan(ctx context.Context, collectorID, cameraID, objectID string, fromTsMs, toTsMs int64, cellID string) error {
	if fromTsMs >= toTsMs {
		return fmt.Errorf("%w: from_ts_ms %d >= to_ts_ms %d", dwellerr.ErrInvalidSpan, fromTsMs, toTsMs)
	}

	durationMs := toTsMs - fromTsMs
	if p.cfg.SubtractDeletedSpans && cellID != "" {
		if err := p.store.AddContribution(ctx, collectorID, cameraID, cellID, objectID, -durationMs); err != nil {
			return err
		}
	}

	to := toTsMs
	entry := model.TimelineEntry{
		Type:     model.TimelineDelete,
		CellID:   "deleted",
		FromTsMs: fromTsMs,
		ToTsMs:   &to,
		Meta: map[string]string{
			"reason":      "false_positive_removal",
			"duration_ms": fmt.Sprintf("%d", durationMs),
		},
	}
	if err := p.store.PrependEntry(ctx, collectorID, cameraID, objectID, entry, p.cfg.TimelineCap); err != nil {
		return err
	}

	return p.audit(ctx, "delete_span", map[string]string{
		"collector_id": collectorID,
		"camera_id":    cameraID,
		"object_id":    objectID,
		"from_ts_ms":   fmt.Sprintf("%d", fromTsMs),
		"to_ts_ms":     fmt.Sprintf("%d", toTsMs),
	})
}

func (p *Processor) audit(ctx context.Context, op string, payload map[string]string) error {
	a := model.FeedbackAudit{
		Operation: op,
		Payload:   payload,
		TsMs:      p.now(),
	}
	if err := p.store.AppendAudit(ctx, a); err != nil {
		return err
	}
	if p.mirror != nil {
		if err := p.mirror(ctx, a); err != nil {
			p.log.Warn().Err(err).Str("operation", op).Msg("audit mirror write failed")
		}
	}
	return nil
}
