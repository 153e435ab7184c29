// Package store defines the State Store contract (spec.md §4.A) and
// provides a Redis-backed production implementation alongside an
// in-memory test double.
package store

import (
	"context"

	"dwelltrack/internal/model"
)

// ObjectStateStore is the typed get/set/delete surface for per-object
// live state, with TTL refreshed on every write.
type ObjectStateStore interface {
	GetObjectState(ctx context.Context, collectorID, cameraID, objectID string) (model.ObjectState, bool, error)
	SetObjectState(ctx context.Context, s model.ObjectState) error
	DeleteObjectState(ctx context.Context, collectorID, cameraID, objectID string) error
	// ListAllObjectStates returns every known ObjectState across every
	// partition, used by the Timeout Sweeper's scan (spec.md §4.G) and the
	// Query API's /objects/active projection. States that expired via TTL
	// since being indexed are silently skipped.
	ListAllObjectStates(ctx context.Context) ([]model.ObjectState, error)
}

// CellAggregateStore exposes the per-cell contribution ledger described
// in spec.md §4.A. AddContribution is accumulative across distinct calls;
// RemoveContribution deletes an object's entire contribution to a cell.
type CellAggregateStore interface {
	AddContribution(ctx context.Context, collectorID, cameraID, cellID, objectID string, dwellMs int64) error
	RemoveContribution(ctx context.Context, collectorID, cameraID, cellID, objectID string) error
	GetAggregate(ctx context.Context, collectorID, cameraID, cellID string) (model.CellAggregate, error)
	ListAggregates(ctx context.Context, collectorID, cameraID string) ([]model.CellAggregate, error)
}

// TimelineStore holds the ordered, bounded per-object timeline.
type TimelineStore interface {
	PrependEntry(ctx context.Context, collectorID, cameraID, objectID string, entry model.TimelineEntry, cap int) error
	ReadEntries(ctx context.Context, collectorID, cameraID, objectID string, limit int) ([]model.TimelineEntry, error)
	DeleteTimeline(ctx context.Context, collectorID, cameraID, objectID string) error
	MoveTimeline(ctx context.Context, collectorID, cameraID, fromObjectID, toObjectID string, cap int) error
}

// RecentEventsStore is the bounded cross-stream live feed.
type RecentEventsStore interface {
	PushEvent(ctx context.Context, e model.RecentEvent, capacity int) error
	ReadLatest(ctx context.Context, limit int) ([]model.RecentEvent, error)
}

// FeedbackAuditStore is the append-only feedback operation log.
type FeedbackAuditStore interface {
	AppendAudit(ctx context.Context, a model.FeedbackAudit) error
}

// Store composes every namespace the engine, feedback processor, and
// query API depend on. A single backing implementation satisfies it;
// callers depend on the narrower interfaces above where possible.
type Store interface {
	ObjectStateStore
	CellAggregateStore
	TimelineStore
	RecentEventsStore
	FeedbackAuditStore
}
