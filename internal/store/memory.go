package store

import (
	"context"
	"sync"

	"dwelltrack/internal/model"
)

// MemoryStore is an in-memory State Store used by tests (spec.md's
// Non-goals exclude in-memory stand-ins
// from the production surface; this is that excluded stand-in, kept
// only where the spec's own test-tooling expectations require it).
type MemoryStore struct {
	mu sync.Mutex

	states      map[string]model.ObjectState
	aggregates  map[string]map[string]int64 // aggKey -> objectID -> dwellMs
	timelines   map[string][]model.TimelineEntry
	recent      []model.RecentEvent
	audit       []model.FeedbackAudit
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:     make(map[string]model.ObjectState),
		aggregates: make(map[string]map[string]int64),
		timelines:  make(map[string][]model.TimelineEntry),
	}
}

func stateKey(collectorID, cameraID, objectID string) string {
	return collectorID + "|" + cameraID + "|" + objectID
}

func aggMapKey(collectorID, cameraID, cellID string) string {
	return collectorID + "|" + cameraID + "|" + cellID
}

func (m *MemoryStore) GetObjectState(_ context.Context, collectorID, cameraID, objectID string) (model.ObjectState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[stateKey(collectorID, cameraID, objectID)]
	return s, ok, nil
}

func (m *MemoryStore) SetObjectState(_ context.Context, s model.ObjectState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[stateKey(s.CollectorID, s.CameraID, s.ObjectID)] = s
	return nil
}

func (m *MemoryStore) DeleteObjectState(_ context.Context, collectorID, cameraID, objectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, stateKey(collectorID, cameraID, objectID))
	return nil
}

func (m *MemoryStore) ListAllObjectStates(_ context.Context) ([]model.ObjectState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ObjectState, 0, len(m.states))
	for _, s := range m.states {
		out = append(out, s)
	}
	return out, nil
}

func (m *MemoryStore) AddContribution(_ context.Context, collectorID, cameraID, cellID, objectID string, dwellMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := aggMapKey(collectorID, cameraID, cellID)
	if m.aggregates[key] == nil {
		m.aggregates[key] = make(map[string]int64)
	}
	m.aggregates[key][objectID] += dwellMs
	return nil
}

func (m *MemoryStore) RemoveContribution(_ context.Context, collectorID, cameraID, cellID, objectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := aggMapKey(collectorID, cameraID, cellID)
	delete(m.aggregates[key], objectID)
	return nil
}

func (m *MemoryStore) GetAggregate(_ context.Context, collectorID, cameraID, cellID string) (model.CellAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := aggMapKey(collectorID, cameraID, cellID)
	contrib := make(map[string]int64, len(m.aggregates[key]))
	for k, v := range m.aggregates[key] {
		contrib[k] = v
	}
	return model.CellAggregate{CollectorID: collectorID, CameraID: cameraID, CellID: cellID, Contributions: contrib}, nil
}

func (m *MemoryStore) ListAggregates(_ context.Context, collectorID, cameraID string) ([]model.CellAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := collectorID + "|" + cameraID + "|"
	var out []model.CellAggregate
	for key, contrib := range m.aggregates {
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		cellID := key[len(prefix):]
		copied := make(map[string]int64, len(contrib))
		for k, v := range contrib {
			copied[k] = v
		}
		out = append(out, model.CellAggregate{CollectorID: collectorID, CameraID: cameraID, CellID: cellID, Contributions: copied})
	}
	return out, nil
}

func (m *MemoryStore) PrependEntry(_ context.Context, collectorID, cameraID, objectID string, entry model.TimelineEntry, capN int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := stateKey(collectorID, cameraID, objectID)
	entries := append([]model.TimelineEntry{entry}, m.timelines[key]...)
	if capN > 0 && len(entries) > capN {
		entries = entries[:capN]
	}
	m.timelines[key] = entries
	return nil
}

func (m *MemoryStore) ReadEntries(_ context.Context, collectorID, cameraID, objectID string, limit int) ([]model.TimelineEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.timelines[stateKey(collectorID, cameraID, objectID)]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]model.TimelineEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (m *MemoryStore) DeleteTimeline(_ context.Context, collectorID, cameraID, objectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.timelines, stateKey(collectorID, cameraID, objectID))
	return nil
}

func (m *MemoryStore) MoveTimeline(_ context.Context, collectorID, cameraID, fromObjectID, toObjectID string, capN int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fromKey := stateKey(collectorID, cameraID, fromObjectID)
	toKey := stateKey(collectorID, cameraID, toObjectID)
	merged := append(m.timelines[fromKey], m.timelines[toKey]...)
	if capN > 0 && len(merged) > capN {
		merged = merged[:capN]
	}
	m.timelines[toKey] = merged
	delete(m.timelines, fromKey)
	return nil
}

func (m *MemoryStore) PushEvent(_ context.Context, e model.RecentEvent, capacity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recent = append([]model.RecentEvent{e}, m.recent...)
	if capacity > 0 && len(m.recent) > capacity {
		m.recent = m.recent[:capacity]
	}
	return nil
}

func (m *MemoryStore) ReadLatest(_ context.Context, limit int) ([]model.RecentEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.recent
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	out := make([]model.RecentEvent, len(events))
	copy(out, events)
	return out, nil
}

func (m *MemoryStore) AppendAudit(_ context.Context, a model.FeedbackAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, a)
	return nil
}

var _ Store = (*MemoryStore)(nil)
