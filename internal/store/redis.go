package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"dwelltrack/internal/dwellerr"
	"dwelltrack/internal/model"
)

// RedisStore backs the State Store on Redis, following the ping-on-construct
// and UniversalClient conventions used elsewhere in the teacher codebase for
// Redis-backed caches and dedupe stores.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore builds a RedisStore and verifies connectivity.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: redis ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// Close releases the underlying Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func objectStateKey(collectorID, cameraID, objectID string) string {
	return fmt.Sprintf("os:%s:%s:%s", collectorID, cameraID, objectID)
}

func aggregateKey(collectorID, cameraID, cellID string) string {
	return fmt.Sprintf("agg:%s:%s:%s", collectorID, cameraID, cellID)
}

func aggregateCellSetKey(collectorID, cameraID string) string {
	return fmt.Sprintf("aggcells:%s:%s", collectorID, cameraID)
}

func timelineKey(collectorID, cameraID, objectID string) string {
	return fmt.Sprintf("tl:%s:%s:%s", collectorID, cameraID, objectID)
}

const recentEventsKey = "events:recent"
const feedbackAuditKey = "audit:feedback"
const knownObjectsKey = "objects:known"

func knownObjectMember(collectorID, cameraID, objectID string) string {
	return fmt.Sprintf("%s:%s:%s", collectorID, cameraID, objectID)
}

// GetObjectState implements ObjectStateStore.
func (s *RedisStore) GetObjectState(ctx context.Context, collectorID, cameraID, objectID string) (model.ObjectState, bool, error) {
	key := objectStateKey(collectorID, cameraID, objectID)
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return model.ObjectState{}, false, nil
	}
	if err != nil {
		return model.ObjectState{}, false, fmt.Errorf("%w: get object state: %v", dwellerr.ErrStoreUnavailable, err)
	}
	var st model.ObjectState
	if err := json.Unmarshal([]byte(val), &st); err != nil {
		return model.ObjectState{}, false, fmt.Errorf("%w: decode object state: %v", dwellerr.ErrInternal, err)
	}
	return st, true, nil
}

// SetObjectState implements ObjectStateStore, refreshing the TTL.
func (s *RedisStore) SetObjectState(ctx context.Context, st model.ObjectState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("%w: encode object state: %v", dwellerr.ErrInternal, err)
	}
	key := objectStateKey(st.CollectorID, st.CameraID, st.ObjectID)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, data, s.ttl)
	pipe.SAdd(ctx, knownObjectsKey, knownObjectMember(st.CollectorID, st.CameraID, st.ObjectID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: set object state: %v", dwellerr.ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteObjectState implements ObjectStateStore.
func (s *RedisStore) DeleteObjectState(ctx context.Context, collectorID, cameraID, objectID string) error {
	key := objectStateKey(collectorID, cameraID, objectID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, knownObjectsKey, knownObjectMember(collectorID, cameraID, objectID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: delete object state: %v", dwellerr.ErrStoreUnavailable, err)
	}
	return nil
}

// ListAllObjectStates implements ObjectStateStore by scanning the known-
// objects index built up by SetObjectState/DeleteObjectState. A member
// whose state key has already expired via TTL is skipped rather than
// treated as an error.
func (s *RedisStore) ListAllObjectStates(ctx context.Context) ([]model.ObjectState, error) {
	members, err := s.client.SMembers(ctx, knownObjectsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list known objects: %v", dwellerr.ErrStoreUnavailable, err)
	}
	states := make([]model.ObjectState, 0, len(members))
	for _, m := range members {
		parts := splitKnownObjectMember(m)
		if len(parts) != 3 {
			continue
		}
		collectorID, cameraID, objectID := parts[0], parts[1], parts[2]
		st, found, err := s.GetObjectState(ctx, collectorID, cameraID, objectID)
		if err != nil {
			return nil, err
		}
		if !found {
			s.client.SRem(ctx, knownObjectsKey, m)
			continue
		}
		states = append(states, st)
	}
	return states, nil
}

func splitKnownObjectMember(m string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(m); i++ {
		if m[i] == ':' {
			parts = append(parts, m[start:i])
			start = i + 1
		}
	}
	parts = append(parts, m[start:])
	return parts
}

// AddContribution implements CellAggregateStore. Repeated calls for the
// same (cell, object) accumulate via HINCRBY, per spec.md §4.A.
func (s *RedisStore) AddContribution(ctx context.Context, collectorID, cameraID, cellID, objectID string, dwellMs int64) error {
	key := aggregateKey(collectorID, cameraID, cellID)
	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, objectID, dwellMs)
	pipe.Expire(ctx, key, s.ttl)
	pipe.SAdd(ctx, aggregateCellSetKey(collectorID, cameraID), cellID)
	pipe.Expire(ctx, aggregateCellSetKey(collectorID, cameraID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: add contribution: %v", dwellerr.ErrStoreUnavailable, err)
	}
	return nil
}

// RemoveContribution implements CellAggregateStore, deleting the object's
// entire contribution to the cell.
func (s *RedisStore) RemoveContribution(ctx context.Context, collectorID, cameraID, cellID, objectID string) error {
	key := aggregateKey(collectorID, cameraID, cellID)
	if err := s.client.HDel(ctx, key, objectID).Err(); err != nil {
		return fmt.Errorf("%w: remove contribution: %v", dwellerr.ErrStoreUnavailable, err)
	}
	return nil
}

// GetAggregate implements CellAggregateStore.
func (s *RedisStore) GetAggregate(ctx context.Context, collectorID, cameraID, cellID string) (model.CellAggregate, error) {
	key := aggregateKey(collectorID, cameraID, cellID)
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return model.CellAggregate{}, fmt.Errorf("%w: get aggregate: %v", dwellerr.ErrStoreUnavailable, err)
	}
	agg := model.CellAggregate{
		CollectorID:   collectorID,
		CameraID:      cameraID,
		CellID:        cellID,
		Contributions: make(map[string]int64, len(vals)),
	}
	for obj, v := range vals {
		var dwell int64
		if _, err := fmt.Sscanf(v, "%d", &dwell); err == nil {
			agg.Contributions[obj] = dwell
		}
	}
	return agg, nil
}

// ListAggregates implements CellAggregateStore, returning one CellAggregate
// per cell that has ever recorded a contribution.
func (s *RedisStore) ListAggregates(ctx context.Context, collectorID, cameraID string) ([]model.CellAggregate, error) {
	cellIDs, err := s.client.SMembers(ctx, aggregateCellSetKey(collectorID, cameraID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list aggregates: %v", dwellerr.ErrStoreUnavailable, err)
	}
	aggs := make([]model.CellAggregate, 0, len(cellIDs))
	for _, cellID := range cellIDs {
		agg, err := s.GetAggregate(ctx, collectorID, cameraID, cellID)
		if err != nil {
			return nil, err
		}
		aggs = append(aggs, agg)
	}
	return aggs, nil
}

// PrependEntry implements TimelineStore, trimming to cap entries.
func (s *RedisStore) PrependEntry(ctx context.Context, collectorID, cameraID, objectID string, entry model.TimelineEntry, capN int) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: encode timeline entry: %v", dwellerr.ErrInternal, err)
	}
	key := timelineKey(collectorID, cameraID, objectID)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	if capN > 0 {
		pipe.LTrim(ctx, key, 0, int64(capN-1))
	}
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: prepend timeline entry: %v", dwellerr.ErrStoreUnavailable, err)
	}
	return nil
}

// ReadEntries implements TimelineStore.
func (s *RedisStore) ReadEntries(ctx context.Context, collectorID, cameraID, objectID string, limit int) ([]model.TimelineEntry, error) {
	key := timelineKey(collectorID, cameraID, objectID)
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raw, err := s.client.LRange(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read timeline: %v", dwellerr.ErrStoreUnavailable, err)
	}
	entries := make([]model.TimelineEntry, 0, len(raw))
	for _, r := range raw {
		var e model.TimelineEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("%w: decode timeline entry: %v", dwellerr.ErrInternal, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// DeleteTimeline implements TimelineStore.
func (s *RedisStore) DeleteTimeline(ctx context.Context, collectorID, cameraID, objectID string) error {
	key := timelineKey(collectorID, cameraID, objectID)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: delete timeline: %v", dwellerr.ErrStoreUnavailable, err)
	}
	return nil
}

// MoveTimeline implements TimelineStore: it copies the source timeline in
// front of the destination's (oldest-preserving order) and removes the
// source key, used by relabel (spec.md §4.E).
func (s *RedisStore) MoveTimeline(ctx context.Context, collectorID, cameraID, fromObjectID, toObjectID string, capN int) error {
	fromKey := timelineKey(collectorID, cameraID, fromObjectID)
	toKey := timelineKey(collectorID, cameraID, toObjectID)

	raw, err := s.client.LRange(ctx, fromKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("%w: read source timeline: %v", dwellerr.ErrStoreUnavailable, err)
	}
	if len(raw) == 0 {
		return s.DeleteTimeline(ctx, collectorID, cameraID, fromObjectID)
	}

	pipe := s.client.TxPipeline()
	// raw is newest-first; pushing in reverse keeps relative order once
	// prepended ahead of whatever toKey already holds.
	for i := len(raw) - 1; i >= 0; i-- {
		pipe.LPush(ctx, toKey, raw[i])
	}
	if capN > 0 {
		pipe.LTrim(ctx, toKey, 0, int64(capN-1))
	}
	pipe.Expire(ctx, toKey, s.ttl)
	pipe.Del(ctx, fromKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: move timeline: %v", dwellerr.ErrStoreUnavailable, err)
	}
	return nil
}

// PushEvent implements RecentEventsStore.
func (s *RedisStore) PushEvent(ctx context.Context, e model.RecentEvent, capacity int) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: encode recent event: %v", dwellerr.ErrInternal, err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, recentEventsKey, data)
	if capacity > 0 {
		pipe.LTrim(ctx, recentEventsKey, 0, int64(capacity-1))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: push recent event: %v", dwellerr.ErrStoreUnavailable, err)
	}
	return nil
}

// ReadLatest implements RecentEventsStore.
func (s *RedisStore) ReadLatest(ctx context.Context, limit int) ([]model.RecentEvent, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raw, err := s.client.LRange(ctx, recentEventsKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read recent events: %v", dwellerr.ErrStoreUnavailable, err)
	}
	events := make([]model.RecentEvent, 0, len(raw))
	for _, r := range raw {
		var e model.RecentEvent
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("%w: decode recent event: %v", dwellerr.ErrInternal, err)
		}
		events = append(events, e)
	}
	return events, nil
}

// AppendAudit implements FeedbackAuditStore.
func (s *RedisStore) AppendAudit(ctx context.Context, a model.FeedbackAudit) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("%w: encode audit entry: %v", dwellerr.ErrInternal, err)
	}
	if err := s.client.LPush(ctx, feedbackAuditKey, data).Err(); err != nil {
		return fmt.Errorf("%w: append audit: %v", dwellerr.ErrStoreUnavailable, err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
