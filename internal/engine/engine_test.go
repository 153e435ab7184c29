package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"dwelltrack/internal/dwellerr"
	"dwelltrack/internal/model"
	"dwelltrack/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	e := New(s, Config{
		DwellTimeout:         30 * time.Second,
		TimelineCap:          100,
		RecentEventsCapacity: 100,
		DedupeWindowSize:     10_000,
	}, zerolog.Nop())
	return e, s
}

func obs(eventID, collector, camera, object, cell string, ts int64) model.Observation {
	return model.Observation{
		EventID:     eventID,
		CollectorID: collector,
		CameraID:    camera,
		ObjectID:    object,
		GridCellID:  cell,
		TimestampMs: ts,
	}
}

// S1 Single enter.
func TestProcess_S1_SingleEnter(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t)
	dedupe := e.NewDedupeWindow()

	require.NoError(t, e.Process(ctx, dedupe, obs("e1", "c1", "cam1", "A", "G_05_08", 1000)))

	st, found, err := s.GetObjectState(ctx, "c1", "cam1", "A")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "G_05_08", *st.CurrentCell)
	require.Equal(t, int64(1000), *st.EnterTsMs)
	require.Equal(t, int64(1000), st.LastSeenTsMs)
	require.Equal(t, int64(0), st.AccumulatedMs)

	entries, err := s.ReadEntries(ctx, "c1", "cam1", "A", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, model.TimelineEnter, entries[0].Type)
	require.Nil(t, entries[0].ToTsMs)

	agg, err := s.GetAggregate(ctx, "c1", "cam1", "G_05_08")
	require.NoError(t, err)
	require.Empty(t, agg.Contributions)
}

// S2 Same-cell tick.
func TestProcess_S2_SameCellTick(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t)
	dedupe := e.NewDedupeWindow()

	require.NoError(t, e.Process(ctx, dedupe, obs("e1", "c1", "cam1", "A", "G_05_08", 1000)))
	require.NoError(t, e.Process(ctx, dedupe, obs("e2", "c1", "cam1", "A", "G_05_08", 1500)))

	st, _, err := s.GetObjectState(ctx, "c1", "cam1", "A")
	require.NoError(t, err)
	require.Equal(t, int64(1500), st.LastSeenTsMs)

	entries, err := s.ReadEntries(ctx, "c1", "cam1", "A", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	agg, err := s.GetAggregate(ctx, "c1", "cam1", "G_05_08")
	require.NoError(t, err)
	require.Empty(t, agg.Contributions)
}

// S3 Transition.
func TestProcess_S3_Transition(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t)
	dedupe := e.NewDedupeWindow()

	require.NoError(t, e.Process(ctx, dedupe, obs("e1", "c1", "cam1", "A", "G_05_08", 1000)))
	require.NoError(t, e.Process(ctx, dedupe, obs("e2", "c1", "cam1", "A", "G_05_08", 1500)))
	require.NoError(t, e.Process(ctx, dedupe, obs("e3", "c1", "cam1", "A", "G_06_08", 2500)))

	st, _, err := s.GetObjectState(ctx, "c1", "cam1", "A")
	require.NoError(t, err)
	require.Equal(t, "G_06_08", *st.CurrentCell)
	require.Equal(t, int64(2500), *st.EnterTsMs)
	require.Equal(t, int64(2500), st.LastSeenTsMs)
	require.Equal(t, int64(1500), st.AccumulatedMs)

	agg, err := s.GetAggregate(ctx, "c1", "cam1", "G_05_08")
	require.NoError(t, err)
	require.Equal(t, int64(1500), agg.Contributions["A"])

	entries, err := s.ReadEntries(ctx, "c1", "cam1", "A", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, model.TimelineEnter, entries[0].Type)
	require.Equal(t, "G_06_08", entries[0].CellID)
	require.Equal(t, model.TimelineLeave, entries[1].Type)
	require.Equal(t, "G_05_08", entries[1].CellID)
	require.Equal(t, int64(2500), *entries[1].ToTsMs)
}

// S4 Timeout close is exercised in internal/sweeper; here we check the
// Dwell Engine's own gap-triggered implicit close (step 3 of spec.md §4.D)
// takes the same code path.
func TestProcess_ImplicitCloseOnGap(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t)
	dedupe := e.NewDedupeWindow()

	require.NoError(t, e.Process(ctx, dedupe, obs("e1", "c1", "cam1", "A", "G_05_08", 1000)))
	require.NoError(t, e.Process(ctx, dedupe, obs("e2", "c1", "cam1", "A", "G_06_08", 50_000)))

	agg, err := s.GetAggregate(ctx, "c1", "cam1", "G_05_08")
	require.NoError(t, err)
	require.Equal(t, int64(0), agg.Contributions["A"])

	st, _, err := s.GetObjectState(ctx, "c1", "cam1", "A")
	require.NoError(t, err)
	require.Equal(t, "G_06_08", *st.CurrentCell)
	require.Equal(t, int64(0), st.AccumulatedMs)

	entries, err := s.ReadEntries(ctx, "c1", "cam1", "A", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "timeout", entries[1].Meta["reason"])
}

// S6 Out-of-order drop.
func TestProcess_S6_OutOfOrderRejected(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t)
	dedupe := e.NewDedupeWindow()

	require.NoError(t, e.Process(ctx, dedupe, obs("e1", "c1", "cam1", "A", "G_05_08", 1000)))
	require.NoError(t, e.Process(ctx, dedupe, obs("e2", "c1", "cam1", "A", "G_05_08", 1500)))
	require.NoError(t, e.Process(ctx, dedupe, obs("e3", "c1", "cam1", "A", "G_06_08", 2500)))

	err := e.Process(ctx, dedupe, obs("e4", "c1", "cam1", "A", "G_04_08", 1200))
	require.ErrorIs(t, err, dwellerr.ErrOutOfOrder)

	st, _, err2 := s.GetObjectState(ctx, "c1", "cam1", "A")
	require.NoError(t, err2)
	require.Equal(t, "G_06_08", *st.CurrentCell)

	require.Equal(t, int64(1), e.Stats().OutOfOrder)
}

// Property 2: idempotence on event_id.
func TestProcess_DuplicateEventIsNoop(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t)
	dedupe := e.NewDedupeWindow()

	require.NoError(t, e.Process(ctx, dedupe, obs("e1", "c1", "cam1", "A", "G_05_08", 1000)))
	require.NoError(t, e.Process(ctx, dedupe, obs("e1", "c1", "cam1", "A", "G_05_08", 1000)))

	entries, err := s.ReadEntries(ctx, "c1", "cam1", "A", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(1), e.Stats().Duplicates)
}

func TestRecordDropped_AddsToStats(t *testing.T) {
	e, _ := newTestEngine(t)

	e.RecordDropped(3)
	e.RecordDropped(2)
	require.Equal(t, int64(5), e.Stats().Dropped)
}

func TestRecordDropped_IgnoresNonPositive(t *testing.T) {
	e, _ := newTestEngine(t)

	e.RecordDropped(0)
	e.RecordDropped(-1)
	require.Equal(t, int64(0), e.Stats().Dropped)
}

// Property 1: replay determinism across a fresh dedup window.
func TestProcess_ReplayDeterminism(t *testing.T) {
	ctx := context.Background()
	sequence := []model.Observation{
		obs("e1", "c1", "cam1", "A", "G_05_08", 1000),
		obs("e2", "c1", "cam1", "A", "G_05_08", 1500),
		obs("e3", "c1", "cam1", "A", "G_06_08", 2500),
	}

	e1, s1 := newTestEngine(t)
	d1 := e1.NewDedupeWindow()
	for _, o := range sequence {
		require.NoError(t, e1.Process(ctx, d1, o))
	}

	e2, s2 := newTestEngine(t)
	d2 := e2.NewDedupeWindow()
	for _, o := range sequence {
		require.NoError(t, e2.Process(ctx, d2, o))
	}

	st1, _, _ := s1.GetObjectState(ctx, "c1", "cam1", "A")
	st2, _, _ := s2.GetObjectState(ctx, "c1", "cam1", "A")
	require.Equal(t, st1, st2)

	agg1, _ := s1.GetAggregate(ctx, "c1", "cam1", "G_05_08")
	agg2, _ := s2.GetAggregate(ctx, "c1", "cam1", "G_05_08")
	require.Equal(t, agg1.Contributions, agg2.Contributions)
}
