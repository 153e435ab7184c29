package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"dwelltrack/internal/engine"
	"dwelltrack/internal/model"
	"dwelltrack/internal/store"
)

// S4 from spec.md §8: timeout close leaves last_seen_ts_ms unchanged and
// records a zero-dwell leave when enter == last_seen.
func TestSweep_ClosesStaleSpan(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	cell := "G_06_08"
	enter := int64(2500)
	require.NoError(t, s.SetObjectState(ctx, model.ObjectState{
		CollectorID: "c1", CameraID: "cam1", ObjectID: "A",
		CurrentCell: &cell, EnterTsMs: &enter, LastSeenTsMs: 2500, AccumulatedMs: 1500,
	}))

	e := engine.New(s, engine.Config{DwellTimeout: 30_000, TimelineCap: 100, RecentEventsCapacity: 100}, zerolog.Nop())
	sw := New(s, e, 0, 30*time.Second, zerolog.Nop(), func() int64 { return 42_500 })

	require.NoError(t, sw.Sweep(ctx))

	st, found, err := s.GetObjectState(ctx, "c1", "cam1", "A")
	require.NoError(t, err)
	require.True(t, found)
	require.Nil(t, st.CurrentCell)
	require.Nil(t, st.EnterTsMs)
	require.Equal(t, int64(2500), st.LastSeenTsMs)

	agg, err := s.GetAggregate(ctx, "c1", "cam1", cell)
	require.NoError(t, err)
	require.Equal(t, int64(0), agg.Contributions["A"])

	entries, err := s.ReadEntries(ctx, "c1", "cam1", "A", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, model.TimelineLeave, entries[0].Type)
	require.Equal(t, "timeout", entries[0].Meta["reason"])
}

func TestSweep_IgnoresActiveObjects(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	cell := "G_01_01"
	enter := int64(1000)
	require.NoError(t, s.SetObjectState(ctx, model.ObjectState{
		CollectorID: "c1", CameraID: "cam1", ObjectID: "A",
		CurrentCell: &cell, EnterTsMs: &enter, LastSeenTsMs: 1000,
	}))

	e := engine.New(s, engine.Config{DwellTimeout: 30_000, TimelineCap: 100, RecentEventsCapacity: 100}, zerolog.Nop())
	sw := New(s, e, 0, 30*time.Second, zerolog.Nop(), func() int64 { return 1500 })

	require.NoError(t, sw.Sweep(ctx))

	st, found, err := s.GetObjectState(ctx, "c1", "cam1", "A")
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, st.CurrentCell)
}
