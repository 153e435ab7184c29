package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"dwelltrack/internal/model"
	"dwelltrack/internal/queue"
)

func TestSupervisor_StatusesTrackWatermarkAndDedupeOccupancy(t *testing.T) {
	e, _ := newTestEngine(t)
	q := queue.NewMemoryQueue(4)
	sup := NewSupervisor(e, q, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = sup.Run(ctx)
		close(done)
	}()

	require.NoError(t, q.Publish(ctx, model.Observation{
		EventID: "e1", CollectorID: "c1", CameraID: "cam1", ObjectID: "A", GridCellID: "G_05_08", TimestampMs: 1000,
	}))
	require.NoError(t, q.Publish(ctx, model.Observation{
		EventID: "e2", CollectorID: "c1", CameraID: "cam1", ObjectID: "A", GridCellID: "G_05_08", TimestampMs: 1500,
	}))

	require.Eventually(t, func() bool {
		for _, st := range sup.Statuses() {
			if st.Partition == "c1:cam1" && st.LastProcessedTsMs == 1500 && st.DedupeWindowSize == 2 {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
