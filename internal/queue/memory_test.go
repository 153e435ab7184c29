package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dwelltrack/internal/model"
)

func TestMemoryQueue_PublishFetchRoundTrip(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	obs := model.Observation{EventID: "e1", ObjectID: "A", GridCellID: "G_00_00"}
	require.NoError(t, q.Publish(ctx, obs))

	msg, err := q.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, obs, msg.Observation)
	require.NoError(t, msg.Ack(ctx))
}

func TestMemoryQueue_FetchRespectsContextCancellation(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Fetch(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryQueue_PreservesOrder(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, model.Observation{EventID: "e1"}))
	require.NoError(t, q.Publish(ctx, model.Observation{EventID: "e2"}))

	m1, err := q.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, "e1", m1.Observation.EventID)

	m2, err := q.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, "e2", m2.Observation.EventID)
}
