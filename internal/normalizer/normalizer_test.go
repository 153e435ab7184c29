package normalizer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dwelltrack/internal/dwellerr"
)

func TestNormalize_ValidFrame(t *testing.T) {
	n := New(20, 15)
	res, err := n.Normalize(FramePayload{
		CollectorID: "c1",
		CameraID:    "cam1",
		TimestampMs: 1000,
		FrameID:     "f1",
		Objects: []DetectedObject{
			{ObjectID: "A", GridCellID: "G_05_08"},
			{ObjectID: "B", GridCellID: "G_01_01"},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Observations, 2)
	require.Equal(t, 0, res.DroppedCount)
	require.NotEmpty(t, res.Observations[0].EventID)
}

func TestNormalize_DropsInvalidObjectsOnly(t *testing.T) {
	n := New(20, 15)
	res, err := n.Normalize(FramePayload{
		CollectorID: "c1",
		CameraID:    "cam1",
		TimestampMs: 1000,
		FrameID:     "f1",
		Objects: []DetectedObject{
			{ObjectID: "A", GridCellID: "G_05_08"},
			{ObjectID: "", GridCellID: "G_01_01"},
			{ObjectID: "C", GridCellID: "not-a-cell"},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Observations, 1)
	require.Equal(t, 2, res.DroppedCount)
}

func TestNormalize_RejectsMissingFrameFields(t *testing.T) {
	n := New(20, 15)
	_, err := n.Normalize(FramePayload{CameraID: "cam1", TimestampMs: 1000, FrameID: "f1"})
	require.ErrorIs(t, err, dwellerr.ErrInvalidPayload)
}

func TestNormalize_RejectsEmptyObjects(t *testing.T) {
	n := New(20, 15)
	_, err := n.Normalize(FramePayload{CollectorID: "c1", CameraID: "cam1", TimestampMs: 1000, FrameID: "f1"})
	require.ErrorIs(t, err, dwellerr.ErrInvalidPayload)
}

func TestNormalize_EventIDDeterministic(t *testing.T) {
	n := New(20, 15)
	frame := FramePayload{
		CollectorID: "c1", CameraID: "cam1", TimestampMs: 1000, FrameID: "f1",
		Objects: []DetectedObject{{ObjectID: "A", GridCellID: "G_05_08"}},
	}
	res1, err := n.Normalize(frame)
	require.NoError(t, err)
	res2, err := n.Normalize(frame)
	require.NoError(t, err)
	require.Equal(t, res1.Observations[0].EventID, res2.Observations[0].EventID)
}
