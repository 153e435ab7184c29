package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"dwelltrack/internal/engine"
	"dwelltrack/internal/feedback"
	"dwelltrack/internal/normalizer"
	"dwelltrack/internal/queue"
	"dwelltrack/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	e := engine.New(s, engine.Config{DwellTimeout: 30_000, TimelineCap: 100, RecentEventsCapacity: 100, DedupeWindowSize: 1000}, zerolog.Nop())
	fb := feedback.New(s, feedback.Config{TimelineCap: 100}, zerolog.Nop(), func() int64 { return 9_000 })
	q := queue.NewMemoryQueue(16)
	n := normalizer.New(20, 15)

	srv := NewServer(Config{
		Store:      s,
		Engine:     e,
		Feedback:   fb,
		Normalizer: n,
		Producer:   q,
		Log:        zerolog.Nop(),
	})
	return srv, s
}

func TestHandlePostFrame_AcceptsValidFrame(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]any{
		"collector_id": "c1",
		"camera_id":    "cam1",
		"timestamp_ms": 1000,
		"frame_id":     "f1",
		"objects": []map[string]any{
			{"object_id": "A", "grid_cell_id": "G_05_08"},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/frames", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlePostFrame_RejectsInvalidFrame(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"collector_id": "", "camera_id": "cam1"})
	req := httptest.NewRequest(http.MethodPost, "/frames", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleObjectDetail_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/objects/c1/cam1/missing", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHeatmap_ZeroWindowReturnsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/heatmap?collector=c1&camera=cam1&window_ms=0", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	cells, ok := resp["cells"].([]any)
	require.True(t, ok)
	require.Empty(t, cells)
}

func TestHandlePostFrame_RecordsDroppedCount(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]any{
		"collector_id": "c1",
		"camera_id":    "cam1",
		"timestamp_ms": 1000,
		"frame_id":     "f1",
		"objects": []map[string]any{
			{"object_id": "A", "grid_cell_id": "G_05_08"},
			{"object_id": "", "grid_cell_id": "G_01_01"},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/frames", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(1), srv.engine.Stats().Dropped)
}

func TestHandleStatus_IncludesPartitionsAndRoster(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp, "partitions")
	require.Contains(t, resp, "roster")
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
