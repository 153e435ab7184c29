package httpapi

import (
	"encoding/json"
	"net/http"
)

type relabelRequest struct {
	CollectorID string `json:"collector_id"`
	CameraID    string `json:"camera_id"`
	OldObjectID string `json:"old_object_id"`
	NewObjectID string `json:"new_object_id"`
}

// handleFeedbackRelabel implements the relabel operation (spec.md §4.E).
func (s *Server) handleFeedbackRelabel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.withDeadline(r)
	defer cancel()

	var req relabelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.feedback.Relabel(ctx, req.CollectorID, req.CameraID, req.OldObjectID, req.NewObjectID); err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "applied"})
}

type correctCellRequest struct {
	CollectorID   string `json:"collector_id"`
	CameraID      string `json:"camera_id"`
	ObjectID      string `json:"object_id"`
	FrameTsMs     int64  `json:"frame_ts_ms"`
	CorrectCellID string `json:"correct_cell_id"`
}

// handleFeedbackCorrectCell implements the correct_cell operation
// (spec.md §4.E).
func (s *Server) handleFeedbackCorrectCell(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.withDeadline(r)
	defer cancel()

	var req correctCellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	noChange, err := s.feedback.CorrectCell(ctx, req.CollectorID, req.CameraID, req.ObjectID, req.FrameTsMs, req.CorrectCellID)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	if noChange {
		respondJSON(w, http.StatusOK, map[string]any{"status": "no_change"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "applied"})
}

type deleteSpanRequest struct {
	CollectorID string `json:"collector_id"`
	CameraID    string `json:"camera_id"`
	ObjectID    string `json:"object_id"`
	FromTsMs    int64  `json:"from_ts_ms"`
	ToTsMs      int64  `json:"to_ts_ms"`
	CellID      string `json:"cell_id,omitempty"`
}

// handleFeedbackDeleteSpan implements the delete_span operation
// (spec.md §4.E).
func (s *Server) handleFeedbackDeleteSpan(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.withDeadline(r)
	defer cancel()

	var req deleteSpanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.feedback.DeleteSpan(ctx, req.CollectorID, req.CameraID, req.ObjectID, req.FromTsMs, req.ToTsMs, req.CellID); err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "applied"})
}
