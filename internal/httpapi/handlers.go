package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"dwelltrack/internal/dwellerr"
	"dwelltrack/internal/engine"
	"dwelltrack/internal/model"
	"dwelltrack/internal/normalizer"
)

// handlePostFrame implements POST /frames (spec.md §6): normalize the
// payload into one Observation per detected object and enqueue each for
// the Dwell Engine.
func (s *Server) handlePostFrame(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.withDeadline(r)
	defer cancel()

	var payload normalizer.FramePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.normalizer.Normalize(payload)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}

	for _, obs := range result.Observations {
		if err := s.producer.Publish(ctx, obs); err != nil {
			respondError(w, statusFromError(err), err)
			return
		}
	}
	s.engine.RecordDropped(result.DroppedCount)

	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "accepted",
		"frame_id": payload.FrameID,
		"dropped":  result.DroppedCount,
	})
}

// handleStatsCells implements GET /stats/cells (spec.md §4.F): aggregates
// sorted by total_dwell_ms descending, optionally filtered to one cell.
func (s *Server) handleStatsCells(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.withDeadline(r)
	defer cancel()

	collector := r.URL.Query().Get("collector")
	camera := r.URL.Query().Get("camera")
	cell := r.URL.Query().Get("cell")
	if collector == "" || camera == "" {
		respondError(w, http.StatusBadRequest, errors.New("collector and camera are required"))
		return
	}

	aggs, err := s.store.ListAggregates(ctx, collector, camera)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	if cell != "" {
		filtered := aggs[:0]
		for _, a := range aggs {
			if a.CellID == cell {
				filtered = append(filtered, a)
			}
		}
		aggs = filtered
	}
	sort.Slice(aggs, func(i, j int) bool { return aggs[i].TotalDwellMs() > aggs[j].TotalDwellMs() })

	out := make([]cellStatsView, 0, len(aggs))
	for _, a := range aggs {
		out = append(out, newCellStatsView(a))
	}
	respondJSON(w, http.StatusOK, map[string]any{"cells": out, "timestamp": time.Now().UnixMilli()})
}

// handleObjectDetail implements GET /objects/{collector}/{camera}/{object}.
func (s *Server) handleObjectDetail(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.withDeadline(r)
	defer cancel()

	collector := r.PathValue("collector")
	camera := r.PathValue("camera")
	object := r.PathValue("object")

	st, found, err := s.store.GetObjectState(ctx, collector, camera, object)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, dwellerr.ErrNotFound)
		return
	}
	entries, err := s.store.ReadEntries(ctx, collector, camera, object, 0)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"state":     st,
		"timeline":  entries,
		"timestamp": time.Now().UnixMilli(),
	})
}

// handleHeatmap implements GET /heatmap (spec.md §4.F): per-cell dwell
// intensity normalized against the response's own maximum.
func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.withDeadline(r)
	defer cancel()

	collector := r.URL.Query().Get("collector")
	camera := r.URL.Query().Get("camera")
	if collector == "" || camera == "" {
		respondError(w, http.StatusBadRequest, errors.New("collector and camera are required"))
		return
	}
	windowMs, _ := strconv.ParseInt(r.URL.Query().Get("window_ms"), 10, 64)

	gridW, gridH := s.normalizer.GridWidth, s.normalizer.GridHeight
	resp := map[string]any{
		"grid_size": map[string]int{"width": gridW, "height": gridH},
		"cells":     []heatmapCell{},
		"timestamp": time.Now().UnixMilli(),
		"window_ms": windowMs,
	}
	if windowMs == 0 {
		respondJSON(w, http.StatusOK, resp)
		return
	}

	aggs, err := s.store.ListAggregates(ctx, collector, camera)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}

	var maxDwell int64
	cells := make([]heatmapCell, 0, len(aggs))
	for _, a := range aggs {
		x, y, err := model.ParseCellID(a.CellID, gridW, gridH)
		if err != nil {
			continue
		}
		dwell := a.TotalDwellMs()
		if dwell > maxDwell {
			maxDwell = dwell
		}
		cells = append(cells, heatmapCell{
			GridCellID:  a.CellID,
			X:           x,
			Y:           y,
			DwellMs:     dwell,
			ObjectCount: a.ObjectCount(),
		})
	}
	for i := range cells {
		if maxDwell > 0 {
			cells[i].Intensity = float64(cells[i].DwellMs) / float64(maxDwell)
		}
	}
	resp["cells"] = cells
	respondJSON(w, http.StatusOK, resp)
}

// handleObjectsActive implements GET /objects/active.
func (s *Server) handleObjectsActive(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.withDeadline(r)
	defer cancel()

	collector := r.URL.Query().Get("collector")
	camera := r.URL.Query().Get("camera")

	states, err := s.store.ListAllObjectStates(ctx)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	out := make([]model.ObjectState, 0, len(states))
	for _, st := range states {
		if !st.IsActive() {
			continue
		}
		if collector != "" && st.CollectorID != collector {
			continue
		}
		if camera != "" && st.CameraID != camera {
			continue
		}
		out = append(out, st)
	}
	respondJSON(w, http.StatusOK, map[string]any{"objects": out, "timestamp": time.Now().UnixMilli()})
}

// handleEventsRecent implements GET /events/recent.
func (s *Server) handleEventsRecent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.withDeadline(r)
	defer cancel()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := s.store.ReadLatest(ctx, limit)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events, "timestamp": time.Now().UnixMilli()})
}

// handleHealth implements GET /health: a bare liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleStatus implements GET /status: process-level counters, uptime,
// and (when a Supervisor is wired) per-partition high-water marks and
// dedup-window occupancy (SPEC_FULL.md §12).
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.Stats()
	var partitions []engine.PartitionStatus
	if s.supervisor != nil {
		partitions = s.supervisor.Statuses()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"uptime_s":   int64(time.Since(s.startedAt).Seconds()),
		"stats":      stats,
		"partitions": partitions,
		"roster":     s.roster.Partitions,
		"timestamp":  time.Now().UnixMilli(),
	})
}

type cellStatsView struct {
	GridCellID  string  `json:"grid_cell_id"`
	TotalDwell  int64   `json:"total_dwell_ms"`
	ObjectCount int     `json:"object_count"`
	AvgDwellMs  float64 `json:"avg_dwell_ms"`
	MaxDwellMs  int64   `json:"max_dwell_ms"`
	MinDwellMs  int64   `json:"min_dwell_ms"`
}

func newCellStatsView(a model.CellAggregate) cellStatsView {
	return cellStatsView{
		GridCellID:  a.CellID,
		TotalDwell:  a.TotalDwellMs(),
		ObjectCount: a.ObjectCount(),
		AvgDwellMs:  a.AvgDwellMs(),
		MaxDwellMs:  a.MaxDwellMs(),
		MinDwellMs:  a.MinDwellMs(),
	}
}

type heatmapCell struct {
	GridCellID  string  `json:"grid_cell_id"`
	X           int     `json:"x"`
	Y           int     `json:"y"`
	DwellMs     int64   `json:"dwell_ms"`
	ObjectCount int     `json:"object_count"`
	Intensity   float64 `json:"intensity"`
}
