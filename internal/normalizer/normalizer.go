// Package normalizer validates inbound detection frames and explodes each
// into per-object observations, per spec.md §4.C.
package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"dwelltrack/internal/dwellerr"
	"dwelltrack/internal/model"
)

// DetectedObject is one object entry in an inbound frame payload.
type DetectedObject struct {
	ObjectID   string  `json:"object_id"`
	Class      string  `json:"class,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	GridCellID string  `json:"grid_cell_id"`
	BBox       []int   `json:"bbox,omitempty"`
}

// FramePayload is the raw collector-facing detection frame (spec.md §6).
type FramePayload struct {
	CollectorID string           `json:"collector_id"`
	CameraID    string           `json:"camera_id"`
	TimestampMs int64            `json:"timestamp_ms"`
	FrameID     string           `json:"frame_id"`
	Objects     []DetectedObject `json:"objects"`
}

// Normalizer validates frames and explodes them into Observations.
type Normalizer struct {
	GridWidth  int
	GridHeight int
}

// New builds a Normalizer bound to the configured grid dimensions.
func New(gridWidth, gridHeight int) *Normalizer {
	return &Normalizer{GridWidth: gridWidth, GridHeight: gridHeight}
}

// Result is the outcome of normalizing one frame.
type Result struct {
	Observations []model.Observation
	DroppedCount int
}

// Normalize validates the frame and emits one Observation per valid
// detected object. A structurally invalid frame fails outright with
// ErrInvalidPayload; individual invalid objects are dropped and counted.
func (n *Normalizer) Normalize(f FramePayload) (Result, error) {
	if f.CollectorID == "" || f.CameraID == "" || f.FrameID == "" {
		return Result{}, fmt.Errorf("%w: frame missing collector_id, camera_id, or frame_id", dwellerr.ErrInvalidPayload)
	}
	if f.TimestampMs <= 0 {
		return Result{}, fmt.Errorf("%w: frame has non-positive timestamp_ms", dwellerr.ErrInvalidPayload)
	}
	if len(f.Objects) == 0 {
		return Result{}, fmt.Errorf("%w: frame has no objects", dwellerr.ErrInvalidPayload)
	}

	res := Result{Observations: make([]model.Observation, 0, len(f.Objects))}
	for _, obj := range f.Objects {
		if obj.ObjectID == "" || !model.ValidCellID(obj.GridCellID, n.GridWidth, n.GridHeight) {
			res.DroppedCount++
			continue
		}
		res.Observations = append(res.Observations, model.Observation{
			EventID:     eventID(f.CollectorID, f.CameraID, f.TimestampMs, obj.ObjectID),
			CollectorID: f.CollectorID,
			CameraID:    f.CameraID,
			ObjectID:    obj.ObjectID,
			GridCellID:  obj.GridCellID,
			TimestampMs: f.TimestampMs,
		})
	}
	return res, nil
}

// eventID computes the deterministic dedup key for an observation,
// per spec.md §4.C: hash(collector_id, camera_id, timestamp_ms, object_id).
func eventID(collectorID, cameraID string, tsMs int64, objectID string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%s", collectorID, cameraID, tsMs, objectID)
	return hex.EncodeToString(h.Sum(nil))
}
