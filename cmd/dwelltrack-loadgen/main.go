// Command dwelltrack-loadgen posts synthetic detection frames against a
// running dwelltrack ingress endpoint, walking each of a configurable
// number of synthetic objects along a row of grid cells for local smoke
// testing.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"dwelltrack/internal/model"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "dwelltrack ingress base URL")
	collector := flag.String("collector", "collector-1", "collector_id to emit under")
	camera := flag.String("camera", "camera-1", "camera_id to emit under")
	objects := flag.Int("objects", 3, "number of synthetic objects to walk")
	ticks := flag.Int("ticks", 20, "number of frames to emit per object")
	tickMs := flag.Int64("tick-ms", 500, "milliseconds to advance between frames")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}
	start := time.Now().UnixMilli()

	for obj := 0; obj < *objects; obj++ {
		objectID := uuid.NewString()
		x, y := obj%20, 0
		for tick := 0; tick < *ticks; tick++ {
			ts := start + int64(tick)*(*tickMs)
			if tick%4 == 0 && tick > 0 {
				x = (x + 1) % 20
			}
			frame := map[string]any{
				"collector_id": *collector,
				"camera_id":    *camera,
				"timestamp_ms": ts,
				"frame_id":     uuid.NewString(),
				"objects": []map[string]any{
					{
						"object_id":    objectID,
						"grid_cell_id": model.CellID(x, y),
					},
				},
			}
			if err := postFrame(client, *addr, frame); err != nil {
				log.Printf("frame post failed: %v", err)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	fmt.Println("loadgen run complete")
}

func postFrame(client *http.Client, baseURL string, frame map[string]any) error {
	body, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	resp, err := client.Post(baseURL+"/frames", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
