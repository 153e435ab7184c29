package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Roster describes the known collector/camera partitions, loaded from an
// optional static file alongside the environment-driven Config. Its only
// consumer today is the status endpoint's partition listing; absence of
// a roster file does not affect ingestion, which accepts any partition.
type Roster struct {
	Partitions []PartitionSpec `yaml:"partitions"`
}

// PartitionSpec names one collector/camera pair the roster expects to see.
type PartitionSpec struct {
	CollectorID string `yaml:"collector_id"`
	CameraID    string `yaml:"camera_id"`
}

// LoadRoster reads a YAML roster file. A missing path is not an error —
// it simply yields an empty roster.
func LoadRoster(path string) (Roster, error) {
	if path == "" {
		return Roster{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Roster{}, nil
		}
		return Roster{}, fmt.Errorf("config: reading roster file: %w", err)
	}
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Roster{}, fmt.Errorf("config: parsing roster file: %w", err)
	}
	return r, nil
}
