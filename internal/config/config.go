// Package config loads the process-wide configuration from environment
// variables, optionally overridden by a .env file in development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable named in the configuration surface.
type Config struct {
	GridWidth            int
	GridHeight           int
	DwellTimeout         time.Duration
	RecentEventsCapacity int
	TimelineCap          int
	StateTTL             time.Duration
	SweepInterval        time.Duration
	DedupeWindowSize     int
	OperationDeadline    time.Duration

	HTTPListenAddr string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers         []string
	KafkaDetectionsTopic string
	KafkaFeedbackTopic   string
	KafkaConsumerGroup   string

	PostgresDSN string

	SubtractDeletedSpans bool

	// RosterPath points at an optional YAML file naming the expected
	// collector/camera partitions; see LoadRoster. Empty means no roster.
	RosterPath string
}

// Load reads configuration from the environment, applying the defaults
// from SPEC_FULL.md §10.2 and failing on a missing required variable.
// Overload lets a local .env file take precedence, matching the
// teacher's development convention.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		GridWidth:            envInt("GRID_WIDTH", 20),
		GridHeight:           envInt("GRID_HEIGHT", 15),
		DwellTimeout:         envDurationMs("DWELL_TIMEOUT_MS", 30_000),
		RecentEventsCapacity: envInt("RECENT_EVENTS_CAPACITY", 100),
		TimelineCap:          envInt("TIMELINE_CAP", 100),
		StateTTL:             envDurationSeconds("STATE_TTL_SECONDS", 86_400),
		SweepInterval:        envDurationMs("SWEEP_INTERVAL_MS", 5_000),
		DedupeWindowSize:     envInt("DEDUPE_WINDOW_SIZE", 10_000),
		OperationDeadline:    envDurationMs("OPERATION_DEADLINE_MS", 10_000),

		HTTPListenAddr: envStr("HTTP_LISTEN_ADDR", ":8080"),

		RedisPassword: envStr("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),

		KafkaDetectionsTopic: envStr("KAFKA_DETECTIONS_TOPIC", "raw.detections"),
		KafkaFeedbackTopic:   envStr("KAFKA_FEEDBACK_TOPIC", "feedback.updates"),
		KafkaConsumerGroup:   envStr("KAFKA_CONSUMER_GROUP", "dwelltrack-engine"),

		PostgresDSN: envStr("POSTGRES_DSN", ""),

		SubtractDeletedSpans: envBool("FEEDBACK_SUBTRACT_DELETED_SPANS", false),

		RosterPath: envStr("ROSTER_PATH", ""),
	}

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if cfg.RedisAddr == "" {
		return Config{}, fmt.Errorf("config: required environment variable REDIS_ADDR is not set")
	}

	if brokers := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	} else {
		return Config{}, fmt.Errorf("config: required environment variable KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDurationMs(key string, defMs int64) time.Duration {
	return time.Duration(envInt64(key, defMs)) * time.Millisecond
}

func envDurationSeconds(key string, defSeconds int64) time.Duration {
	return time.Duration(envInt64(key, defSeconds)) * time.Second
}

func envInt64(key string, def int64) int64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
