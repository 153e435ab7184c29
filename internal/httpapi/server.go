// Package httpapi exposes the ingress frame endpoint and the read-only
// Query API (spec.md §4.F, §6), following the Server/registerRoutes/
// http.ServeMux pattern used for the playground API in the teacher
// codebase.
package httpapi

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"dwelltrack/internal/config"
	"dwelltrack/internal/engine"
	"dwelltrack/internal/feedback"
	"dwelltrack/internal/metrics"
	"dwelltrack/internal/normalizer"
	"dwelltrack/internal/queue"
	"dwelltrack/internal/store"
)

// Server wires the ingress and query surfaces onto a single mux.
type Server struct {
	store      store.Store
	engine     *engine.Engine
	supervisor *engine.Supervisor
	feedback   *feedback.Processor
	normalizer *normalizer.Normalizer
	producer   queue.Producer
	metrics    *metrics.Registry
	roster     config.Roster
	log        zerolog.Logger
	startedAt  time.Time
	deadline   time.Duration

	mux *http.ServeMux
}

// Config carries the dependencies the Server routes requests to.
type Config struct {
	Store      store.Store
	Engine     *engine.Engine
	// Supervisor is optional; when set, /status includes its per-partition
	// high-water marks and dedup-window occupancy.
	Supervisor *engine.Supervisor
	Feedback   *feedback.Processor
	Normalizer *normalizer.Normalizer
	Producer   queue.Producer
	Metrics    *metrics.Registry
	// Roster is the optional known-partitions list surfaced by /status.
	Roster config.Roster
	Log    zerolog.Logger
	// Deadline bounds every handler's context (spec.md §5), default 10s.
	Deadline time.Duration
}

// NewServer builds a Server and registers every route.
func NewServer(cfg Config) *Server {
	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = 10 * time.Second
	}
	s := &Server{
		store:      cfg.Store,
		engine:     cfg.Engine,
		supervisor: cfg.Supervisor,
		feedback:   cfg.Feedback,
		normalizer: cfg.Normalizer,
		producer:   cfg.Producer,
		metrics:    cfg.Metrics,
		roster:     cfg.Roster,
		log:        cfg.Log,
		startedAt:  time.Now(),
		deadline:   deadline,
		mux:        http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /frames", s.handlePostFrame)

	s.mux.HandleFunc("GET /stats/cells", s.handleStatsCells)
	s.mux.HandleFunc("GET /objects/active", s.handleObjectsActive)
	s.mux.HandleFunc("GET /objects/{collector}/{camera}/{object}", s.handleObjectDetail)
	s.mux.HandleFunc("GET /heatmap", s.handleHeatmap)
	s.mux.HandleFunc("GET /events/recent", s.handleEventsRecent)

	s.mux.HandleFunc("POST /feedback/relabel", s.handleFeedbackRelabel)
	s.mux.HandleFunc("POST /feedback/correct_cell", s.handleFeedbackCorrectCell)
	s.mux.HandleFunc("POST /feedback/delete_span", s.handleFeedbackDeleteSpan)

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}
