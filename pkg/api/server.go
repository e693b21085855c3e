package api

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/psantana5/worker-metadata/pkg/enricher"
	"github.com/psantana5/worker-metadata/pkg/logging"
	"github.com/psantana5/worker-metadata/pkg/metrics"
	"github.com/psantana5/worker-metadata/pkg/models"
	"github.com/psantana5/worker-metadata/pkg/tracing"
)

// maxBodyBytes bounds a job request body
const maxBodyBytes = 32 << 20

// Server exposes the enricher over HTTP
type Server struct {
	enricher  *enricher.Enricher
	collector enricher.Collector
	metrics   *metrics.Recorder
	tracing   *tracing.Provider
	logger    *logging.Logger
	inFlight  atomic.Int64
}

// Config holds the server's collaborators. Metrics and Tracing are optional.
type Config struct {
	Enricher  *enricher.Enricher
	Collector enricher.Collector
	Metrics   *metrics.Recorder
	Tracing   *tracing.Provider
	Logger    *logging.Logger
}

// NewServer creates a new API server
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Server{
		enricher:  cfg.Enricher,
		collector: cfg.Collector,
		metrics:   cfg.Metrics,
		tracing:   cfg.Tracing,
		logger:    cfg.Logger,
	}
}

// RegisterRoutes registers all API routes
func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/runsync", s.RunSync).Methods("POST")
	r.HandleFunc("/run", s.RunSync).Methods("POST")
	r.HandleFunc("/metadata", s.Metadata).Methods("GET")
	r.HandleFunc("/health", s.Health).Methods("GET")
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
}

// Router returns a router with every route registered, traced when a
// tracing provider is configured.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	s.RegisterRoutes(r)
	if s.tracing != nil {
		r.Use(tracing.HTTPMiddleware(s.tracing))
	}
	return r
}

// InFlight returns the number of jobs currently being handled
func (s *Server) InFlight() int64 {
	return s.inFlight.Load()
}

// RunSync handles one job and responds with the enriched result
func (s *Server) RunSync(w http.ResponseWriter, r *http.Request) {
	var job models.Job
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&job); err != nil || job == nil {
		s.logger.Warn("Rejected job request", logging.Fields{"error": errString(err)})
		writeJSON(w, http.StatusBadRequest, models.ErrorResult("Invalid request body"))
		return
	}
	if _, ok := job["id"]; !ok {
		job["id"] = uuid.New().String()
	}

	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	result := s.enricher.Handle(r.Context(), job)

	w.Header().Set("X-Job-ID", job.ID())
	writeJSON(w, http.StatusOK, result)
}

// Metadata responds with a fresh metadata snapshot
func (s *Server) Metadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.collector.Collect(r.Context()).AsMap())
}

// Health reports liveness and whether the downstream handler resolved.
// An unresolved handler still answers jobs, so the status stays 200.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if !s.enricher.Available() {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            status,
		"handler":           s.enricher.HandlerName(),
		"handler_available": s.enricher.Available(),
		"metadata_key":      s.enricher.MetadataKey(),
		"in_flight":         s.InFlight(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errString(err error) string {
	if err == nil {
		return "body must be a JSON object"
	}
	return err.Error()
}
