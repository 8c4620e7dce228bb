package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Server represents the REST API server
type Server struct {
	port   string
	server *http.Server
	router *mux.Router
}

// Dependencies are the services the handlers call. Nil members disable their routes' backing
// service and those routes answer 503.
type Dependencies struct {
	Ingest   IngestService
	Coverage CoverageStore
	Checks   map[string]HealthChecker
}

// NewServer creates a new REST API server
func NewServer(port string, deps Dependencies) *Server {
	handler := NewHandler(deps.Coverage, deps.Checks)
	ingestHandler := NewIngestHandler(deps.Ingest)

	router := mux.NewRouter()

	// Apply middleware
	router.Use(RecoveryMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(CORSMiddleware)

	// Health check
	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Ingestion
	api.HandleFunc("/ingest", ingestHandler.HandleIngestRequest).Methods("POST")
	api.HandleFunc("/ingest/status", ingestHandler.HandleIngestStatus).Methods("GET")

	// Coverage and normalization
	api.HandleFunc("/coverage/{league}", handler.GetCoverage).Methods("GET")
	api.HandleFunc("/normalize", handler.Normalize).Methods("GET")

	return &Server{
		port:   port,
		router: router,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%s", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the REST API server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
