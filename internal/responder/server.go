package responder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/filmguide-ai/filmguide/internal/wire"
)

// Server exposes a responder agent's request/reply contract directly
// over HTTP for out-of-band testing. POST /search runs the identical
// validate → prompt → complete path used for fabric messages; errors
// come back as HTTP 200 with the error string in the text field, the
// same shape a fabric caller would see.
type Server struct {
	agent   *Agent
	address string
	port    int
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates the out-of-band HTTP server for an agent.
func NewServer(agent *Agent, address string, port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		agent:   agent,
		address: address,
		port:    port,
		logger:  logger,
	}
}

// searchRequest is the POST /search body.
type searchRequest struct {
	Text        string `json:"text"`
	UserID      string `json:"user_id"`
	SecurityKey string `json:"security_key"`
}

// Handler returns the HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("GET /health", s.handleHealth)
	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It blocks until the server
// stops.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // completion calls are slow
	}

	s.logger.Info("starting responder server",
		"agent", s.agent.profile.Name, "address", s.address, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	resp := s.agent.Respond(r.Context(), wire.Message{
		Text:        req.Text,
		UserID:      req.UserID,
		SecurityKey: req.SecurityKey,
	})

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"text":    resp.Text,
		"user_id": resp.UserID,
	}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}
