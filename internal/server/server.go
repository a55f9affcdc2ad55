// Package server exposes the user-facing HTTP surface of the backend:
// the /chat endpoint, its websocket twin, and a few operational
// endpoints. All chat traffic funnels into the gateway.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/filmguide-ai/filmguide/internal/audit"
	"github.com/filmguide-ai/filmguide/internal/buildinfo"
	"github.com/filmguide-ai/filmguide/internal/config"
	"github.com/filmguide-ai/filmguide/internal/gateway"
)

// Server is the backend HTTP server.
type Server struct {
	gateway *gateway.Gateway
	audit   *audit.Store // nil disables /v1/exchanges
	cfg     config.ListenConfig
	logger  *slog.Logger
	server  *http.Server
}

// New creates the backend server. The audit store may be nil.
func New(gw *gateway.Gateway, auditStore *audit.Store, cfg config.ListenConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		gateway: gw,
		audit:   auditStore,
		cfg:     cfg,
		logger:  logger.With("component", "http"),
	}
}

// chatRequest is the POST /chat (and websocket frame) body.
type chatRequest struct {
	Text   string `json:"text"`
	UserID string `json:"user_id"`
}

// Handler returns the HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /ws/chat", s.handleChatWS)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.HandleFunc("GET /v1/exchanges", s.handleExchanges)
	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It blocks until the server
// stops.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // chat requests wait on the reply window
	}

	s.logger.Info("starting backend server", "address", s.cfg.Address, "port", s.cfg.Port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" || strings.TrimSpace(req.UserID) == "" {
		http.Error(w, "text and user_id are required", http.StatusBadRequest)
		return
	}

	res := s.gateway.HandleRequest(r.Context(), req.UserID, req.Text)

	w.Header().Set("Content-Type", "application/json")
	s.writeJSON(w, res)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The backend fronts trusted UIs; origin policy belongs to the
	// proxy in front of it.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleChatWS serves the websocket variant of /chat: each text frame
// is one chat request, each reply frame one gateway result. Frames on
// one connection are handled in order.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.logger.Info("websocket session opened", "remote", conn.RemoteAddr().String())

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket session ended", "error", err)
			}
			return
		}

		if strings.TrimSpace(req.Text) == "" || strings.TrimSpace(req.UserID) == "" {
			if err := conn.WriteJSON(map[string]string{"error": "text and user_id are required"}); err != nil {
				return
			}
			continue
		}

		res := s.gateway.HandleRequest(r.Context(), req.UserID, req.Text)
		if err := conn.WriteJSON(res); err != nil {
			s.logger.Warn("websocket write failed", "error", err)
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	s.writeJSON(w, map[string]string{"status": "healthy"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	s.writeJSON(w, buildinfo.Info())
}

func (s *Server) handleExchanges(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		http.Error(w, "exchange log disabled", http.StatusNotFound)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	exchanges, err := s.audit.Recent(limit)
	if err != nil {
		s.logger.Error("list exchanges", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	stats, err := s.audit.Stats()
	if err != nil {
		s.logger.Error("exchange stats", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	s.writeJSON(w, map[string]any{
		"exchanges": exchanges,
		"stats":     stats,
	})
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

// writeJSON encodes v to w, logging failures at debug level since they
// usually mean the client went away.
func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write JSON response", "error", err)
	}
}
