// Package api exposes the HTTP interface for the document service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mnbossa/agridocs/internal/config"
	"github.com/mnbossa/agridocs/internal/docs"
	"github.com/mnbossa/agridocs/internal/metrics"
	"github.com/mnbossa/agridocs/internal/rank"
)

// ChatService answers a user question against the indexed corpus.
type ChatService interface {
	Query(ctx context.Context, q string, topK int) (json.RawMessage, error)
}

// Reindexer schedules one background crawl run.
type Reindexer interface {
	Schedule()
}

// Server wires HTTP handlers to the store, ranker, scheduler and chat service.
type Server struct {
	router    chi.Router
	store     docs.Store
	chat      ChatService
	reindexer Reindexer
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store docs.Store,
	chat ChatService,
	reindexer Reindexer,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:     store,
		chat:      chat,
		reindexer: reindexer,
		cfg:       cfg,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/search", s.search)
		r.Post("/reindex", s.reindex)
		r.Post("/chat", s.chatHandler)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.ListAll(r.Context()); err != nil {
		writeError(s.logger, w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	DocType string `json:"doc_type,omitempty"`
	Date    string `json:"date,omitempty"`
	Excerpt string `json:"excerpt,omitempty"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(s.logger, w, http.StatusBadRequest, "q query parameter required")
		return
	}
	corpus, err := s.store.ListAll(r.Context())
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to load documents")
		return
	}
	ranked := rank.Rank(corpus, q)
	if len(ranked) > s.cfg.Search.TopKDefault {
		ranked = ranked[:s.cfg.Search.TopKDefault]
	}
	results := make([]searchResult, len(ranked))
	for i, d := range ranked {
		results[i] = searchResult{
			Title:   d.Title,
			URL:     d.URL,
			DocType: d.DocType,
			Date:    d.Date,
			Excerpt: d.Excerpt,
		}
	}
	writeJSON(s.logger, w, http.StatusOK, results)
}

func (s *Server) reindex(w http.ResponseWriter, _ *http.Request) {
	s.reindexer.Schedule()
	writeJSON(s.logger, w, http.StatusAccepted, map[string]any{
		"ok":      true,
		"message": "Reindex scheduled",
	})
}

type chatRequest struct {
	Q    string `json:"q"`
	TopK int    `json:"top_k"`
}

func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	reply, err := s.chat.Query(r.Context(), req.Q, req.TopK)
	if err != nil {
		s.writeChatError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"ok":     true,
		"worker": reply,
	})
}

// writeChatError maps the chat error taxonomy onto HTTP statuses: caller
// mistakes to 400, deployment faults to 500, worker failures to 502.
func (s *Server) writeChatError(w http.ResponseWriter, err error) {
	var cfgErr *docs.ConfigurationError
	var upErr *docs.UpstreamError
	switch {
	case errors.Is(err, docs.ErrInvalidRequest):
		writeError(s.logger, w, http.StatusBadRequest, "q required")
	case errors.As(err, &cfgErr):
		s.logger.Error("chat misconfigured", zap.String("setting", cfgErr.Setting))
		writeError(s.logger, w, http.StatusInternalServerError, cfgErr.Error())
	case errors.As(err, &upErr):
		s.logger.Warn("worker call failed", zap.Error(err))
		writeError(s.logger, w, http.StatusBadGateway, upErr.Error())
	default:
		s.logger.Error("chat query failed", zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "internal server error")
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			duration := time.Since(start)
			metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.status, duration)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", duration.Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(logger, w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(zap.NewNop(), w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
