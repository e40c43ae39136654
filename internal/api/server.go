package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radikoarchive/radiko-archiver/internal/catalog"
	"github.com/radikoarchive/radiko-archiver/internal/metrics"
	"github.com/radikoarchive/radiko-archiver/internal/publisher/memory"
)

const requestTimeout = 10 * time.Second

// Pinger is implemented by stores that can check their backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config controls the server.
type Config struct {
	// APIKey guards the /v1 routes when set.
	APIKey string
}

// Server wires HTTP handlers to the catalog store.
type Server struct {
	router chi.Router
	store  catalog.Store
	recent *memory.Publisher
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. recent may be nil.
func NewServer(store catalog.Store, recent *memory.Publisher, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		store:  store,
		recent: recent,
		logger: logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(requestTimeout))
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Get("/programs", s.listPrograms)
		r.Route("/programs/{program_id}", func(r chi.Router) {
			r.Get("/", s.getProgram)
			r.Post("/recover", s.recoverProgram)
		})
		r.Get("/archives", s.listArchives)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "catalog store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listPrograms(w http.ResponseWriter, r *http.Request) {
	status := catalog.StatusArchivable
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := catalog.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		status = parsed
	}
	programs, err := s.store.ListPrograms(r.Context(), status)
	if err != nil {
		s.logger.Error("list programs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list programs")
		return
	}
	out := make([]programView, 0, len(programs))
	for _, p := range programs {
		out = append(out, toView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"programs": out})
}

func (s *Server) getProgram(w http.ResponseWriter, r *http.Request) {
	id, ok := programID(w, r)
	if !ok {
		return
	}
	p, err := s.store.GetProgram(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toView(p))
}

func (s *Server) recoverProgram(w http.ResponseWriter, r *http.Request) {
	id, ok := programID(w, r)
	if !ok {
		return
	}
	from, err := s.store.Transition(r.Context(), id, catalog.StatusArchivable)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.logger.Info("program recovered", zap.Int64("program_id", id), zap.Stringer("from", from))
	writeJSON(w, http.StatusOK, map[string]any{
		"program_id": id,
		"from":       from.String(),
		"status":     catalog.StatusArchivable.String(),
	})
}

func (s *Server) listArchives(w http.ResponseWriter, _ *http.Request) {
	if s.recent == nil {
		writeJSON(w, http.StatusOK, map[string]any{"archives": []memory.Message{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": s.recent.Messages()})
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "program not found")
		return
	}
	s.logger.Error("catalog request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "catalog request failed")
}

func programID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "program_id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid program id")
		return 0, false
	}
	return id, true
}

type programView struct {
	ID          int64     `json:"id"`
	BroadcastID string    `json:"broadcast_id"`
	Title       string    `json:"title"`
	StationID   string    `json:"station_id"`
	AreaID      string    `json:"area_id"`
	Date        string    `json:"date"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Status      string    `json:"status"`
}

func toView(p catalog.Program) programView {
	return programView{
		ID:          p.ID,
		BroadcastID: p.BroadcastID,
		Title:       p.Title,
		StationID:   p.StationID,
		AreaID:      p.AreaID,
		Date:        p.Date.String(),
		Start:       p.Start,
		End:         p.End,
		Status:      p.Status.String(),
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Debug("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec), zap.Stack("stack"))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-Key") != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload) //nolint:errcheck // client went away
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
