// Package server exposes the chat pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/nutriempower/nutriempower/pkg/chat"
	"github.com/nutriempower/nutriempower/pkg/config"
	"github.com/nutriempower/nutriempower/pkg/metrics"
	"github.com/nutriempower/nutriempower/pkg/models"
)

// Version is reported by the API test endpoint.
const Version = "1.0.0"

// Replier answers chat messages.
type Replier interface {
	Reply(ctx context.Context, message string) (chat.Result, error)
}

// DatasetInfo reports the state of the food record set.
type DatasetInfo interface {
	Info() models.DatasetInfo
}

// Server is the NutriEmpower HTTP front.
type Server struct {
	cfg     *config.Config
	chat    Replier
	dataset DatasetInfo
	metrics *metrics.Metrics
	log     zerolog.Logger
	started time.Time
	router  chi.Router
}

// New creates a Server wired with all dependencies. m may be nil.
func New(cfg *config.Config, replier Replier, dataset DatasetInfo, m *metrics.Metrics, log zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		chat:    replier,
		dataset: dataset,
		metrics: m,
		log:     log,
		started: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/api/test", s.handleTest)
	r.Post("/api/chat", s.handleChat)
	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Listen).Msg("nutriempower listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Server.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	}

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeChatError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		s.writeChatError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.chat.Reply(r.Context(), req.Message)
	if err != nil {
		var berr *chat.BackendError
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			s.writeChatError(w, http.StatusBadRequest, "Message is required")
		case errors.As(err, &berr):
			s.writeChatError(w, http.StatusInternalServerError, berr.Message)
		default:
			s.log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("chat failed")
			s.writeChatError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	s.countChat(http.StatusOK)
	writeJSON(w, http.StatusOK, models.ChatResponse{
		Success:  true,
		Response: res.Response,
		Cached:   res.Cached,
		Ms:       res.Elapsed.Milliseconds(),
	})
}

type healthResponse struct {
	Status    string             `json:"status"`
	Timestamp string             `json:"timestamp"`
	Uptime    float64            `json:"uptime"`
	Dataset   models.DatasetInfo `json:"dataset"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "OK",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Uptime:    time.Since(s.started).Seconds(),
		Dataset:   s.dataset.Info(),
	})
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message":   "NutriEmpower API is working!",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"version":   Version,
	})
}

func (s *Server) countChat(code int) {
	if s.metrics != nil {
		s.metrics.ChatRequests.WithLabelValues(strconv.Itoa(code)).Inc()
	}
}

func (s *Server) writeChatError(w http.ResponseWriter, code int, message string) {
	s.countChat(code)
	writeJSON(w, code, models.ChatError{Success: false, Error: message})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// requestLogger logs one line per request through zerolog.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
