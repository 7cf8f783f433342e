package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ccgen/internal/config"
	"ccgen/internal/logging"
	"ccgen/internal/models"
	"ccgen/internal/progress"
	"ccgen/internal/runner"
	"ccgen/internal/tasks"
)

const (
	defaultMaxUploadBytes = 4 << 30
	defaultWriteTimeout   = 30 * time.Second
)

// Submitter starts background tasks.
type Submitter interface {
	Submit(sub runner.Submission) (string, error)
	SubmitDownload(key string) (string, error)
}

// ModelStore lists and removes local models.
type ModelStore interface {
	List(ctx context.Context) ([]models.Status, error)
	Delete(ctx context.Context, ref string) error
}

// Options configures a Server.
type Options struct {
	Bind           string
	UploadsDir     string
	PollInterval   time.Duration
	MaxUploadBytes int64
	// WriteTimeout bounds ordinary responses. Uploads and the status stream
	// clear it per request.
	WriteTimeout time.Duration
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
}

// OptionsFromConfig maps the paths and progress sections of cfg.
func OptionsFromConfig(cfg *config.Config, metrics http.Handler) Options {
	return Options{
		Bind:         cfg.Paths.APIBind,
		UploadsDir:   cfg.Paths.UploadsDir,
		PollInterval: cfg.PollInterval(),
		Metrics:      metrics,
	}
}

// Server is the HTTP front end.
type Server struct {
	opts     Options
	registry *tasks.Registry
	runner   Submitter
	store    ModelStore
	logger   *slog.Logger
	handler  http.Handler

	mu       sync.Mutex
	listener net.Listener
}

// New wires the routes. Nothing listens until Serve is called.
func New(opts Options, registry *tasks.Registry, submitter Submitter, store ModelStore, logger *slog.Logger) *Server {
	if opts.PollInterval <= 0 {
		opts.PollInterval = progress.DefaultInterval
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	s := &Server{
		opts:     opts,
		registry: registry,
		runner:   submitter,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "api-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /transcribe", s.handleTranscribe)
	mux.HandleFunc("GET /status/{id}", s.handleStatus)
	mux.HandleFunc("GET /results/{id}", s.handleResults)
	mux.HandleFunc("GET /api/tasks", s.handleTaskList)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleTask)
	mux.HandleFunc("GET /models", s.handleModels)
	mux.HandleFunc("POST /models/download/{key}", s.handleModelDownload)
	mux.HandleFunc("POST /models/delete/{key}", s.handleModelDelete)
	mux.HandleFunc("GET /uploads/{filename}", s.handleUpload)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}
	s.handler = s.withRequestLogging(mux)
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr reports the bound address once Serve is listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve listens on the configured bind address until ctx ends, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	bind := strings.TrimSpace(s.opts.Bind)
	if bind == "" {
		return errors.New("api bind address is empty")
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.opts.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api server shutdown incomplete", logging.Error(err))
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api serve: %w", err)
	}
	s.logger.Info("api server stopped")
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(p)
}

func (r *statusRecorder) Flush() {
	_ = http.NewResponseController(r.ResponseWriter).Flush()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := logging.WithRequestID(r.Context(), requestID)
		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))
		logging.WithContext(ctx, s.logger).Debug("request served",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", rec.status),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) requestLogger(r *http.Request) *slog.Logger {
	return logging.WithContext(r.Context(), s.logger)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
