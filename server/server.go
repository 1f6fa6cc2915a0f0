// Package server exposes the detectors over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/RyanBlaney/beep-sonar/config"
	"github.com/RyanBlaney/beep-sonar/logging"
	"github.com/RyanBlaney/beep-sonar/transcode"
)

const (
	ServiceName = "Audio Beep Detection API"
	Version     = "1.0.0"
)

// maxMemory is the part of a multipart upload kept in memory; the rest
// spills to temporary files
const maxMemory = 32 << 20

// Server wraps the HTTP routes around the decoder, the template store and the
// detectors
type Server struct {
	settings  *config.Settings
	decoder   *transcode.Decoder
	templates *transcode.TemplateStore
	logger    logging.Logger
	mux       *http.ServeMux
	requestID atomic.Uint64
}

// New creates a server for settings. A nil logger uses the global logger.
func New(settings *config.Settings, logger logging.Logger) (*Server, error) {
	if settings == nil {
		settings = config.DefaultSettings()
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	logger = logging.OrGlobal(logger).WithFields(logging.Fields{"component": "server"})
	decoder := transcode.NewDecoder(nil, logger)

	s := &Server{
		settings:  settings,
		decoder:   decoder,
		templates: transcode.NewTemplateStore(decoder, logger),
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)

	// Every endpoint is served at its bare path and under /api
	s.handle("GET", "/health", s.handleHealth)
	s.handle("POST", "/detect-frequency-beeps", s.handleFrequencyBeeps)
	s.handle("POST", "/detect-template-matches", s.handleTemplateMatches)
	s.handle("POST", "/detect-cross-correlation-beeps", s.handleCrossCorrelation)
	s.handle("POST", "/generate-report", s.handleGenerateReport)
}

func (s *Server) handle(method, path string, h http.HandlerFunc) {
	s.mux.HandleFunc(method+" "+path+"/{$}", h)
	s.mux.HandleFunc(method+" "+path, h)
	s.mux.HandleFunc(method+" /api"+path, h)
}

// Handler returns the routes wrapped with CORS, request logging and the
// request timeout
func (s *Server) Handler() http.Handler {
	timeout := http.TimeoutHandler(s.mux, s.settings.Server.RequestTimeout, `{"detail":"request timed out"}`)
	return s.withLogging(withCORS(timeout))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	cfg := s.settings.Server

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server starting", logging.Fields{
			"addr":     cfg.Addr,
			"template": cfg.DefaultTemplatePath,
		})
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("HTTP server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// statusRecorder remembers the status code written through it
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := s.requestID.Add(1)

		ctx := logging.ContextWithFields(r.Context(), logging.Fields{
			"request_id": id,
			"path":       r.URL.Path,
		})
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r.WithContext(ctx))

		s.logger.WithContext(ctx).Info("Request completed", logging.Fields{
			"method":      r.Method,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
