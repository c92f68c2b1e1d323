// Package server provides the HTTP server for the senas hand-sign classifier.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/senas-lab/senas/internal/detector"
	"github.com/senas-lab/senas/internal/metrics"
	"github.com/senas-lab/senas/internal/server/api"
	"github.com/senas-lab/senas/internal/store"
)

// Config holds the server configuration. Every field is optional; routes
// whose dependency is missing are not registered.
type Config struct {
	StaticDir string
	Store     *store.Store
	Model     api.Model
	// Detector classifies uploaded images. It should run in static image mode.
	Detector    detector.Detector
	Reload      api.ReloadFunc
	Predictions *PredictionsHandler
	Frames      *FrameBuffer
	StreamFPS   int
	// Gatherer is exposed at /metrics.
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Metrics
}

// Server represents the HTTP server of the senas application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.handle("/api/health", http.HandlerFunc(s.handleHealth))

	if s.config.Model != nil {
		s.handle("/api/classes", api.NewClassesHandler(s.config.Model))

		classify := api.NewClassifyHandler(s.config.Model, s.config.Detector)
		s.handle("/api/classify", classify)
		s.handle("/api/classify/image", classify)
	}

	if s.config.Store != nil {
		s.handle("/api/samples", api.NewSamplesHandler(s.config.Store))
	}

	if s.config.Reload != nil {
		s.handle("/api/dataset/reload", api.NewReloadHandler(s.config.Reload))
	}

	if s.config.Predictions != nil {
		s.handle("/api/predictions", s.config.Predictions)
	}

	if s.config.Frames != nil {
		s.handle("/api/stream", NewStreamHandler(s.config.Frames, s.config.StreamFPS))
	}

	if s.config.Gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// handle registers h under pattern, recording request counts and latency
// labelled by the pattern.
func (s *Server) handle(pattern string, h http.Handler) {
	if s.config.Metrics == nil {
		s.mux.Handle(pattern, h)
		return
	}
	m := s.config.Metrics
	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)
		m.ObserveRequest(pattern, r.Method, rec.status, time.Since(start))
	}))
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Model != nil {
		ds := s.config.Model.Classifier().Dataset()
		response["classes"] = len(ds.Labels())
		response["samples"] = ds.Len()
	}
	if s.config.Store != nil {
		settings := s.config.Store.Settings()
		for field, key := range map[string]string{
			"dataset_root": store.SettingDatasetRoot,
			"last_indexed": store.SettingLastIndexed,
		} {
			if v, err := settings.Get(key); err == nil {
				response[field] = v
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// statusRecorder captures the response status for metrics. It passes
// Flush and Hijack through for the MJPEG stream and websocket upgrades.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
