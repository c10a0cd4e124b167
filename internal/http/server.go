// Package http exposes the service over HTTP: health and readiness probes,
// Prometheus metrics, and a small JSON API for resolving references and
// expanding them into tracks.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"spotgrab/internal/core"
	"spotgrab/internal/ratelimit"
	"spotgrab/internal/tag"
	"spotgrab/pkg/ref"
)

// TrackSource resolves references and expands them into flat track lists.
type TrackSource interface {
	Resolve(ctx context.Context, r ref.Reference) (core.ResolvedItem, error)
	Tracks(ctx context.Context, r ref.Reference) ([]core.Track, error)
}

// TagRegistry is the tagged-track registry as the API consumes it.
type TagRegistry interface {
	Size() int
	Has(trackID string) bool
	MarkTagged(ctx context.Context, track *core.Track) error
}

type Server struct {
	config   *core.ServerConfig
	tagCfg   *core.TagConfig
	logger   *zap.Logger
	server   *http.Server
	metrics  *Metrics
	source   TrackSource
	registry TagRegistry
	limiter  *ratelimit.Limiter
}

type Metrics struct {
	ResolvesTotal   *prometheus.CounterVec
	ExpansionsTotal *prometheus.CounterVec
	TagWritesTotal  *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RegistrySize    prometheus.Gauge

	registry *prometheus.Registry
}

func newMetrics() *Metrics {
	metrics := &Metrics{
		ResolvesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotgrab_resolves_total",
				Help: "Total number of reference resolutions",
			},
			[]string{"kind", "status"},
		),
		ExpansionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotgrab_expansions_total",
				Help: "Total number of catalog expansions into track lists",
			},
			[]string{"kind"},
		),
		TagWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotgrab_tag_writes_total",
				Help: "Total number of tag write attempts",
			},
			[]string{"format", "status"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotgrab_errors_total",
				Help: "Total number of errors",
			},
			[]string{"component", "type"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spotgrab_request_duration_seconds",
				Help:    "Time spent serving API requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		RegistrySize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "spotgrab_registry_size",
				Help: "Current number of tracks in the tagged-track registry",
			},
		),
		registry: prometheus.NewRegistry(),
	}

	metrics.registry.MustRegister(
		metrics.ResolvesTotal,
		metrics.ExpansionsTotal,
		metrics.TagWritesTotal,
		metrics.ErrorsTotal,
		metrics.RequestDuration,
		metrics.RegistrySize,
	)

	return metrics
}

func NewServer(config *core.ServerConfig, tagCfg *core.TagConfig, logger *zap.Logger, source TrackSource, registry TagRegistry) *Server {
	s := &Server{
		config:   config,
		tagCfg:   tagCfg,
		logger:   logger,
		metrics:  newMetrics(),
		source:   source,
		registry: registry,
	}
	if config.RateLimitPerMinute > 0 {
		s.limiter = ratelimit.New(config.RateLimitPerMinute)
	}
	s.server = createHTTPServer(config, s.setupRoutes())
	return s
}

func createHTTPServer(config *core.ServerConfig, mux *http.ServeMux) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"spotgrab"}`))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"spotgrab"}`))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/api/resolve", s.limited(s.handleResolve))
	mux.HandleFunc("/api/tracks", s.limited(s.handleTracks))
	mux.HandleFunc("/api/tag", s.limited(s.handleTag))

	mux.HandleFunc("/", homeHandler(s.logger))

	return mux
}

// limited wraps an API handler with per-client rate limiting keyed on the
// remote address.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil {
			client := r.RemoteAddr
			if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				client = host
			}
			if !s.limiter.Allow(client) {
				s.metrics.ErrorsTotal.WithLabelValues("api", "rate_limited").Inc()
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next(w, r)
	}
}

type resolveResponse struct {
	Reference string `json:"reference"`
	Kind      string `json:"kind"`
	Name      string `json:"name,omitempty"`
}

type trackResponse struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Artists     []string `json:"artists"`
	Album       string   `json:"album,omitempty"`
	TrackNumber int      `json:"track_number,omitempty"`
	DiscNumber  int      `json:"disc_number,omitempty"`
	ReleaseDate string   `json:"release_date,omitempty"`
	DurationMS  int64    `json:"duration_ms,omitempty"`
	URL         string   `json:"url,omitempty"`
}

type tracksResponse struct {
	Reference string          `json:"reference"`
	Count     int             `json:"count"`
	Tracks    []trackResponse `json:"tracks"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		s.metrics.RequestDuration.WithLabelValues("resolve").Observe(time.Since(start).Seconds())
	}()

	reference, ok := s.parseReference(w, r, "resolve")
	if !ok {
		return
	}

	item, err := s.source.Resolve(r.Context(), reference)
	if err != nil {
		s.metrics.ResolvesTotal.WithLabelValues(string(reference.Kind), "error").Inc()
		s.metrics.ErrorsTotal.WithLabelValues("resolve", "remote").Inc()
		s.logger.Warn("Resolve failed",
			zap.String("reference", reference.String()),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, "resolution failed")
		return
	}
	s.metrics.ResolvesTotal.WithLabelValues(string(reference.Kind), "ok").Inc()

	resp := resolveResponse{Reference: reference.String(), Kind: string(reference.Kind)}
	switch {
	case item.Track != nil:
		resp.Name = item.Track.Name
	case item.Album != nil:
		resp.Name = item.Album.Name
	case item.Playlist != nil:
		resp.Name = item.Playlist.Name
	case item.Artist != nil:
		resp.Name = item.Artist.Name
	case item.IsOther():
		resp.Reference = item.Other
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		s.metrics.RequestDuration.WithLabelValues("tracks").Observe(time.Since(start).Seconds())
	}()

	reference, ok := s.parseReference(w, r, "tracks")
	if !ok {
		return
	}

	tracks, err := s.source.Tracks(r.Context(), reference)
	if err != nil {
		s.metrics.ErrorsTotal.WithLabelValues("tracks", errorType(err)).Inc()
		s.logger.Warn("Track expansion failed",
			zap.String("reference", reference.String()),
			zap.Error(err))
		if errors.Is(err, core.ErrInvalidReference) {
			writeError(w, http.StatusBadRequest, "reference cannot be expanded into tracks")
			return
		}
		writeError(w, http.StatusBadGateway, "expansion failed")
		return
	}
	s.metrics.ExpansionsTotal.WithLabelValues(string(reference.Kind)).Inc()

	resp := tracksResponse{
		Reference: reference.String(),
		Count:     len(tracks),
		Tracks:    make([]trackResponse, 0, len(tracks)),
	}
	for i := range tracks {
		track := &tracks[i]
		resp.Tracks = append(resp.Tracks, trackResponse{
			ID:          track.ID,
			Title:       track.Title,
			Artists:     track.Artists,
			Album:       track.Album,
			TrackNumber: track.TrackNumber,
			DiscNumber:  track.DiscNumber,
			ReleaseDate: track.ReleaseDate,
			DurationMS:  track.Duration.Milliseconds(),
			URL:         track.URL,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type tagResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
	Title  string `json:"title,omitempty"`
	File   string `json:"file"`
}

// handleTag resolves a track reference and writes its metadata into a local
// audio file, recording the attempt in the tag-write metrics and the
// tagged-track registry.
func (s *Server) handleTag(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		s.metrics.RequestDuration.WithLabelValues("tag").Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}

	reference, ok := s.parseReference(w, r, "tag")
	if !ok {
		return
	}
	if reference.Kind != ref.KindTrack {
		writeError(w, http.StatusBadRequest, "tag requires a track reference")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "missing path parameter")
		return
	}

	format := core.ParseFormat(path)
	if format == core.FormatUnknown {
		s.metrics.TagWritesTotal.WithLabelValues(format.String(), "error").Inc()
		writeError(w, http.StatusBadRequest, "unsupported audio format")
		return
	}

	tracks, err := s.source.Tracks(r.Context(), reference)
	if err != nil {
		s.metrics.ErrorsTotal.WithLabelValues("tag", errorType(err)).Inc()
		s.logger.Warn("Track lookup failed",
			zap.String("reference", reference.String()),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, "resolution failed")
		return
	}
	if len(tracks) == 0 {
		writeError(w, http.StatusNotFound, "track not found")
		return
	}
	track := &tracks[0]

	force := r.URL.Query().Get("force") == "true"
	if s.registry != nil && s.registry.Has(track.ID) && !force {
		writeJSON(w, http.StatusOK, tagResponse{Status: "skipped", ID: track.ID, Title: track.Title, File: path})
		return
	}

	var separator string
	if s.tagCfg != nil {
		separator = s.tagCfg.Separator
	}
	writer, err := tag.Open(path, format, s.tagCfg)
	if err == nil {
		if err = tag.Apply(writer, track, separator, "", nil); err == nil {
			err = writer.Save()
		}
	}
	if err != nil {
		s.metrics.TagWritesTotal.WithLabelValues(format.String(), "error").Inc()
		s.logger.Warn("Tag write failed",
			zap.String("file", path),
			zap.String("track_id", track.ID),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "tag write failed")
		return
	}
	s.metrics.TagWritesTotal.WithLabelValues(format.String(), "ok").Inc()

	if s.registry != nil {
		if err := s.registry.MarkTagged(r.Context(), track); err != nil {
			s.logger.Warn("Failed to record tagged track",
				zap.String("track_id", track.ID),
				zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, tagResponse{Status: "tagged", ID: track.ID, Title: track.Title, File: path})
}

func (s *Server) parseReference(w http.ResponseWriter, r *http.Request, component string) (ref.Reference, bool) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		writeError(w, http.StatusBadRequest, "missing uri parameter")
		return ref.Reference{}, false
	}
	reference, err := ref.Parse(uri)
	if err != nil {
		s.metrics.ErrorsTotal.WithLabelValues(component, "invalid_reference").Inc()
		writeError(w, http.StatusBadRequest, "invalid reference")
		return ref.Reference{}, false
	}
	return reference, true
}

func errorType(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidReference):
		return "invalid_reference"
	case errors.Is(err, core.ErrRemoteService):
		return "remote"
	default:
		return "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func homeHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>spotgrab</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .header { color: #333; }
        .endpoint { margin: 10px 0; }
        .endpoint a { text-decoration: none; color: #0066cc; }
        .endpoint a:hover { text-decoration: underline; }
    </style>
</head>
<body>
    <h1 class="header">🎵 spotgrab</h1>
    <p>Spotify reference resolver and audio tag writer</p>

    <h2>Endpoints</h2>
    <div class="endpoint">🔍 <code>/api/resolve?uri=…</code> - Resolve a reference</div>
    <div class="endpoint">🎼 <code>/api/tracks?uri=…</code> - Expand a reference into tracks</div>
    <div class="endpoint">📊 <a href="/metrics">Metrics</a> - Prometheus metrics</div>
    <div class="endpoint">💚 <a href="/healthz">Health</a> - Health check</div>
    <div class="endpoint">✅ <a href="/readyz">Ready</a> - Readiness check</div>
</body>
</html>`)); err != nil {
			logger.Debug("Failed to write home page", zap.Error(err))
		}
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if s.registry != nil {
					s.metrics.RegistrySize.Set(float64(s.registry.Size()))
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		if s.limiter != nil {
			s.limiter.Stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if s.registry != nil {
		s.metrics.RegistrySize.Set(float64(s.registry.Size()))
	}

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}
