// Package api serves the local HTTP control API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/duncanleo/hc-gopro/control"
	"github.com/duncanleo/hc-gopro/gopro"
	"github.com/duncanleo/hc-gopro/log"
	"github.com/duncanleo/hc-gopro/pairing"
	"github.com/duncanleo/hc-gopro/stream"
)

// Camera is the control surface served over HTTP.
// *control.Controller implements it.
type Camera interface {
	TakePicture(ctx context.Context) error
	ListMedia(ctx context.Context) (*gopro.MediaList, error)
	FetchLatest(ctx context.Context) (string, error)
	DeleteLast(ctx context.Context) error
	DeleteAll(ctx context.Context) error
	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error
}

// Sessions lists live stream sessions. *stream.Manager implements it.
type Sessions interface {
	Sessions() []stream.Session
}

// Config tunes the router.
type Config struct {
	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit int
	// Timeout bounds each camera operation.
	Timeout time.Duration
}

// Server wires HTTP routes to the camera and session manager.
type Server struct {
	camera   Camera
	sessions Sessions
	cfg      Config
	logger   zerolog.Logger
}

// New returns a Server.
func New(camera Camera, sessions Sessions, cfg Config) *Server {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Server{
		camera:   camera,
		sessions: sessions,
		cfg:      cfg,
		logger:   log.WithComponent("api"),
	}
}

// Handler returns the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(rateLimit(s.cfg.RateLimit, time.Minute))
		}
		r.Get("/sessions", s.handleSessions)
		r.Get("/media", s.handleListMedia)
		r.Post("/media/latest/fetch", s.handleFetchLatest)
		r.Delete("/media/last", s.command(s.camera.DeleteLast))
		r.Delete("/media", s.command(s.camera.DeleteAll))
		r.Post("/photo", s.command(s.camera.TakePicture))
		r.Post("/power/on", s.command(s.camera.PowerOn))
		r.Post("/power/off", s.command(s.camera.PowerOff))
	})
	return r
}

func rateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests")
		}),
	)
}

type sessionView struct {
	ID      string `json:"id"`
	Viewer  string `json:"viewer"`
	Phase   string `json:"phase"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	FPS     int    `json:"fps,omitempty"`
	Bitrate int    `json:"bitrate,omitempty"`
}

type mediaView struct {
	Directory   string    `json:"directory"`
	File        string    `json:"file"`
	Taken       time.Time `json:"taken"`
	Size        int64     `json:"size"`
	URL         string    `json:"url"`
	BurstPhotos int64     `json:"burst_photos,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	out := []sessionView{}
	for _, sess := range s.sessions.Sessions() {
		out = append(out, sessionView{
			ID:      sess.ID,
			Viewer:  sess.ViewerAddress,
			Phase:   sess.Phase.String(),
			Width:   sess.Params.Width,
			Height:  sess.Params.Height,
			FPS:     sess.Params.FPS,
			Bitrate: sess.Params.MaxBitrate,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListMedia(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	list, err := s.camera.ListMedia(ctx)
	if err != nil {
		s.fail(w, "list media", err)
		return
	}

	out := []mediaView{}
	for e := range list.Entries() {
		v := mediaView{
			Directory: e.Directory,
			File:      e.File,
			Taken:     e.Taken,
			Size:      e.Size,
			URL:       e.URL,
		}
		if e.Burst != nil {
			v.BurstPhotos = e.Burst.Photos()
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFetchLatest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	path, err := s.camera.FetchLatest(ctx)
	if err != nil {
		s.fail(w, "fetch latest", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (s *Server) command(fn func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			s.fail(w, r.URL.Path, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status, code := classify(err)
	s.logger.Error().Err(err).Str("op", op).Int("status", status).Msg("request failed")
	writeError(w, status, code, err.Error())
}

// classify maps the camera error taxonomy onto HTTP statuses.
func classify(err error) (int, string) {
	var transportErr *gopro.TransportError
	switch {
	case errors.Is(err, pairing.ErrNotConfigured):
		return http.StatusPreconditionFailed, "not_configured"
	case errors.Is(err, control.ErrNotConnected):
		return http.StatusServiceUnavailable, "not_connected"
	case errors.Is(err, gopro.ErrCameraUnreachable):
		return http.StatusGatewayTimeout, "camera_unreachable"
	case errors.Is(err, gopro.ErrLinkNotConfirmed):
		return http.StatusGatewayTimeout, "link_not_confirmed"
	case errors.Is(err, control.ErrNoMedia):
		return http.StatusNotFound, "no_media"
	case errors.As(err, &transportErr):
		return http.StatusBadGateway, "transport_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"error": code, "detail": detail})
}
