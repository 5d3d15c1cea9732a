package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/reelhouse/reelhouse/internal/auth"
	"github.com/reelhouse/reelhouse/internal/database"
	"github.com/reelhouse/reelhouse/internal/geoip"
	"github.com/reelhouse/reelhouse/internal/playback"
	"github.com/reelhouse/reelhouse/internal/ratelimit"
	"github.com/reelhouse/reelhouse/internal/video"
	"github.com/rs/zerolog"
)

// playbackRequestsPerMinute bounds token and stream requests per client IP.
const playbackRequestsPerMinute = 60

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	DB               database.DBTX
	Pinger           Pinger
	Storage          video.ObjectStorage
	Jobs             video.JobQueue
	Issuer           *playback.Issuer
	Views            video.ViewRecorder
	Geo              *geoip.Resolver
	JWTSecret        string
	BaseURL          string
	ManifestBaseURL  string
	AllowTTLOverride bool
	MaxUploadBytes   int64
	// Gatherer backs /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

type Server struct {
	router        chi.Router
	pinger        Pinger
	gatherer      prometheus.Gatherer
	authenticator *auth.Authenticator
	videoHandler  *video.Handler
}

func New(cfg Config) (*Server, error) {
	r := chi.NewRouter()
	r.Use(requestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders(SecurityConfig{BaseURL: cfg.BaseURL}))

	s := &Server{router: r, pinger: cfg.Pinger, gatherer: cfg.Gatherer}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}

	if cfg.DB != nil {
		if cfg.JWTSecret == "" {
			return nil, errors.New("server: JWT secret is required")
		}
		if cfg.Issuer == nil || cfg.Jobs == nil || cfg.Views == nil || cfg.Storage == nil {
			return nil, errors.New("server: storage, jobs, issuer and views are required with a database")
		}
		s.authenticator = auth.NewAuthenticator(cfg.JWTSecret)
		s.videoHandler = video.NewHandler(cfg.DB, cfg.Storage, cfg.Jobs, cfg.Issuer, cfg.Views, video.Config{
			ManifestBaseURL:  cfg.ManifestBaseURL,
			AllowTTLOverride: cfg.AllowTTLOverride,
			MaxUploadBytes:   cfg.MaxUploadBytes,
		}, cfg.Logger.With().Str("component", "video").Logger())
		s.videoHandler.SetGeoResolver(cfg.Geo)
	}

	s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	if s.videoHandler == nil {
		return
	}

	playbackLimiter := ratelimit.PerMinute(playbackRequestsPerMinute)
	s.router.Route("/api/videos", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.authenticator.Middleware)
			r.Post("/", s.videoHandler.Create)
			r.Get("/{id}", s.videoHandler.Get)
			r.Post("/{id}/uploaded", s.videoHandler.MarkUploaded)
			r.Post("/{id}/process", s.videoHandler.Process)
			r.Post("/{id}/reprocess", s.videoHandler.Reprocess)
		})
		r.Group(func(r chi.Router) {
			r.Use(playbackLimiter.Middleware)
			r.With(s.authenticator.OptionalMiddleware).Post("/{id}/playback-token", s.videoHandler.IssuePlaybackToken)
			r.Get("/{id}/stream", s.videoHandler.Stream)
		})
	})
	s.router.With(s.authenticator.Middleware).Get("/api/me/history", s.videoHandler.History)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy","error":"database unreachable"}`))
			return
		}
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
