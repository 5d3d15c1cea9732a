package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reelhouse/reelhouse/internal/config"
	"github.com/reelhouse/reelhouse/internal/database"
	"github.com/reelhouse/reelhouse/internal/geoip"
	applog "github.com/reelhouse/reelhouse/internal/log"
	"github.com/reelhouse/reelhouse/internal/playback"
	"github.com/reelhouse/reelhouse/internal/server"
	"github.com/reelhouse/reelhouse/internal/storage"
	"github.com/reelhouse/reelhouse/internal/transcoding"
	"github.com/reelhouse/reelhouse/internal/viewcount"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	startupTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
	pruneInterval   = time.Hour
)

func main() {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		base := applog.Base()
		base.Fatal().Err(err).Msg("invalid configuration")
	}
	applog.Configure(applog.Config{Level: cfg.LogLevel})
	logger := applog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("reelhouse exited")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	if cfg.InsecurePlaybackSecret() {
		logger.Warn().Msg("PLAYBACK_TOKEN_SECRET not set, using the development secret")
	}

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	db, err := database.Connect(startCtx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	logger.Info().Msg("database migrations applied")

	store, err := storage.New(startCtx, storage.Config{
		Endpoint:       cfg.S3Endpoint,
		PublicEndpoint: cfg.S3PublicEndpoint,
		Bucket:         cfg.S3Bucket,
		AccessKey:      cfg.S3AccessKey,
		SecretKey:      cfg.S3SecretKey,
		Region:         cfg.S3Region,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	if err := store.EnsureBucket(startCtx); err != nil {
		return fmt.Errorf("storage bucket check failed: %w", err)
	}
	logger.Info().Str("bucket", cfg.S3Bucket).Msg("storage bucket ready")

	var notifier transcoding.Notifier = transcoding.NoopNotifier{}
	if cfg.RedisAddr != "" {
		redisNotifier, err := transcoding.NewRedisNotifier(cfg.RedisAddr, applog.WithComponent("notifier"))
		if err != nil {
			return fmt.Errorf("redis notifier: %w", err)
		}
		defer func() { _ = redisNotifier.Close() }()
		notifier = redisNotifier
		logger.Info().Str("addr", cfg.RedisAddr).Msg("job wake-ups via redis enabled")
	}

	geo := geoip.New(cfg.GeoIPDBPath, applog.WithComponent("geoip"))
	defer func() { _ = geo.Close() }()

	jobStore := transcoding.NewPGStore(db.Pool)
	jobs := transcoding.NewService(jobStore, notifier, cfg.MaxAttempts, applog.WithComponent("transcoding"))
	worker := transcoding.NewWorker(jobStore, transcoding.StubTranscoder{Delay: cfg.TranscodeDelay}, notifier,
		transcoding.WorkerConfig{PollInterval: cfg.PollInterval, JobTimeout: cfg.TranscodeTimeout},
		applog.WithComponent("worker"))

	usageStore := viewcount.NewPGStore(db.Pool)
	committer := viewcount.NewCommitter(usageStore, cfg.DwellThreshold, applog.WithComponent("viewcount"))
	pruner := viewcount.NewPruner(usageStore, cfg.UsageRetention, pruneInterval, applog.WithComponent("pruner"))

	srv, err := server.New(server.Config{
		DB:               db.Pool,
		Pinger:           db,
		Storage:          store,
		Jobs:             jobs,
		Issuer:           playback.NewIssuer(cfg.PlaybackSecret, cfg.PlaybackTokenTTL),
		Views:            committer,
		Geo:              geo,
		JWTSecret:        cfg.JWTSecret,
		BaseURL:          cfg.BaseURL,
		ManifestBaseURL:  cfg.ManifestBaseURL,
		AllowTTLOverride: cfg.AllowTTLOverride(),
		MaxUploadBytes:   cfg.MaxUploadBytes,
		Logger:           applog.WithComponent("http"),
	})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info().Str("port", cfg.Port).Msg("reelhouse listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serveHTTP(gctx, newHTTPServer(srv), ln, logger) })
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return pruner.Run(gctx) })
	return g.Wait()
}

func newHTTPServer(handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// serveHTTP serves on ln until ctx is cancelled, then drains in-flight
// requests.
func serveHTTP(ctx context.Context, srv *http.Server, ln net.Listener, logger zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
