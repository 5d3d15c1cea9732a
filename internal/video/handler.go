package video

import (
	"context"
	"time"

	"github.com/reelhouse/reelhouse/internal/database"
	"github.com/reelhouse/reelhouse/internal/geoip"
	"github.com/reelhouse/reelhouse/internal/playback"
	"github.com/reelhouse/reelhouse/internal/storage"
	"github.com/reelhouse/reelhouse/internal/transcoding"
	"github.com/reelhouse/reelhouse/internal/viewcount"
	"github.com/rs/zerolog"
)

type ObjectStorage interface {
	GenerateUploadURL(ctx context.Context, key, contentType string, contentLength int64, expiry time.Duration) (string, error)
	HeadObject(ctx context.Context, key string) (storage.ObjectInfo, error)
}

// JobQueue is the hand-off to the transcoding pipeline.
type JobQueue interface {
	CreateJob(ctx context.Context, videoID, inputObjectKey string) (*transcoding.Job, error)
	Reprocess(ctx context.Context, videoID string) (*transcoding.Job, error)
	LatestForVideo(ctx context.Context, videoID string) (*transcoding.Job, error)
}

type ViewRecorder interface {
	Register(ctx context.Context, use viewcount.Use) viewcount.Outcome
}

type Config struct {
	// ManifestBaseURL is prefixed to stored manifest paths. No trailing slash.
	ManifestBaseURL  string
	AllowTTLOverride bool
	MaxUploadBytes   int64
}

type Handler struct {
	db      database.DBTX
	storage ObjectStorage
	jobs    JobQueue
	issuer  *playback.Issuer
	views   ViewRecorder
	geo     *geoip.Resolver
	cfg     Config
	logger  zerolog.Logger
	now     func() time.Time
}

func NewHandler(db database.DBTX, s ObjectStorage, jobs JobQueue, issuer *playback.Issuer, views ViewRecorder, cfg Config, logger zerolog.Logger) *Handler {
	return &Handler{
		db:      db,
		storage: s,
		jobs:    jobs,
		issuer:  issuer,
		views:   views,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

func (h *Handler) SetGeoResolver(r *geoip.Resolver) {
	h.geo = r
}
