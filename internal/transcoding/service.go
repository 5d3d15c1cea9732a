package transcoding

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Store is the persistence contract of the job queue.
type Store interface {
	CreateJob(ctx context.Context, videoID, inputObjectKey string) (*Job, error)
	Reprocess(ctx context.Context, videoID string, maxAttempts int) (*Job, error)
	ClaimNextPending(ctx context.Context) (*Job, error)
	Complete(ctx context.Context, job *Job, manifestPath string, at time.Time) error
	Fail(ctx context.Context, job *Job, reason string) error
	FindByID(ctx context.Context, id string) (*Job, error)
	LatestForVideo(ctx context.Context, videoID string) (*Job, error)
}

// Service is the hand-off point between the upload flow and the worker.
type Service struct {
	store       Store
	notifier    Notifier
	maxAttempts int
	logger      zerolog.Logger
}

func NewService(store Store, notifier Notifier, maxAttempts int, logger zerolog.Logger) *Service {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Service{store: store, notifier: notifier, maxAttempts: maxAttempts, logger: logger}
}

// CreateJob enqueues the source object of an UPLOADED video and moves the
// video to PROCESSING. It returns ErrVideoNotUploaded for any other state.
func (s *Service) CreateJob(ctx context.Context, videoID, inputObjectKey string) (*Job, error) {
	job, err := s.store.CreateJob(ctx, videoID, inputObjectKey)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("job_id", job.ID).
		Str("video_id", videoID).
		Str("input_key", inputObjectKey).
		Msg("job enqueued")
	s.wake(ctx, job)
	return job, nil
}

// Reprocess enqueues another attempt after a FAILED job, up to maxAttempts.
func (s *Service) Reprocess(ctx context.Context, videoID string) (*Job, error) {
	job, err := s.store.Reprocess(ctx, videoID, s.maxAttempts)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("job_id", job.ID).
		Str("video_id", videoID).
		Int("attempt", job.Attempt).
		Msg("job re-enqueued")
	s.wake(ctx, job)
	return job, nil
}

func (s *Service) LatestForVideo(ctx context.Context, videoID string) (*Job, error) {
	return s.store.LatestForVideo(ctx, videoID)
}

func (s *Service) FindByID(ctx context.Context, id string) (*Job, error) {
	return s.store.FindByID(ctx, id)
}

func (s *Service) wake(ctx context.Context, job *Job) {
	if err := s.notifier.Notify(ctx, job.ID); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("wake-up notification failed, worker will poll")
	}
}
