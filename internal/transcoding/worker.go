package transcoding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/reelhouse/reelhouse/internal/metrics"
	"github.com/rs/zerolog"
)

// finalizeTimeout bounds the status writes after a job ends, which run even
// when the worker context has been cancelled.
const finalizeTimeout = 10 * time.Second

// Queue is the part of Store the worker drives.
type Queue interface {
	ClaimNextPending(ctx context.Context) (*Job, error)
	Complete(ctx context.Context, job *Job, manifestPath string, at time.Time) error
	Fail(ctx context.Context, job *Job, reason string) error
}

type WorkerConfig struct {
	PollInterval time.Duration
	JobTimeout   time.Duration
}

// Worker processes one job at a time, oldest first.
type Worker struct {
	queue      Queue
	transcoder Transcoder
	notifier   Notifier
	cfg        WorkerConfig
	logger     zerolog.Logger
	now        func() time.Time
}

func NewWorker(queue Queue, transcoder Transcoder, notifier Notifier, cfg WorkerConfig, logger zerolog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Worker{
		queue:      queue,
		transcoder: transcoder,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Run polls until ctx is cancelled. A failing tick never stops the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Dur("poll_interval", w.cfg.PollInterval).Msg("transcode worker started")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	wake := w.notifier.Subscribe(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("transcode worker shutting down")
			return nil
		case <-ticker.C:
		case _, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
		}

		if _, err := w.Tick(ctx); err != nil {
			metrics.WorkerTickErrorsTotal.Inc()
			w.logger.Error().Err(err).Msg("tick failed")
		}
	}
}

// Tick claims and processes at most one job. It reports whether a job was
// claimed. Job failures are recorded on the job and do not surface as errors.
func (w *Worker) Tick(ctx context.Context) (processed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()

	job, err := w.queue.ClaimNextPending(ctx)
	if errors.Is(err, ErrNoPendingJob) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	logger := w.logger.With().Str("job_id", job.ID).Str("video_id", job.VideoID).Logger()
	logger.Info().Int("attempt", job.Attempt).Msg("claimed job")
	started := w.now()

	if err := w.process(ctx, job); err != nil {
		logger.Error().Err(err).Msg("job failed")
		finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
		defer cancel()
		if ferr := w.queue.Fail(finalizeCtx, job, err.Error()); ferr != nil {
			logger.Error().Err(ferr).Msg("failed to mark job failed")
		}
		metrics.ObserveJobFinished("failed", w.now().Sub(started))
		return true, nil
	}

	metrics.ObserveJobFinished("completed", w.now().Sub(started))
	logger.Info().Str("manifest_path", ManifestPath(job.VideoID)).Msg("job completed")
	return true, nil
}

func (w *Worker) process(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transcode panic: %v", r)
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	if err := w.transcoder.Transcode(jobCtx, job); err != nil {
		return fmt.Errorf("transcode: %w", err)
	}

	finalizeCtx, cancelFinalize := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancelFinalize()
	if err := w.queue.Complete(finalizeCtx, job, ManifestPath(job.VideoID), w.now()); err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	return nil
}
