package transcoding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/reelhouse/reelhouse/internal/database"
)

const jobColumns = `id, video_id, input_object_key, output_prefix, status, attempt, error_message, created_at, started_at, completed_at`

// PGStore is the durable job queue backed by the transcoding_jobs table.
type PGStore struct {
	db database.DBTX
}

func NewPGStore(db database.DBTX) *PGStore {
	return &PGStore{db: db}
}

func scanJob(row pgx.Row) (*Job, error) {
	var job Job
	err := row.Scan(
		&job.ID, &job.VideoID, &job.InputObjectKey, &job.OutputPrefix, &job.Status,
		&job.Attempt, &job.ErrorMessage, &job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJob flips an UPLOADED video to PROCESSING and enqueues one PENDING
// job for it, atomically.
func (s *PGStore) CreateJob(ctx context.Context, videoID, inputObjectKey string) (*Job, error) {
	var job *Job
	err := database.InTx(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE videos SET status = 'PROCESSING', updated_at = now()
			 WHERE id = $1 AND status = 'UPLOADED'`,
			videoID,
		)
		if err != nil {
			return fmt.Errorf("mark video processing: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrVideoNotUploaded
		}

		job, err = insertJob(ctx, tx, videoID, inputObjectKey, 1)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Reprocess enqueues a new attempt for a video left in PROCESSING by a FAILED job.
func (s *PGStore) Reprocess(ctx context.Context, videoID string, maxAttempts int) (*Job, error) {
	var job *Job
	err := database.InTx(ctx, s.db, func(tx pgx.Tx) error {
		var videoStatus string
		err := tx.QueryRow(ctx,
			`SELECT status FROM videos WHERE id = $1 FOR UPDATE`,
			videoID,
		).Scan(&videoStatus)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotRetryable
		}
		if err != nil {
			return fmt.Errorf("lock video: %w", err)
		}
		if videoStatus != "PROCESSING" {
			return ErrNotRetryable
		}

		latest, err := scanJob(tx.QueryRow(ctx,
			`SELECT `+jobColumns+` FROM transcoding_jobs
			 WHERE video_id = $1
			 ORDER BY created_at DESC, id DESC LIMIT 1`,
			videoID,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotRetryable
		}
		if err != nil {
			return fmt.Errorf("load latest job: %w", err)
		}
		if latest.Status != StatusFailed {
			return ErrNotRetryable
		}
		if latest.Attempt >= maxAttempts {
			return ErrRetryLimit
		}

		job, err = insertJob(ctx, tx, videoID, latest.InputObjectKey, latest.Attempt+1)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func insertJob(ctx context.Context, tx pgx.Tx, videoID, inputObjectKey string, attempt int) (*Job, error) {
	job := &Job{
		VideoID:        videoID,
		InputObjectKey: inputObjectKey,
		OutputPrefix:   OutputPrefix(videoID),
		Status:         StatusPending,
		Attempt:        attempt,
	}
	err := tx.QueryRow(ctx,
		`INSERT INTO transcoding_jobs (video_id, input_object_key, output_prefix, status, attempt)
		 VALUES ($1, $2, $3, 'PENDING', $4)
		 RETURNING id, created_at`,
		videoID, inputObjectKey, job.OutputPrefix, attempt,
	).Scan(&job.ID, &job.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// ClaimNextPending moves the oldest PENDING job to RUNNING in a single
// conditional statement. Concurrent workers never claim the same row.
func (s *PGStore) ClaimNextPending(ctx context.Context) (*Job, error) {
	job, err := scanJob(s.db.QueryRow(ctx,
		`UPDATE transcoding_jobs SET status = 'RUNNING', started_at = now()
		 WHERE status = 'PENDING' AND id = (
		     SELECT id FROM transcoding_jobs
		     WHERE status = 'PENDING'
		     ORDER BY created_at ASC, id ASC
		     LIMIT 1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+jobColumns,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoPendingJob
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// Complete marks a RUNNING job COMPLETED and its video READY in one transaction.
func (s *PGStore) Complete(ctx context.Context, job *Job, manifestPath string, at time.Time) error {
	return database.InTx(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE transcoding_jobs SET status = 'COMPLETED', completed_at = $2
			 WHERE id = $1 AND status = 'RUNNING'`,
			job.ID, at,
		)
		if err != nil {
			return fmt.Errorf("mark job completed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("job %s: %w", job.ID, ErrJobNotFound)
		}

		tag, err = tx.Exec(ctx,
			`UPDATE videos SET status = 'READY', manifest_path = $2, processed_at = $3, updated_at = now()
			 WHERE id = $1 AND status = 'PROCESSING'`,
			job.VideoID, manifestPath, at,
		)
		if err != nil {
			return fmt.Errorf("mark video ready: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("video %s is no longer processing", job.VideoID)
		}
		return nil
	})
}

// Fail marks a RUNNING job FAILED. The video row is not touched.
func (s *PGStore) Fail(ctx context.Context, job *Job, reason string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE transcoding_jobs SET status = 'FAILED', error_message = $2
		 WHERE id = $1 AND status = 'RUNNING'`,
		job.ID, reason,
	)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", job.ID, ErrJobNotFound)
	}
	return nil
}

func (s *PGStore) FindByID(ctx context.Context, id string) (*Job, error) {
	job, err := scanJob(s.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM transcoding_jobs WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job: %w", err)
	}
	return job, nil
}

func (s *PGStore) LatestForVideo(ctx context.Context, videoID string) (*Job, error) {
	job, err := scanJob(s.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM transcoding_jobs
		 WHERE video_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		videoID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find latest job: %w", err)
	}
	return job, nil
}
