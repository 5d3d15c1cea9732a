package viewcount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/reelhouse/reelhouse/internal/database"
)

type PGStore struct {
	db database.DBTX
}

func NewPGStore(db database.DBTX) *PGStore {
	return &PGStore{db: db}
}

// Sentinels that roll back a credit transaction without being errors for the caller.
var (
	errAlreadyCounted = errors.New("view already counted")
	errNotEligible    = errors.New("video not eligible for view crediting")
)

func (s *PGStore) EnsureUsage(ctx context.Context, u Usage) (Usage, error) {
	var stored Usage
	err := s.db.QueryRow(ctx,
		`INSERT INTO playback_token_usages
		     (token_id, video_id, issued_at, used_at, viewer_country, viewer_browser, viewer_device)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (token_id) DO UPDATE SET token_id = EXCLUDED.token_id
		 RETURNING token_id, video_id, issued_at, used_at, view_counted, counted_at,
		           viewer_country, viewer_browser, viewer_device`,
		u.TokenID, u.VideoID, u.IssuedAt, u.UsedAt, u.Viewer.Country, u.Viewer.Browser, u.Viewer.Device,
	).Scan(
		&stored.TokenID, &stored.VideoID, &stored.IssuedAt, &stored.UsedAt, &stored.ViewCounted, &stored.CountedAt,
		&stored.Viewer.Country, &stored.Viewer.Browser, &stored.Viewer.Device,
	)
	if err != nil {
		return Usage{}, fmt.Errorf("ensure token usage: %w", err)
	}
	return stored, nil
}

func (s *PGStore) CreditView(ctx context.Context, tokenID, videoID, userID string, at time.Time) (bool, error) {
	err := database.InTx(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE playback_token_usages SET view_counted = true, counted_at = $2
			 WHERE token_id = $1 AND view_counted = false`,
			tokenID, at,
		)
		if err != nil {
			return fmt.Errorf("flip view_counted: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return errAlreadyCounted
		}

		tag, err = tx.Exec(ctx,
			`UPDATE videos SET view_count = view_count + 1
			 WHERE id = $1 AND status = 'READY' AND visibility = 'PUBLIC'`,
			videoID,
		)
		if err != nil {
			return fmt.Errorf("increment view count: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return errNotEligible
		}

		if userID == "" {
			return nil
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO watch_history (user_id, video_id, last_watched_at)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (user_id, video_id) DO UPDATE SET last_watched_at = EXCLUDED.last_watched_at`,
			userID, videoID, at,
		); err != nil {
			return fmt.Errorf("upsert watch history: %w", err)
		}
		return nil
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errAlreadyCounted), errors.Is(err, errNotEligible):
		return false, nil
	default:
		return false, err
	}
}

// PruneExpired deletes usages of tokens issued before cutoff. Those tokens can
// no longer verify, so their rows can never change again.
func (s *PGStore) PruneExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM playback_token_usages WHERE issued_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("prune token usages: %w", err)
	}
	return tag.RowsAffected(), nil
}
