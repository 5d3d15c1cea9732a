package viewcount

import (
	"context"
	"time"

	"github.com/reelhouse/reelhouse/internal/metrics"
	"github.com/reelhouse/reelhouse/internal/playback"
	"github.com/rs/zerolog"
)

type Outcome string

const (
	OutcomeCounted        Outcome = "counted"
	OutcomeAlreadyCounted Outcome = "already_counted"
	OutcomeDwellPending   Outcome = "dwell_pending"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeError          Outcome = "error"
)

// Use is one stream request presenting a verified token.
type Use struct {
	Claims *playback.Claims
	Now    time.Time
	Viewer Viewer
}

// Committer credits views. It never returns errors: bookkeeping must not
// affect the response of the request that triggered it.
type Committer struct {
	store  Store
	dwell  time.Duration
	logger zerolog.Logger
}

// NewCommitter builds a Committer. A negative dwell is coerced to
// DefaultDwell. config.Validate rejects negative values before they get here.
func NewCommitter(store Store, dwell time.Duration, logger zerolog.Logger) *Committer {
	if dwell < 0 {
		dwell = DefaultDwell
	}
	return &Committer{store: store, dwell: dwell, logger: logger}
}

func (c *Committer) Dwell() time.Duration {
	return c.dwell
}

func (c *Committer) RegisterUseAndMaybeCount(ctx context.Context, claims *playback.Claims, now time.Time) {
	c.Register(ctx, Use{Claims: claims, Now: now})
}

// Register records the first use of the token and credits one view once the
// dwell window measured from that first use has passed.
func (c *Committer) Register(ctx context.Context, use Use) Outcome {
	outcome := c.register(ctx, use)
	metrics.ObserveViewCommit(string(outcome))
	return outcome
}

func (c *Committer) register(ctx context.Context, use Use) Outcome {
	claims := use.Claims
	now := use.Now
	if now.IsZero() {
		now = time.Now()
	}
	issuedAt := claims.IssuedAtTime()
	if issuedAt.IsZero() {
		issuedAt = now
	}

	logger := c.logger.With().
		Str("token_id", claims.TokenID()).
		Str("video_id", claims.VideoID).
		Logger()

	usage, err := c.store.EnsureUsage(ctx, Usage{
		TokenID:  claims.TokenID(),
		VideoID:  claims.VideoID,
		IssuedAt: issuedAt,
		UsedAt:   now,
		Viewer:   use.Viewer,
	})
	if err != nil {
		metrics.ViewCommitErrorsTotal.Inc()
		logger.Debug().Err(err).Msg("token usage not recorded")
		return OutcomeError
	}

	if usage.ViewCounted {
		return OutcomeAlreadyCounted
	}
	if now.Sub(usage.UsedAt) < c.dwell {
		return OutcomeDwellPending
	}

	credited, err := c.store.CreditView(ctx, usage.TokenID, claims.VideoID, claims.UserID, now)
	if err != nil {
		metrics.ViewCommitErrorsTotal.Inc()
		logger.Debug().Err(err).Msg("view credit failed")
		return OutcomeError
	}
	if !credited {
		logger.Debug().Msg("view not credited: already counted or video not eligible")
		return OutcomeSkipped
	}

	logger.Debug().Bool("watch_history", claims.UserID != "").Msg("view credited")
	return OutcomeCounted
}
