package viewcount

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type pruneStore interface {
	PruneExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pruner removes ledger rows whose tokens have expired long enough ago that
// no request can present them again.
type Pruner struct {
	store     pruneStore
	retention time.Duration
	interval  time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

func NewPruner(store pruneStore, retention, interval time.Duration, logger zerolog.Logger) *Pruner {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Pruner{store: store, retention: retention, interval: interval, logger: logger, now: time.Now}
}

func (p *Pruner) PruneOnce(ctx context.Context) {
	deleted, err := p.store.PruneExpired(ctx, p.now().Add(-p.retention))
	if err != nil {
		p.logger.Error().Err(err).Msg("prune token usages failed")
		return
	}
	if deleted > 0 {
		p.logger.Info().Int64("deleted", deleted).Msg("pruned expired token usages")
	}
}

// Run prunes on every interval until ctx is cancelled.
func (p *Pruner) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("usage pruner shutting down")
			return nil
		case <-ticker.C:
			p.PruneOnce(ctx)
		}
	}
}
