// Package viewcount keeps the playback token usage ledger and credits at most
// one view per token once the viewer has stayed past the dwell threshold.
package viewcount

import (
	"context"
	"time"
)

const DefaultDwell = 5000 * time.Millisecond

// Usage is the ledger row for one playback token.
type Usage struct {
	TokenID     string
	VideoID     string
	IssuedAt    time.Time
	UsedAt      time.Time
	ViewCounted bool
	CountedAt   *time.Time
	Viewer      Viewer
}

// Viewer is best-effort request metadata stored with the first use of a token.
type Viewer struct {
	Country string
	Browser string
	Device  string
}

// Store persists usages and applies the credit transaction.
type Store interface {
	// EnsureUsage inserts u unless a row for u.TokenID exists and returns the
	// stored row either way.
	EnsureUsage(ctx context.Context, u Usage) (Usage, error)
	// CreditView flips view_counted for tokenID and increments the video's view
	// count atomically. It reports false when another caller already counted the
	// token or the video is not eligible.
	CreditView(ctx context.Context, tokenID, videoID, userID string, at time.Time) (bool, error)
}
