package viewcount

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/reelhouse/reelhouse/internal/metrics"
	"github.com/reelhouse/reelhouse/internal/playback"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memLedger applies the same conditional updates as PGStore under one lock.
type memLedger struct {
	mu        sync.Mutex
	usages    map[string]*Usage
	views     map[string]int
	eligible  map[string]bool
	history   map[string]time.Time
	upserts   int
	ensureErr error
	creditErr error
}

func newMemLedger(eligibleVideos ...string) *memLedger {
	l := &memLedger{
		usages:   map[string]*Usage{},
		views:    map[string]int{},
		eligible: map[string]bool{},
		history:  map[string]time.Time{},
	}
	for _, id := range eligibleVideos {
		l.eligible[id] = true
	}
	return l
}

func (l *memLedger) EnsureUsage(_ context.Context, u Usage) (Usage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ensureErr != nil {
		return Usage{}, l.ensureErr
	}
	if existing, ok := l.usages[u.TokenID]; ok {
		return *existing, nil
	}
	stored := u
	l.usages[u.TokenID] = &stored
	return stored, nil
}

func (l *memLedger) CreditView(_ context.Context, tokenID, videoID, userID string, at time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.creditErr != nil {
		return false, l.creditErr
	}
	u := l.usages[tokenID]
	if u == nil || u.ViewCounted {
		return false, nil
	}
	if !l.eligible[videoID] {
		return false, nil
	}
	u.ViewCounted = true
	u.CountedAt = &at
	l.views[videoID]++
	if userID != "" {
		l.history[userID+"/"+videoID] = at
		l.upserts++
	}
	return true, nil
}

func (l *memLedger) viewCount(videoID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.views[videoID]
}

func testClaims(videoID, userID string, issued time.Time) *playback.Claims {
	return &playback.Claims{
		VideoID: videoID,
		UserID:  userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       "jti-" + videoID + "-" + userID,
			IssuedAt: jwt.NewNumericDate(issued),
		},
	}
}

func TestCommitter_CountsOnceAfterDwell(t *testing.T) {
	ledger := newMemLedger("v1")
	c := NewCommitter(ledger, DefaultDwell, zerolog.Nop())
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	claims := testClaims("v1", "", start)
	ctx := context.Background()

	assert.Equal(t, OutcomeDwellPending, c.Register(ctx, Use{Claims: claims, Now: start}))
	assert.Equal(t, OutcomeDwellPending, c.Register(ctx, Use{Claims: claims, Now: start.Add(4999 * time.Millisecond)}))
	assert.Equal(t, 0, ledger.viewCount("v1"))

	assert.Equal(t, OutcomeCounted, c.Register(ctx, Use{Claims: claims, Now: start.Add(5 * time.Second)}))
	assert.Equal(t, 1, ledger.viewCount("v1"))

	assert.Equal(t, OutcomeAlreadyCounted, c.Register(ctx, Use{Claims: claims, Now: start.Add(time.Minute)}))
	assert.Equal(t, 1, ledger.viewCount("v1"))
}

func TestCommitter_DwellAnchoredAtFirstUse(t *testing.T) {
	ledger := newMemLedger("v1")
	c := NewCommitter(ledger, DefaultDwell, zerolog.Nop())
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	claims := testClaims("v1", "", start)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		c.RegisterUseAndMaybeCount(ctx, claims, start.Add(time.Duration(i)*time.Second))
	}
	assert.Equal(t, 0, ledger.viewCount("v1"))

	c.RegisterUseAndMaybeCount(ctx, claims, start.Add(5*time.Second))
	assert.Equal(t, 1, ledger.viewCount("v1"), "the window starts at the first use, not the latest")
}

func TestCommitter_ConcurrentUsesCountOnce(t *testing.T) {
	ledger := newMemLedger("v1")
	c := NewCommitter(ledger, DefaultDwell, zerolog.Nop())
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	claims := testClaims("v1", "user-1", start)
	ctx := context.Background()

	c.RegisterUseAndMaybeCount(ctx, claims, start)

	const callers = 64
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			c.RegisterUseAndMaybeCount(ctx, claims, start.Add(6*time.Second))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ledger.viewCount("v1"))
	assert.Equal(t, 1, ledger.upserts)
	_, ok := ledger.history["user-1/v1"]
	assert.True(t, ok, "expected a watch history entry for user-1")
}

func TestCommitter_DistinctTokensCountSeparately(t *testing.T) {
	ledger := newMemLedger("v1")
	c := NewCommitter(ledger, 0, zerolog.Nop())
	now := time.Now()
	ctx := context.Background()

	for _, user := range []string{"a", "b", "c"} {
		assert.Equal(t, OutcomeCounted, c.Register(ctx, Use{Claims: testClaims("v1", user, now), Now: now}))
	}
	assert.Equal(t, 3, ledger.viewCount("v1"))
	assert.Equal(t, 3, ledger.upserts)
}

func TestCommitter_IneligibleVideoIsSkipped(t *testing.T) {
	ledger := newMemLedger()
	c := NewCommitter(ledger, 0, zerolog.Nop())
	now := time.Now()

	outcome := c.Register(context.Background(), Use{Claims: testClaims("private", "", now), Now: now})
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Equal(t, 0, ledger.viewCount("private"))
	assert.False(t, ledger.usages["jti-private-"].ViewCounted, "flag must stay false so a later call can retry")
}

func TestCommitter_StoreErrorsAreSwallowedAndLoggedAtDebug(t *testing.T) {
	tests := []struct {
		name      string
		ensureErr error
		creditErr error
		wantMsg   string
	}{
		{"EnsureFails", errors.New("connection refused"), nil, "token usage not recorded"},
		{"CreditFails", nil, errors.New("serialization failure"), "view credit failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newMemLedger("v1")
			ledger.ensureErr = tt.ensureErr
			ledger.creditErr = tt.creditErr

			var buf bytes.Buffer
			logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
			c := NewCommitter(ledger, 0, logger)
			errorsBefore := testutil.ToFloat64(metrics.ViewCommitErrorsTotal)
			now := time.Now()

			outcome := c.Register(context.Background(), Use{Claims: testClaims("v1", "", now), Now: now})

			assert.Equal(t, OutcomeError, outcome)
			assert.Equal(t, 0, ledger.viewCount("v1"))
			assert.Contains(t, buf.String(), `"level":"debug"`)
			assert.Contains(t, buf.String(), tt.wantMsg)
			assert.Equal(t, errorsBefore+1, testutil.ToFloat64(metrics.ViewCommitErrorsTotal))
		})
	}
}

func TestCommitter_UsageCarriesViewerAndIssuedAt(t *testing.T) {
	ledger := newMemLedger("v1")
	c := NewCommitter(ledger, DefaultDwell, zerolog.Nop())
	issued := time.Date(2026, 5, 1, 9, 59, 0, 0, time.UTC)
	now := issued.Add(time.Minute)
	viewer := Viewer{Country: "NL", Browser: "Firefox", Device: "Desktop"}

	c.Register(context.Background(), Use{Claims: testClaims("v1", "", issued), Now: now, Viewer: viewer})

	u := ledger.usages["jti-v1-"]
	require.NotNil(t, u)
	assert.True(t, u.IssuedAt.Equal(issued))
	assert.True(t, u.UsedAt.Equal(now))
	assert.Equal(t, viewer, u.Viewer)
}

func TestCommitter_MissingIssuedAtFallsBackToNow(t *testing.T) {
	ledger := newMemLedger("v1")
	c := NewCommitter(ledger, DefaultDwell, zerolog.Nop())
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	claims := &playback.Claims{VideoID: "v1", RegisteredClaims: jwt.RegisteredClaims{ID: "jti-no-iat"}}

	c.RegisterUseAndMaybeCount(context.Background(), claims, now)

	u := ledger.usages["jti-no-iat"]
	require.NotNil(t, u)
	assert.True(t, u.IssuedAt.Equal(now))
}

func TestCommitter_OutcomeMetrics(t *testing.T) {
	ledger := newMemLedger("v1")
	c := NewCommitter(ledger, 0, zerolog.Nop())
	before := testutil.ToFloat64(metrics.ViewCommitsTotal.WithLabelValues(string(OutcomeCounted)))
	now := time.Now()

	c.Register(context.Background(), Use{Claims: testClaims("v1", "metrics", now), Now: now})

	after := testutil.ToFloat64(metrics.ViewCommitsTotal.WithLabelValues(string(OutcomeCounted)))
	assert.Equal(t, before+1, after)
}

func TestNewCommitter_NegativeDwellUsesDefault(t *testing.T) {
	c := NewCommitter(newMemLedger(), -time.Second, zerolog.Nop())
	assert.Equal(t, DefaultDwell, c.Dwell())
}
