// Package playback issues and verifies short-lived playback tokens. A token
// authorizes manifest access for exactly one video and carries a unique jti
// that the view counter uses as its idempotency key.
package playback

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultTTL = 300 * time.Second
	MinTTL     = 30 * time.Second
	MaxTTL     = time.Hour

	audience = "playback"
)

var (
	ErrInvalidToken  = errors.New("invalid or expired playback token")
	ErrTTLOutOfRange = fmt.Errorf("ttl must be between %d and %d seconds", int(MinTTL/time.Second), int(MaxTTL/time.Second))
)

type Claims struct {
	VideoID string `json:"videoId"`
	UserID  string `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

// TokenID returns the jti.
func (c *Claims) TokenID() string {
	return c.ID
}

// IssuedAtTime returns iat, or the zero time when the token carries none.
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL returns the lifetime applied when Issue is called without an override.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// ValidateTTL checks a client-requested TTL override.
func ValidateTTL(ttl time.Duration) error {
	if ttl < MinTTL || ttl > MaxTTL {
		return ErrTTLOutOfRange
	}
	return nil
}

// Issue signs a token for videoID. The caller must already have checked that
// the video is playable. userID may be empty; ttl <= 0 selects the default.
func (i *Issuer) Issue(videoID, userID string, ttl time.Duration) (string, *Claims, error) {
	if videoID == "" {
		return "", nil, errors.New("issue playback token: video id required")
	}
	if ttl <= 0 {
		ttl = i.ttl
	}

	jti, err := uuid.NewRandom()
	if err != nil {
		return "", nil, fmt.Errorf("generate token id: %w", err)
	}

	now := i.now()
	claims := &Claims{
		VideoID: videoID,
		UserID:  userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti.String(),
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign playback token: %w", err)
	}
	return signed, claims, nil
}

// Verify returns the claims of a valid token. Every failure wraps ErrInvalidToken.
func (i *Issuer) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.VideoID == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing videoId or jti", ErrInvalidToken)
	}
	return claims, nil
}
