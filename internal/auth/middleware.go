package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/reelhouse/reelhouse/internal/httputil"
)

type contextKey string

const userIDKey contextKey = "userID"

// Authenticator resolves the caller from an access token.
type Authenticator struct {
	jwtSecret string
}

func NewAuthenticator(jwtSecret string) *Authenticator {
	return &Authenticator{jwtSecret: jwtSecret}
}

// Middleware rejects requests without a valid access token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			httputil.WriteError(w, http.StatusUnauthorized, "authorization header required")
			return
		}
		tokenStr, ok := httputil.BearerToken(r)
		if !ok {
			httputil.WriteError(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		claims, err := ValidateToken(a.jwtSecret, tokenStr)
		if errors.Is(err, ErrWrongTokenType) {
			httputil.WriteError(w, http.StatusUnauthorized, "invalid token type")
			return
		}
		if err != nil {
			httputil.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.UserID)))
	})
}

// OptionalMiddleware attaches the caller when a valid access token is
// present and otherwise serves the request anonymously.
func (a *Authenticator) OptionalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tokenStr, ok := httputil.BearerToken(r); ok {
			if claims, err := ValidateToken(a.jwtSecret, tokenStr); err == nil {
				r = r.WithContext(WithUserID(r.Context(), claims.UserID))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}
