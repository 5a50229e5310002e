package middleware

import (
	"context"
	"net/http"

	"github.com/luckyshop/server/internal/auth"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Authenticator validates session cookies, rotating them when the access token has lapsed
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken, refreshToken string) (auth.AuthResult, error)
}

// AuthMiddleware validates the session cookies, writes rotated cookies back, and attaches the user id to
// the request context
func AuthMiddleware(authenticator Authenticator, cookies CookieConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, refresh := SessionTokens(r)

			res, err := authenticator.Authenticate(r.Context(), access, refresh)
			if err != nil {
				RespondError(w, err)
				return
			}
			if res.Rotated != nil {
				cookies.SetSessionCookies(w, *res.Rotated)
			}

			ctx := WithUserID(r.Context(), res.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUserID returns a copy of ctx carrying userID
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDKey).(int64)
	return userID, ok
}
