package middleware

import (
	"context"
	"net/http"

	"github.com/velostream/authkit"
	"github.com/velostream/authkit/cookies"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the validated claims stored by [Guard].
func AuthResultFromContext(ctx context.Context) (*authkit.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*authkit.AuthResult)
	return res, ok
}

// Guard rejects requests without a valid access token. The token is read
// from the access cookie or an Authorization bearer header; on success the
// claims are stored in the request context for [AuthResultFromContext].
func Guard(engine *authkit.Engine, cfg authkit.CookieConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := cookies.AccessToken(r, cfg)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.ValidateAccess(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, &res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithRequestContext copies the client IP and User-Agent from the request
// into the context so engine audit events carry them.
func WithRequestContext(r *http.Request) context.Context {
	ctx := authkit.WithClientIP(r.Context(), clientIP(r))
	return authkit.WithUserAgent(ctx, r.UserAgent())
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
