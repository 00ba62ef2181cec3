package transport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKeyAdminSubject struct{}

// AdminSubject returns the authenticated admin identity, or "".
func AdminSubject(ctx context.Context) string {
	sub, _ := ctx.Value(contextKeyAdminSubject{}).(string)
	return sub
}

// RequireAdmin guards the human surface with a signed admin session
// token (HS256). Session issuance belongs to the surrounding control
// plane; this layer only verifies.
func RequireAdmin(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	keyFunc := func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || raw == "" {
				writeError(w, http.StatusUnauthorized, "Admin session required")
				return
			}

			claims := jwt.MapClaims{}
			tok, err := jwt.ParseWithClaims(raw, claims, keyFunc,
				jwt.WithValidMethods([]string{"HS256"}),
				jwt.WithExpirationRequired(),
			)
			if err != nil || !tok.Valid {
				logger.WarnContext(r.Context(), "admin auth rejected", "error", err)
				writeError(w, http.StatusUnauthorized, "Invalid admin session")
				return
			}

			sub, _ := claims.GetSubject()
			ctx := context.WithValue(r.Context(), contextKeyAdminSubject{}, sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewAdminSession mints a short-lived admin session token. Exported for
// the CLI and tests; the production issuer lives in the control plane.
func NewAdminSession(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
