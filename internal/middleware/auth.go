// AngelaMos | 2026
// auth.go

package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/carterperez-dev/templates/erp-backend/internal/core"
)

const (
	UserIDKey  contextKey = "user_id"
	PayloadKey contextKey = "token_payload"
)

// TokenPayload is the verified content of an access token.
type TokenPayload struct {
	UserID      string
	Username    string
	Role        string
	Permissions []string
	SessionID   string
	TokenID     string
	Issuer      string
	Audience    string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

func (p *TokenPayload) HasPermission(perm string) bool {
	return slices.Contains(p.Permissions, perm)
}

type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, token string) (*TokenPayload, error)
}

// Authenticator rejects requests without a valid bearer token. Every
// verification failure gets the same response body.
func Authenticator(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				core.JSONError(w, core.UnauthorizedError("missing authorization token"))
				return
			}

			payload, err := verifier.VerifyAccessToken(r.Context(), token)
			if err != nil {
				core.JSONError(w, core.TokenInvalidError())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPayload(r.Context(), payload)))
		})
	}
}

// RequirePermission checks the permission snapshot carried in the token.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			payload := GetPayload(r.Context())
			if payload == nil {
				core.Unauthorized(w, "")
				return
			}

			if !payload.HasPermission(perm) {
				core.Forbidden(w, "missing permission "+perm)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func ExtractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

func WithPayload(ctx context.Context, p *TokenPayload) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, p.UserID)
	return context.WithValue(ctx, PayloadKey, p)
}

func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}

func GetPayload(ctx context.Context) *TokenPayload {
	if p, ok := ctx.Value(PayloadKey).(*TokenPayload); ok {
		return p
	}
	return nil
}
