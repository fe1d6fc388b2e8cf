// AngelaMos | 2026
// jwt_test.go

package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/erp-backend/internal/core"
)

func newTestJWT(t *testing.T) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(testAuthConfig())
	require.NoError(t, err)
	return m
}

func sampleClaims() AccessClaims {
	return AccessClaims{
		UserID:      "4c7e6f0a-2b1d-4d55-9a0e-6f1b3c2d9e10",
		Username:    "jdoe",
		Role:        "procurement_officer",
		Permissions: []string{"purchase_requests:approve", "vendors:read"},
		SessionID:   "family-1",
	}
}

func TestNewJWTManager(t *testing.T) {
	t.Run("Error_ShortAccessSecret", func(t *testing.T) {
		cfg := testAuthConfig()
		cfg.AccessTokenSecret = "short"
		_, err := NewJWTManager(cfg)
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})

	t.Run("Error_EmptyRefreshSecret", func(t *testing.T) {
		cfg := testAuthConfig()
		cfg.RefreshTokenSecret = ""
		_, err := NewJWTManager(cfg)
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})
}

func TestAccessToken(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_ClaimsRoundTrip", func(t *testing.T) {
		m := newTestJWT(t)
		claims := sampleClaims()

		tok, expiresAt, err := m.CreateAccessToken(claims)
		require.NoError(t, err)
		assert.Len(t, strings.Split(tok, "."), 3)

		payload, err := m.VerifyAccessToken(ctx, tok)
		require.NoError(t, err)

		assert.Equal(t, claims.UserID, payload.UserID)
		assert.Equal(t, claims.Username, payload.Username)
		assert.Equal(t, claims.Role, payload.Role)
		assert.Equal(t, claims.Permissions, payload.Permissions)
		assert.Equal(t, claims.SessionID, payload.SessionID)
		assert.Equal(t, "erp-backend", payload.Issuer)
		assert.Equal(t, "erp-backend-api", payload.Audience)
		assert.NotEmpty(t, payload.TokenID)
		assert.True(t, payload.ExpiresAt.Equal(expiresAt))
		assert.Equal(t, 7200*time.Second, payload.ExpiresAt.Sub(payload.IssuedAt))
	})

	t.Run("Success_UniqueTokenIDs", func(t *testing.T) {
		m := newTestJWT(t)
		a, _, err := m.CreateAccessToken(sampleClaims())
		require.NoError(t, err)
		b, _, err := m.CreateAccessToken(sampleClaims())
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("Success_EmptyPermissions", func(t *testing.T) {
		m := newTestJWT(t)
		claims := sampleClaims()
		claims.Permissions = nil

		tok, _, err := m.CreateAccessToken(claims)
		require.NoError(t, err)

		payload, err := m.VerifyAccessToken(ctx, tok)
		require.NoError(t, err)
		assert.Empty(t, payload.Permissions)
		assert.False(t, payload.HasPermission("vendors:read"))
	})

	t.Run("Error_TamperedSegments", func(t *testing.T) {
		m := newTestJWT(t)
		tok, _, err := m.CreateAccessToken(sampleClaims())
		require.NoError(t, err)

		for seg := range 3 {
			parts := strings.Split(tok, ".")
			b := []byte(parts[seg])
			mid := len(b) / 2
			if b[mid] == 'A' {
				b[mid] = 'B'
			} else {
				b[mid] = 'A'
			}
			parts[seg] = string(b)

			_, err := m.VerifyAccessToken(ctx, strings.Join(parts, "."))
			assert.ErrorIs(t, err, core.ErrTokenInvalid, "segment %d", seg)
		}
	})

	t.Run("Error_Expired", func(t *testing.T) {
		m := newTestJWT(t)
		m.now = func() time.Time { return time.Now().Add(-3 * time.Hour) }
		tok, _, err := m.CreateAccessToken(sampleClaims())
		require.NoError(t, err)

		m.now = time.Now
		_, err = m.VerifyAccessToken(ctx, tok)
		assert.ErrorIs(t, err, core.ErrTokenInvalid)
		assert.ErrorIs(t, err, core.ErrTokenExpired)
	})

	t.Run("Error_NotYetValid", func(t *testing.T) {
		m := newTestJWT(t)
		m.now = func() time.Time { return time.Now().Add(time.Hour) }
		tok, _, err := m.CreateAccessToken(sampleClaims())
		require.NoError(t, err)

		m.now = time.Now
		_, err = m.VerifyAccessToken(ctx, tok)
		assert.ErrorIs(t, err, core.ErrTokenInvalid)
		assert.NotErrorIs(t, err, core.ErrTokenExpired)
	})

	t.Run("Error_WrongSecret", func(t *testing.T) {
		tok, _, err := newTestJWT(t).CreateAccessToken(sampleClaims())
		require.NoError(t, err)

		cfg := testAuthConfig()
		cfg.AccessTokenSecret = strings.Repeat("z", 40)
		other, err := NewJWTManager(cfg)
		require.NoError(t, err)

		_, err = other.VerifyAccessToken(ctx, tok)
		assert.ErrorIs(t, err, core.ErrTokenInvalid)
	})

	t.Run("Error_IssuerOrAudienceMismatch", func(t *testing.T) {
		tok, _, err := newTestJWT(t).CreateAccessToken(sampleClaims())
		require.NoError(t, err)

		for _, tc := range []struct{ issuer, audience string }{
			{"someone-else", "erp-backend-api"},
			{"erp-backend", "other-api"},
		} {
			cfg := testAuthConfig()
			cfg.Issuer = tc.issuer
			cfg.Audience = tc.audience
			other, err := NewJWTManager(cfg)
			require.NoError(t, err)

			_, err = other.VerifyAccessToken(ctx, tok)
			assert.ErrorIs(t, err, core.ErrTokenInvalid, tc.issuer+"/"+tc.audience)
		}
	})

	t.Run("Error_Garbage", func(t *testing.T) {
		m := newTestJWT(t)
		for _, tok := range []string{"", "abc", "a.b.c", "Bearer x.y.z"} {
			_, err := m.VerifyAccessToken(ctx, tok)
			assert.ErrorIs(t, err, core.ErrTokenInvalid, tok)
		}
	})
}

func TestRefreshToken(t *testing.T) {
	m := newTestJWT(t)

	t.Run("Success_OpaqueAndDigested", func(t *testing.T) {
		data, err := m.CreateRefreshToken("")
		require.NoError(t, err)

		assert.Len(t, data.Token, 86)
		assert.NotEqual(t, data.Token, data.Digest)
		assert.Equal(t, data.Digest, m.DigestRefreshToken(data.Token))
		assert.NotEmpty(t, data.FamilyID)
		assert.WithinDuration(t, time.Now().Add(604800*time.Second), data.ExpiresAt, 5*time.Second)
	})

	t.Run("Success_FamilyCarried", func(t *testing.T) {
		data, err := m.CreateRefreshToken("family-7")
		require.NoError(t, err)
		assert.Equal(t, "family-7", data.FamilyID)
	})

	t.Run("Success_DigestKeyed", func(t *testing.T) {
		cfg := testAuthConfig()
		cfg.RefreshTokenSecret = strings.Repeat("q", 40)
		other, err := NewJWTManager(cfg)
		require.NoError(t, err)

		assert.NotEqual(t, m.DigestRefreshToken("same"), other.DigestRefreshToken("same"))
	})
}
