// AngelaMos | 2026
// jwt.go

package auth

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/carterperez-dev/templates/erp-backend/internal/config"
	"github.com/carterperez-dev/templates/erp-backend/internal/core"
	"github.com/carterperez-dev/templates/erp-backend/internal/hashing"
	"github.com/carterperez-dev/templates/erp-backend/internal/middleware"
)

const accessTokenType = "access"

// JWTManager signs access tokens with HS256 and mints opaque refresh
// secrets. Both keys are fixed for the life of the process.
type JWTManager struct {
	key      jwk.Key
	digester *hashing.Digester
	config   config.AuthConfig
	now      func() time.Time
}

func NewJWTManager(cfg config.AuthConfig) (*JWTManager, error) {
	if len(cfg.AccessTokenSecret) < 32 {
		return nil, fmt.Errorf("access token secret: %w", core.ErrConfiguration)
	}

	key, err := jwk.Import([]byte(cfg.AccessTokenSecret))
	if err != nil {
		return nil, fmt.Errorf("import signing key: %w", err)
	}

	digester, err := hashing.NewDigester(cfg.RefreshTokenSecret)
	if err != nil {
		return nil, fmt.Errorf("refresh token secret: %w: %w", core.ErrConfiguration, err)
	}

	return &JWTManager{
		key:      key,
		digester: digester,
		config:   cfg,
		now:      time.Now,
	}, nil
}

func (m *JWTManager) AccessTokenTTL() time.Duration {
	return m.config.AccessTokenTTL()
}

// AccessClaims is the identity snapshot embedded in an access token.
type AccessClaims struct {
	UserID      string
	Username    string
	Role        string
	Permissions []string
	SessionID   string
}

func (m *JWTManager) CreateAccessToken(
	claims AccessClaims,
) (string, time.Time, error) {
	now := m.now().Truncate(time.Second)
	expiresAt := now.Add(m.config.AccessTokenTTL())

	perms := claims.Permissions
	if perms == nil {
		perms = []string{}
	}

	builder := jwt.NewBuilder().
		JwtID(uuid.New().String()).
		Issuer(m.config.Issuer).
		Audience([]string{m.config.Audience}).
		Subject(claims.UserID).
		IssuedAt(now).
		NotBefore(now).
		Expiration(expiresAt).
		Claim("username", claims.Username).
		Claim("role", claims.Role).
		Claim("permissions", perms).
		Claim("type", accessTokenType)

	if claims.SessionID != "" {
		builder = builder.Claim("sid", claims.SessionID)
	}

	token, err := builder.Build()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), m.key))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return string(signed), expiresAt, nil
}

// VerifyAccessToken checks signature, issuer, audience, validity window and
// token type without touching any store. Every failure wraps
// core.ErrTokenInvalid; expiry additionally wraps core.ErrTokenExpired.
func (m *JWTManager) VerifyAccessToken(
	_ context.Context,
	tokenString string,
) (*middleware.TokenPayload, error) {
	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.HS256(), m.key),
		jwt.WithValidate(false),
	)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenInvalid)
	}

	now := m.now()

	expiresAt, ok := token.Expiration()
	if !ok {
		return nil, invalid("missing exp")
	}
	if !now.Before(expiresAt) {
		return nil, fmt.Errorf("verify token: %w: %w", core.ErrTokenInvalid, core.ErrTokenExpired)
	}

	if nbf, ok := token.NotBefore(); ok && now.Before(nbf) {
		return nil, invalid("not yet valid")
	}

	if iss, ok := token.Issuer(); !ok || iss != m.config.Issuer {
		return nil, invalid("issuer mismatch")
	}

	if aud, ok := token.Audience(); !ok || !slices.Contains(aud, m.config.Audience) {
		return nil, invalid("audience mismatch")
	}

	var tokenType string
	if err := token.Get("type", &tokenType); err != nil || tokenType != accessTokenType {
		return nil, invalid("wrong token type")
	}

	subject, ok := token.Subject()
	if !ok || subject == "" {
		return nil, invalid("missing subject")
	}

	payload := &middleware.TokenPayload{
		UserID:    subject,
		Issuer:    m.config.Issuer,
		Audience:  m.config.Audience,
		ExpiresAt: expiresAt,
	}

	if iat, ok := token.IssuedAt(); ok {
		payload.IssuedAt = iat
	}
	if jti, ok := token.JwtID(); ok {
		payload.TokenID = jti
	}

	if err := token.Get("username", &payload.Username); err != nil {
		return nil, invalid("missing username")
	}
	if err := token.Get("role", &payload.Role); err != nil {
		return nil, invalid("missing role")
	}

	var rawPerms []any
	if err := token.Get("permissions", &rawPerms); err != nil {
		return nil, invalid("missing permissions")
	}
	payload.Permissions = make([]string, 0, len(rawPerms))
	for _, p := range rawPerms {
		s, ok := p.(string)
		if !ok {
			return nil, invalid("malformed permissions")
		}
		payload.Permissions = append(payload.Permissions, s)
	}

	//nolint:errcheck // sid is optional
	_ = token.Get("sid", &payload.SessionID)

	return payload, nil
}

func invalid(reason string) error {
	return fmt.Errorf("verify token: %s: %w", reason, core.ErrTokenInvalid)
}

type RefreshTokenData struct {
	Token     string
	Digest    string
	ExpiresAt time.Time
	FamilyID  string
}

// CreateRefreshToken mints a new opaque secret. An empty familyID starts a
// new session family.
func (m *JWTManager) CreateRefreshToken(familyID string) (*RefreshTokenData, error) {
	token, err := core.GenerateSecureToken(m.config.RefreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	if familyID == "" {
		familyID = uuid.New().String()
	}

	return &RefreshTokenData{
		Token:     token,
		Digest:    m.digester.Digest(token),
		ExpiresAt: m.now().Add(m.config.RefreshTokenTTL()),
		FamilyID:  familyID,
	}, nil
}

func (m *JWTManager) DigestRefreshToken(token string) string {
	return m.digester.Digest(token)
}
