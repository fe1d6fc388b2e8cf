// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/templates/erp-backend/internal/core"
	"github.com/carterperez-dev/templates/erp-backend/internal/hashing"
	"github.com/carterperez-dev/templates/erp-backend/internal/metrics"
	"github.com/carterperez-dev/templates/erp-backend/internal/middleware"
	"github.com/carterperez-dev/templates/erp-backend/internal/password"
)

const tracerName = "erp-backend/auth"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenReuse         = errors.New("token reuse detected")
	ErrEmailExists        = errors.New("username or email already exists")
	ErrAccountDisabled    = errors.New("account disabled")
)

type UserInfo struct {
	ID                 string
	Username           string
	Email              string
	PasswordHash       string
	Role               string
	IsActive           bool
	MustChangePassword bool
	CreatedAt          time.Time
}

type UserProvider interface {
	GetByUsername(ctx context.Context, username string) (*UserInfo, error)
	GetByID(ctx context.Context, id string) (*UserInfo, error)
	Create(ctx context.Context, username, email, passwordHash string) (*UserInfo, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string, mustChange bool) error
}

type PasswordHasher interface {
	Hash(ctx context.Context, secret string) (string, error)
	Verify(ctx context.Context, secret, digest string) (hashing.VerifyResult, error)
	VerifyDummy(ctx context.Context, secret string) error
}

type PasswordPolicy interface {
	ValidateComplexity(pw string) error
	ChangePassword(ctx context.Context, userID, current, next, currentHash string) (string, error)
	Record(ctx context.Context, userID, hash string) error
	GenerateTemporaryPassword() (string, error)
}

type PermissionSource interface {
	ForRole(ctx context.Context, role string) ([]string, error)
}

type ServiceDeps struct {
	Repo         Repository
	JWT          *JWTManager
	Users        UserProvider
	Hasher       PasswordHasher
	Policy       PasswordPolicy
	Permissions  PermissionSource
	Metrics      metrics.Recorder
	StoreTimeout time.Duration
	Logger       *slog.Logger
}

type Service struct {
	repo         Repository
	jwt          *JWTManager
	users        UserProvider
	hasher       PasswordHasher
	policy       PasswordPolicy
	perms        PermissionSource
	metrics      metrics.Recorder
	storeTimeout time.Duration
	logger       *slog.Logger
}

func NewService(deps ServiceDeps) *Service {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoop()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Service{
		repo:         deps.Repo,
		jwt:          deps.JWT,
		users:        deps.Users,
		hasher:       deps.Hasher,
		policy:       deps.Policy,
		perms:        deps.Permissions,
		metrics:      deps.Metrics,
		storeTimeout: deps.StoreTimeout,
		logger:       deps.Logger,
	}
}

func (s *Service) Login(
	ctx context.Context,
	req LoginRequest,
	meta ClientMeta,
) (resp *AuthResponse, err error) {
	ctx, done := s.begin(ctx, "login")
	defer func() { done(err) }()

	user, err := s.getUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			if dummyErr := s.hasher.VerifyDummy(ctx, req.Password); dummyErr != nil {
				return nil, fmt.Errorf("login: %w", dummyErr)
			}
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	res, err := s.hasher.Verify(ctx, req.Password, user.PasswordHash)
	if err != nil && !errors.Is(err, hashing.ErrUnrecognizedDigest) {
		return nil, fmt.Errorf("verify password: %w", err)
	}

	if !res.Match || !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	if res.NeedsRehash {
		s.upgradeHash(ctx, user, req.Password)
	}

	return s.createTokenPair(ctx, user, meta)
}

func (s *Service) Register(
	ctx context.Context,
	req RegisterRequest,
	meta ClientMeta,
) (resp *AuthResponse, err error) {
	ctx, done := s.begin(ctx, "register")
	defer func() { done(err) }()

	if err := s.policy.ValidateComplexity(req.Password); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	storeCtx, cancel := s.storeCtx(ctx)
	user, err := s.users.Create(storeCtx, req.Username, req.Email, passwordHash)
	cancel()
	if err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, ErrEmailExists
		}
		return nil, core.StoreError("create user", err)
	}

	if err := s.policy.Record(ctx, user.ID, passwordHash); err != nil {
		return nil, err
	}

	return s.createTokenPair(ctx, user, meta)
}

// Refresh exchanges a refresh secret for a new pair. The presented record is
// revoked and its successor inserted in one transaction, so concurrent
// presentations of the same secret have exactly one winner. Presenting a
// secret that exists but can no longer be rotated revokes its whole family.
func (s *Service) Refresh(
	ctx context.Context,
	rawToken string,
	meta ClientMeta,
) (resp *AuthResponse, err error) {
	ctx, done := s.begin(ctx, "refresh")
	defer func() { done(err) }()

	digest := s.jwt.DigestRefreshToken(rawToken)

	nextData, err := s.jwt.CreateRefreshToken("")
	if err != nil {
		return nil, err
	}

	next := &RefreshToken{
		ID:          uuid.New().String(),
		TokenDigest: nextData.Digest,
		ExpiresAt:   nextData.ExpiresAt,
		UserAgent:   meta.UserAgent,
		IPAddress:   meta.IPAddress,
	}

	storeCtx, cancel := s.storeCtx(ctx)
	prior, err := s.repo.Rotate(storeCtx, digest, next)
	cancel()
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, s.handleFailedRotation(ctx, digest)
		}
		return nil, core.StoreError("rotate", err)
	}

	user, err := s.getUserByID(ctx, prior.UserID)
	if err != nil {
		return nil, err
	}

	if !user.IsActive {
		if _, revokeErr := s.revokeFamily(ctx, prior.FamilyID); revokeErr != nil {
			return nil, revokeErr
		}
		return nil, fmt.Errorf("refresh: %w: %w", ErrAccountDisabled, core.ErrTokenInvalid)
	}

	return s.buildResponse(ctx, user, nextData.Token, next)
}

func (s *Service) handleFailedRotation(ctx context.Context, digest string) error {
	storeCtx, cancel := s.storeCtx(ctx)
	record, err := s.repo.FindByDigest(storeCtx, digest)
	cancel()
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("refresh: %w", core.ErrTokenInvalid)
		}
		return core.StoreError("find refresh token", err)
	}

	revoked, err := s.revokeFamily(ctx, record.FamilyID)
	if err != nil {
		return err
	}

	s.metrics.RecordReuseDetected(ctx)
	s.logger.WarnContext(ctx, "refresh token reuse detected, family revoked",
		"user_id", record.UserID,
		"family_id", record.FamilyID,
		"revoked", revoked,
		"token_was_revoked", record.IsRevoked,
	)

	return fmt.Errorf("refresh: %w", ErrTokenReuse)
}

// Logout revokes the presented refresh secret. Unknown or already revoked
// secrets are not an error.
func (s *Service) Logout(ctx context.Context, rawToken string) (err error) {
	ctx, done := s.begin(ctx, "logout")
	defer func() { done(err) }()

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	if _, err := s.repo.RevokeByDigest(storeCtx, s.jwt.DigestRefreshToken(rawToken)); err != nil {
		return core.StoreError("logout", err)
	}

	return nil
}

func (s *Service) LogoutAll(ctx context.Context, userID string) (n int64, err error) {
	ctx, done := s.begin(ctx, "logout_all")
	defer func() { done(err) }()

	return s.revokeAll(ctx, userID)
}

func (s *Service) ChangePassword(
	ctx context.Context,
	userID, currentPassword, newPassword string,
) (err error) {
	ctx, done := s.begin(ctx, "change_password")
	defer func() { done(err) }()

	user, err := s.getUserByID(ctx, userID)
	if err != nil {
		return err
	}

	newHash, err := s.policy.ChangePassword(ctx, userID, currentPassword, newPassword, user.PasswordHash)
	if err != nil {
		return err
	}

	storeCtx, cancel := s.storeCtx(ctx)
	err = s.users.UpdatePassword(storeCtx, userID, newHash, false)
	cancel()
	if err != nil {
		return core.StoreError("update password", err)
	}

	if err := s.policy.Record(ctx, userID, newHash); err != nil {
		return err
	}

	if _, err := s.revokeAll(ctx, userID); err != nil {
		return err
	}

	return nil
}

// ResetPassword replaces the user's password with a generated one, flags the
// account for a forced change and ends every session.
func (s *Service) ResetPassword(ctx context.Context, userID string) (temp string, err error) {
	ctx, done := s.begin(ctx, "reset_password")
	defer func() { done(err) }()

	if _, err := s.getUserByID(ctx, userID); err != nil {
		return "", err
	}

	temp, err = s.policy.GenerateTemporaryPassword()
	if err != nil {
		return "", err
	}

	hash, err := s.hasher.Hash(ctx, temp)
	if err != nil {
		return "", fmt.Errorf("hash temporary password: %w", err)
	}

	storeCtx, cancel := s.storeCtx(ctx)
	err = s.users.UpdatePassword(storeCtx, userID, hash, true)
	cancel()
	if err != nil {
		return "", core.StoreError("reset password", err)
	}

	if err := s.policy.Record(ctx, userID, hash); err != nil {
		return "", err
	}

	if _, err := s.revokeAll(ctx, userID); err != nil {
		return "", err
	}

	return temp, nil
}

func (s *Service) VerifyAccessToken(
	ctx context.Context,
	token string,
) (*middleware.TokenPayload, error) {
	return s.jwt.VerifyAccessToken(ctx, token)
}

func (s *Service) GetActiveSessions(
	ctx context.Context,
	userID string,
) ([]SessionInfo, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	tokens, err := s.repo.GetActiveSessionsForUser(storeCtx, userID)
	if err != nil {
		return nil, core.StoreError("get sessions", err)
	}

	sessions := make([]SessionInfo, 0, len(tokens))
	for _, t := range tokens {
		sessions = append(sessions, SessionInfo{
			ID:        t.ID,
			FamilyID:  t.FamilyID,
			UserAgent: t.UserAgent,
			IPAddress: t.IPAddress,
			CreatedAt: t.CreatedAt,
			ExpiresAt: t.ExpiresAt,
		})
	}

	return sessions, nil
}

// RevokeSession ends the session that sessionID belongs to, including any
// later rotations of it.
func (s *Service) RevokeSession(
	ctx context.Context,
	userID, sessionID string,
) error {
	storeCtx, cancel := s.storeCtx(ctx)
	token, err := s.repo.FindByID(storeCtx, sessionID)
	cancel()
	if err != nil {
		return core.StoreError("find session", err)
	}

	if token.UserID != userID {
		return fmt.Errorf("revoke session: %w", core.ErrForbidden)
	}

	_, err = s.revokeFamily(ctx, token.FamilyID)
	return err
}

func (s *Service) GetCurrentUser(
	ctx context.Context,
	userID string,
) (*UserResponse, error) {
	user, err := s.getUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := toUserResponse(user)
	return &resp, nil
}

func (s *Service) CountActiveSessions(ctx context.Context) (int64, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	n, err := s.repo.CountActive(storeCtx)
	if err != nil {
		return 0, core.StoreError("count sessions", err)
	}
	return n, nil
}

func (s *Service) createTokenPair(
	ctx context.Context,
	user *UserInfo,
	meta ClientMeta,
) (*AuthResponse, error) {
	refreshData, err := s.jwt.CreateRefreshToken("")
	if err != nil {
		return nil, err
	}

	record := &RefreshToken{
		ID:          uuid.New().String(),
		UserID:      user.ID,
		TokenDigest: refreshData.Digest,
		FamilyID:    refreshData.FamilyID,
		ExpiresAt:   refreshData.ExpiresAt,
		UserAgent:   meta.UserAgent,
		IPAddress:   meta.IPAddress,
	}

	storeCtx, cancel := s.storeCtx(ctx)
	err = s.repo.Create(storeCtx, record)
	cancel()
	if err != nil {
		return nil, core.StoreError("store refresh token", err)
	}

	return s.buildResponse(ctx, user, refreshData.Token, record)
}

func (s *Service) buildResponse(
	ctx context.Context,
	user *UserInfo,
	rawRefresh string,
	record *RefreshToken,
) (*AuthResponse, error) {
	perms, err := s.perms.ForRole(ctx, user.Role)
	if err != nil {
		return nil, core.StoreError("load permissions", err)
	}

	accessToken, expiresAt, err := s.jwt.CreateAccessToken(AccessClaims{
		UserID:      user.ID,
		Username:    user.Username,
		Role:        user.Role,
		Permissions: perms,
		SessionID:   record.FamilyID,
	})
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}

	return &AuthResponse{
		User: toUserResponse(user),
		Tokens: TokenResponse{
			AccessToken:      accessToken,
			RefreshToken:     rawRefresh,
			TokenType:        "Bearer",
			ExpiresIn:        int(s.jwt.AccessTokenTTL() / time.Second),
			ExpiresAt:        expiresAt,
			RefreshExpiresAt: record.ExpiresAt,
		},
	}, nil
}

func (s *Service) upgradeHash(ctx context.Context, user *UserInfo, secret string) {
	newHash, err := s.hasher.Hash(ctx, secret)
	if err != nil {
		s.logger.WarnContext(ctx, "password rehash failed", "user_id", user.ID, "error", err)
		return
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	if err := s.users.UpdatePassword(storeCtx, user.ID, newHash, user.MustChangePassword); err != nil {
		s.logger.WarnContext(ctx, "password rehash not stored", "user_id", user.ID, "error", err)
	}
}

func (s *Service) revokeFamily(ctx context.Context, familyID string) (int64, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	n, err := s.repo.RevokeByFamilyID(storeCtx, familyID)
	if err != nil {
		return 0, core.StoreError("revoke family", err)
	}
	return n, nil
}

func (s *Service) revokeAll(ctx context.Context, userID string) (int64, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	n, err := s.repo.RevokeAllForUser(storeCtx, userID)
	if err != nil {
		return 0, core.StoreError("revoke all tokens", err)
	}
	return n, nil
}

func (s *Service) getUserByID(ctx context.Context, id string) (*UserInfo, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	user, err := s.users.GetByID(storeCtx, id)
	if err != nil {
		return nil, core.StoreError("get user", err)
	}
	return user, nil
}

func (s *Service) getUserByUsername(ctx context.Context, username string) (*UserInfo, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	user, err := s.users.GetByUsername(storeCtx, username)
	if err != nil {
		return nil, core.StoreError("get user", err)
	}
	return user, nil
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

// begin opens a span and returns a completion func that records the
// outcome as a metric. Client-caused failures are not span errors.
func (s *Service) begin(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := core.StartSpan(ctx, tracerName, "auth."+op, attribute.String("auth.operation", op))

	return ctx, func(err error) {
		status := metrics.StatusSuccess
		switch {
		case err == nil:
		case isClientError(err):
			status = metrics.StatusFailure
		default:
			status = metrics.StatusError
			core.SetSpanError(ctx, err)
		}

		span.SetAttributes(attribute.String("auth.status", status))
		span.End()
		s.metrics.RecordOperation(ctx, op, status, time.Since(start))
	}
}

func isClientError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrTokenReuse) ||
		errors.Is(err, ErrEmailExists) ||
		errors.Is(err, core.ErrTokenInvalid) ||
		errors.Is(err, core.ErrNotFound) ||
		errors.Is(err, core.ErrForbidden) ||
		errors.Is(err, password.ErrComplexity) ||
		errors.Is(err, password.ErrPasswordReused) ||
		errors.Is(err, password.ErrInvalidCredentials)
}

func toUserResponse(u *UserInfo) UserResponse {
	return UserResponse{
		ID:                 u.ID,
		Username:           u.Username,
		Email:              u.Email,
		Role:               u.Role,
		MustChangePassword: u.MustChangePassword,
		CreatedAt:          u.CreatedAt,
	}
}
