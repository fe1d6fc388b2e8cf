// AngelaMos | 2026
// fakes_test.go

package auth

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/erp-backend/internal/config"
	"github.com/carterperez-dev/templates/erp-backend/internal/core"
	"github.com/carterperez-dev/templates/erp-backend/internal/hashing"
	"github.com/carterperez-dev/templates/erp-backend/internal/password"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		AccessTokenSecret:      strings.Repeat("a", 32) + "-access",
		RefreshTokenSecret:     strings.Repeat("r", 32) + "-refresh",
		AccessTokenTTLSeconds:  7200,
		RefreshTokenTTLSeconds: 604800,
		RefreshTokenBytes:      64,
		Issuer:                 "erp-backend",
		Audience:               "erp-backend-api",
		StoreTimeout:           time.Second,
	}
}

// memoryRepo applies the same conditions as the SQL repository under a
// single mutex.
type memoryRepo struct {
	mu     sync.Mutex
	tokens map[string]*RefreshToken
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{tokens: make(map[string]*RefreshToken)}
}

func (m *memoryRepo) Create(_ context.Context, t *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.CreatedAt = time.Now()
	cp := *t
	m.tokens[t.ID] = &cp
	return nil
}

func (m *memoryRepo) byDigest(digest string) *RefreshToken {
	for _, t := range m.tokens {
		if t.TokenDigest == digest {
			return t
		}
	}
	return nil
}

func (m *memoryRepo) Rotate(ctx context.Context, digest string, next *RefreshToken) (*RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	prior := m.byDigest(digest)
	if prior == nil || !prior.IsRotatable(now) {
		return nil, fmt.Errorf("rotate refresh token: %w", core.ErrNotFound)
	}

	prior.revoke(now)
	next.UserID = prior.UserID
	next.FamilyID = prior.FamilyID
	next.CreatedAt = now
	cp := *next
	m.tokens[next.ID] = &cp

	out := *prior
	return &out, nil
}

func (m *memoryRepo) FindByDigest(_ context.Context, digest string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.byDigest(digest)
	if t == nil {
		return nil, fmt.Errorf("find refresh token: %w", core.ErrNotFound)
	}
	out := *t
	return &out, nil
}

func (m *memoryRepo) FindByID(_ context.Context, id string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return nil, fmt.Errorf("find refresh token: %w", core.ErrNotFound)
	}
	out := *t
	return &out, nil
}

func (m *memoryRepo) RevokeByDigest(_ context.Context, digest string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.byDigest(digest)
	if t == nil || t.IsRevoked {
		return false, nil
	}
	t.revoke(time.Now())
	return true, nil
}

func (m *memoryRepo) revokeWhere(match func(*RefreshToken) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now()
	for _, t := range m.tokens {
		if !t.IsRevoked && match(t) {
			t.revoke(now)
			n++
		}
	}
	return n
}

func (m *memoryRepo) RevokeByFamilyID(_ context.Context, familyID string) (int64, error) {
	return m.revokeWhere(func(t *RefreshToken) bool { return t.FamilyID == familyID }), nil
}

func (m *memoryRepo) RevokeAllForUser(_ context.Context, userID string) (int64, error) {
	return m.revokeWhere(func(t *RefreshToken) bool { return t.UserID == userID }), nil
}

func (m *memoryRepo) GetActiveSessionsForUser(_ context.Context, userID string) ([]RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []RefreshToken
	for _, t := range m.tokens {
		if t.UserID == userID && t.IsRotatable(now) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memoryRepo) CountActive(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now()
	for _, t := range m.tokens {
		if t.IsRotatable(now) {
			n++
		}
	}
	return n, nil
}

func (m *memoryRepo) DeleteStale(_ context.Context, now, revokedBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tokens {
		if t.IsStale(now, revokedBefore) {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

func (m *memoryRepo) CountStale(_ context.Context, now, revokedBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.tokens {
		if t.IsStale(now, revokedBefore) {
			n++
		}
	}
	return n, nil
}

func (m *memoryRepo) families() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, t := range m.tokens {
		if !slices.Contains(out, t.FamilyID) {
			out = append(out, t.FamilyID)
		}
	}
	return out
}

// slowRotateRepo never completes a rotation before the caller's deadline.
type slowRotateRepo struct {
	*memoryRepo
}

func (s slowRotateRepo) Rotate(ctx context.Context, _ string, _ *RefreshToken) (*RefreshToken, error) {
	<-ctx.Done()
	return nil, fmt.Errorf("rotate refresh token: %w", ctx.Err())
}

type memoryUsers struct {
	mu         sync.Mutex
	users      map[string]*UserInfo
	failUpdate error
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: make(map[string]*UserInfo)}
}

func (m *memoryUsers) GetByUsername(_ context.Context, username string) (*UserInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
}

func (m *memoryUsers) GetByID(_ context.Context, id string) (*UserInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *memoryUsers) Create(_ context.Context, username, email, hash string) (*UserInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) || strings.EqualFold(u.Email, email) {
			return nil, fmt.Errorf("create user: %w", core.ErrDuplicateKey)
		}
	}
	u := &UserInfo{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         "requester",
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memoryUsers) UpdatePassword(_ context.Context, userID, hash string, mustChange bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate != nil {
		return fmt.Errorf("update password: %w", m.failUpdate)
	}
	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("update password: %w", core.ErrNotFound)
	}
	u.PasswordHash = hash
	u.MustChangePassword = mustChange
	return nil
}

func (m *memoryUsers) get(id string) UserInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.users[id]
}

type memoryHistory struct {
	mu      sync.Mutex
	seq     int
	entries []password.HistoryEntry
}

func (m *memoryHistory) Append(_ context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.entries = append(m.entries, password.HistoryEntry{
		ID:           fmt.Sprint(m.seq),
		UserID:       userID,
		PasswordHash: hash,
		CreatedAt:    time.Unix(int64(m.seq), 0),
	})
	return nil
}

func (m *memoryHistory) count(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.UserID == userID {
			n++
		}
	}
	return n
}

func (m *memoryHistory) Recent(_ context.Context, userID string, limit int) ([]password.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []password.HistoryEntry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].UserID == userID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *memoryHistory) TrimToLimit(context.Context, string, int) (int64, error) {
	return 0, nil
}

func (m *memoryHistory) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (m *memoryHistory) CountOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type staticPermissions map[string][]string

func (s staticPermissions) ForRole(_ context.Context, role string) ([]string, error) {
	return slices.Clone(s[role]), nil
}

type testEnv struct {
	svc     *Service
	repo    *memoryRepo
	users   *memoryUsers
	history *memoryHistory
	pool    *hashing.Pool
	jwt     *JWTManager
}

func newTestEnv(t *testing.T, repo Repository) *testEnv {
	t.Helper()

	jwtManager, err := NewJWTManager(testAuthConfig())
	require.NoError(t, err)

	bcryptLegacy, err := hashing.NewBcrypt(4)
	require.NoError(t, err)

	pool, err := hashing.NewPool(hashing.NewSHA256(), []hashing.Strategy{bcryptLegacy}, 4)
	require.NoError(t, err)

	users := newMemoryUsers()
	history := &memoryHistory{}
	policy := password.NewEngine(
		config.PasswordConfig{MinLength: 12, HistoryLimit: 5},
		time.Second,
		pool,
		history,
	)

	mem, _ := repo.(*memoryRepo)
	if slow, ok := repo.(slowRotateRepo); ok {
		mem = slow.memoryRepo
	}

	svc := NewService(ServiceDeps{
		Repo:   repo,
		JWT:    jwtManager,
		Users:  users,
		Hasher: pool,
		Policy: policy,
		Permissions: staticPermissions{
			"requester": {"purchase_requests:create"},
			"admin":     {"users:manage", "maintenance:run"},
		},
		StoreTimeout: 50 * time.Millisecond,
	})

	return &testEnv{svc: svc, repo: mem, users: users, history: history, pool: pool, jwt: jwtManager}
}

func (e *testEnv) seedUser(t *testing.T, username, pw string) *UserInfo {
	t.Helper()
	hash, err := e.pool.Hash(context.Background(), pw)
	require.NoError(t, err)
	u, err := e.users.Create(context.Background(), username, username+"@erp.test", hash)
	require.NoError(t, err)
	return u
}
