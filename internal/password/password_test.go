// AngelaMos | 2026
// password_test.go

package password

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/carterperez-dev/templates/erp-backend/internal/config"
	"github.com/carterperez-dev/templates/erp-backend/internal/core"
	"github.com/carterperez-dev/templates/erp-backend/internal/hashing"
)

type memoryHistory struct {
	mu      sync.Mutex
	clock   time.Time
	entries []HistoryEntry
	fail    error
}

func (m *memoryHistory) Append(_ context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.clock = m.clock.Add(time.Second)
	m.entries = append(m.entries, HistoryEntry{
		ID:           fmt.Sprintf("h-%d", len(m.entries)),
		UserID:       userID,
		PasswordHash: hash,
		CreatedAt:    m.clock,
	})
	return nil
}

func (m *memoryHistory) userEntries(userID string) []HistoryEntry {
	var out []HistoryEntry
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b HistoryEntry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

func (m *memoryHistory) Recent(_ context.Context, userID string, limit int) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	out := m.userEntries(userID)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryHistory) TrimToLimit(_ context.Context, userID string, limit int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keep := m.userEntries(userID)
	if len(keep) <= limit {
		return 0, nil
	}
	drop := keep[limit:]
	var removed int64
	m.entries = slices.DeleteFunc(m.entries, func(e HistoryEntry) bool {
		if slices.ContainsFunc(drop, func(d HistoryEntry) bool { return d.ID == e.ID }) {
			removed++
			return true
		}
		return false
	})
	return removed, nil
}

func (m *memoryHistory) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	m.entries = slices.DeleteFunc(m.entries, func(e HistoryEntry) bool {
		if e.CreatedAt.Before(cutoff) {
			removed++
			return true
		}
		return false
	})
	return removed, nil
}

func (m *memoryHistory) CountOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, e := range m.entries {
		if e.CreatedAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

func newTestEngine(t *testing.T) (*Engine, *memoryHistory, *hashing.Pool) {
	t.Helper()

	pool, err := hashing.NewPool(hashing.NewSHA256(), nil, 2)
	require.NoError(t, err)

	hist := &memoryHistory{clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cfg := config.PasswordConfig{MinLength: 12, HistoryLimit: 5}

	return NewEngine(cfg, time.Second, pool, hist), hist, pool
}

func TestValidateComplexity(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	tests := []struct {
		name     string
		password string
		wantErr  bool
		failures int
	}{
		{"Success_Valid", "Password123!", false, 0},
		{"Success_BacktickSymbol", "Password123`", false, 0},
		{"Error_NoUppercase", "alllowercase1!", true, 1},
		{"Error_TooShort", "Pass123!", true, 1},
		{"Error_NoSymbol", "Password1234", true, 1},
		{"Error_NoDigit", "Password!!!!", true, 1},
		{"Error_Empty", "", true, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.ValidateComplexity(tt.password)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrComplexity)

			var cerr *ComplexityError
			require.True(t, errors.As(err, &cerr))
			assert.Len(t, cerr.Failures, tt.failures)
		})
	}
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_HistoryWindowOfFive", func(t *testing.T) {
		engine, hist, pool := newTestEngine(t)

		passwords := []string{
			"Initial-Pass-00",
			"Rotated-Pass-01",
			"Rotated-Pass-02",
			"Rotated-Pass-03",
			"Rotated-Pass-04",
			"Rotated-Pass-05",
		}

		currentHash, err := pool.Hash(ctx, passwords[0])
		require.NoError(t, err)
		require.NoError(t, engine.Record(ctx, "u1", currentHash))

		for i := 1; i < len(passwords); i++ {
			currentHash, err = engine.ChangePassword(ctx, "u1", passwords[i-1], passwords[i], currentHash)
			require.NoError(t, err)
			require.NoError(t, engine.Record(ctx, "u1", currentHash))
		}

		recent, err := hist.Recent(ctx, "u1", 100)
		require.NoError(t, err)
		assert.Len(t, recent, 5)

		current := passwords[len(passwords)-1]
		for _, old := range passwords[2:5] {
			_, err := engine.ChangePassword(ctx, "u1", current, old, currentHash)
			assert.ErrorIs(t, err, ErrPasswordReused, old)
		}

		_, err = engine.ChangePassword(ctx, "u1", current, passwords[0], currentHash)
		assert.NoError(t, err)
	})

	t.Run("Success_HistoryLeftToCaller", func(t *testing.T) {
		engine, hist, pool := newTestEngine(t)

		hash, err := pool.Hash(ctx, "Initial-Pass-00")
		require.NoError(t, err)
		require.NoError(t, engine.Record(ctx, "u1", hash))

		_, err = engine.ChangePassword(ctx, "u1", "Initial-Pass-00", "Rotated-Pass-01", hash)
		require.NoError(t, err)
		assert.Len(t, hist.entries, 1)
	})

	t.Run("Error_WrongCurrent", func(t *testing.T) {
		engine, _, pool := newTestEngine(t)

		hash, err := pool.Hash(ctx, "Initial-Pass-00")
		require.NoError(t, err)

		_, err = engine.ChangePassword(ctx, "u1", "Wrong-Pass-000", "Rotated-Pass-01", hash)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("Error_WeakNewPassword", func(t *testing.T) {
		engine, hist, pool := newTestEngine(t)

		hash, err := pool.Hash(ctx, "Initial-Pass-00")
		require.NoError(t, err)

		_, err = engine.ChangePassword(ctx, "u1", "Initial-Pass-00", "weak", hash)
		assert.ErrorIs(t, err, ErrComplexity)
		assert.Empty(t, hist.entries)
	})

	t.Run("Error_SameAsCurrent", func(t *testing.T) {
		engine, _, pool := newTestEngine(t)

		hash, err := pool.Hash(ctx, "Initial-Pass-00")
		require.NoError(t, err)

		_, err = engine.ChangePassword(ctx, "u1", "Initial-Pass-00", "Initial-Pass-00", hash)
		assert.ErrorIs(t, err, ErrPasswordReused)
	})

	t.Run("Error_StoreFailure", func(t *testing.T) {
		engine, hist, pool := newTestEngine(t)
		hist.fail = context.DeadlineExceeded

		hash, err := pool.Hash(ctx, "Initial-Pass-00")
		require.NoError(t, err)

		_, err = engine.ChangePassword(ctx, "u1", "Initial-Pass-00", "Rotated-Pass-01", hash)
		assert.ErrorIs(t, err, core.ErrStoreTimeout)
	})
}

func TestBcryptSecretLimit(t *testing.T) {
	ctx := context.Background()

	bc, err := hashing.NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)
	pool, err := hashing.NewPool(bc, nil, 2)
	require.NoError(t, err)

	hist := &memoryHistory{clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	engine := NewEngine(config.PasswordConfig{MinLength: 12, HistoryLimit: 5}, time.Second, pool, hist)

	tooLong := "Aa1!" + strings.Repeat("x", 96)
	err = engine.ValidateComplexity(tooLong)
	require.ErrorIs(t, err, ErrComplexity)

	var cerr *ComplexityError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, []string{"must be at most 72 bytes"}, cerr.Failures)

	assert.NoError(t, engine.ValidateComplexity("Aa1!"+strings.Repeat("x", 68)))

	hash, err := pool.Hash(ctx, "Initial-Pass-00")
	require.NoError(t, err)

	_, err = engine.ChangePassword(ctx, "u1", "Initial-Pass-00", tooLong, hash)
	assert.ErrorIs(t, err, ErrComplexity)

	long := NewEngine(config.PasswordConfig{MinLength: 100, HistoryLimit: 5}, time.Second, pool, hist)
	pw, err := long.GenerateTemporaryPassword()
	require.NoError(t, err)
	assert.Len(t, pw, 72)
	_, err = pool.Hash(ctx, pw)
	assert.NoError(t, err)
}

func TestGenerateTemporaryPassword(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	seen := make(map[string]struct{})
	for range 50 {
		pw, err := engine.GenerateTemporaryPassword()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(pw), 16)
		assert.NoError(t, engine.ValidateComplexity(pw), pw)
		seen[pw] = struct{}{}
	}
	assert.Len(t, seen, 50)

	long := NewEngine(config.PasswordConfig{MinLength: 24, HistoryLimit: 5}, time.Second, nil, nil)
	pw, err := long.GenerateTemporaryPassword()
	require.NoError(t, err)
	assert.Len(t, pw, 24)
}

func TestPruneHistory(t *testing.T) {
	ctx := context.Background()
	engine, hist, _ := newTestEngine(t)

	require.NoError(t, engine.Record(ctx, "u1", "$sha256$aa$bb"))
	require.NoError(t, engine.Record(ctx, "u2", "$sha256$cc$dd"))

	cutoff := hist.clock
	require.NoError(t, engine.Record(ctx, "u3", "$sha256$ee$ff"))

	n, err := engine.CountPrunable(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = engine.PruneHistory(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, hist.entries, 2)

	n, err = engine.PruneHistory(ctx, cutoff)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHistoryRepository(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	repo := NewHistoryRepository(sqlx.NewDb(mockDB, "pgx"))
	ctx := context.Background()

	t.Run("Success_Append", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO password_history")).
			WithArgs(sqlmock.AnyArg(), "u1", "hash").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Append(ctx, "u1", "hash"))
	})

	t.Run("Success_Recent", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta("FROM password_history")).
			WithArgs("u1", 5).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "password_hash", "created_at"}).
				AddRow("h2", "u1", "hash-2", now).
				AddRow("h1", "u1", "hash-1", now.Add(-time.Hour)))

		entries, err := repo.Recent(ctx, "u1", 5)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "hash-2", entries[0].PasswordHash)
	})

	t.Run("Success_TrimToLimit", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM password_history")).
			WithArgs("u1", 5).
			WillReturnResult(sqlmock.NewResult(0, 2))

		n, err := repo.TrimToLimit(ctx, "u1", 5)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("Success_DeleteOlderThan", func(t *testing.T) {
		cutoff := time.Now().AddDate(-1, 0, 0)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM password_history WHERE created_at < $1")).
			WithArgs(cutoff).
			WillReturnResult(sqlmock.NewResult(0, 7))

		n, err := repo.DeleteOlderThan(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
	})

	t.Run("Error_AppendFails", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO password_history")).
			WillReturnError(errors.New("connection reset"))

		err := repo.Append(ctx, "u1", "hash")
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "append password history"))
	})

	require.NoError(t, mock.ExpectationsWereMet())
}
