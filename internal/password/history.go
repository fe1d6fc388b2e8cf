// AngelaMos | 2026
// history.go

package password

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/templates/erp-backend/internal/core"
)

type HistoryEntry struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

type HistoryRepository interface {
	Append(ctx context.Context, userID, passwordHash string) error
	Recent(ctx context.Context, userID string, limit int) ([]HistoryEntry, error)
	TrimToLimit(ctx context.Context, userID string, limit int) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type historyRepository struct {
	db core.DBTX
}

func NewHistoryRepository(db core.DBTX) HistoryRepository {
	return &historyRepository{db: db}
}

func (r *historyRepository) Append(
	ctx context.Context,
	userID, passwordHash string,
) error {
	query := `
		INSERT INTO password_history (id, user_id, password_hash)
		VALUES ($1, $2, $3)`

	_, err := r.db.ExecContext(ctx, query, uuid.New().String(), userID, passwordHash)
	if err != nil {
		return fmt.Errorf("append password history: %w", err)
	}

	return nil
}

func (r *historyRepository) Recent(
	ctx context.Context,
	userID string,
	limit int,
) ([]HistoryEntry, error) {
	query := `
		SELECT id, user_id, password_hash, created_at
		FROM password_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	var entries []HistoryEntry
	if err := r.db.SelectContext(ctx, &entries, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list password history: %w", err)
	}

	return entries, nil
}

func (r *historyRepository) TrimToLimit(
	ctx context.Context,
	userID string,
	limit int,
) (int64, error) {
	query := `
		DELETE FROM password_history
		WHERE user_id = $1
		  AND id NOT IN (
			SELECT id FROM password_history
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		  )`

	result, err := r.db.ExecContext(ctx, query, userID, limit)
	if err != nil {
		return 0, fmt.Errorf("trim password history: %w", err)
	}

	return result.RowsAffected()
}

func (r *historyRepository) DeleteOlderThan(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	query := `DELETE FROM password_history WHERE created_at < $1`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old password history: %w", err)
	}

	return result.RowsAffected()
}

func (r *historyRepository) CountOlderThan(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	query := `SELECT COUNT(*) FROM password_history WHERE created_at < $1`

	var n int64
	if err := r.db.GetContext(ctx, &n, query, cutoff); err != nil {
		return 0, fmt.Errorf("count old password history: %w", err)
	}

	return n, nil
}
