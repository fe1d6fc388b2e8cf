// AngelaMos | 2026
// repository.go

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/carterperez-dev/templates/erp-backend/internal/core"
)

type Repository interface {
	Create(ctx context.Context, token *RefreshToken) error
	// Rotate revokes the active record matching digest and inserts next in
	// the same family, atomically. It returns the revoked record, or
	// core.ErrNotFound when no active record matched.
	Rotate(ctx context.Context, digest string, next *RefreshToken) (*RefreshToken, error)
	FindByDigest(ctx context.Context, digest string) (*RefreshToken, error)
	FindByID(ctx context.Context, id string) (*RefreshToken, error)
	RevokeByDigest(ctx context.Context, digest string) (bool, error)
	RevokeByFamilyID(ctx context.Context, familyID string) (int64, error)
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
	GetActiveSessionsForUser(ctx context.Context, userID string) ([]RefreshToken, error)
	CountActive(ctx context.Context) (int64, error)
	DeleteStale(ctx context.Context, now, revokedBefore time.Time) (int64, error)
	CountStale(ctx context.Context, now, revokedBefore time.Time) (int64, error)
}

type Store interface {
	core.DBTX
	core.TxBeginner
}

type repository struct {
	db Store
}

func NewRepository(db Store) Repository {
	return &repository{db: db}
}

const tokenColumns = `
	id, user_id, token_digest, family_id, expires_at, is_revoked,
	revoked_at, user_agent, ip_address, created_at`

func (r *repository) Create(ctx context.Context, token *RefreshToken) error {
	return insertToken(ctx, r.db, token)
}

func insertToken(ctx context.Context, db core.DBTX, token *RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (
			id, user_id, token_digest, family_id, expires_at,
			user_agent, ip_address
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
		RETURNING created_at`

	err := db.GetContext(ctx, &token.CreatedAt, query,
		token.ID,
		token.UserID,
		token.TokenDigest,
		token.FamilyID,
		token.ExpiresAt,
		token.UserAgent,
		token.IPAddress,
	)
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}

	return nil
}

func (r *repository) Rotate(
	ctx context.Context,
	digest string,
	next *RefreshToken,
) (*RefreshToken, error) {
	query := `
		UPDATE refresh_tokens
		SET is_revoked = true, revoked_at = NOW()
		WHERE token_digest = $1
			AND is_revoked = false
			AND expires_at > NOW()
		RETURNING` + tokenColumns

	var prior RefreshToken

	err := core.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &prior, query, digest); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("rotate refresh token: %w", core.ErrNotFound)
			}
			return fmt.Errorf("rotate refresh token: %w", err)
		}

		next.UserID = prior.UserID
		next.FamilyID = prior.FamilyID

		return insertToken(ctx, tx, next)
	})
	if err != nil {
		return nil, err
	}

	return &prior, nil
}

func (r *repository) FindByDigest(
	ctx context.Context,
	digest string,
) (*RefreshToken, error) {
	query := `SELECT` + tokenColumns + `
		FROM refresh_tokens
		WHERE token_digest = $1`

	var token RefreshToken
	err := r.db.GetContext(ctx, &token, query, digest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find refresh token: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}

	return &token, nil
}

func (r *repository) FindByID(
	ctx context.Context,
	id string,
) (*RefreshToken, error) {
	query := `SELECT` + tokenColumns + `
		FROM refresh_tokens
		WHERE id = $1`

	var token RefreshToken
	err := r.db.GetContext(ctx, &token, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find refresh token: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}

	return &token, nil
}

func (r *repository) RevokeByDigest(
	ctx context.Context,
	digest string,
) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET is_revoked = true, revoked_at = NOW()
		WHERE token_digest = $1 AND is_revoked = false`

	result, err := r.db.ExecContext(ctx, query, digest)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}

	return rows > 0, nil
}

func (r *repository) RevokeByFamilyID(
	ctx context.Context,
	familyID string,
) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET is_revoked = true, revoked_at = NOW()
		WHERE family_id = $1 AND is_revoked = false`

	return r.execCount(ctx, "revoke token family", query, familyID)
}

func (r *repository) RevokeAllForUser(
	ctx context.Context,
	userID string,
) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET is_revoked = true, revoked_at = NOW()
		WHERE user_id = $1 AND is_revoked = false`

	return r.execCount(ctx, "revoke all user tokens", query, userID)
}

func (r *repository) GetActiveSessionsForUser(
	ctx context.Context,
	userID string,
) ([]RefreshToken, error) {
	query := `SELECT` + tokenColumns + `
		FROM refresh_tokens
		WHERE user_id = $1
			AND is_revoked = false
			AND expires_at > NOW()
		ORDER BY created_at DESC`

	var tokens []RefreshToken
	if err := r.db.SelectContext(ctx, &tokens, query, userID); err != nil {
		return nil, fmt.Errorf("get active sessions: %w", err)
	}

	return tokens, nil
}

func (r *repository) CountActive(ctx context.Context) (int64, error) {
	query := `
		SELECT COUNT(*) FROM refresh_tokens
		WHERE is_revoked = false AND expires_at > NOW()`

	var n int64
	if err := r.db.GetContext(ctx, &n, query); err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}

	return n, nil
}

// DeleteStale removes records that expired before now or were revoked
// before revokedBefore. Both predicates are evaluated by the database.
func (r *repository) DeleteStale(
	ctx context.Context,
	now, revokedBefore time.Time,
) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1
			OR (revoked_at IS NOT NULL AND revoked_at < $2)`

	return r.execCount(ctx, "delete stale tokens", query, now, revokedBefore)
}

func (r *repository) CountStale(
	ctx context.Context,
	now, revokedBefore time.Time,
) (int64, error) {
	query := `
		SELECT COUNT(*) FROM refresh_tokens
		WHERE expires_at < $1
			OR (revoked_at IS NOT NULL AND revoked_at < $2)`

	var n int64
	if err := r.db.GetContext(ctx, &n, query, now, revokedBefore); err != nil {
		return 0, fmt.Errorf("count stale tokens: %w", err)
	}

	return n, nil
}

func (r *repository) execCount(
	ctx context.Context,
	op, query string,
	args ...any,
) (int64, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return rows, nil
}
