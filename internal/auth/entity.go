// AngelaMos | 2026
// entity.go

package auth

import (
	"time"
)

// RefreshToken is the persisted half of a refresh credential. Only the
// keyed digest of the secret is stored.
type RefreshToken struct {
	ID          string     `db:"id"`
	UserID      string     `db:"user_id"`
	TokenDigest string     `db:"token_digest"`
	FamilyID    string     `db:"family_id"`
	ExpiresAt   time.Time  `db:"expires_at"`
	IsRevoked   bool       `db:"is_revoked"`
	RevokedAt   *time.Time `db:"revoked_at"`
	UserAgent   string     `db:"user_agent"`
	IPAddress   string     `db:"ip_address"`
	CreatedAt   time.Time  `db:"created_at"`
}

func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsRotatable mirrors the conditional update used by Rotate.
func (t *RefreshToken) IsRotatable(now time.Time) bool {
	return !t.IsRevoked && !t.IsExpired(now)
}

// IsStale reports whether cleanup may delete the record.
func (t *RefreshToken) IsStale(now, revokedBefore time.Time) bool {
	if t.ExpiresAt.Before(now) {
		return true
	}
	return t.RevokedAt != nil && t.RevokedAt.Before(revokedBefore)
}

func (t *RefreshToken) revoke(now time.Time) {
	t.IsRevoked = true
	t.RevokedAt = &now
}

// ClientMeta identifies the device a session was opened from.
type ClientMeta struct {
	UserAgent string
	IPAddress string
}
