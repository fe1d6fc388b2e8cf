// AngelaMos | 2026
// entity.go

package user

import (
	"time"
)

type User struct {
	ID                 string     `db:"id"`
	Username           string     `db:"username"`
	Email              string     `db:"email"`
	PasswordHash       string     `db:"password_hash"`
	Role               string     `db:"role"`
	IsActive           bool       `db:"is_active"`
	MustChangePassword bool       `db:"must_change_password"`
	PasswordChangedAt  time.Time  `db:"password_changed_at"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
	DeletedAt          *time.Time `db:"deleted_at"`
}

const (
	RoleAdmin              = "admin"
	RoleProcurementOfficer = "procurement_officer"
	RoleRequester          = "requester"
)

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleProcurementOfficer, RoleRequester:
		return true
	}
	return false
}
