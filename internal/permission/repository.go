// AngelaMos | 2026
// repository.go

package permission

import (
	"context"
	"fmt"

	"github.com/carterperez-dev/templates/erp-backend/internal/core"
)

type Repository interface {
	ListByRole(ctx context.Context, role string) ([]string, error)
	ListAll(ctx context.Context) (map[string][]string, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) ListByRole(ctx context.Context, role string) ([]string, error) {
	query := `
		SELECT permission FROM role_permissions
		WHERE role = $1
		ORDER BY permission`

	var perms []string
	if err := r.db.SelectContext(ctx, &perms, query, role); err != nil {
		return nil, fmt.Errorf("list permissions for role: %w", err)
	}

	return perms, nil
}

type rolePermission struct {
	Role       string `db:"role"`
	Permission string `db:"permission"`
}

func (r *repository) ListAll(ctx context.Context) (map[string][]string, error) {
	query := `SELECT role, permission FROM role_permissions ORDER BY role, permission`

	var rows []rolePermission
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list role permissions: %w", err)
	}

	out := make(map[string][]string)
	for _, row := range rows {
		out[row.Role] = append(out[row.Role], row.Permission)
	}

	return out, nil
}
