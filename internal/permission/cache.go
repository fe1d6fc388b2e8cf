// AngelaMos | 2026
// cache.go

package permission

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	perms     []string
	expiresAt time.Time
}

// Cache holds the role to permission mapping in memory. Entries expire
// after ttl and concurrent misses for one role share a single query.
type Cache struct {
	repo  Repository
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu    sync.RWMutex
	roles map[string]entry
}

func NewCache(repo Repository, ttl time.Duration) *Cache {
	return &Cache{
		repo:  repo,
		ttl:   ttl,
		now:   time.Now,
		roles: make(map[string]entry),
	}
}

// ForRole returns a copy of the permissions granted to role.
func (c *Cache) ForRole(ctx context.Context, role string) ([]string, error) {
	c.mu.RLock()
	e, ok := c.roles[role]
	c.mu.RUnlock()

	if ok && c.now().Before(e.expiresAt) {
		return slices.Clone(e.perms), nil
	}

	v, err, _ := c.group.Do(role, func() (any, error) {
		perms, err := c.repo.ListByRole(ctx, role)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.roles[role] = entry{perms: perms, expiresAt: c.now().Add(c.ttl)}
		c.mu.Unlock()

		return perms, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load permissions for %s: %w", role, err)
	}

	//nolint:errcheck // type is fixed by the closure above
	return slices.Clone(v.([]string)), nil
}

// Refresh reloads every role in one query and replaces the cached set.
func (c *Cache) Refresh(ctx context.Context) error {
	all, err := c.repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("refresh permissions: %w", err)
	}

	expires := c.now().Add(c.ttl)
	fresh := make(map[string]entry, len(all))
	for role, perms := range all {
		fresh[role] = entry{perms: perms, expiresAt: expires}
	}

	c.mu.Lock()
	c.roles = fresh
	c.mu.Unlock()

	return nil
}

func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.roles = make(map[string]entry)
	c.mu.Unlock()
}
