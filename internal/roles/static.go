package roles

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// StaticDirectory is a config-driven role directory: a role name maps to
// the users holding it. It stands in for an organization directory where
// assignments change through configuration reloads rather than an API.
type StaticDirectory struct {
	mu     sync.RWMutex
	byRole map[string][]string
	byUser map[string][]string
	logger *zap.Logger
}

// NewStaticDirectory creates a directory from a role -> users assignment map.
func NewStaticDirectory(assignments map[string][]string, logger *zap.Logger) *StaticDirectory {
	d := &StaticDirectory{logger: logger}
	d.Replace(assignments)
	return d
}

// Replace swaps the full assignment table. Used at startup and on reload.
func (d *StaticDirectory) Replace(assignments map[string][]string) {
	byRole := make(map[string][]string, len(assignments))
	byUser := make(map[string][]string)

	for role, users := range assignments {
		byRole[role] = append([]string(nil), users...)
		for _, user := range users {
			byUser[user] = append(byUser[user], role)
		}
	}

	d.mu.Lock()
	d.byRole = byRole
	d.byUser = byUser
	d.mu.Unlock()

	if d.logger != nil {
		d.logger.Info("Role assignments loaded",
			zap.Int("roles", len(byRole)),
			zap.Int("users", len(byUser)))
	}
}

// ResolveApprovers returns the users currently holding the role. An unknown
// role resolves to an empty set, not an error.
func (d *StaticDirectory) ResolveApprovers(ctx context.Context, role string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.byRole[role]...), nil
}

// RolesOf returns the roles currently held by the user.
func (d *StaticDirectory) RolesOf(ctx context.Context, userID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.byUser[userID]...), nil
}
