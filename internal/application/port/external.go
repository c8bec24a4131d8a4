package port

import (
	"context"

	"github.com/nlebrun/docuflow/internal/domain/event"
)

// RoleDirectory is the user/role collaborator. The engine queries it fresh
// at decision time so role membership changes take effect immediately; it
// never caches the answer inside an instance.
type RoleDirectory interface {
	// ResolveApprovers returns the user ids currently holding the role
	ResolveApprovers(ctx context.Context, role string) ([]string, error)

	// RolesOf returns the roles currently held by the user
	RolesOf(ctx context.Context, userID string) ([]string, error)
}

// EventSink receives structured workflow events after the state transition
// they describe has durably committed. History logging and notification
// formatting live behind this boundary, not in the engine.
type EventSink interface {
	Dispatch(ctx context.Context, evt *event.Event) error
}
