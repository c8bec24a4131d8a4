package dispatcher

import (
	"context"

	"github.com/nlebrun/docuflow/internal/domain/event"
)

// Handler processes workflow events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo contains handler metadata for debugging
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}

// NewAuditLogHandler returns a handler that records every event it sees via
// the logger. This is the in-process stand-in for the external audit and
// notification collaborator; swapping it for a queue publisher only requires
// registering a different handler.
func NewAuditLogHandler(logger Logger) Handler {
	return func(ctx context.Context, evt *event.Event) error {
		logger.Info("workflow event",
			"event_type", evt.Type,
			"event_id", evt.ID,
			"instance_id", evt.InstanceID,
			"document_id", evt.DocumentID,
			"stage_order", evt.StageOrder,
			"correlation_id", evt.CorrelationID,
		)
		return nil
	}
}
