package event

// Type identifies the type of domain event
type Type string

const (
	// TypeStageEntered fires when a stage execution is created and becomes current.
	TypeStageEntered Type = "stage.entered"
	// TypeStageApproved fires when a pending stage execution is approved.
	TypeStageApproved Type = "stage.approved"
	// TypeStageRejected fires when a pending stage execution is rejected.
	TypeStageRejected Type = "stage.rejected"
	// TypeWorkflowCompleted fires when an instance reaches APPROVED or REJECTED.
	TypeWorkflowCompleted Type = "workflow.completed"
	// TypeStageOverdue fires when a pending execution exceeds its stage's
	// advisory max_delay. Reminder metadata only; never a transition.
	TypeStageOverdue Type = "stage.overdue"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeStageEntered,
		TypeStageApproved,
		TypeStageRejected,
		TypeWorkflowCompleted,
		TypeStageOverdue:
		return true
	}
	return false
}
