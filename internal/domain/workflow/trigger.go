package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	// TriggerApproveStage fires when the current stage is approved. The
	// instance either stays IN_PROGRESS (more stages remain) or becomes
	// APPROVED (last stage), selected by guard.
	TriggerApproveStage Trigger = "APPROVE_STAGE"

	// TriggerRejectStage fires when the current stage is rejected.
	// Rejection is terminal at whatever stage it occurs.
	TriggerRejectStage Trigger = "REJECT_STAGE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
