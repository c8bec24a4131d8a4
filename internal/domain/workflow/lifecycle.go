package workflow

import "context"

// NewInstanceMachine builds the approval lifecycle machine for one instance.
// lastStage reports whether the stage being resolved is the template's final
// stage; it selects between finishing the workflow and moving to the next
// stage when an approval fires.
func NewInstanceMachine(current State, lastStage GuardFunc) StateMachine {
	builder := NewBuilder()

	builder.Configure(StateInProgress).
		PermitIf(TriggerApproveStage, StateApproved, lastStage).
		PermitIf(TriggerApproveStage, StateInProgress, func(ctx context.Context) bool {
			return !lastStage(ctx)
		}).
		Permit(TriggerRejectStage, StateRejected)

	// APPROVED and REJECTED are terminal: no configuration, so any Fire
	// from them fails with ErrInvalidTransition.

	return builder.Build(current)
}
