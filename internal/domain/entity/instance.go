package entity

import "time"

// WorkflowInstance is one run of a template against one document submission.
// Instances are permanent audit data: they terminate through approval or
// rejection and are never deleted, even if the underlying document goes away.
type WorkflowInstance struct {
	ID                int64             `json:"id"`
	DocumentID        int64             `json:"document_id"`
	TemplateID        int64             `json:"template_id"`
	Status            string            `json:"status"` // IN_PROGRESS, APPROVED, REJECTED
	CurrentStageOrder int               `json:"current_stage_order"`
	StartedBy         string            `json:"started_by"`
	StartedAt         time.Time         `json:"started_at"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
	Executions        []*StageExecution `json:"executions,omitempty"`
}

// StageExecution records a stage being entered and eventually resolved
// within one instance. Executions are created lazily when a stage becomes
// current; stages past an early rejection never get one.
type StageExecution struct {
	ID         int64      `json:"id"`
	InstanceID int64      `json:"instance_id"`
	StageOrder int        `json:"stage_order"`
	EnteredAt  time.Time  `json:"entered_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Resolution string     `json:"resolution"` // PENDING, APPROVED, REJECTED
	Decision   *Decision  `json:"decision,omitempty"`
}

// Decision is the approve/reject action taken by an eligible user against a
// pending stage execution.
type Decision struct {
	ID          int64     `json:"id"`
	ExecutionID int64     `json:"execution_id"`
	DecidedBy   string    `json:"decided_by"`
	DecidedAt   time.Time `json:"decided_at"`
	Outcome     string    `json:"outcome"` // APPROVE, REJECT
	Comment     string    `json:"comment,omitempty"`
}

// Instance status constants
const (
	InstanceStatusInProgress = "IN_PROGRESS"
	InstanceStatusApproved   = "APPROVED"
	InstanceStatusRejected   = "REJECTED"
)

// Stage execution resolution constants
const (
	ResolutionPending  = "PENDING"
	ResolutionApproved = "APPROVED"
	ResolutionRejected = "REJECTED"
)

// Decision outcome constants
const (
	OutcomeApprove = "APPROVE"
	OutcomeReject  = "REJECT"
)

// IsActive reports whether the instance is still moving through stages.
func (i *WorkflowInstance) IsActive() bool {
	return i.Status == InstanceStatusInProgress
}

// IsTerminal reports whether the instance reached APPROVED or REJECTED.
// Terminal instances are immutable.
func (i *WorkflowInstance) IsTerminal() bool {
	return i.Status == InstanceStatusApproved || i.Status == InstanceStatusRejected
}

// CurrentExecution returns the execution for the current stage, or nil.
func (i *WorkflowInstance) CurrentExecution() *StageExecution {
	for _, ex := range i.Executions {
		if ex.StageOrder == i.CurrentStageOrder {
			return ex
		}
	}
	return nil
}

// IsPending reports whether the execution has not been resolved yet.
func (e *StageExecution) IsPending() bool {
	return e.Resolution == ResolutionPending
}
