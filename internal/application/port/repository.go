package port

import (
	"context"
	"time"

	"github.com/nlebrun/docuflow/internal/domain/entity"
)

// TemplateRepository defines persistence operations for WorkflowTemplate
// and its stages. Reads return nil (not an error) when the row is absent.
type TemplateRepository interface {
	// Create inserts the template and its stages in one unit
	Create(ctx context.Context, tpl *entity.WorkflowTemplate) error

	// GetByID retrieves a template with its stages ordered by stage order
	GetByID(ctx context.Context, id int64) (*entity.WorkflowTemplate, error)

	// List retrieves templates, optionally filtered by lifecycle status
	List(ctx context.Context, status string) ([]*entity.WorkflowTemplate, error)

	// UpdateMeta updates descriptive fields only
	UpdateMeta(ctx context.Context, id int64, name, description string) error

	// ReplaceStages swaps the template's stage definitions
	ReplaceStages(ctx context.Context, id int64, stages []*entity.Stage) error

	// UpdateStatus changes the template lifecycle status
	UpdateStatus(ctx context.Context, id int64, status string) error

	// CountInstances returns how many instances reference the template
	CountInstances(ctx context.Context, templateID int64) (int64, error)
}

// InstanceRepository defines persistence operations for WorkflowInstance
type InstanceRepository interface {
	Create(ctx context.Context, instance *entity.WorkflowInstance) error
	GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error)

	// GetActiveByDocumentID returns the IN_PROGRESS instance for the
	// document, or nil when none exists
	GetActiveByDocumentID(ctx context.Context, documentID int64) (*entity.WorkflowInstance, error)

	// GetLatestByDocumentID returns the most recently started instance for
	// the document regardless of status, or nil
	GetLatestByDocumentID(ctx context.Context, documentID int64) (*entity.WorkflowInstance, error)

	// AdvanceStage moves current_stage_order forward on an active instance
	AdvanceStage(ctx context.Context, id int64, nextOrder int) error

	// Complete sets a terminal status and completion time on an active
	// instance. The update is conditioned on status = IN_PROGRESS.
	Complete(ctx context.Context, id int64, status string, completedAt time.Time) error

	// ListPendingByRoles returns pending approvals whose current stage
	// requires one of the given roles
	ListPendingByRoles(ctx context.Context, roles []string) ([]*PendingApproval, error)
}

// ExecutionRepository defines persistence operations for StageExecution
type ExecutionRepository interface {
	Create(ctx context.Context, ex *entity.StageExecution) error
	GetByInstanceAndOrder(ctx context.Context, instanceID int64, stageOrder int) (*entity.StageExecution, error)
	ListByInstanceID(ctx context.Context, instanceID int64) ([]*entity.StageExecution, error)

	// Resolve flips the execution from PENDING to the given resolution.
	// The update is conditional on resolution = PENDING; it reports false
	// when another decision already resolved the execution.
	Resolve(ctx context.Context, id int64, resolution string, resolvedAt time.Time) (bool, error)

	// ListOverdue returns pending executions older than their stage's
	// advisory max_delay, as of the given time
	ListOverdue(ctx context.Context, asOf time.Time) ([]*OverdueExecution, error)
}

// DecisionRepository defines persistence operations for Decision
type DecisionRepository interface {
	Create(ctx context.Context, decision *entity.Decision) error
	GetByExecutionID(ctx context.Context, executionID int64) (*entity.Decision, error)
	ListByInstanceID(ctx context.Context, instanceID int64) ([]*entity.Decision, error)
}

// StatsFilter narrows statistics aggregation
type StatsFilter struct {
	TemplateID int64      // 0 means all templates
	Since      *time.Time // instances started at or after
	Until      *time.Time // instances started before
}

// WorkflowStats is the read-only rollup over instance state
type WorkflowStats struct {
	Total                int64   `json:"total"`
	InProgress           int64   `json:"in_progress"`
	Approved             int64   `json:"approved"`
	Rejected             int64   `json:"rejected"`
	AvgCompletionSeconds float64 `json:"avg_completion_seconds"`
}

// TemplateStats is the per-template breakdown of WorkflowStats
type TemplateStats struct {
	TemplateID   int64  `json:"template_id"`
	TemplateName string `json:"template_name"`
	WorkflowStats
}

// StatsRepository defines read-only aggregation queries over instances.
// Never participates in the state machine.
type StatsRepository interface {
	Aggregate(ctx context.Context, filter StatsFilter) (*WorkflowStats, error)
	AggregateByTemplate(ctx context.Context, filter StatsFilter) ([]*TemplateStats, error)
}

// PendingApproval is one row of the approver inbox projection
type PendingApproval struct {
	InstanceID   int64     `json:"instance_id"`
	DocumentID   int64     `json:"document_id"`
	StageOrder   int       `json:"stage_order"`
	StageName    string    `json:"stage_name"`
	RequiredRole string    `json:"required_role"`
	StartedBy    string    `json:"submitted_by"`
	EnteredAt    time.Time `json:"entered_at"`
}

// OverdueExecution is one row of the advisory SLA scan
type OverdueExecution struct {
	ExecutionID  int64     `json:"execution_id"`
	InstanceID   int64     `json:"instance_id"`
	DocumentID   int64     `json:"document_id"`
	StageOrder   int       `json:"stage_order"`
	RequiredRole string    `json:"required_role"`
	EnteredAt    time.Time `json:"entered_at"`
	MaxDelay     int       `json:"max_delay"`
}

// TransactionManager runs a function within a storage transaction. The
// context passed to fn carries the transaction; repositories resolve it.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
