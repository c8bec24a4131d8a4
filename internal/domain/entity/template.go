package entity

import "time"

// WorkflowTemplate is a reusable, ordered definition of approval stages.
// Stage structure is immutable once any instance references the template;
// new stage layouts are published as new templates.
type WorkflowTemplate struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      string    `json:"status"` // ACTIVE, RETIRED
	Stages      []*Stage  `json:"stages,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Stage is one position in a template, bound to the role that must approve it.
type Stage struct {
	ID           int64  `json:"id"`
	TemplateID   int64  `json:"template_id"`
	Order        int    `json:"order"`
	Name         string `json:"name"`
	ApprovalRule string `json:"approval_rule"` // SINGLE
	RequiredRole string `json:"required_role"`
	// MaxDelay is an advisory SLA in minutes. The engine never enforces it;
	// it is surfaced to the dispatcher so reminder logic can escalate.
	MaxDelay int `json:"max_delay,omitempty"`
}

// Template status constants
const (
	TemplateStatusActive  = "ACTIVE"
	TemplateStatusRetired = "RETIRED"
)

// Approval rule constants. Only SINGLE is implemented: the first eligible
// decision resolves the stage. ANY_OF_N/ALL_OF_N would need vote-tally
// sub-state and are an extension point, not a rule value accepted today.
const (
	RuleSingle = "SINGLE"
)

// LastStageOrder returns the order of the final stage, or 0 when the
// template carries no stages.
func (t *WorkflowTemplate) LastStageOrder() int {
	last := 0
	for _, s := range t.Stages {
		if s.Order > last {
			last = s.Order
		}
	}
	return last
}

// StageAt returns the stage with the given order, or nil.
func (t *WorkflowTemplate) StageAt(order int) *Stage {
	for _, s := range t.Stages {
		if s.Order == order {
			return s
		}
	}
	return nil
}

// IsRetired reports whether the template has been taken out of service.
func (t *WorkflowTemplate) IsRetired() bool {
	return t.Status == TemplateStatusRetired
}
