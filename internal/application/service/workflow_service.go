package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nlebrun/docuflow/internal/application/port"
	"github.com/nlebrun/docuflow/internal/domain/entity"
	"github.com/nlebrun/docuflow/internal/domain/event"
	"github.com/nlebrun/docuflow/internal/domain/workflow"
)

// WorkflowStatus is the read-only projection returned for a document
type WorkflowStatus struct {
	HasWorkflow  bool   `json:"has_workflow"`
	Status       string `json:"status,omitempty"`
	CurrentStage int    `json:"current_stage,omitempty"`
}

// WorkflowService creates and advances workflow instances. It is the only
// component that mutates instance state; every state-changing operation is
// one transactional unit against the store, and events are emitted only
// after that unit commits.
type WorkflowService interface {
	// StartWorkflow creates an instance bound to stage 1 for the document.
	// The boolean reports whether a new instance was created: retrying with
	// the same initiator while the instance is still active returns the
	// existing instance and false instead of erroring.
	StartWorkflow(ctx context.Context, documentID, templateID int64, initiatorID, comment string) (*entity.WorkflowInstance, bool, error)

	// GetInstance returns an instance with its stage executions and decisions
	GetInstance(ctx context.Context, id int64) (*entity.WorkflowInstance, error)

	// GetStatus returns the workflow projection for a document
	GetStatus(ctx context.Context, documentID int64) (*WorkflowStatus, error)

	// ListPending returns the approvals waiting on one of the user's roles
	ListPending(ctx context.Context, userID string) ([]*port.PendingApproval, error)
}

// StageAdvancer moves an instance after a stage resolves. Invoked only by
// the decision processor, inside its transaction; the returned events are
// emitted by the caller after commit.
type StageAdvancer interface {
	// AdvanceOnApproval finalizes the instance when the resolved stage was
	// the last one, or enters the next stage. Returns the resulting
	// instance status, the next stage order (0 when terminal) and the
	// events to emit after commit, correlated to the decision that caused
	// the transition.
	AdvanceOnApproval(ctx context.Context, instanceID int64, correlationID string) (string, int, []*event.Event, error)

	// ResolveOnRejection terminates the instance as REJECTED. No further
	// stage execution is ever created.
	ResolveOnRejection(ctx context.Context, instanceID int64, correlationID string) ([]*event.Event, error)
}

type workflowServiceImpl struct {
	templateRepo port.TemplateRepository
	instanceRepo port.InstanceRepository
	execRepo     port.ExecutionRepository
	decisionRepo port.DecisionRepository
	roles        RoleService
	txManager    port.TransactionManager
	sink         port.EventSink
	metrics      Metrics
	logger       Logger
}

// NewWorkflowService creates a new WorkflowService. The returned value also
// implements StageAdvancer for the decision processor.
func NewWorkflowService(
	templateRepo port.TemplateRepository,
	instanceRepo port.InstanceRepository,
	execRepo port.ExecutionRepository,
	decisionRepo port.DecisionRepository,
	roles RoleService,
	txManager port.TransactionManager,
	sink port.EventSink,
	metrics Metrics,
	logger Logger,
) WorkflowService {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &workflowServiceImpl{
		templateRepo: templateRepo,
		instanceRepo: instanceRepo,
		execRepo:     execRepo,
		decisionRepo: decisionRepo,
		roles:        roles,
		txManager:    txManager,
		sink:         sink,
		metrics:      metrics,
		logger:       logger,
	}
}

// StartWorkflow creates the instance and its first stage execution in one
// atomic unit, then emits STAGE_ENTERED for stage 1.
func (s *workflowServiceImpl) StartWorkflow(ctx context.Context, documentID, templateID int64, initiatorID, comment string) (*entity.WorkflowInstance, bool, error) {
	tpl, err := s.templateRepo.GetByID(ctx, templateID)
	if err != nil {
		return nil, false, fmt.Errorf("load template: %w", err)
	}
	if tpl == nil || tpl.IsRetired() {
		return nil, false, fmt.Errorf("%w: id=%d", entity.ErrTemplateNotFound, templateID)
	}

	// Retry-after-timeout safety: the original initiator gets the existing
	// instance back instead of a conflict.
	if active, err := s.instanceRepo.GetActiveByDocumentID(ctx, documentID); err != nil {
		return nil, false, fmt.Errorf("check active instance: %w", err)
	} else if active != nil {
		if active.StartedBy == initiatorID {
			s.logger.Info("Workflow already started by initiator, returning existing instance",
				"document_id", documentID,
				"instance_id", active.ID,
			)
			return active, false, nil
		}
		return nil, false, fmt.Errorf("%w: document_id=%d instance_id=%d", entity.ErrDocumentInWorkflow, documentID, active.ID)
	}

	now := time.Now()
	instance := &entity.WorkflowInstance{
		DocumentID:        documentID,
		TemplateID:        templateID,
		Status:            entity.InstanceStatusInProgress,
		CurrentStageOrder: 1,
		StartedBy:         initiatorID,
		StartedAt:         now,
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		// Create relies on the partial unique index over active documents
		// to close the race between two simultaneous submitters.
		if err := s.instanceRepo.Create(txCtx, instance); err != nil {
			return fmt.Errorf("create instance: %w", err)
		}

		execution := &entity.StageExecution{
			InstanceID: instance.ID,
			StageOrder: 1,
			EnteredAt:  now,
			Resolution: entity.ResolutionPending,
		}
		if err := s.execRepo.Create(txCtx, execution); err != nil {
			return fmt.Errorf("create first stage execution: %w", err)
		}
		instance.Executions = []*entity.StageExecution{execution}
		return nil
	})
	if err != nil {
		// Losing the insert race to a concurrent submitter falls under the
		// same idempotency rule as the pre-check: the initiator of the
		// winning instance gets it back, anyone else gets the conflict.
		if errors.Is(err, entity.ErrDocumentInWorkflow) {
			if active, lookupErr := s.instanceRepo.GetActiveByDocumentID(ctx, documentID); lookupErr == nil && active != nil && active.StartedBy == initiatorID {
				s.logger.Info("Lost start race to own earlier request, returning existing instance",
					"document_id", documentID,
					"instance_id", active.ID,
				)
				return active, false, nil
			}
		}
		return nil, false, err
	}

	s.metrics.WorkflowStarted()
	s.logger.Info("Workflow started",
		"instance_id", instance.ID,
		"document_id", documentID,
		"template_id", templateID,
		"started_by", initiatorID,
	)

	s.emit(ctx, s.stageEnteredEvent(instance, tpl, 1, "", map[string]interface{}{
		"started_by": initiatorID,
		"comment":    comment,
	}))

	return instance, true, nil
}

// GetInstance returns the instance with executions and their decisions
func (s *workflowServiceImpl) GetInstance(ctx context.Context, id int64) (*entity.WorkflowInstance, error) {
	instance, err := s.instanceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", err)
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: id=%d", entity.ErrInstanceNotFound, id)
	}

	executions, err := s.execRepo.ListByInstanceID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}

	decisions, err := s.decisionRepo.ListByInstanceID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	byExecution := make(map[int64]*entity.Decision, len(decisions))
	for _, d := range decisions {
		byExecution[d.ExecutionID] = d
	}
	for _, ex := range executions {
		ex.Decision = byExecution[ex.ID]
	}

	instance.Executions = executions
	return instance, nil
}

// GetStatus returns has_workflow=false only when no instance, active or
// historical, exists for the document.
func (s *workflowServiceImpl) GetStatus(ctx context.Context, documentID int64) (*WorkflowStatus, error) {
	instance, err := s.instanceRepo.GetLatestByDocumentID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get latest instance: %w", err)
	}
	if instance == nil {
		return &WorkflowStatus{HasWorkflow: false}, nil
	}

	status := &WorkflowStatus{
		HasWorkflow: true,
		Status:      instance.Status,
	}
	if instance.IsActive() {
		status.CurrentStage = instance.CurrentStageOrder
	}
	return status, nil
}

// ListPending returns the approver inbox for the user's current roles
func (s *workflowServiceImpl) ListPending(ctx context.Context, userID string) ([]*port.PendingApproval, error) {
	roles, err := s.roles.RolesOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return []*port.PendingApproval{}, nil
	}

	pending, err := s.instanceRepo.ListPendingByRoles(ctx, roles)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	return pending, nil
}

// AdvanceOnApproval implements StageAdvancer. Must run inside the decision
// processor's transaction context.
func (s *workflowServiceImpl) AdvanceOnApproval(ctx context.Context, instanceID int64, correlationID string) (string, int, []*event.Event, error) {
	instance, tpl, err := s.loadActive(ctx, instanceID)
	if err != nil {
		return "", 0, nil, err
	}

	lastStage := instance.CurrentStageOrder >= tpl.LastStageOrder()
	machine := workflow.NewInstanceMachine(workflow.State(instance.Status), func(context.Context) bool {
		return lastStage
	})
	if err := machine.Fire(ctx, workflow.TriggerApproveStage); err != nil {
		return "", 0, nil, fmt.Errorf("%w: %v", entity.ErrInstanceNotActive, err)
	}

	now := time.Now()
	if machine.State() == workflow.StateApproved {
		if err := s.instanceRepo.Complete(ctx, instanceID, entity.InstanceStatusApproved, now); err != nil {
			return "", 0, nil, fmt.Errorf("complete instance: %w", err)
		}
		evt := event.NewEventWithCorrelation(event.TypeWorkflowCompleted, instanceID, instance.DocumentID, instance.CurrentStageOrder, map[string]interface{}{
			"status": entity.InstanceStatusApproved,
		}, correlationID)
		return entity.InstanceStatusApproved, 0, []*event.Event{evt}, nil
	}

	next := instance.CurrentStageOrder + 1
	execution := &entity.StageExecution{
		InstanceID: instanceID,
		StageOrder: next,
		EnteredAt:  now,
		Resolution: entity.ResolutionPending,
	}
	if err := s.execRepo.Create(ctx, execution); err != nil {
		return "", 0, nil, fmt.Errorf("create stage execution: %w", err)
	}
	if err := s.instanceRepo.AdvanceStage(ctx, instanceID, next); err != nil {
		return "", 0, nil, fmt.Errorf("advance stage: %w", err)
	}

	return entity.InstanceStatusInProgress, next, []*event.Event{s.stageEnteredEvent(instance, tpl, next, correlationID, nil)}, nil
}

// ResolveOnRejection implements StageAdvancer. Rejection is terminal at
// whatever stage it occurs.
func (s *workflowServiceImpl) ResolveOnRejection(ctx context.Context, instanceID int64, correlationID string) ([]*event.Event, error) {
	instance, _, err := s.loadActive(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	machine := workflow.NewInstanceMachine(workflow.State(instance.Status), func(context.Context) bool { return false })
	if err := machine.Fire(ctx, workflow.TriggerRejectStage); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInstanceNotActive, err)
	}

	if err := s.instanceRepo.Complete(ctx, instanceID, entity.InstanceStatusRejected, time.Now()); err != nil {
		return nil, fmt.Errorf("complete instance: %w", err)
	}

	evt := event.NewEventWithCorrelation(event.TypeWorkflowCompleted, instanceID, instance.DocumentID, instance.CurrentStageOrder, map[string]interface{}{
		"status": entity.InstanceStatusRejected,
	}, correlationID)
	return []*event.Event{evt}, nil
}

func (s *workflowServiceImpl) loadActive(ctx context.Context, instanceID int64) (*entity.WorkflowInstance, *entity.WorkflowTemplate, error) {
	instance, err := s.instanceRepo.GetByID(ctx, instanceID)
	if err != nil {
		return nil, nil, fmt.Errorf("get instance: %w", err)
	}
	if instance == nil {
		return nil, nil, fmt.Errorf("%w: id=%d", entity.ErrInstanceNotFound, instanceID)
	}
	if !instance.IsActive() {
		return nil, nil, fmt.Errorf("%w: id=%d status=%s", entity.ErrInstanceNotActive, instanceID, instance.Status)
	}

	tpl, err := s.templateRepo.GetByID(ctx, instance.TemplateID)
	if err != nil {
		return nil, nil, fmt.Errorf("load template: %w", err)
	}
	if tpl == nil {
		return nil, nil, fmt.Errorf("template %d missing for instance %d", instance.TemplateID, instanceID)
	}
	return instance, tpl, nil
}

// stageEnteredEvent builds the STAGE_ENTERED event for a stage. An empty
// correlationID starts a new correlation chain.
func (s *workflowServiceImpl) stageEnteredEvent(instance *entity.WorkflowInstance, tpl *entity.WorkflowTemplate, stageOrder int, correlationID string, extra map[string]interface{}) *event.Event {
	payload := map[string]interface{}{}
	if stage := tpl.StageAt(stageOrder); stage != nil {
		payload["stage_name"] = stage.Name
		payload["required_role"] = stage.RequiredRole
		if stage.MaxDelay > 0 {
			payload["max_delay"] = stage.MaxDelay
		}
	}
	for k, v := range extra {
		payload[k] = v
	}
	if correlationID != "" {
		return event.NewEventWithCorrelation(event.TypeStageEntered, instance.ID, instance.DocumentID, stageOrder, payload, correlationID)
	}
	return event.NewEvent(event.TypeStageEntered, instance.ID, instance.DocumentID, stageOrder, payload)
}

// emit dispatches an event after the transition committed. Dispatch failure
// must not undo committed state, so it is logged and swallowed.
func (s *workflowServiceImpl) emit(ctx context.Context, evt *event.Event) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Dispatch(ctx, evt); err != nil {
		s.logger.Error("Failed to dispatch event",
			"event_type", evt.Type,
			"event_id", evt.ID,
			"instance_id", evt.InstanceID,
			"error", err,
		)
	}
}
