package service

import (
	"context"
	"fmt"
	"time"

	"github.com/nlebrun/docuflow/internal/application/port"
	"github.com/nlebrun/docuflow/internal/domain/entity"
	"github.com/nlebrun/docuflow/internal/domain/event"
)

// DecisionResult describes the instance after a decision was applied
type DecisionResult struct {
	InstanceID int64  `json:"instance_id"`
	Status     string `json:"status"`
	// NextStage is the stage entered after an approval, 0 when the
	// instance reached a terminal state.
	NextStage int `json:"next_stage,omitempty"`
}

// DecisionService validates and applies approval decisions against an
// instance's current stage. Preconditions are checked in a fixed order and
// the first failing one wins; the write itself is one transaction so a crash
// can never leave a stage resolved without the instance reflecting it.
type DecisionService interface {
	Decide(ctx context.Context, instanceID int64, stageOrder int, userID, outcome, comment string) (*DecisionResult, error)
}

type decisionServiceImpl struct {
	templateRepo port.TemplateRepository
	instanceRepo port.InstanceRepository
	execRepo     port.ExecutionRepository
	decisionRepo port.DecisionRepository
	roles        RoleService
	advancer     StageAdvancer
	txManager    port.TransactionManager
	sink         port.EventSink
	metrics      Metrics
	logger       Logger
}

// NewDecisionService creates a new DecisionService. advancer is the
// workflow service, which performs the stage transition inside the
// decision transaction.
func NewDecisionService(
	templateRepo port.TemplateRepository,
	instanceRepo port.InstanceRepository,
	execRepo port.ExecutionRepository,
	decisionRepo port.DecisionRepository,
	roles RoleService,
	advancer StageAdvancer,
	txManager port.TransactionManager,
	sink port.EventSink,
	metrics Metrics,
	logger Logger,
) DecisionService {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &decisionServiceImpl{
		templateRepo: templateRepo,
		instanceRepo: instanceRepo,
		execRepo:     execRepo,
		decisionRepo: decisionRepo,
		roles:        roles,
		advancer:     advancer,
		txManager:    txManager,
		sink:         sink,
		metrics:      metrics,
		logger:       logger,
	}
}

// Decide applies an approval or rejection to the instance's current stage
func (s *decisionServiceImpl) Decide(ctx context.Context, instanceID int64, stageOrder int, userID, outcome, comment string) (*DecisionResult, error) {
	if outcome != entity.OutcomeApprove && outcome != entity.OutcomeReject {
		return nil, fmt.Errorf("%w: outcome %q", entity.ErrInvalidDecision, outcome)
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user id", entity.ErrInvalidDecision)
	}

	// Precondition 1: instance exists and is still in progress.
	instance, err := s.instanceRepo.GetByID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", err)
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: id=%d", entity.ErrInstanceNotFound, instanceID)
	}
	if !instance.IsActive() {
		return nil, fmt.Errorf("%w: id=%d status=%s", entity.ErrInstanceNotActive, instanceID, instance.Status)
	}

	// Precondition 2: the decision targets the current stage. A stale
	// client deciding a stage the instance already moved past gets a
	// conflict, not a silent overwrite.
	if stageOrder != instance.CurrentStageOrder {
		return nil, fmt.Errorf("%w: decided stage %d, current stage %d", entity.ErrStaleStage, stageOrder, instance.CurrentStageOrder)
	}

	// Precondition 3: the stage execution is still pending.
	execution, err := s.execRepo.GetByInstanceAndOrder(ctx, instanceID, stageOrder)
	if err != nil {
		return nil, fmt.Errorf("get stage execution: %w", err)
	}
	if execution == nil {
		return nil, fmt.Errorf("stage execution missing for instance %d stage %d", instanceID, stageOrder)
	}
	if !execution.IsPending() {
		return nil, fmt.Errorf("%w: instance=%d stage=%d resolution=%s", entity.ErrAlreadyResolved, instanceID, stageOrder, execution.Resolution)
	}

	// Precondition 4: the user currently holds the stage's required role.
	// Queried fresh, never cached: losing the role mid-workflow revokes
	// the right to approve immediately.
	tpl, err := s.templateRepo.GetByID(ctx, instance.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	if tpl == nil {
		return nil, fmt.Errorf("template %d missing for instance %d", instance.TemplateID, instanceID)
	}
	stage := tpl.StageAt(stageOrder)
	if stage == nil {
		return nil, fmt.Errorf("stage %d missing in template %d", stageOrder, instance.TemplateID)
	}
	eligible, err := s.roles.IsEligible(ctx, userID, stage.RequiredRole)
	if err != nil {
		return nil, err
	}
	if !eligible {
		s.logger.Info("Decision denied, user not eligible",
			"instance_id", instanceID,
			"stage_order", stageOrder,
			"user_id", userID,
			"required_role", stage.RequiredRole,
		)
		return nil, fmt.Errorf("%w: user=%s role=%s", entity.ErrNotAuthorized, userID, stage.RequiredRole)
	}

	resolution := entity.ResolutionApproved
	decisionEventType := event.TypeStageApproved
	if outcome == entity.OutcomeReject {
		resolution = entity.ResolutionRejected
		decisionEventType = event.TypeStageRejected
	}

	now := time.Now()
	result := &DecisionResult{InstanceID: instanceID}

	// Built up front so the transition events minted inside the transaction
	// can join the decision's correlation chain.
	decisionEvt := event.NewEvent(decisionEventType, instanceID, instance.DocumentID, stageOrder, map[string]interface{}{
		"decided_by": userID,
		"outcome":    outcome,
		"comment":    comment,
	})
	var transitionEvents []*event.Event

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		// Conditional flip from PENDING closes the race between two
		// approvers deciding the same stage: the loser sees the row
		// already resolved.
		flipped, err := s.execRepo.Resolve(txCtx, execution.ID, resolution, now)
		if err != nil {
			return fmt.Errorf("resolve stage execution: %w", err)
		}
		if !flipped {
			return fmt.Errorf("%w: instance=%d stage=%d", entity.ErrAlreadyResolved, instanceID, stageOrder)
		}

		decision := &entity.Decision{
			ExecutionID: execution.ID,
			DecidedBy:   userID,
			DecidedAt:   now,
			Outcome:     outcome,
			Comment:     comment,
		}
		if err := s.decisionRepo.Create(txCtx, decision); err != nil {
			return fmt.Errorf("create decision: %w", err)
		}

		if outcome == entity.OutcomeApprove {
			status, next, events, err := s.advancer.AdvanceOnApproval(txCtx, instanceID, decisionEvt.CorrelationID)
			if err != nil {
				return err
			}
			result.Status = status
			result.NextStage = next
			transitionEvents = events
		} else {
			events, err := s.advancer.ResolveOnRejection(txCtx, instanceID, decisionEvt.CorrelationID)
			if err != nil {
				return err
			}
			result.Status = entity.InstanceStatusRejected
			transitionEvents = events
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.DecisionRecorded(outcome)
	if result.Status != entity.InstanceStatusInProgress {
		s.metrics.WorkflowCompleted(result.Status)
	}
	s.logger.Info("Decision applied",
		"instance_id", instanceID,
		"stage_order", stageOrder,
		"user_id", userID,
		"outcome", outcome,
		"status", result.Status,
	)

	// Decision event first, then the transition it caused. Consumers link
	// the pair through the shared correlation id.
	s.emit(ctx, decisionEvt)
	for _, evt := range transitionEvents {
		s.emit(ctx, evt)
	}

	return result, nil
}

func (s *decisionServiceImpl) emit(ctx context.Context, evt *event.Event) {
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
