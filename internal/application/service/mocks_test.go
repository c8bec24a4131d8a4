package service

import (
	"context"
	"sync"
	"time"

	"github.com/nlebrun/docuflow/internal/application/port"
	"github.com/nlebrun/docuflow/internal/domain/entity"
	"github.com/nlebrun/docuflow/internal/domain/event"
)

// Mock repositories in the func-field style: zero value gives permissive
// defaults, individual behaviors are overridden per test.

type mockTemplateRepo struct {
	createFunc         func(ctx context.Context, tpl *entity.WorkflowTemplate) error
	getByIDFunc        func(ctx context.Context, id int64) (*entity.WorkflowTemplate, error)
	listFunc           func(ctx context.Context, status string) ([]*entity.WorkflowTemplate, error)
	updateMetaFunc     func(ctx context.Context, id int64, name, description string) error
	replaceStagesFunc  func(ctx context.Context, id int64, stages []*entity.Stage) error
	updateStatusFunc   func(ctx context.Context, id int64, status string) error
	countInstancesFunc func(ctx context.Context, templateID int64) (int64, error)
}

func (m *mockTemplateRepo) Create(ctx context.Context, tpl *entity.WorkflowTemplate) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, tpl)
	}
	tpl.ID = 1
	return nil
}

func (m *mockTemplateRepo) GetByID(ctx context.Context, id int64) (*entity.WorkflowTemplate, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockTemplateRepo) List(ctx context.Context, status string) ([]*entity.WorkflowTemplate, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, status)
	}
	return []*entity.WorkflowTemplate{}, nil
}

func (m *mockTemplateRepo) UpdateMeta(ctx context.Context, id int64, name, description string) error {
	if m.updateMetaFunc != nil {
		return m.updateMetaFunc(ctx, id, name, description)
	}
	return nil
}

func (m *mockTemplateRepo) ReplaceStages(ctx context.Context, id int64, stages []*entity.Stage) error {
	if m.replaceStagesFunc != nil {
		return m.replaceStagesFunc(ctx, id, stages)
	}
	return nil
}

func (m *mockTemplateRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	if m.updateStatusFunc != nil {
		return m.updateStatusFunc(ctx, id, status)
	}
	return nil
}

func (m *mockTemplateRepo) CountInstances(ctx context.Context, templateID int64) (int64, error) {
	if m.countInstancesFunc != nil {
		return m.countInstancesFunc(ctx, templateID)
	}
	return 0, nil
}

type mockInstanceRepo struct {
	createFunc                func(ctx context.Context, instance *entity.WorkflowInstance) error
	getByIDFunc               func(ctx context.Context, id int64) (*entity.WorkflowInstance, error)
	getActiveByDocumentIDFunc func(ctx context.Context, documentID int64) (*entity.WorkflowInstance, error)
	getLatestByDocumentIDFunc func(ctx context.Context, documentID int64) (*entity.WorkflowInstance, error)
	advanceStageFunc          func(ctx context.Context, id int64, nextOrder int) error
	completeFunc              func(ctx context.Context, id int64, status string, completedAt time.Time) error
	listPendingByRolesFunc    func(ctx context.Context, roles []string) ([]*port.PendingApproval, error)
}

func (m *mockInstanceRepo) Create(ctx context.Context, instance *entity.WorkflowInstance) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, instance)
	}
	instance.ID = 1
	return nil
}

func (m *mockInstanceRepo) GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockInstanceRepo) GetActiveByDocumentID(ctx context.Context, documentID int64) (*entity.WorkflowInstance, error) {
	if m.getActiveByDocumentIDFunc != nil {
		return m.getActiveByDocumentIDFunc(ctx, documentID)
	}
	return nil, nil
}

func (m *mockInstanceRepo) GetLatestByDocumentID(ctx context.Context, documentID int64) (*entity.WorkflowInstance, error) {
	if m.getLatestByDocumentIDFunc != nil {
		return m.getLatestByDocumentIDFunc(ctx, documentID)
	}
	return nil, nil
}

func (m *mockInstanceRepo) AdvanceStage(ctx context.Context, id int64, nextOrder int) error {
	if m.advanceStageFunc != nil {
		return m.advanceStageFunc(ctx, id, nextOrder)
	}
	return nil
}

func (m *mockInstanceRepo) Complete(ctx context.Context, id int64, status string, completedAt time.Time) error {
	if m.completeFunc != nil {
		return m.completeFunc(ctx, id, status, completedAt)
	}
	return nil
}

func (m *mockInstanceRepo) ListPendingByRoles(ctx context.Context, roles []string) ([]*port.PendingApproval, error) {
	if m.listPendingByRolesFunc != nil {
		return m.listPendingByRolesFunc(ctx, roles)
	}
	return []*port.PendingApproval{}, nil
}

type mockExecutionRepo struct {
	createFunc                func(ctx context.Context, ex *entity.StageExecution) error
	getByInstanceAndOrderFunc func(ctx context.Context, instanceID int64, stageOrder int) (*entity.StageExecution, error)
	listByInstanceIDFunc      func(ctx context.Context, instanceID int64) ([]*entity.StageExecution, error)
	resolveFunc               func(ctx context.Context, id int64, resolution string, resolvedAt time.Time) (bool, error)
	listOverdueFunc           func(ctx context.Context, asOf time.Time) ([]*port.OverdueExecution, error)
}

func (m *mockExecutionRepo) Create(ctx context.Context, ex *entity.StageExecution) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, ex)
	}
	ex.ID = ex.InstanceID*100 + int64(ex.StageOrder)
	return nil
}

func (m *mockExecutionRepo) GetByInstanceAndOrder(ctx context.Context, instanceID int64, stageOrder int) (*entity.StageExecution, error) {
	if m.getByInstanceAndOrderFunc != nil {
		return m.getByInstanceAndOrderFunc(ctx, instanceID, stageOrder)
	}
	return nil, nil
}

func (m *mockExecutionRepo) ListByInstanceID(ctx context.Context, instanceID int64) ([]*entity.StageExecution, error) {
	if m.listByInstanceIDFunc != nil {
		return m.listByInstanceIDFunc(ctx, instanceID)
	}
	return []*entity.StageExecution{}, nil
}

func (m *mockExecutionRepo) Resolve(ctx context.Context, id int64, resolution string, resolvedAt time.Time) (bool, error) {
	if m.resolveFunc != nil {
		return m.resolveFunc(ctx, id, resolution, resolvedAt)
	}
	return true, nil
}

func (m *mockExecutionRepo) ListOverdue(ctx context.Context, asOf time.Time) ([]*port.OverdueExecution, error) {
	if m.listOverdueFunc != nil {
		return m.listOverdueFunc(ctx, asOf)
	}
	return []*port.OverdueExecution{}, nil
}

type mockDecisionRepo struct {
	createFunc           func(ctx context.Context, decision *entity.Decision) error
	getByExecutionIDFunc func(ctx context.Context, executionID int64) (*entity.Decision, error)
	listByInstanceIDFunc func(ctx context.Context, instanceID int64) ([]*entity.Decision, error)
}

func (m *mockDecisionRepo) Create(ctx context.Context, decision *entity.Decision) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, decision)
	}
	decision.ID = 1
	return nil
}

func (m *mockDecisionRepo) GetByExecutionID(ctx context.Context, executionID int64) (*entity.Decision, error) {
	if m.getByExecutionIDFunc != nil {
		return m.getByExecutionIDFunc(ctx, executionID)
	}
	return nil, nil
}

func (m *mockDecisionRepo) ListByInstanceID(ctx context.Context, instanceID int64) ([]*entity.Decision, error) {
	if m.listByInstanceIDFunc != nil {
		return m.listByInstanceIDFunc(ctx, instanceID)
	}
	return []*entity.Decision{}, nil
}

type mockStatsRepo struct {
	aggregateFunc           func(ctx context.Context, filter port.StatsFilter) (*port.WorkflowStats, error)
	aggregateByTemplateFunc func(ctx context.Context, filter port.StatsFilter) ([]*port.TemplateStats, error)
}

func (m *mockStatsRepo) Aggregate(ctx context.Context, filter port.StatsFilter) (*port.WorkflowStats, error) {
	if m.aggregateFunc != nil {
		return m.aggregateFunc(ctx, filter)
	}
	return &port.WorkflowStats{}, nil
}

func (m *mockStatsRepo) AggregateByTemplate(ctx context.Context, filter port.StatsFilter) ([]*port.TemplateStats, error) {
	if m.aggregateByTemplateFunc != nil {
		return m.aggregateByTemplateFunc(ctx, filter)
	}
	return []*port.TemplateStats{}, nil
}

type mockRoleDirectory struct {
	// roles maps user id to held roles
	roles map[string][]string
}

func (m *mockRoleDirectory) ResolveApprovers(ctx context.Context, role string) ([]string, error) {
	var users []string
	for user, held := range m.roles {
		for _, r := range held {
			if r == role {
				users = append(users, user)
			}
		}
	}
	return users, nil
}

func (m *mockRoleDirectory) RolesOf(ctx context.Context, userID string) ([]string, error) {
	return m.roles[userID], nil
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// mockSink records dispatched events in order
type mockSink struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockSink) Dispatch(ctx context.Context, evt *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *mockSink) types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]event.Type, len(m.events))
	for i, evt := range m.events {
		types[i] = evt.Type
	}
	return types
}

type mockLogger struct{}

func (mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (mockLogger) Error(msg string, keysAndValues ...interface{}) {}
