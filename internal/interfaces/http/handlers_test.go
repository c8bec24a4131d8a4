package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlebrun/docuflow/internal/application/port"
	"github.com/nlebrun/docuflow/internal/application/service"
	"github.com/nlebrun/docuflow/internal/domain/entity"
)

type mockWorkflows struct {
	startFunc       func(ctx context.Context, documentID, templateID int64, initiatorID, comment string) (*entity.WorkflowInstance, bool, error)
	getInstanceFunc func(ctx context.Context, id int64) (*entity.WorkflowInstance, error)
	getStatusFunc   func(ctx context.Context, documentID int64) (*service.WorkflowStatus, error)
	listPendingFunc func(ctx context.Context, userID string) ([]*port.PendingApproval, error)
}

func (m *mockWorkflows) StartWorkflow(ctx context.Context, documentID, templateID int64, initiatorID, comment string) (*entity.WorkflowInstance, bool, error) {
	return m.startFunc(ctx, documentID, templateID, initiatorID, comment)
}

func (m *mockWorkflows) GetInstance(ctx context.Context, id int64) (*entity.WorkflowInstance, error) {
	return m.getInstanceFunc(ctx, id)
}

func (m *mockWorkflows) GetStatus(ctx context.Context, documentID int64) (*service.WorkflowStatus, error) {
	return m.getStatusFunc(ctx, documentID)
}

func (m *mockWorkflows) ListPending(ctx context.Context, userID string) ([]*port.PendingApproval, error) {
	return m.listPendingFunc(ctx, userID)
}

type mockDecisions struct {
	decideFunc func(ctx context.Context, instanceID int64, stageOrder int, userID, outcome, comment string) (*service.DecisionResult, error)
}

func (m *mockDecisions) Decide(ctx context.Context, instanceID int64, stageOrder int, userID, outcome, comment string) (*service.DecisionResult, error) {
	return m.decideFunc(ctx, instanceID, stageOrder, userID, outcome, comment)
}

type mockTemplates struct {
	createFunc       func(ctx context.Context, name, description string, stages []*entity.Stage) (*entity.WorkflowTemplate, error)
	getFunc          func(ctx context.Context, id int64) (*entity.WorkflowTemplate, error)
	listFunc         func(ctx context.Context, status string) ([]*entity.WorkflowTemplate, error)
	updateMetaFunc   func(ctx context.Context, id int64, name, description string) (*entity.WorkflowTemplate, error)
	updateStagesFunc func(ctx context.Context, id int64, stages []*entity.Stage) (*entity.WorkflowTemplate, error)
	retireFunc       func(ctx context.Context, id int64) error
}

func (m *mockTemplates) CreateTemplate(ctx context.Context, name, description string, stages []*entity.Stage) (*entity.WorkflowTemplate, error) {
	return m.createFunc(ctx, name, description, stages)
}

func (m *mockTemplates) GetTemplate(ctx context.Context, id int64) (*entity.WorkflowTemplate, error) {
	return m.getFunc(ctx, id)
}

func (m *mockTemplates) ListTemplates(ctx context.Context, status string) ([]*entity.WorkflowTemplate, error) {
	return m.listFunc(ctx, status)
}

func (m *mockTemplates) UpdateMeta(ctx context.Context, id int64, name, description string) (*entity.WorkflowTemplate, error) {
	return m.updateMetaFunc(ctx, id, name, description)
}

func (m *mockTemplates) UpdateStages(ctx context.Context, id int64, stages []*entity.Stage) (*entity.WorkflowTemplate, error) {
	return m.updateStagesFunc(ctx, id, stages)
}

func (m *mockTemplates) Retire(ctx context.Context, id int64) error {
	return m.retireFunc(ctx, id)
}

type mockStats struct {
	aggregateFunc func(ctx context.Context, filter port.StatsFilter) (*port.WorkflowStats, error)
	byTplFunc     func(ctx context.Context, filter port.StatsFilter) ([]*port.TemplateStats, error)
	exportFunc    func(ctx context.Context, filter port.StatsFilter) ([]byte, error)
}

func (m *mockStats) Aggregate(ctx context.Context, filter port.StatsFilter) (*port.WorkflowStats, error) {
	return m.aggregateFunc(ctx, filter)
}

func (m *mockStats) AggregateByTemplate(ctx context.Context, filter port.StatsFilter) ([]*port.TemplateStats, error) {
	return m.byTplFunc(ctx, filter)
}

func (m *mockStats) ExportExcel(ctx context.Context, filter port.StatsFilter) ([]byte, error) {
	return m.exportFunc(ctx, filter)
}

type mockRoles struct {
	admins map[string]bool
}

func (m *mockRoles) ResolveApprovers(ctx context.Context, role string) ([]string, error) {
	return nil, nil
}

func (m *mockRoles) IsEligible(ctx context.Context, userID, role string) (bool, error) {
	return m.admins[userID], nil
}

func (m *mockRoles) RolesOf(ctx context.Context, userID string) ([]string, error) {
	return nil, nil
}

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

type fixture struct {
	workflows *mockWorkflows
	decisions *mockDecisions
	templates *mockTemplates
	stats     *mockStats
	roles     *mockRoles
	server    *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		workflows: &mockWorkflows{},
		decisions: &mockDecisions{},
		templates: &mockTemplates{},
		stats:     &mockStats{},
		roles:     &mockRoles{admins: map[string]bool{"admin-1": true}},
	}
	f.server = NewServer(DefaultServerConfig(), f.workflows, f.decisions, f.templates, f.stats, f.roles, nil, nopLogger{})
	return f
}

func (f *fixture) do(method, path, user string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(userHeader, user)
	}

	w := httptest.NewRecorder()
	f.server.Router().ServeHTTP(w, req)
	return w
}

func TestStartWorkflow_Created(t *testing.T) {
	f := newFixture(t)
	f.workflows.startFunc = func(ctx context.Context, documentID, templateID int64, initiatorID, comment string) (*entity.WorkflowInstance, bool, error) {
		assert.Equal(t, int64(100), documentID)
		assert.Equal(t, "alice", initiatorID)
		return &entity.WorkflowInstance{
			ID:                1,
			DocumentID:        documentID,
			Status:            entity.InstanceStatusInProgress,
			CurrentStageOrder: 1,
			StartedBy:         initiatorID,
			StartedAt:         time.Now(),
		}, true, nil
	}

	w := f.do(http.MethodPost, "/api/v1/workflows", "alice", gin.H{"document_id": 100, "template_id": 1})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Data StartWorkflowResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Data.InstanceID)
	assert.Equal(t, entity.InstanceStatusInProgress, resp.Data.Status)
	assert.Equal(t, 1, resp.Data.CurrentStage)
}

func TestStartWorkflow_InitiatorRetryReturnsOK(t *testing.T) {
	f := newFixture(t)
	f.workflows.startFunc = func(ctx context.Context, documentID, templateID int64, initiatorID, comment string) (*entity.WorkflowInstance, bool, error) {
		return &entity.WorkflowInstance{
			ID:                1,
			Status:            entity.InstanceStatusInProgress,
			CurrentStageOrder: 2,
			StartedAt:         time.Now().Add(-time.Hour),
		}, false, nil
	}

	w := f.do(http.MethodPost, "/api/v1/workflows", "alice", gin.H{"document_id": 100, "template_id": 1})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStartWorkflow_Conflict(t *testing.T) {
	f := newFixture(t)
	f.workflows.startFunc = func(ctx context.Context, documentID, templateID int64, initiatorID, comment string) (*entity.WorkflowInstance, bool, error) {
		return nil, false, entity.ErrDocumentInWorkflow
	}

	w := f.do(http.MethodPost, "/api/v1/workflows", "bob", gin.H{"document_id": 100, "template_id": 1})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStartWorkflow_MissingIdentity(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/workflows", "", gin.H{"document_id": 100, "template_id": 1})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStartWorkflow_UnknownTemplate(t *testing.T) {
	f := newFixture(t)
	f.workflows.startFunc = func(ctx context.Context, documentID, templateID int64, initiatorID, comment string) (*entity.WorkflowInstance, bool, error) {
		return nil, false, entity.ErrTemplateNotFound
	}

	w := f.do(http.MethodPost, "/api/v1/workflows", "alice", gin.H{"document_id": 100, "template_id": 99})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDecide_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not eligible", entity.ErrNotAuthorized, http.StatusForbidden},
		{"unknown instance", entity.ErrInstanceNotFound, http.StatusNotFound},
		{"terminal instance", entity.ErrInstanceNotActive, http.StatusConflict},
		{"stale stage", entity.ErrStaleStage, http.StatusConflict},
		{"lost race", entity.ErrAlreadyResolved, http.StatusConflict},
		{"bad outcome", entity.ErrInvalidDecision, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.decisions.decideFunc = func(ctx context.Context, instanceID int64, stageOrder int, userID, outcome, comment string) (*service.DecisionResult, error) {
				return nil, tt.err
			}

			w := f.do(http.MethodPost, "/api/v1/workflows/decide", "alice",
				gin.H{"instance_id": 1, "stage_order": 1, "outcome": "APPROVE"})
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestDecide_Success(t *testing.T) {
	f := newFixture(t)
	f.decisions.decideFunc = func(ctx context.Context, instanceID int64, stageOrder int, userID, outcome, comment string) (*service.DecisionResult, error) {
		assert.Equal(t, "alice", userID)
		assert.Equal(t, entity.OutcomeApprove, outcome)
		return &service.DecisionResult{InstanceID: instanceID, Status: entity.InstanceStatusInProgress, NextStage: 2}, nil
	}

	w := f.do(http.MethodPost, "/api/v1/workflows/decide", "alice",
		gin.H{"instance_id": 1, "stage_order": 1, "outcome": "APPROVE", "comment": "ok"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data service.DecisionResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.NextStage)
}

func TestListPending(t *testing.T) {
	f := newFixture(t)
	f.workflows.listPendingFunc = func(ctx context.Context, userID string) ([]*port.PendingApproval, error) {
		assert.Equal(t, "alice", userID)
		return []*port.PendingApproval{{InstanceID: 1, DocumentID: 100, StageOrder: 1, RequiredRole: "manager"}}, nil
	}

	w := f.do(http.MethodGet, "/api/v1/workflows/pending", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []*port.PendingApproval `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, int64(100), resp.Data[0].DocumentID)
}

func TestGetDocumentStatus(t *testing.T) {
	f := newFixture(t)
	f.workflows.getStatusFunc = func(ctx context.Context, documentID int64) (*service.WorkflowStatus, error) {
		assert.Equal(t, int64(100), documentID)
		return &service.WorkflowStatus{HasWorkflow: true, Status: entity.InstanceStatusInProgress, CurrentStage: 2}, nil
	}

	w := f.do(http.MethodGet, "/api/v1/documents/100/workflow-status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data service.WorkflowStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data.HasWorkflow)
	assert.Equal(t, 2, resp.Data.CurrentStage)
}

func TestStatistics_RequiresAdminRole(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/workflows/statistics", "alice", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestStatistics_AdminGetsRollup(t *testing.T) {
	f := newFixture(t)
	f.stats.aggregateFunc = func(ctx context.Context, filter port.StatsFilter) (*port.WorkflowStats, error) {
		return &port.WorkflowStats{Total: 3, Approved: 2, Rejected: 1}, nil
	}
	f.stats.byTplFunc = func(ctx context.Context, filter port.StatsFilter) ([]*port.TemplateStats, error) {
		return []*port.TemplateStats{{TemplateID: 1, TemplateName: "Purchase review"}}, nil
	}

	w := f.do(http.MethodGet, "/api/v1/workflows/statistics", "admin-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data StatisticsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.Data.Summary.Total)
	require.Len(t, resp.Data.ByTemplate, 1)
}

func TestStatistics_FilterParsing(t *testing.T) {
	f := newFixture(t)
	f.stats.aggregateFunc = func(ctx context.Context, filter port.StatsFilter) (*port.WorkflowStats, error) {
		assert.Equal(t, int64(7), filter.TemplateID)
		require.NotNil(t, filter.Since)
		assert.Equal(t, 2026, filter.Since.Year())
		return &port.WorkflowStats{}, nil
	}
	f.stats.byTplFunc = func(ctx context.Context, filter port.StatsFilter) ([]*port.TemplateStats, error) {
		return nil, nil
	}

	w := f.do(http.MethodGet, "/api/v1/workflows/statistics?template_id=7&since=2026-01-01T00:00:00Z", "admin-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/api/v1/workflows/statistics?since=yesterday", "admin-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportStatistics(t *testing.T) {
	f := newFixture(t)
	f.stats.exportFunc = func(ctx context.Context, filter port.StatsFilter) ([]byte, error) {
		return []byte("workbook-bytes"), nil
	}

	w := f.do(http.MethodGet, "/api/v1/workflows/statistics/export", "admin-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	assert.Equal(t, "workbook-bytes", w.Body.String())
}

func TestCreateTemplate(t *testing.T) {
	f := newFixture(t)
	f.templates.createFunc = func(ctx context.Context, name, description string, stages []*entity.Stage) (*entity.WorkflowTemplate, error) {
		require.Len(t, stages, 1)
		assert.Equal(t, "manager", stages[0].RequiredRole)
		return &entity.WorkflowTemplate{ID: 1, Name: name, Status: entity.TemplateStatusActive}, nil
	}

	w := f.do(http.MethodPost, "/api/v1/templates", "admin-1", gin.H{
		"name": "Purchase review",
		"stages": []gin.H{
			{"order": 1, "name": "Manager review", "required_role": "manager"},
		},
	})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestCreateTemplate_InvalidDefinition(t *testing.T) {
	f := newFixture(t)
	f.templates.createFunc = func(ctx context.Context, name, description string, stages []*entity.Stage) (*entity.WorkflowTemplate, error) {
		return nil, entity.ErrInvalidTemplate
	}

	w := f.do(http.MethodPost, "/api/v1/templates", "admin-1", gin.H{"name": "bad", "stages": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateTemplateStages_InUse(t *testing.T) {
	f := newFixture(t)
	f.templates.updateStagesFunc = func(ctx context.Context, id int64, stages []*entity.Stage) (*entity.WorkflowTemplate, error) {
		return nil, entity.ErrTemplateInUse
	}

	w := f.do(http.MethodPut, "/api/v1/templates/1/stages", "admin-1", gin.H{
		"stages": []gin.H{{"order": 1, "name": "x", "required_role": "manager"}},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTemplateEndpoints_NonAdminForbidden(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/templates", "alice", gin.H{"name": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
