package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nlebrun/docuflow/internal/application/port"
	"github.com/nlebrun/docuflow/internal/application/service"
	"github.com/nlebrun/docuflow/internal/domain/entity"
)

// userHeader carries the acting user id, set by the upstream auth layer.
const userHeader = "X-User-ID"

const userKey = "user_id"

// Handlers contains all HTTP request handlers
type Handlers struct {
	workflows service.WorkflowService
	decisions service.DecisionService
	templates service.TemplateService
	stats     service.StatsService
	roles     service.RoleService
	adminRole string
	logger    Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	workflows service.WorkflowService,
	decisions service.DecisionService,
	templates service.TemplateService,
	stats service.StatsService,
	roles service.RoleService,
	adminRole string,
	logger Logger,
) *Handlers {
	return &Handlers{
		workflows: workflows,
		decisions: decisions,
		templates: templates,
		stats:     stats,
		roles:     roles,
		adminRole: adminRole,
		logger:    logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// StartWorkflowRequest is the body of POST /workflows
type StartWorkflowRequest struct {
	DocumentID int64  `json:"document_id" binding:"required"`
	TemplateID int64  `json:"template_id" binding:"required"`
	Comment    string `json:"comment"`
}

// StartWorkflowResponse is returned after starting (or re-finding) a workflow
type StartWorkflowResponse struct {
	InstanceID   int64  `json:"instance_id"`
	Status       string `json:"status"`
	CurrentStage int    `json:"current_stage"`
}

// DecideRequest is the body of POST /workflows/decide
type DecideRequest struct {
	InstanceID int64  `json:"instance_id" binding:"required"`
	StageOrder int    `json:"stage_order" binding:"required"`
	Outcome    string `json:"outcome" binding:"required"`
	Comment    string `json:"comment"`
}

// StageRequest describes one stage in template create/update bodies
type StageRequest struct {
	Order        int    `json:"order"`
	Name         string `json:"name"`
	ApprovalRule string `json:"approval_rule"`
	RequiredRole string `json:"required_role"`
	MaxDelay     int    `json:"max_delay"`
}

// TemplateRequest is the body of POST /templates and PUT /templates/:id
type TemplateRequest struct {
	Name        string         `json:"name" binding:"required"`
	Description string         `json:"description"`
	Stages      []StageRequest `json:"stages"`
}

// StagesRequest is the body of PUT /templates/:id/stages
type StagesRequest struct {
	Stages []StageRequest `json:"stages" binding:"required"`
}

// StatisticsResponse bundles the rollup with its per-template breakdown
type StatisticsResponse struct {
	Summary    *port.WorkflowStats   `json:"summary"`
	ByTemplate []*port.TemplateStats `json:"by_template"`
}

// RequireUser extracts the acting user from the identity header.
func (h *Handlers) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(userHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "missing " + userHeader + " header",
			})
			return
		}
		c.Set(userKey, userID)
		c.Next()
	}
}

// RequireAdmin gates privileged endpoints on the configured admin role.
func (h *Handlers) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(userKey)
		ok, err := h.roles.IsEligible(c.Request.Context(), userID, h.adminRole)
		if err != nil {
			h.logger.Error("Role check failed", "user_id", userID, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, Response{
				Success: false,
				Error:   "role check failed",
			})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, Response{
				Success: false,
				Error:   "insufficient privileges",
			})
			return
		}
		c.Next()
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// StartWorkflow handles POST /api/v1/workflows
func (h *Handlers) StartWorkflow(c *gin.Context) {
	var req StartWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	userID := c.GetString(userKey)

	instance, created, err := h.workflows.StartWorkflow(c.Request.Context(), req.DocumentID, req.TemplateID, userID, req.Comment)
	if err != nil {
		h.writeError(c, err)
		return
	}

	// The initiator's retry gets the existing instance back with 200.
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Data: StartWorkflowResponse{
			InstanceID:   instance.ID,
			Status:       instance.Status,
			CurrentStage: instance.CurrentStageOrder,
		},
	})
}

// ListPending handles GET /api/v1/workflows/pending
func (h *Handlers) ListPending(c *gin.Context) {
	userID := c.GetString(userKey)

	pending, err := h.workflows.ListPending(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if pending == nil {
		pending = []*port.PendingApproval{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: pending})
}

// Decide handles POST /api/v1/workflows/decide
func (h *Handlers) Decide(c *gin.Context) {
	var req DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	userID := c.GetString(userKey)

	result, err := h.decisions.Decide(c.Request.Context(), req.InstanceID, req.StageOrder, userID, req.Outcome, req.Comment)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// GetInstance handles GET /api/v1/workflows/:id
func (h *Handlers) GetInstance(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	instance, err := h.workflows.GetInstance(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: instance})
}

// GetDocumentStatus handles GET /api/v1/documents/:id/workflow-status
func (h *Handlers) GetDocumentStatus(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	status, err := h.workflows.GetStatus(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: status})
}

// GetStatistics handles GET /api/v1/workflows/statistics
func (h *Handlers) GetStatistics(c *gin.Context) {
	filter, ok := h.statsFilter(c)
	if !ok {
		return
	}

	summary, err := h.stats.Aggregate(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	byTemplate, err := h.stats.AggregateByTemplate(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    StatisticsResponse{Summary: summary, ByTemplate: byTemplate},
	})
}

// ExportStatistics handles GET /api/v1/workflows/statistics/export
func (h *Handlers) ExportStatistics(c *gin.Context) {
	filter, ok := h.statsFilter(c)
	if !ok {
		return
	}

	workbook, err := h.stats.ExportExcel(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}

	filename := "workflow-statistics-" + time.Now().UTC().Format("20060102") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", workbook)
}

// CreateTemplate handles POST /api/v1/templates
func (h *Handlers) CreateTemplate(c *gin.Context) {
	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	tpl, err := h.templates.CreateTemplate(c.Request.Context(), req.Name, req.Description, toStages(req.Stages))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: tpl})
}

// ListTemplates handles GET /api/v1/templates
func (h *Handlers) ListTemplates(c *gin.Context) {
	templates, err := h.templates.ListTemplates(c.Request.Context(), c.Query("status"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if templates == nil {
		templates = []*entity.WorkflowTemplate{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: templates})
}

// GetTemplate handles GET /api/v1/templates/:id
func (h *Handlers) GetTemplate(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	tpl, err := h.templates.GetTemplate(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: tpl})
}

// UpdateTemplateMeta handles PUT /api/v1/templates/:id
func (h *Handlers) UpdateTemplateMeta(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	tpl, err := h.templates.UpdateMeta(c.Request.Context(), id, req.Name, req.Description)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: tpl})
}

// UpdateTemplateStages handles PUT /api/v1/templates/:id/stages
func (h *Handlers) UpdateTemplateStages(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req StagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	tpl, err := h.templates.UpdateStages(c.Request.Context(), id, toStages(req.Stages))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: tpl})
}

// RetireTemplate handles DELETE /api/v1/templates/:id
func (h *Handlers) RetireTemplate(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	if err := h.templates.Retire(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

func (h *Handlers) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid id"})
		return 0, false
	}
	return id, true
}

func (h *Handlers) statsFilter(c *gin.Context) (port.StatsFilter, bool) {
	var filter port.StatsFilter

	if raw := c.Query("template_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid template_id"})
			return filter, false
		}
		filter.TemplateID = id
	}
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid since timestamp"})
			return filter, false
		}
		filter.Since = &t
	}
	if raw := c.Query("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid until timestamp"})
			return filter, false
		}
		filter.Until = &t
	}

	return filter, true
}

// writeError translates the engine error taxonomy to HTTP status codes.
func (h *Handlers) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, entity.ErrInvalidTemplate),
		errors.Is(err, entity.ErrInvalidDecision):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, entity.ErrNotAuthorized):
		status = http.StatusForbidden
		message = err.Error()
	case errors.Is(err, entity.ErrTemplateNotFound),
		errors.Is(err, entity.ErrInstanceNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, entity.ErrDocumentInWorkflow),
		errors.Is(err, entity.ErrTemplateInUse),
		errors.Is(err, entity.ErrInstanceNotActive),
		errors.Is(err, entity.ErrStaleStage),
		errors.Is(err, entity.ErrAlreadyResolved):
		status = http.StatusConflict
		message = err.Error()
	default:
		h.logger.Error("Request failed", "error", err)
	}

	c.JSON(status, Response{Success: false, Error: message})
}

func toStages(reqs []StageRequest) []*entity.Stage {
	stages := make([]*entity.Stage, 0, len(reqs))
	for _, r := range reqs {
		stages = append(stages, &entity.Stage{
			Order:        r.Order,
			Name:         r.Name,
			ApprovalRule: r.ApprovalRule,
			RequiredRole: r.RequiredRole,
			MaxDelay:     r.MaxDelay,
		})
	}
	return stages
}
