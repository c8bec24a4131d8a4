package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nlebrun/docuflow/internal/application/port"
	"github.com/nlebrun/docuflow/internal/domain/entity"
)

// TemplateService manages workflow templates. Templates are pure data:
// structure is validated on write and frozen once any instance references
// the template; new stage layouts are published as new templates.
type TemplateService interface {
	CreateTemplate(ctx context.Context, name, description string, stages []*entity.Stage) (*entity.WorkflowTemplate, error)
	GetTemplate(ctx context.Context, id int64) (*entity.WorkflowTemplate, error)
	ListTemplates(ctx context.Context, status string) ([]*entity.WorkflowTemplate, error)
	UpdateMeta(ctx context.Context, id int64, name, description string) (*entity.WorkflowTemplate, error)
	UpdateStages(ctx context.Context, id int64, stages []*entity.Stage) (*entity.WorkflowTemplate, error)
	Retire(ctx context.Context, id int64) error
}

type templateServiceImpl struct {
	templateRepo port.TemplateRepository
	txManager    port.TransactionManager
	logger       Logger
}

// NewTemplateService creates a new TemplateService
func NewTemplateService(templateRepo port.TemplateRepository, txManager port.TransactionManager, logger Logger) TemplateService {
	return &templateServiceImpl{
		templateRepo: templateRepo,
		txManager:    txManager,
		logger:       logger,
	}
}

// CreateTemplate validates and persists a new template with its stages
func (s *templateServiceImpl) CreateTemplate(ctx context.Context, name, description string, stages []*entity.Stage) (*entity.WorkflowTemplate, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name is required", entity.ErrInvalidTemplate)
	}
	if err := validateStages(stages); err != nil {
		return nil, err
	}

	tpl := &entity.WorkflowTemplate{
		Name:        name,
		Description: description,
		Status:      entity.TemplateStatusActive,
		Stages:      stages,
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.templateRepo.Create(txCtx, tpl)
	})
	if err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}

	s.logger.Info("Template created",
		"template_id", tpl.ID,
		"name", tpl.Name,
		"stages", len(tpl.Stages),
	)
	return tpl, nil
}

// GetTemplate retrieves an active template with its stages
func (s *templateServiceImpl) GetTemplate(ctx context.Context, id int64) (*entity.WorkflowTemplate, error) {
	tpl, err := s.templateRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if tpl == nil || tpl.IsRetired() {
		return nil, fmt.Errorf("%w: id=%d", entity.ErrTemplateNotFound, id)
	}
	return tpl, nil
}

// ListTemplates retrieves templates, optionally filtered by status
func (s *templateServiceImpl) ListTemplates(ctx context.Context, status string) ([]*entity.WorkflowTemplate, error) {
	templates, err := s.templateRepo.List(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// UpdateMeta updates name and description. Descriptive fields stay mutable
// after first use; structure does not.
func (s *templateServiceImpl) UpdateMeta(ctx context.Context, id int64, name, description string) (*entity.WorkflowTemplate, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name is required", entity.ErrInvalidTemplate)
	}

	tpl, err := s.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.templateRepo.UpdateMeta(ctx, id, name, description); err != nil {
		return nil, fmt.Errorf("update template meta: %w", err)
	}

	tpl.Name = name
	tpl.Description = description
	return tpl, nil
}

// UpdateStages replaces the stage definitions of a template that no instance
// references yet
func (s *templateServiceImpl) UpdateStages(ctx context.Context, id int64, stages []*entity.Stage) (*entity.WorkflowTemplate, error) {
	tpl, err := s.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := validateStages(stages); err != nil {
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		// The in-use check shares the replace transaction. A workflow
		// started between a separate read and this write would bind an
		// instance to stage definitions that are about to change.
		count, err := s.templateRepo.CountInstances(txCtx, id)
		if err != nil {
			return fmt.Errorf("count template instances: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: id=%d has %d instance(s)", entity.ErrTemplateInUse, id, count)
		}
		return s.templateRepo.ReplaceStages(txCtx, id, stages)
	})
	if err != nil {
		if errors.Is(err, entity.ErrTemplateInUse) {
			return nil, err
		}
		return nil, fmt.Errorf("replace stages: %w", err)
	}

	s.logger.Info("Template stages replaced", "template_id", id, "stages", len(stages))

	tpl.Stages = stages
	return tpl, nil
}

// Retire takes a template out of service. Running instances keep their
// stage definitions; new workflows can no longer start from it.
func (s *templateServiceImpl) Retire(ctx context.Context, id int64) error {
	if _, err := s.GetTemplate(ctx, id); err != nil {
		return err
	}

	if err := s.templateRepo.UpdateStatus(ctx, id, entity.TemplateStatusRetired); err != nil {
		return fmt.Errorf("retire template: %w", err)
	}

	s.logger.Info("Template retired", "template_id", id)
	return nil
}

// validateStages enforces the template shape: at least one stage, order
// values 1..N contiguous and unique, a required role on every stage, and
// only the SINGLE approval rule.
func validateStages(stages []*entity.Stage) error {
	if len(stages) == 0 {
		return fmt.Errorf("%w: at least one stage is required", entity.ErrInvalidTemplate)
	}

	seen := make(map[int]bool, len(stages))
	for _, st := range stages {
		if st.Order < 1 || st.Order > len(stages) {
			return fmt.Errorf("%w: stage order %d out of range 1..%d", entity.ErrInvalidTemplate, st.Order, len(stages))
		}
		if seen[st.Order] {
			return fmt.Errorf("%w: duplicate stage order %d", entity.ErrInvalidTemplate, st.Order)
		}
		seen[st.Order] = true

		if strings.TrimSpace(st.RequiredRole) == "" {
			return fmt.Errorf("%w: stage %d has no required role", entity.ErrInvalidTemplate, st.Order)
		}
		if st.ApprovalRule == "" {
			st.ApprovalRule = entity.RuleSingle
		}
		if st.ApprovalRule != entity.RuleSingle {
			return fmt.Errorf("%w: unsupported approval rule %q on stage %d", entity.ErrInvalidTemplate, st.ApprovalRule, st.Order)
		}
		if st.MaxDelay < 0 {
			return fmt.Errorf("%w: stage %d has negative max_delay", entity.ErrInvalidTemplate, st.Order)
		}
	}

	return nil
}
