package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nlebrun/docuflow/internal/domain/entity"
	"github.com/nlebrun/docuflow/pkg/database"
)

// TemplateRepository handles workflow template database operations
type TemplateRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *database.DB, logger *zap.Logger) *TemplateRepository {
	return &TemplateRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the template and its stages in one unit
func (r *TemplateRepository) Create(ctx context.Context, tpl *entity.WorkflowTemplate) error {
	q := conn(ctx, r.db)
	now := time.Now()

	result, err := q.ExecContext(ctx, `
		INSERT INTO workflow_template (name, description, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, tpl.Name, tpl.Description, entity.TemplateStatusActive, now, now)
	if err != nil {
		r.logger.Error("Failed to create template", zap.Error(err))
		return fmt.Errorf("failed to create template: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	tpl.ID = id
	tpl.Status = entity.TemplateStatusActive
	tpl.CreatedAt = now
	tpl.UpdatedAt = now

	if err := r.insertStages(ctx, id, tpl.Stages); err != nil {
		return err
	}

	return nil
}

func (r *TemplateRepository) insertStages(ctx context.Context, templateID int64, stages []*entity.Stage) error {
	q := conn(ctx, r.db)

	for _, stage := range stages {
		result, err := q.ExecContext(ctx, `
			INSERT INTO workflow_stage (template_id, stage_order, name, approval_rule, required_role, max_delay_minutes)
			VALUES (?, ?, ?, ?, ?, ?)
		`, templateID, stage.Order, stage.Name, stage.ApprovalRule, stage.RequiredRole, stage.MaxDelay)
		if err != nil {
			r.logger.Error("Failed to insert stage",
				zap.Int64("template_id", templateID),
				zap.Int("stage_order", stage.Order),
				zap.Error(err))
			return fmt.Errorf("failed to insert stage: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		stage.ID = id
		stage.TemplateID = templateID
	}

	return nil
}

// GetByID retrieves a template with its stages ordered by stage order
func (r *TemplateRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowTemplate, error) {
	q := conn(ctx, r.db)

	var tpl entity.WorkflowTemplate
	err := q.QueryRowContext(ctx, `
		SELECT id, name, description, status, created_at, updated_at
		FROM workflow_template
		WHERE id = ?
	`, id).Scan(&tpl.ID, &tpl.Name, &tpl.Description, &tpl.Status, &tpl.CreatedAt, &tpl.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get template by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	stages, err := r.loadStages(ctx, id)
	if err != nil {
		return nil, err
	}
	tpl.Stages = stages

	return &tpl, nil
}

func (r *TemplateRepository) loadStages(ctx context.Context, templateID int64) ([]*entity.Stage, error) {
	q := conn(ctx, r.db)

	rows, err := q.QueryContext(ctx, `
		SELECT id, template_id, stage_order, name, approval_rule, required_role, max_delay_minutes
		FROM workflow_stage
		WHERE template_id = ?
		ORDER BY stage_order ASC
	`, templateID)
	if err != nil {
		r.logger.Error("Failed to load stages", zap.Int64("template_id", templateID), zap.Error(err))
		return nil, fmt.Errorf("failed to load stages: %w", err)
	}
	defer rows.Close()

	var stages []*entity.Stage
	for rows.Next() {
		var stage entity.Stage
		err := rows.Scan(
			&stage.ID,
			&stage.TemplateID,
			&stage.Order,
			&stage.Name,
			&stage.ApprovalRule,
			&stage.RequiredRole,
			&stage.MaxDelay,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		stages = append(stages, &stage)
	}

	return stages, rows.Err()
}

// List retrieves templates, optionally filtered by lifecycle status
func (r *TemplateRepository) List(ctx context.Context, status string) ([]*entity.WorkflowTemplate, error) {
	q := conn(ctx, r.db)

	query := `
		SELECT id, name, description, status, created_at, updated_at
		FROM workflow_template
	`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list templates", zap.Error(err))
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*entity.WorkflowTemplate
	for rows.Next() {
		var tpl entity.WorkflowTemplate
		err := rows.Scan(&tpl.ID, &tpl.Name, &tpl.Description, &tpl.Status, &tpl.CreatedAt, &tpl.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, &tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, tpl := range templates {
		stages, err := r.loadStages(ctx, tpl.ID)
		if err != nil {
			return nil, err
		}
		tpl.Stages = stages
	}

	return templates, nil
}

// UpdateMeta updates descriptive fields only
func (r *TemplateRepository) UpdateMeta(ctx context.Context, id int64, name, description string) error {
	q := conn(ctx, r.db)

	_, err := q.ExecContext(ctx, `
		UPDATE workflow_template SET name = ?, description = ?, updated_at = ? WHERE id = ?
	`, name, description, time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to update template meta", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update template: %w", err)
	}

	return nil
}

// ReplaceStages swaps the template's stage definitions
func (r *TemplateRepository) ReplaceStages(ctx context.Context, id int64, stages []*entity.Stage) error {
	q := conn(ctx, r.db)

	if _, err := q.ExecContext(ctx, `DELETE FROM workflow_stage WHERE template_id = ?`, id); err != nil {
		r.logger.Error("Failed to clear stages", zap.Int64("template_id", id), zap.Error(err))
		return fmt.Errorf("failed to clear stages: %w", err)
	}

	if err := r.insertStages(ctx, id, stages); err != nil {
		return err
	}

	_, err := q.ExecContext(ctx, `UPDATE workflow_template SET updated_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to touch template: %w", err)
	}

	return nil
}

// UpdateStatus changes the template lifecycle status
func (r *TemplateRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	q := conn(ctx, r.db)

	_, err := q.ExecContext(ctx, `
		UPDATE workflow_template SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to update template status", zap.Int64("id", id), zap.String("status", status), zap.Error(err))
		return fmt.Errorf("failed to update template status: %w", err)
	}

	return nil
}

// CountInstances returns how many instances reference the template
func (r *TemplateRepository) CountInstances(ctx context.Context, templateID int64) (int64, error) {
	q := conn(ctx, r.db)

	var count int64
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM workflow_instance WHERE template_id = ?
	`, templateID).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count instances", zap.Int64("template_id", templateID), zap.Error(err))
		return 0, fmt.Errorf("failed to count instances: %w", err)
	}

	return count, nil
}
