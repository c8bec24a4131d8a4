package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/nlebrun/docuflow/internal/application/port"
	"github.com/nlebrun/docuflow/internal/domain/entity"
	"github.com/nlebrun/docuflow/pkg/database"
)

// InstanceRepository handles workflow instance database operations
type InstanceRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *database.DB, logger *zap.Logger) *InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

const instanceColumns = `id, document_id, template_id, status, current_stage_order, started_by, started_at, completed_at`

// Create inserts a new instance. The partial unique index on active
// instances makes a second concurrent start for the same document fail;
// that violation is surfaced as entity.ErrDocumentInWorkflow.
func (r *InstanceRepository) Create(ctx context.Context, instance *entity.WorkflowInstance) error {
	q := conn(ctx, r.db)

	result, err := q.ExecContext(ctx, `
		INSERT INTO workflow_instance (document_id, template_id, status, current_stage_order, started_by, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, instance.DocumentID, instance.TemplateID, instance.Status, instance.CurrentStageOrder, instance.StartedBy, instance.StartedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return entity.ErrDocumentInWorkflow
		}
		r.logger.Error("Failed to create instance", zap.Int64("document_id", instance.DocumentID), zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	instance.ID = id
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetByID retrieves an instance by ID
func (r *InstanceRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error) {
	q := conn(ctx, r.db)

	return r.scanOne(q.QueryRowContext(ctx, `
		SELECT `+instanceColumns+`
		FROM workflow_instance
		WHERE id = ?
	`, id))
}

// GetActiveByDocumentID returns the IN_PROGRESS instance for the document
func (r *InstanceRepository) GetActiveByDocumentID(ctx context.Context, documentID int64) (*entity.WorkflowInstance, error) {
	q := conn(ctx, r.db)

	return r.scanOne(q.QueryRowContext(ctx, `
		SELECT `+instanceColumns+`
		FROM workflow_instance
		WHERE document_id = ? AND status = ?
	`, documentID, entity.InstanceStatusInProgress))
}

// GetLatestByDocumentID returns the most recently started instance for the
// document regardless of status
func (r *InstanceRepository) GetLatestByDocumentID(ctx context.Context, documentID int64) (*entity.WorkflowInstance, error) {
	q := conn(ctx, r.db)

	return r.scanOne(q.QueryRowContext(ctx, `
		SELECT `+instanceColumns+`
		FROM workflow_instance
		WHERE document_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, documentID))
}

func (r *InstanceRepository) scanOne(row *sql.Row) (*entity.WorkflowInstance, error) {
	var instance entity.WorkflowInstance
	var completedAt sql.NullTime

	err := row.Scan(
		&instance.ID,
		&instance.DocumentID,
		&instance.TemplateID,
		&instance.Status,
		&instance.CurrentStageOrder,
		&instance.StartedBy,
		&instance.StartedAt,
		&completedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance", zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	if completedAt.Valid {
		instance.CompletedAt = &completedAt.Time
	}

	return &instance, nil
}

// AdvanceStage moves current_stage_order forward on an active instance
func (r *InstanceRepository) AdvanceStage(ctx context.Context, id int64, nextOrder int) error {
	q := conn(ctx, r.db)

	result, err := q.ExecContext(ctx, `
		UPDATE workflow_instance
		SET current_stage_order = ?
		WHERE id = ? AND status = ?
	`, nextOrder, id, entity.InstanceStatusInProgress)
	if err != nil {
		r.logger.Error("Failed to advance stage", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to advance stage: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return entity.ErrInstanceNotActive
	}

	return nil
}

// Complete sets a terminal status and completion time. Terminal instances
// are immutable, so the update is conditioned on the active status.
func (r *InstanceRepository) Complete(ctx context.Context, id int64, status string, completedAt time.Time) error {
	q := conn(ctx, r.db)

	result, err := q.ExecContext(ctx, `
		UPDATE workflow_instance
		SET status = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`, status, completedAt, id, entity.InstanceStatusInProgress)
	if err != nil {
		r.logger.Error("Failed to complete instance", zap.Int64("id", id), zap.String("status", status), zap.Error(err))
		return fmt.Errorf("failed to complete instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return entity.ErrInstanceNotActive
	}

	return nil
}

// ListPendingByRoles returns pending approvals whose current stage requires
// one of the given roles
func (r *InstanceRepository) ListPendingByRoles(ctx context.Context, roles []string) ([]*port.PendingApproval, error) {
	if len(roles) == 0 {
		return nil, nil
	}

	q := conn(ctx, r.db)

	placeholders := strings.Repeat("?,", len(roles))
	placeholders = placeholders[:len(placeholders)-1]

	query := fmt.Sprintf(`
		SELECT i.id, i.document_id, i.current_stage_order, s.name, s.required_role, i.started_by, e.entered_at
		FROM workflow_instance i
		JOIN workflow_stage s ON s.template_id = i.template_id AND s.stage_order = i.current_stage_order
		JOIN stage_execution e ON e.instance_id = i.id AND e.stage_order = i.current_stage_order
		WHERE i.status = ? AND e.resolution = ? AND s.required_role IN (%s)
		ORDER BY e.entered_at ASC
	`, placeholders)

	args := []any{entity.InstanceStatusInProgress, entity.ResolutionPending}
	for _, role := range roles {
		args = append(args, role)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list pending approvals", zap.Strings("roles", roles), zap.Error(err))
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}
	defer rows.Close()

	var pending []*port.PendingApproval
	for rows.Next() {
		var p port.PendingApproval
		err := rows.Scan(
			&p.InstanceID,
			&p.DocumentID,
			&p.StageOrder,
			&p.StageName,
			&p.RequiredRole,
			&p.StartedBy,
			&p.EnteredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending approval: %w", err)
		}
		pending = append(pending, &p)
	}

	return pending, rows.Err()
}
