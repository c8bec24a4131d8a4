package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nlebrun/docuflow/internal/application/port"
	"github.com/nlebrun/docuflow/internal/domain/entity"
	"github.com/nlebrun/docuflow/pkg/database"
)

// ExecutionRepository handles stage execution database operations
type ExecutionRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewExecutionRepository creates a new execution repository
func NewExecutionRepository(db *database.DB, logger *zap.Logger) *ExecutionRepository {
	return &ExecutionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new stage execution
func (r *ExecutionRepository) Create(ctx context.Context, ex *entity.StageExecution) error {
	q := conn(ctx, r.db)

	result, err := q.ExecContext(ctx, `
		INSERT INTO stage_execution (instance_id, stage_order, entered_at, resolution)
		VALUES (?, ?, ?, ?)
	`, ex.InstanceID, ex.StageOrder, ex.EnteredAt, ex.Resolution)
	if err != nil {
		r.logger.Error("Failed to create execution",
			zap.Int64("instance_id", ex.InstanceID),
			zap.Int("stage_order", ex.StageOrder),
			zap.Error(err))
		return fmt.Errorf("failed to create execution: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	ex.ID = id
	return nil
}

// GetByInstanceAndOrder retrieves an execution by instance and stage order
func (r *ExecutionRepository) GetByInstanceAndOrder(ctx context.Context, instanceID int64, stageOrder int) (*entity.StageExecution, error) {
	q := conn(ctx, r.db)

	var ex entity.StageExecution
	var resolvedAt sql.NullTime

	err := q.QueryRowContext(ctx, `
		SELECT id, instance_id, stage_order, entered_at, resolved_at, resolution
		FROM stage_execution
		WHERE instance_id = ? AND stage_order = ?
	`, instanceID, stageOrder).Scan(
		&ex.ID,
		&ex.InstanceID,
		&ex.StageOrder,
		&ex.EnteredAt,
		&resolvedAt,
		&ex.Resolution,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get execution",
			zap.Int64("instance_id", instanceID),
			zap.Int("stage_order", stageOrder),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	if resolvedAt.Valid {
		ex.ResolvedAt = &resolvedAt.Time
	}

	return &ex, nil
}

// ListByInstanceID retrieves all executions of an instance in stage order
func (r *ExecutionRepository) ListByInstanceID(ctx context.Context, instanceID int64) ([]*entity.StageExecution, error) {
	q := conn(ctx, r.db)

	rows, err := q.QueryContext(ctx, `
		SELECT id, instance_id, stage_order, entered_at, resolved_at, resolution
		FROM stage_execution
		WHERE instance_id = ?
		ORDER BY stage_order ASC
	`, instanceID)
	if err != nil {
		r.logger.Error("Failed to list executions", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var executions []*entity.StageExecution
	for rows.Next() {
		var ex entity.StageExecution
		var resolvedAt sql.NullTime

		err := rows.Scan(
			&ex.ID,
			&ex.InstanceID,
			&ex.StageOrder,
			&ex.EnteredAt,
			&resolvedAt,
			&ex.Resolution,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		if resolvedAt.Valid {
			ex.ResolvedAt = &resolvedAt.Time
		}

		executions = append(executions, &ex)
	}

	return executions, rows.Err()
}

// Resolve flips the execution from PENDING to the given resolution. The
// conditional update is the arbiter between concurrent decisions: exactly
// one caller sees true, every other caller sees false.
func (r *ExecutionRepository) Resolve(ctx context.Context, id int64, resolution string, resolvedAt time.Time) (bool, error) {
	q := conn(ctx, r.db)

	result, err := q.ExecContext(ctx, `
		UPDATE stage_execution
		SET resolution = ?, resolved_at = ?
		WHERE id = ? AND resolution = ?
	`, resolution, resolvedAt, id, entity.ResolutionPending)
	if err != nil {
		r.logger.Error("Failed to resolve execution", zap.Int64("id", id), zap.String("resolution", resolution), zap.Error(err))
		return false, fmt.Errorf("failed to resolve execution: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}

// ListOverdue returns pending executions older than their stage's advisory
// max delay, as of the given time
func (r *ExecutionRepository) ListOverdue(ctx context.Context, asOf time.Time) ([]*port.OverdueExecution, error) {
	q := conn(ctx, r.db)

	rows, err := q.QueryContext(ctx, `
		SELECT e.id, e.instance_id, i.document_id, e.stage_order, s.required_role, e.entered_at, s.max_delay_minutes
		FROM stage_execution e
		JOIN workflow_instance i ON i.id = e.instance_id
		JOIN workflow_stage s ON s.template_id = i.template_id AND s.stage_order = e.stage_order
		WHERE e.resolution = ?
		  AND i.status = ?
		  AND s.max_delay_minutes > 0
		  AND datetime(e.entered_at) <= datetime(?, '-' || s.max_delay_minutes || ' minutes')
		ORDER BY e.entered_at ASC
	`, entity.ResolutionPending, entity.InstanceStatusInProgress, asOf.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		r.logger.Error("Failed to list overdue executions", zap.Error(err))
		return nil, fmt.Errorf("failed to list overdue executions: %w", err)
	}
	defer rows.Close()

	var overdue []*port.OverdueExecution
	for rows.Next() {
		var o port.OverdueExecution
		err := rows.Scan(
			&o.ExecutionID,
			&o.InstanceID,
			&o.DocumentID,
			&o.StageOrder,
			&o.RequiredRole,
			&o.EnteredAt,
			&o.MaxDelay,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan overdue execution: %w", err)
		}
		overdue = append(overdue, &o)
	}

	return overdue, rows.Err()
}
