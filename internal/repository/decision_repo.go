package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/nlebrun/docuflow/internal/domain/entity"
	"github.com/nlebrun/docuflow/pkg/database"
)

// DecisionRepository handles decision database operations
type DecisionRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewDecisionRepository creates a new decision repository
func NewDecisionRepository(db *database.DB, logger *zap.Logger) *DecisionRepository {
	return &DecisionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new decision
func (r *DecisionRepository) Create(ctx context.Context, decision *entity.Decision) error {
	q := conn(ctx, r.db)

	result, err := q.ExecContext(ctx, `
		INSERT INTO decision (execution_id, decided_by, decided_at, outcome, comment)
		VALUES (?, ?, ?, ?, ?)
	`, decision.ExecutionID, decision.DecidedBy, decision.DecidedAt, decision.Outcome, decision.Comment)
	if err != nil {
		r.logger.Error("Failed to create decision", zap.Int64("execution_id", decision.ExecutionID), zap.Error(err))
		return fmt.Errorf("failed to create decision: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	decision.ID = id
	return nil
}

// GetByExecutionID retrieves the decision that resolved an execution
func (r *DecisionRepository) GetByExecutionID(ctx context.Context, executionID int64) (*entity.Decision, error) {
	q := conn(ctx, r.db)

	var decision entity.Decision
	err := q.QueryRowContext(ctx, `
		SELECT id, execution_id, decided_by, decided_at, outcome, comment
		FROM decision
		WHERE execution_id = ?
	`, executionID).Scan(
		&decision.ID,
		&decision.ExecutionID,
		&decision.DecidedBy,
		&decision.DecidedAt,
		&decision.Outcome,
		&decision.Comment,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get decision", zap.Int64("execution_id", executionID), zap.Error(err))
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}

	return &decision, nil
}

// ListByInstanceID retrieves all decisions recorded against an instance
func (r *DecisionRepository) ListByInstanceID(ctx context.Context, instanceID int64) ([]*entity.Decision, error) {
	q := conn(ctx, r.db)

	rows, err := q.QueryContext(ctx, `
		SELECT d.id, d.execution_id, d.decided_by, d.decided_at, d.outcome, d.comment
		FROM decision d
		JOIN stage_execution e ON e.id = d.execution_id
		WHERE e.instance_id = ?
		ORDER BY d.id ASC
	`, instanceID)
	if err != nil {
		r.logger.Error("Failed to list decisions", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*entity.Decision
	for rows.Next() {
		var decision entity.Decision
		err := rows.Scan(
			&decision.ID,
			&decision.ExecutionID,
			&decision.DecidedBy,
			&decision.DecidedAt,
			&decision.Outcome,
			&decision.Comment,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, &decision)
	}

	return decisions, rows.Err()
}
