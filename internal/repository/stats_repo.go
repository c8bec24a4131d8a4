package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nlebrun/docuflow/internal/application/port"
	"github.com/nlebrun/docuflow/internal/domain/entity"
	"github.com/nlebrun/docuflow/pkg/database"
)

// StatsRepository runs read-only aggregation queries over instances
type StatsRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewStatsRepository creates a new statistics repository
func NewStatsRepository(db *database.DB, logger *zap.Logger) *StatsRepository {
	return &StatsRepository{
		db:     db,
		logger: logger,
	}
}

func statsWhere(filter port.StatsFilter) (string, []any) {
	where := " WHERE 1=1"
	var args []any

	if filter.TemplateID > 0 {
		where += " AND i.template_id = ?"
		args = append(args, filter.TemplateID)
	}
	if filter.Since != nil {
		where += " AND i.started_at >= ?"
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		where += " AND i.started_at < ?"
		args = append(args, *filter.Until)
	}

	return where, args
}

// Aggregate returns counters and average completion time over matching
// instances
func (r *StatsRepository) Aggregate(ctx context.Context, filter port.StatsFilter) (*port.WorkflowStats, error) {
	q := conn(ctx, r.db)

	where, args := statsWhere(filter)

	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN i.status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN i.status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN i.status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN i.completed_at IS NOT NULL
				THEN (julianday(i.completed_at) - julianday(i.started_at)) * 86400.0 END), 0)
		FROM workflow_instance i` + where

	queryArgs := []any{
		entity.InstanceStatusInProgress,
		entity.InstanceStatusApproved,
		entity.InstanceStatusRejected,
	}
	queryArgs = append(queryArgs, args...)

	var stats port.WorkflowStats
	err := q.QueryRowContext(ctx, query, queryArgs...).Scan(
		&stats.Total,
		&stats.InProgress,
		&stats.Approved,
		&stats.Rejected,
		&stats.AvgCompletionSeconds,
	)
	if err != nil {
		r.logger.Error("Failed to aggregate statistics", zap.Error(err))
		return nil, fmt.Errorf("failed to aggregate statistics: %w", err)
	}

	return &stats, nil
}

// AggregateByTemplate returns the per-template breakdown of the rollup
func (r *StatsRepository) AggregateByTemplate(ctx context.Context, filter port.StatsFilter) ([]*port.TemplateStats, error) {
	q := conn(ctx, r.db)

	where, args := statsWhere(filter)

	query := `
		SELECT
			t.id,
			t.name,
			COUNT(i.id),
			COALESCE(SUM(CASE WHEN i.status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN i.status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN i.status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN i.completed_at IS NOT NULL
				THEN (julianday(i.completed_at) - julianday(i.started_at)) * 86400.0 END), 0)
		FROM workflow_instance i
		JOIN workflow_template t ON t.id = i.template_id` + where + `
		GROUP BY t.id, t.name
		ORDER BY t.id ASC`

	queryArgs := []any{
		entity.InstanceStatusInProgress,
		entity.InstanceStatusApproved,
		entity.InstanceStatusRejected,
	}
	queryArgs = append(queryArgs, args...)

	rows, err := q.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		r.logger.Error("Failed to aggregate statistics by template", zap.Error(err))
		return nil, fmt.Errorf("failed to aggregate statistics by template: %w", err)
	}
	defer rows.Close()

	var result []*port.TemplateStats
	for rows.Next() {
		var ts port.TemplateStats
		err := rows.Scan(
			&ts.TemplateID,
			&ts.TemplateName,
			&ts.Total,
			&ts.InProgress,
			&ts.Approved,
			&ts.Rejected,
			&ts.AvgCompletionSeconds,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template statistics: %w", err)
		}
		result = append(result, &ts)
	}

	return result, rows.Err()
}
