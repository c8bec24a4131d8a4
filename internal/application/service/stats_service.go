package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nlebrun/docuflow/internal/application/port"
)

// StatsService computes read-only rollups over workflow instances. Derived
// data, never authoritative; it does not participate in the state machine.
type StatsService interface {
	Aggregate(ctx context.Context, filter port.StatsFilter) (*port.WorkflowStats, error)
	AggregateByTemplate(ctx context.Context, filter port.StatsFilter) ([]*port.TemplateStats, error)

	// ExportExcel renders the aggregate and the per-template breakdown as
	// an xlsx workbook.
	ExportExcel(ctx context.Context, filter port.StatsFilter) ([]byte, error)
}

type statsServiceImpl struct {
	statsRepo port.StatsRepository
	logger    Logger
}

// NewStatsService creates a new StatsService
func NewStatsService(statsRepo port.StatsRepository, logger Logger) StatsService {
	return &statsServiceImpl{
		statsRepo: statsRepo,
		logger:    logger,
	}
}

// Aggregate returns counters over matching instances. An empty store yields
// zeroed counters, not an error.
func (s *statsServiceImpl) Aggregate(ctx context.Context, filter port.StatsFilter) (*port.WorkflowStats, error) {
	stats, err := s.statsRepo.Aggregate(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("aggregate statistics: %w", err)
	}
	return stats, nil
}

// AggregateByTemplate returns the per-template breakdown
func (s *statsServiceImpl) AggregateByTemplate(ctx context.Context, filter port.StatsFilter) ([]*port.TemplateStats, error) {
	stats, err := s.statsRepo.AggregateByTemplate(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("aggregate statistics by template: %w", err)
	}
	return stats, nil
}

// ExportExcel builds an xlsx workbook with a summary sheet and a
// per-template sheet
func (s *statsServiceImpl) ExportExcel(ctx context.Context, filter port.StatsFilter) ([]byte, error) {
	summary, err := s.Aggregate(ctx, filter)
	if err != nil {
		return nil, err
	}
	byTemplate, err := s.AggregateByTemplate(ctx, filter)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	const summarySheet = "Summary"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	summaryRows := [][]interface{}{
		{"Generated at", time.Now().Format(time.RFC3339)},
		{},
		{"Total workflows", summary.Total},
		{"In progress", summary.InProgress},
		{"Approved", summary.Approved},
		{"Rejected", summary.Rejected},
		{"Avg completion (s)", summary.AvgCompletionSeconds},
	}
	for i, row := range summaryRows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write summary row: %w", err)
		}
	}

	const templateSheet = "By template"
	if _, err := f.NewSheet(templateSheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	header := []interface{}{"Template ID", "Template", "Total", "In progress", "Approved", "Rejected", "Avg completion (s)"}
	if err := f.SetSheetRow(templateSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, ts := range byTemplate {
		row := []interface{}{ts.TemplateID, ts.TemplateName, ts.Total, ts.InProgress, ts.Approved, ts.Rejected, ts.AvgCompletionSeconds}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(templateSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write template row: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("Statistics exported",
		"templates", len(byTemplate),
		"total", summary.Total,
	)
	return buf.Bytes(), nil
}
