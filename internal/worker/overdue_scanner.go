package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/nlebrun/docuflow/internal/application/port"
	"github.com/nlebrun/docuflow/internal/domain/event"
)

// OverdueGauge receives the size of each scan.
type OverdueGauge interface {
	OverdueStages(n int)
}

// ReminderSink receives the overdue reminders. Reminders are advisory, so
// they are dispatched without waiting on handlers; dispatch failures are
// logged by the sink itself.
type ReminderSink interface {
	DispatchAsync(ctx context.Context, evt *event.Event)
}

// OverdueScanner periodically looks for pending stage executions that have
// exceeded their stage's advisory delay and emits stage.overdue events for
// them. The scan is reminder metadata only: it never resolves a stage or
// touches instance state, and a stage stays overdue until someone decides.
type OverdueScanner struct {
	executions port.ExecutionRepository
	sink       ReminderSink
	gauge      OverdueGauge
	logger     *zap.Logger
	cron       *cron.Cron
	timeout    time.Duration
}

// NewOverdueScanner creates a scanner. gauge may be nil.
func NewOverdueScanner(executions port.ExecutionRepository, sink ReminderSink, gauge OverdueGauge, logger *zap.Logger) *OverdueScanner {
	return &OverdueScanner{
		executions: executions,
		sink:       sink,
		gauge:      gauge,
		logger:     logger,
		cron:       cron.New(),
		timeout:    30 * time.Second,
	}
}

// Start schedules the scan with a cron spec such as "*/5 * * * *".
func (s *OverdueScanner) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := s.Scan(ctx); err != nil {
			s.logger.Error("Overdue scan failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Overdue scanner started", zap.String("schedule", spec))
	return nil
}

// Stop halts the schedule and waits for a running scan to finish.
func (s *OverdueScanner) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Overdue scanner stopped")
}

// Scan runs one pass as of now.
func (s *OverdueScanner) Scan(ctx context.Context) error {
	overdue, err := s.executions.ListOverdue(ctx, time.Now())
	if err != nil {
		return err
	}

	if s.gauge != nil {
		s.gauge.OverdueStages(len(overdue))
	}

	for _, o := range overdue {
		evt := event.NewEvent(event.TypeStageOverdue, o.InstanceID, o.DocumentID, o.StageOrder, map[string]interface{}{
			"execution_id":  o.ExecutionID,
			"required_role": o.RequiredRole,
			"entered_at":    o.EnteredAt,
			"max_delay":     o.MaxDelay,
		})
		// Handlers may outlive the scan's deadline.
		s.sink.DispatchAsync(context.WithoutCancel(ctx), evt)
	}

	return nil
}
