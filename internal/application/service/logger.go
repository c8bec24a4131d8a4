package service

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Metrics records workflow engine activity. A no-op implementation is used
// when metrics are disabled.
type Metrics interface {
	WorkflowStarted()
	WorkflowCompleted(status string)
	DecisionRecorded(outcome string)
}

// NopMetrics is a Metrics implementation that records nothing.
type NopMetrics struct{}

func (NopMetrics) WorkflowStarted()         {}
func (NopMetrics) WorkflowCompleted(string) {}
func (NopMetrics) DecisionRecorded(string)  {}
