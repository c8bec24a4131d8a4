package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlebrun/docuflow/internal/domain/entity"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollector_Counters(t *testing.T) {
	c := NewCollector()

	c.WorkflowStarted()
	c.WorkflowStarted()
	c.WorkflowCompleted(entity.InstanceStatusApproved)
	c.DecisionRecorded(entity.OutcomeApprove)
	c.DecisionRecorded(entity.OutcomeReject)
	c.OverdueStages(3)

	body := scrape(t, c)
	assert.True(t, strings.Contains(body, `docuflow_workflows_started_total 2`))
	assert.True(t, strings.Contains(body, `docuflow_workflows_completed_total{status="APPROVED"} 1`))
	assert.True(t, strings.Contains(body, `docuflow_decisions_total{outcome="APPROVE"} 1`))
	assert.True(t, strings.Contains(body, `docuflow_decisions_total{outcome="REJECT"} 1`))
	assert.True(t, strings.Contains(body, `docuflow_overdue_stages 3`))
}
