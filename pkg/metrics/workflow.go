package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
)

// OutcomeSuccess labels a workflow call that returned no error.
const OutcomeSuccess = "success"

// WorkflowMetrics counts workflow outcomes by error code.
type WorkflowMetrics struct {
	outcomes *prometheus.CounterVec
}

// NewWorkflowMetrics registers workflow_outcomes_total on reg. A nil
// registerer yields a recorder that drops observations.
func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	if reg == nil {
		return &WorkflowMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_outcomes_total",
		Help: "Marketplace workflow calls by outcome.",
	}, []string{"workflow", "outcome"})
	reg.MustRegister(outcomes)
	return &WorkflowMetrics{outcomes: outcomes}
}

// Observe records one call of workflow. The outcome is "success" or the
// lower-cased error code.
func (w *WorkflowMetrics) Observe(workflow string, err error) {
	if w == nil || w.outcomes == nil {
		return
	}
	w.outcomes.WithLabelValues(normalizeLabel(workflow), Outcome(err)).Inc()
}

// Outcome maps an error to its metric label.
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	return strings.ToLower(string(pkgerrors.CodeOf(err)))
}
