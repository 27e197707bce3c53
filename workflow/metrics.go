package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// engineMetrics counts step outcomes across every Definition an Engine
// runs. The zero value (nil counters) is valid and simply skips recording.
// NewEngine always registers the counters, on a private registry unless
// WithMetricsRegistry supplies another.
type engineMetrics struct {
	stepOutcomes *prometheus.CounterVec
}

// newEngineMetrics registers the engine's counters against reg. Callers
// that don't want metrics exposed pass a private prometheus.NewRegistry()
// (the default); cmd/maestro passes the process-wide registry instead so
// step outcomes land on /metrics alongside the rest of the stack.
func newEngineMetrics(reg prometheus.Registerer) engineMetrics {
	factory := promauto.With(reg)
	return engineMetrics{
		stepOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "workflow_engine",
			Name:      "step_outcomes_total",
			Help:      "Total workflow steps executed, labeled by step type and outcome.",
		}, []string{"step_type", "outcome"}),
	}
}

func (m engineMetrics) record(stepType, outcome string) {
	if m.stepOutcomes == nil {
		return
	}
	m.stepOutcomes.WithLabelValues(stepType, outcome).Inc()
}
