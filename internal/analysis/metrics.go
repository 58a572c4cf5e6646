package analysis

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ShayCichocki/reqflow/internal/pipeline"
)

// RunMetrics summarizes one pipeline run for the textfile collector.
type RunMetrics struct {
	System       string
	Model        string
	Outcome      string
	Phases       []pipeline.Stats
	Calls        int
	InputTokens  int64
	OutputTokens int64
	Cost         float64
}

// WriteMetrics writes m in the Prometheus text exposition format, suitable
// for the node-exporter textfile collector. The file is replaced atomically.
func WriteMetrics(path string, m RunMetrics) error {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"system": m.System, "model": m.Model}

	items := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "reqflow_phase_items",
		Help:        "Items handled by a phase in the last run, by outcome.",
		ConstLabels: labels,
	}, []string{"phase", "outcome"})
	seconds := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "reqflow_phase_duration_seconds",
		Help:        "Wall time of a phase in the last run.",
		ConstLabels: labels,
	}, []string{"phase", "status"})
	calls := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "reqflow_llm_requests",
		Help:        "Model requests issued in the last run.",
		ConstLabels: labels,
	})
	tokens := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "reqflow_llm_tokens",
		Help:        "Tokens used in the last run.",
		ConstLabels: labels,
	}, []string{"direction"})
	cost := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "reqflow_llm_cost_dollars",
		Help:        "Estimated model cost of the last run.",
		ConstLabels: labels,
	})
	outcome := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "reqflow_run_outcome",
		Help:        "1 for the outcome of the last run.",
		ConstLabels: labels,
	}, []string{"outcome"})
	reg.MustRegister(items, seconds, calls, tokens, cost, outcome)

	for _, s := range m.Phases {
		items.WithLabelValues(s.Phase, "attempted").Set(float64(s.Attempted))
		items.WithLabelValues(s.Phase, "produced").Set(float64(s.Produced))
		items.WithLabelValues(s.Phase, "skipped").Set(float64(s.Skipped))
		items.WithLabelValues(s.Phase, "deduplicated").Set(float64(s.Deduplicated))
		items.WithLabelValues(s.Phase, "failed").Set(float64(s.Failed))
		seconds.WithLabelValues(s.Phase, string(s.Status)).Set(s.Elapsed.Seconds())
	}
	calls.Set(float64(m.Calls))
	tokens.WithLabelValues("input").Set(float64(m.InputTokens))
	tokens.WithLabelValues("output").Set(float64(m.OutputTokens))
	cost.Set(m.Cost)
	outcome.WithLabelValues(m.Outcome).Set(1)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("analysis: create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("analysis: write metrics: %w", err)
	}
	return nil
}
