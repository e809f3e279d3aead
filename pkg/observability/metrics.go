// Package observability bridges batch events into Prometheus collectors.
//
// Hosts that already run a metrics endpoint register a Metrics bundle
// against their own registry and merge Hooks() into the event set they
// hand the orchestrator.
package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
)

// Metrics is the collector bundle for the batch pipeline.
type Metrics struct {
	batchesStarted *prometheus.CounterVec
	batchesDone    *prometheus.CounterVec
	jobsSettled    *prometheus.CounterVec
	jobsRetried    prometheus.Counter
	progress       *prometheus.GaugeVec
	breakerState   *prometheus.GaugeVec
}

// NewMetrics builds and registers the collector bundle. Registering the
// same bundle twice against one registry panics, as usual with Prometheus.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		batchesStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tka_batches_started_total",
				Help: "Total number of batches started",
			},
			[]string{"batch_id"},
		),
		batchesDone: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tka_batches_completed_total",
				Help: "Total number of batches finished, by outcome",
			},
			[]string{"outcome"},
		),
		jobsSettled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tka_jobs_settled_total",
				Help: "Total number of jobs settled, by terminal kind",
			},
			[]string{"kind"},
		),
		jobsRetried: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tka_job_retries_total",
				Help: "Total number of retry attempts scheduled",
			},
		),
		progress: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tka_batch_progress_ratio",
				Help: "Settled fraction of the batch, 0 to 1",
			},
			[]string{"batch_id"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tka_circuit_breaker_state",
				Help: "Circuit breaker position: 0 closed, 1 half-open, 2 open",
			},
			[]string{"batch_id"},
		),
	}
	reg.MustRegister(
		m.batchesStarted,
		m.batchesDone,
		m.jobsSettled,
		m.jobsRetried,
		m.progress,
		m.breakerState,
	)
	return m
}

// Hooks returns an event set that records every batch signal into the
// bundle. Merge it with any host callbacks via domain.Merge.
func (m *Metrics) Hooks() domain.BatchEvents {
	return domain.BatchEvents{
		OnBatchStarted: func(ctx context.Context, batchID string, total int) {
			m.batchesStarted.WithLabelValues(batchID).Inc()
			m.progress.WithLabelValues(batchID).Set(0)
		},
		OnJobSettled: func(ctx context.Context, batchID string, s domain.Settlement) {
			m.jobsSettled.WithLabelValues(string(s.Kind)).Inc()
		},
		OnJobRetried: func(ctx context.Context, batchID, jobID string, attempt int) {
			m.jobsRetried.Inc()
		},
		OnBatchProgress: func(ctx context.Context, batchID string, done, total int) {
			if total > 0 {
				m.progress.WithLabelValues(batchID).Set(float64(done) / float64(total))
			}
		},
		OnBatchCompleted: func(ctx context.Context, batchID string, success bool) {
			outcome := "success"
			if !success {
				outcome = "failure"
			}
			m.batchesDone.WithLabelValues(outcome).Inc()
		},
		OnBreakerState: func(ctx context.Context, batchID, state string) {
			m.breakerState.WithLabelValues(batchID).Set(breakerGaugeValue(state))
		},
	}
}

func breakerGaugeValue(state string) float64 {
	switch state {
	case "open":
		return 2
	case "half_open":
		return 1
	default:
		return 0
	}
}
