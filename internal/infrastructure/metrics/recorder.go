// Package metrics exposes habit operation counters and latencies to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/streakbot/habit-streak-bot/internal/domain/shared"
)

// OutcomeOK labels a successful operation.
const OutcomeOK = "ok"

// Recorder collects habit operation metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	retries    *prometheus.CounterVec
	updates    *prometheus.CounterVec
}

// NewRecorder creates a Recorder with Go runtime and process collectors attached.
func NewRecorder(namespace string) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "habit_operations_total",
				Help:      "Habit operations by outcome.",
			},
			[]string{"op", "outcome"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "habit_operation_duration_seconds",
				Help:      "Habit operation latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),

		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "habit_operation_retries_total",
				Help:      "Retries after a lost completion race.",
			},
			[]string{"op"},
		),

		updates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_updates_total",
				Help:      "Chat updates handled, by command.",
			},
			[]string{"command"},
		),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.operations,
		r.duration,
		r.retries,
		r.updates,
	)

	return r
}

// Observe records one finished operation. The outcome label is the error's
// kind, or "ok" when err is nil.
func (r *Recorder) Observe(op string, err error, elapsed time.Duration) {
	outcome := OutcomeOK
	if err != nil {
		outcome = shared.KindOf(err).String()
	}

	r.operations.WithLabelValues(op, outcome).Inc()
	r.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Retry counts one retry of op.
func (r *Recorder) Retry(op string) {
	r.retries.WithLabelValues(op).Inc()
}

// Update counts one handled chat update.
func (r *Recorder) Update(command string) {
	r.updates.WithLabelValues(command).Inc()
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
