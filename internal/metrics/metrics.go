// ABOUTME: Prometheus recorder for broker transitions, queue waits, and occupancy
// ABOUTME: Registers on its own registry so tests and the admin server stay isolated

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/coven-handoff/internal/broker"
)

// PrometheusRecorder implements broker.Recorder.
type PrometheusRecorder struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	queueWait   prometheus.Histogram
	sessions    *prometheus.GaugeVec
	queued      prometheus.Gauge
	selecting   prometheus.Gauge
}

var _ broker.Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder creates a recorder with a fresh registry that also
// carries the Go runtime and process collectors.
func NewPrometheusRecorder() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	r := &PrometheusRecorder{
		registry: reg,
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "handoff_transitions_total",
				Help: "Broker transitions by type",
			},
			[]string{"type"},
		),
		queueWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "handoff_queue_wait_seconds",
				Help:    "Time users spent queued before promotion",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
			},
		),
		sessions: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "handoff_sessions",
				Help: "Current sessions by status",
			},
			[]string{"status"},
		),
		queued: factory.NewGauge(prometheus.GaugeOpts{
			Name: "handoff_queued_users",
			Help: "Users currently waiting in agent queues",
		}),
		selecting: factory.NewGauge(prometheus.GaugeOpts{
			Name: "handoff_selecting_users",
			Help: "Users currently choosing from a menu",
		}),
	}

	// Pre-create series so dashboards see zeros before the first event.
	for _, t := range broker.EventTypes {
		r.transitions.WithLabelValues(string(t))
	}
	r.SetOccupancy(broker.Occupancy{})
	return r
}

// ObserveEvent counts one transition.
func (r *PrometheusRecorder) ObserveEvent(t broker.EventType) {
	r.transitions.WithLabelValues(string(t)).Inc()
}

// ObserveQueueWait records how long a promoted user waited.
func (r *PrometheusRecorder) ObserveQueueWait(d time.Duration) {
	r.queueWait.Observe(d.Seconds())
}

// SetOccupancy publishes current state sizes.
func (r *PrometheusRecorder) SetOccupancy(o broker.Occupancy) {
	r.sessions.WithLabelValues("waiting").Set(float64(o.Waiting))
	r.sessions.WithLabelValues("connected").Set(float64(o.Connected))
	r.sessions.WithLabelValues("paused").Set(float64(o.Paused))
	r.queued.Set(float64(o.Queued))
	r.selecting.Set(float64(o.Selecting))
}

// Registry returns the registry the recorder writes to.
func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
