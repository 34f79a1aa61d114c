package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// timer wraps a Prometheus observer to implement Timer.
type timer struct {
	o     prometheus.Observer
	start time.Time
}

func (t *timer) ObserveDuration() {
	t.o.Observe(time.Since(t.start).Seconds())
}

// Resume slices are short, so the buckets start well below a millisecond.
var resumeBuckets = []float64{
	.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1, .5, 1,
}

// Prometheus is a Recorder backed by Prometheus collectors.
type Prometheus struct {
	messagesTotal  *prometheus.CounterVec
	skippedTotal   *prometheus.CounterVec
	bouncedTotal   *prometheus.CounterVec
	exitsTotal     *prometheus.CounterVec
	resumesTotal   *prometheus.CounterVec
	resumeDuration *prometheus.HistogramVec
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	m := &Prometheus{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actorcore_messages_processed_total",
			Help: "Total number of messages matched by a behavior",
		}, []string{"strategy"}),

		skippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actorcore_messages_skipped_total",
			Help: "Total number of messages moved to the skip cache",
		}, []string{"strategy"}),

		bouncedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actorcore_messages_bounced_total",
			Help: "Total number of messages bounced by terminated actors",
		}, []string{"strategy"}),

		exitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actorcore_actor_exits_total",
			Help: "Total number of terminated actors",
		}, []string{"strategy", "reason"}),

		resumesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actorcore_resumes_total",
			Help: "Total number of actor resumes by result",
		}, []string{"strategy", "result"}),

		resumeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "actorcore_resume_duration_seconds",
			Help:    "Time spent in one actor resume",
			Buckets: resumeBuckets,
		}, []string{"strategy"}),
	}

	collectors := []prometheus.Collector{
		m.messagesTotal,
		m.skippedTotal,
		m.bouncedTotal,
		m.exitsTotal,
		m.resumesTotal,
		m.resumeDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Prometheus) MessageProcessed(strategy string) {
	m.messagesTotal.WithLabelValues(strategy).Inc()
}

func (m *Prometheus) MessageSkipped(strategy string) {
	m.skippedTotal.WithLabelValues(strategy).Inc()
}

func (m *Prometheus) MessageBounced(strategy string) {
	m.bouncedTotal.WithLabelValues(strategy).Inc()
}

func (m *Prometheus) ActorExited(strategy, reason string) {
	m.exitsTotal.WithLabelValues(strategy, reason).Inc()
}

func (m *Prometheus) Resumed(strategy, result string) {
	m.resumesTotal.WithLabelValues(strategy, result).Inc()
}

func (m *Prometheus) ResumeDuration(strategy string) Timer {
	return &timer{
		o:     m.resumeDuration.WithLabelValues(strategy),
		start: time.Now(),
	}
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

var _ Recorder = (*Prometheus)(nil)
