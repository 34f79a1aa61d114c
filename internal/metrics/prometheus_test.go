package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// TestPrometheusRecorder tests that recorded events show up in the
// collectors and the HTTP handler.
func TestPrometheusRecorder(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewPrometheus(reg)
	require.NoError(t, err)

	m.MessageProcessed("event")
	m.MessageProcessed("event")
	m.MessageSkipped("fiber")
	m.MessageBounced("event")
	m.ActorExited("fiber", "normal")
	m.Resumed("event", "done")
	m.ResumeDuration("event").ObserveDuration()

	families, err := reg.Gather()
	require.NoError(t, err)

	counters := make(map[string]float64)
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				counters[f.GetName()] += c.GetValue()
			}
		}
	}
	require.Equal(t, 2.0, counters["actorcore_messages_processed_total"])
	require.Equal(t, 1.0, counters["actorcore_messages_skipped_total"])
	require.Equal(t, 1.0, counters["actorcore_actor_exits_total"])

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(),
		"actorcore_messages_bounced_total"))

	// Registering twice with the same registry fails.
	_, err = NewPrometheus(reg)
	require.Error(t, err)
}

// TestNop tests that the no-op recorder is usable.
func TestNop(t *testing.T) {
	t.Parallel()

	var r Recorder = Nop{}
	r.MessageProcessed("event")
	r.ResumeDuration("fiber").ObserveDuration()
}
