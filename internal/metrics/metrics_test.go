// ABOUTME: Tests for the Prometheus recorder
// ABOUTME: Reads values back with testutil and scrapes the handler

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-handoff/internal/broker"
)

func TestRecorder_Transitions(t *testing.T) {
	r := NewPrometheusRecorder()

	r.ObserveEvent(broker.EventRequested)
	r.ObserveEvent(broker.EventRequested)
	r.ObserveEvent(broker.EventTimedOut)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.transitions.WithLabelValues("requested")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitions.WithLabelValues("timed_out")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.transitions.WithLabelValues("accepted")))
}

func TestRecorder_Occupancy(t *testing.T) {
	r := NewPrometheusRecorder()

	r.SetOccupancy(broker.Occupancy{Waiting: 2, Connected: 1, Queued: 4, Selecting: 1})
	assert.Equal(t, 2.0, testutil.ToFloat64(r.sessions.WithLabelValues("waiting")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sessions.WithLabelValues("connected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.sessions.WithLabelValues("paused")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.queued))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.selecting))
}

func TestRecorder_QueueWait(t *testing.T) {
	r := NewPrometheusRecorder()
	r.ObserveQueueWait(45 * time.Second)
	r.ObserveQueueWait(2 * time.Minute)

	assert.Equal(t, 1, testutil.CollectAndCount(r.queueWait))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewPrometheusRecorder()
	r.ObserveEvent(broker.EventAccepted)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `handoff_transitions_total{type="accepted"} 1`)
	assert.Contains(t, body, "handoff_sessions")
	assert.Contains(t, body, "go_goroutines")
}

func TestRecorders_AreIndependent(t *testing.T) {
	a := NewPrometheusRecorder()
	b := NewPrometheusRecorder()
	a.ObserveEvent(broker.EventEnded)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.transitions.WithLabelValues("ended")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.transitions.WithLabelValues("ended")))
}
