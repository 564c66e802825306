package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Unit Tests ---

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.Transition("client", "OPEN", "CLOSED")
		r.HeartbeatSent("client")
		r.EnvelopeReceived("client", "data")
		r.ParseError("client")
		r.AckSent()
		r.SendDropped("client")
		r.ReconnectScheduled()
		r.StaleConnection("client")
		r.HandlerFailed("acceptor", "data")
		r.SetPeers(3)
		r.UpgradeRejected("rate_limited")
		r.HTTPRequest("GET", "/healthz", 200, time.Millisecond)
	})
	assert.NotNil(t, r.Handler())
}

func TestRecorder_Counters(t *testing.T) {
	r := NewIsolated()

	r.Transition("client", "OPEN", "RECONNECT_WAIT")
	r.Transition("client", "OPEN", "RECONNECT_WAIT")
	r.HeartbeatSent("acceptor")
	r.EnvelopeReceived("acceptor", "data")
	r.ParseError("acceptor")
	r.AckSent()
	r.AckSent()
	r.SendDropped("client")
	r.ReconnectScheduled()
	r.StaleConnection("client")
	r.SetPeers(4)
	r.UpgradeRejected("rate_limited")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.transitions.WithLabelValues("client", "OPEN", "RECONNECT_WAIT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.heartbeats.WithLabelValues("acceptor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.envelopes.WithLabelValues("acceptor", "data")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.parseErrors.WithLabelValues("acceptor")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.acks))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sendsDropped.WithLabelValues("client")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.reconnects))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stale.WithLabelValues("client")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.peers))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rejected.WithLabelValues("rate_limited")))
}

func TestNew_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg)
	b := New(reg)

	a.AckSent()
	b.AckSent()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.acks))
	assert.Same(t, a.transitions, b.transitions)
}

func TestDefault_RegistersOnce(t *testing.T) {
	assert.Same(t, Default(), Default())
}

// --- Integration Tests ---

func TestRequestMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewIsolated()

	router := gin.New()
	router.Use(RequestMetricsMiddleware(r))
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(r.Handler()))

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(r.httpRequests.WithLabelValues("GET", "/healthz", "200")))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "pulselink_http_requests_total"))
}
