package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstancesDoNotCollide(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordDrop("stale-source")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.EnvelopesDropped.WithLabelValues("stale-source")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.EnvelopesDropped.WithLabelValues("stale-source")))
}

func TestSnapshot(t *testing.T) {
	m := NewMetrics()

	m.RecordRunStarted()
	m.RecordRunStarted()
	m.RecordDrop("malformed")
	m.RecordDrop("malformed")
	m.RecordDrop("unexpected")
	m.RecordRecycle("timeout")
	m.RecordWatchdogExpired()
	m.IncWSConnections()

	s := m.Snapshot()
	assert.Equal(t, int64(2), s.Runs)
	assert.Equal(t, int64(2), s.Dropped["malformed"])
	assert.Equal(t, int64(1), s.Dropped["unexpected"])
	assert.Equal(t, int64(1), s.Recycles)
	assert.Equal(t, int64(1), s.WatchdogExpired)
	assert.Equal(t, int64(1), s.WSConnections)

	// Returned map is a copy
	s.Dropped["malformed"] = 99
	assert.Equal(t, int64(2), m.Snapshot().Dropped["malformed"])
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/runs/:id", func(c *gin.Context) { c.String(http.StatusNotFound, "nope") })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/run_1", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/runs/:id", "404")))
	assert.Equal(t, int64(1), m.Snapshot().RequestErrors)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sandbox_http_requests_total")
	assert.Contains(t, w.Body.String(), "sandbox_uptime_seconds")
}
