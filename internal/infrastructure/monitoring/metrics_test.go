package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m := NewMetricsWith(prometheus.NewRegistry())
	t.Cleanup(m.Close)
	return m
}

func TestRecordClone(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordClone("anthropic", "ok", 3*time.Second)
	m.RecordClone("anthropic", "ok", time.Second)
	m.RecordClone("anthropic", "RenderTimeout", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ClonesTotal.WithLabelValues("anthropic", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClonesTotal.WithLabelValues("anthropic", "RenderTimeout")))
}

func TestGateAndRenderMetrics(t *testing.T) {
	m := newTestMetrics(t)

	m.SetGate("render", 3, 2)
	m.IncGateRejection("render")
	m.RecordRender(2048, true)
	m.RecordRender(1024, false)
	m.RecordScreenshot("ok")
	m.AddSanitizerRemovals("script", 0)
	m.AddSanitizerRemovals("script", 2)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.GateInFlight.WithLabelValues("render")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.GateWaiting.WithLabelValues("render")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GateRejections.WithLabelValues("render")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RenderTruncations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Screenshots.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SanitizerRemovals.WithLabelValues("script")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordClone("gemini", "ok", time.Second)
		m.RecordStage("render", time.Second)
		m.SetGate("provider", 1, 0)
		m.RecordHTTPRequest("GET", "/health", "200", time.Millisecond, 0, 10)
		NewTimer(m, "extract").Stop()
		m.RecordScreenshot("failed")
	})
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newTestMetrics(t)

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/items/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	for _, path := range []string{"/items/1", "/items/2", "/missing"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/items/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}
