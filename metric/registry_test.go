package metric

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamkit/errors"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_items_total",
		Help: "A test counter",
	})

	require.NoError(t, registry.RegisterCounter("poller", "items", counter))
	counter.Inc()

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range families {
		if mf.GetName() == "test_items_total" {
			found = true
		}
	}
	assert.True(t, found, "counter should be gathered")
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "dup"})
	require.NoError(t, registry.RegisterGauge("svc", "dup", gauge))

	err := registry.RegisterGauge("svc", "dup", gauge)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	other := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "dup"})
	err = registry.RegisterGauge("svc2", "dup", other)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	hist := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "tmp_hist", Help: "tmp"})
	require.NoError(t, registry.RegisterHistogram("svc", "hist", hist))

	assert.True(t, registry.Unregister("svc", "hist"))
	assert.False(t, registry.Unregister("svc", "hist"))

	require.NoError(t, registry.RegisterHistogram("svc", "hist", hist))
}

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetricsRegistry().CoreMetrics()

	m.RecordExchange("c1", false, 10*time.Millisecond)
	m.RecordExchange("c1", true, 10*time.Millisecond)
	m.RecordExchange("c1", false, 10*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ExchangesCompleted.WithLabelValues("c1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExchangesFailed.WithLabelValues("c1")))

	m.RecordPoll("c1", nil)
	m.RecordPoll("c1", assert.AnError)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PollsTotal.WithLabelValues("c1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollErrors.WithLabelValues("c1")))

	m.RecordReady("c1", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConsumerReady.WithLabelValues("c1")))

	m.RecordSpoolCreated(2048)
	m.RecordSpoolCreated(1024)
	m.RecordSpoolDeleted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SpoolFilesCreated))
	assert.Equal(t, 3072.0, testutil.ToFloat64(m.SpoolBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSpoolFiles))
}

func TestServer_Handler(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordSpoolCreated(10)

	server := NewServer(0, "", registry)
	handler, err := server.Handler()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "streamkit_streamcache_spool_files_created_total")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "OK", rec.Body.String())

	assert.Equal(t, "http://localhost:9090/metrics", server.Address())
}

func TestServer_Handle(t *testing.T) {
	server := NewServer(0, "", NewMetricsRegistry())
	server.Handle("/health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	server.Handle("/ready", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ready"))
	}))
	handler, err := server.Handler()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, "ready", rec.Body.String())
}

func TestServer_NilRegistry(t *testing.T) {
	server := NewServer(9999, "/m", nil)
	_, err := server.Handler()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.NoError(t, server.Stop())
}
