package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersAll(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.RecordDecision("publish", 200)
	metrics.HTTPRequestsTotal.WithLabelValues("GET", "/x", "200").Inc()
	metrics.HTTPRequestDuration.WithLabelValues("GET", "/x").Observe(0.1)
	metrics.UpstreamRequestsTotal.WithLabelValues("github", "200").Inc()
	metrics.UpstreamRequestDuration.WithLabelValues("github").Observe(0.1)

	families, err := registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"publishgate_http_requests_total",
		"publishgate_http_request_duration_seconds",
		"publishgate_publish_decisions_total",
		"publishgate_upstream_requests_total",
		"publishgate_upstream_request_duration_seconds",
	}, names)

	assert.Panics(t, func() { NewMetrics(registry) }, "double registration should panic")
}

func TestRecordDecision(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordDecision("publish", 400)
	metrics.RecordDecision("publish", 400)
	metrics.RecordDecision("dist-tag", 200)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PublishDecisionsTotal.WithLabelValues("publish", "400")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PublishDecisionsTotal.WithLabelValues("dist-tag", "200")))
}

func TestHTTPMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(metrics))
	router.HandleFunc("/{package}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}).Methods(http.MethodPut)

	for _, name := range []string{"left-pad", "right-pad"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/"+name, nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("PUT", "/{package}", "418")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.HTTPRequestsTotal))
}

func TestRouteName_Unmatched(t *testing.T) {
	assert.Equal(t, "unmatched", RouteName(httptest.NewRequest("GET", "/", nil)))
}

func TestInstrumentTransport(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := &http.Client{Transport: metrics.InstrumentTransport("registry", nil)}
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	failing := metrics.InstrumentTransport("github", roundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial failed")
	}))
	_, err = (&http.Client{Transport: failing}).Get("http://example.invalid")
	assert.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.UpstreamRequestsTotal.WithLabelValues("registry", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.UpstreamRequestsTotal.WithLabelValues("github", "error")))
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.RecordDecision("publish", 200)

	m := http.NewServeMux()
	RegisterMetricsEndpoint(m, registry)

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(string(body), `publishgate_publish_decisions_total{route="publish",status="200"} 1`))
}
