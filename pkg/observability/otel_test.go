package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitOTel_Disabled(t *testing.T) {
	logger, _ := test.NewNullLogger()

	tp, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, logger)

	assert.NoError(t, err)
	assert.Nil(t, tp)
	assert.NoError(t, ShutdownOTel(context.Background(), tp))
}

// OTLP exporters connect lazily, so an unreachable collector is not an error here.
func TestInitOTel_Enabled(t *testing.T) {
	logger, _ := test.NewNullLogger()

	tp, err := InitOTel(context.Background(), OTelConfig{
		Enabled:        true,
		Endpoint:       "localhost:4317",
		ServiceName:    "publishgate-test",
		ServiceVersion: "0.0.0",
		Insecure:       true,
		SampleRatio:    0.5,
	}, logger)
	require.NoError(t, err)
	require.NotNil(t, tp)

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	_ = ShutdownOTel(ctx, tp)
}

func TestTracedHandlerAndTransport(t *testing.T) {
	var called bool
	handler := TracedHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}), "publishgate")

	server := httptest.NewServer(handler)
	defer server.Close()

	client := &http.Client{Transport: TracedTransport("registry", nil)}
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, called)
}
