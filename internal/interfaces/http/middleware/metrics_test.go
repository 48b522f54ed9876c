package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestHTTPMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	mw, err := HTTPMetrics(provider.Meter("test"))
	require.NoError(t, err)

	router := gin.New()
	router.Use(mw)
	router.GET("/users/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/users/1", "/users/2", "/missing"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	metrics := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			metrics[m.Name] = m
		}
	}

	requests, ok := metrics["http.server.requests"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	counts := map[attribute.Set]int64{}
	for _, dp := range requests.DataPoints {
		counts[dp.Attributes] = dp.Value
	}
	assert.Equal(t, int64(2), counts[attribute.NewSet(
		AttrHTTPMethod.String(http.MethodGet),
		AttrHTTPRoute.String("/users/:id"),
		AttrHTTPStatusCode.Int(http.StatusOK),
	)])
	assert.Equal(t, int64(1), counts[attribute.NewSet(
		AttrHTTPMethod.String(http.MethodGet),
		AttrHTTPRoute.String(unmatchedRoute),
		AttrHTTPStatusCode.Int(http.StatusNotFound),
	)])

	duration, ok := metrics["http.server.request.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Len(t, duration.DataPoints, 2)

	active, ok := metrics["http.server.active_requests"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	for _, dp := range active.DataPoints {
		assert.Zero(t, dp.Value)
	}
}
