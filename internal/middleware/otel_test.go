package middleware

import (
	"context"
	"net/http"
	"testing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestOpenTelemetryMiddleware_AssessmentSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	h := server.New()
	h.Use(OpenTelemetryMiddleware())
	h.POST("/v1/crisis/assessments", func(ctx context.Context, c *app.RequestContext) {
		SetAssessmentOutcome(c, "CRITICAL", false)
		c.JSON(http.StatusOK, map[string]interface{}{"success": true})
	})
	h.GET("/v1/crisis/interventions/:id", func(ctx context.Context, c *app.RequestContext) {
		SetAssessmentOutcome(c, "", true)
		c.JSON(http.StatusTooManyRequests, map[string]interface{}{"success": false})
	})

	ut.PerformRequest(h.Engine, http.MethodPost, "/v1/crisis/assessments", nil)
	ut.PerformRequest(h.Engine, http.MethodGet, "/v1/crisis/interventions/42?token=secret", nil)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assessed := spans[0]
	assert.Equal(t, "POST /v1/crisis/assessments", assessed.Name())
	attrs := spanAttrs(assessed)
	assert.Equal(t, "CRITICAL", attrs["crisis.severity"].AsString())
	assert.False(t, attrs["crisis.authenticated"].AsBool())
	assert.Equal(t, codes.Ok, assessed.Status().Code)

	limited := spans[1]
	// 路由模板代替真实路径，查询参数不进入 span
	assert.Equal(t, "GET /v1/crisis/interventions/:id", limited.Name())
	attrs = spanAttrs(limited)
	assert.True(t, attrs["crisis.rate_limited"].AsBool())
	_, hasSeverity := attrs["crisis.severity"]
	assert.False(t, hasSeverity)
	for _, v := range attrs {
		assert.NotContains(t, v.Emit(), "secret")
	}
	assert.Equal(t, codes.Unset, limited.Status().Code)
}
