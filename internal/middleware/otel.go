package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/config"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	assessmentSeverityKey = "crisis_severity"
	rateLimitedKey        = "crisis_rate_limited"
)

var (
	metricsReady bool

	httpServerRequestTotal   metric.Int64Counter
	httpServerDuration       metric.Float64Histogram
	httpServerActiveRequests metric.Int64UpDownCounter
	// 按评估等级统计的 HTTP 评估结果
	crisisAssessmentResults metric.Int64Counter
)

// toValidUTF8 路由与身份来自用户输入，非法 UTF-8 会导致导出失败
func toValidUTF8(val string) string {
	return strings.ToValidUTF8(val, "")
}

// SetAssessmentOutcome handler 写入本次评估的等级，供追踪与指标使用
func SetAssessmentOutcome(c *app.RequestContext, severity string, rateLimited bool) {
	if severity != "" {
		c.Set(assessmentSeverityKey, severity)
	}
	if rateLimited {
		c.Set(rateLimitedKey, true)
	}
}

func assessmentOutcome(c *app.RequestContext) (severity string, rateLimited bool) {
	severity = c.GetString(assessmentSeverityKey)
	rateLimited = c.GetBool(rateLimitedKey)
	return severity, rateLimited
}

// InitMetrics 初始化指标
func InitMetrics(meter metric.Meter) error {
	var err error

	httpServerRequestTotal, err = meter.Int64Counter(
		"http.server.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	// 评估接口要求秒级响应，桶集中在 5s 以内
	httpServerDuration, err = meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 3.0, 5.0),
	)
	if err != nil {
		return err
	}

	httpServerActiveRequests, err = meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	crisisAssessmentResults, err = meter.Int64Counter(
		"crisis.http.assessments",
		metric.WithDescription("Assessment responses by severity"),
		metric.WithUnit("{assessment}"),
	)
	if err != nil {
		return err
	}

	metricsReady = true
	return nil
}

// OpenTelemetryMiddleware 记录请求 span 与指标，未调用 InitMetrics 时只记录 span。
// span 不带完整 URL 与请求体，评估数据只以等级形式出现
func OpenTelemetryMiddleware() app.HandlerFunc {
	tracer := otel.Tracer("crisisdesk/http")

	return func(ctx context.Context, c *app.RequestContext) {
		startTime := time.Now()

		if metricsReady {
			httpServerActiveRequests.Add(ctx, 1)
			defer httpServerActiveRequests.Add(ctx, -1)
		}

		method := toValidUTF8(string(c.Method()))
		// 使用路由模板，避免 /interventions/:id 造成高基数
		route := toValidUTF8(c.FullPath())
		if route == "" {
			route = "unmatched"
		}

		spanCtx, span := tracer.Start(ctx, method+" "+route, trace.WithAttributes(
			semconv.HTTPMethod(method),
			semconv.HTTPRoute(route),
		))
		defer span.End()

		if requestID := GetRequestID(c); requestID != "" {
			span.SetAttributes(attribute.String("http.request_id", requestID))
		}

		c.Next(spanCtx)

		// 认证中间件在本中间件之后执行，身份在 Next 之后才可读
		_, authenticated := GetUserID(spanCtx, c)
		span.SetAttributes(attribute.Bool("crisis.authenticated", authenticated))

		severity, rateLimited := assessmentOutcome(c)
		if severity != "" {
			span.SetAttributes(attribute.String("crisis.severity", severity))
		}
		if rateLimited {
			span.SetAttributes(attribute.Bool("crisis.rate_limited", true))
		}

		duration := time.Since(startTime).Seconds()
		statusCode := int(c.Response.StatusCode())
		span.SetAttributes(semconv.HTTPStatusCode(statusCode))

		switch {
		case statusCode >= 500:
			span.SetStatus(codes.Error, "HTTP server error")
			if lastErr := c.Errors.Last(); lastErr != nil {
				span.RecordError(lastErr)
			}
		case statusCode >= 400:
			// 校验失败与限流属于预期结果，不标记为 span 错误
			span.SetStatus(codes.Unset, "")
		default:
			span.SetStatus(codes.Ok, "")
		}

		if !metricsReady {
			return
		}

		labels := metric.WithAttributes(
			semconv.HTTPMethod(method),
			semconv.HTTPRoute(route),
			semconv.HTTPStatusCode(statusCode),
		)
		httpServerRequestTotal.Add(ctx, 1, labels)
		httpServerDuration.Record(ctx, duration, labels)

		if severity != "" || rateLimited {
			crisisAssessmentResults.Add(ctx, 1, metric.WithAttributes(
				attribute.String("severity", severity),
				attribute.Bool("authenticated", authenticated),
				attribute.Bool("rate_limited", rateLimited),
			))
		}
	}
}

// NewServerTracerConfig 创建 Hertz Server 的追踪配置
// 返回用于初始化 Hertz server 的配置选项和追踪中间件
func NewServerTracerConfig(opts ...hertztracing.Option) (config.Option, app.HandlerFunc) {
	tracer, cfg := hertztracing.NewServerTracer(opts...)
	return tracer, hertztracing.ServerMiddleware(cfg)
}
