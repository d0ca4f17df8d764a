package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics OpenTelemetry 指标集合
type OTelMetrics struct {
	// 危机评估相关指标
	AssessmentTotal      metric.Int64Counter
	AssessmentDuration   metric.Float64Histogram
	DispatchFailureTotal metric.Int64Counter
	DispatchDuration     metric.Float64Histogram
	RateLimitedTotal     metric.Int64Counter

	// 随访相关指标
	FollowUpScheduledTotal metric.Int64Counter
	FollowUpSentTotal      metric.Int64Counter
}

var (
	// 全局指标实例，未初始化时所有 Record 方法为 no-op
	metrics *OTelMetrics
	// meter 用于创建指标
	meter = otel.Meter("crisisdesk")
)

// InitMetrics 初始化 OpenTelemetry 指标，需在 otel.SetMeterProvider 之后调用
func InitMetrics() error {
	meter = otel.Meter("crisisdesk")
	m, err := NewOTelMetrics(meter)
	if err != nil {
		return err
	}
	metrics = m
	return nil
}

// NewOTelMetrics 基于给定 meter 创建指标集合
func NewOTelMetrics(meter metric.Meter) (*OTelMetrics, error) {
	var err error
	m := &OTelMetrics{}

	m.AssessmentTotal, err = meter.Int64Counter(
		"crisis_assessments_total",
		metric.WithDescription("Total number of crisis assessments by severity and outcome"),
		metric.WithUnit("{assessment}"),
	)
	if err != nil {
		return nil, err
	}

	m.AssessmentDuration, err = meter.Float64Histogram(
		"crisis_assessment_duration_seconds",
		metric.WithDescription("End-to-end crisis assessment latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		return nil, err
	}

	m.DispatchFailureTotal, err = meter.Int64Counter(
		"crisis_dispatch_failures_total",
		metric.WithDescription("Collaborator failures absorbed during dispatch"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	m.DispatchDuration, err = meter.Float64Histogram(
		"crisis_dispatch_duration_seconds",
		metric.WithDescription("Time spent waiting on dispatch collaborators"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.RateLimitedTotal, err = meter.Int64Counter(
		"crisis_rate_limited_total",
		metric.WithDescription("Assessments rejected by the rate limiter"),
		metric.WithUnit("{assessment}"),
	)
	if err != nil {
		return nil, err
	}

	m.FollowUpScheduledTotal, err = meter.Int64Counter(
		"crisis_follow_up_scheduled_total",
		metric.WithDescription("Follow-ups scheduled by route"),
		metric.WithUnit("{follow_up}"),
	)
	if err != nil {
		return nil, err
	}

	m.FollowUpSentTotal, err = meter.Int64Counter(
		"crisis_follow_up_sent_total",
		metric.WithDescription("Follow-up reminders delivered to the crisis team"),
		metric.WithUnit("{follow_up}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// GetMetrics 获取全局指标实例，可能为 nil
func GetMetrics() *OTelMetrics {
	return metrics
}

// RecordAssessment 记录一次评估
func (m *OTelMetrics) RecordAssessment(ctx context.Context, severity, outcome string, duration float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("severity", severity),
		attribute.String("outcome", outcome),
	)
	m.AssessmentTotal.Add(ctx, 1, attrs)
	m.AssessmentDuration.Record(ctx, duration, attrs)
}

// RecordDispatchFailure 记录协作方失败
func (m *OTelMetrics) RecordDispatchFailure(ctx context.Context, collaborator, severity string) {
	if m == nil {
		return
	}
	m.DispatchFailureTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("collaborator", collaborator),
		attribute.String("severity", severity),
	))
}

// RecordDispatchDuration 记录调度耗时
func (m *OTelMetrics) RecordDispatchDuration(ctx context.Context, severity string, duration float64) {
	if m == nil {
		return
	}
	m.DispatchDuration.Record(ctx, duration, metric.WithAttributes(
		attribute.String("severity", severity),
	))
}

// RecordRateLimited 记录被限流的评估
func (m *OTelMetrics) RecordRateLimited(ctx context.Context) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Add(ctx, 1)
}

// RecordFollowUpScheduled 记录随访调度，route 为 mq 或 scheduler
func (m *OTelMetrics) RecordFollowUpScheduled(ctx context.Context, route string) {
	if m == nil {
		return
	}
	m.FollowUpScheduledTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("route", route)))
}

// RecordFollowUpSent 记录随访提醒送达
func (m *OTelMetrics) RecordFollowUpSent(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.FollowUpSentTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
