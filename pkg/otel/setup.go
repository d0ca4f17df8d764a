package otel

import (
	"context"

	"CrisisDesk/config"
)

// Setup 按全局配置初始化，未开启链路追踪时返回空的 ShutdownFunc。
// component 区分 server/worker/scheduler 三个进程。
func Setup(ctx context.Context, component string) (ShutdownFunc, error) {
	if !config.Cfg.TracingEnabled {
		return func(context.Context) error { return nil }, nil
	}

	serviceName := config.Cfg.ServiceName
	if component != "" {
		serviceName += "-" + component
	}

	return InitOpenTelemetry(ctx, Config{
		ServiceName:    serviceName,
		ServiceVersion: config.Cfg.ServiceVersion,
		Environment:    config.Cfg.Environment,
		OTLPEndpoint:   config.Cfg.TracingEndpoint,
		SampleRatio:    config.Cfg.TracingSampleRatio,
	})
}
