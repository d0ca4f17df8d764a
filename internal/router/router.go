package router

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"

	"CrisisDesk/internal/handler"
	"CrisisDesk/internal/middleware"
	"CrisisDesk/pkg/errors"
	"CrisisDesk/pkg/response"
)

const crisisPrefix = "/v1/crisis"

func Register(h *server.Hertz) {
	h.Use(middleware.RecoverMiddlewareWithConfig(recoverConfig()))
	h.Use(middleware.RequestIDMiddleware())
	h.Use(middleware.CORSMiddleware())
	h.Use(middleware.OpenTelemetryMiddleware())

	h.GET("/healthz", handler.Healthz)

	v1 := h.Group("/v1")

	crisis := v1.Group("/crisis")
	{
		// 资源接口任何情况下都可用
		crisis.GET("/resources", handler.GetResources)
		// 限流在评估服务内部完成，按用户或 IP 计数
		crisis.POST("/assessments", middleware.OptionalAuthMiddleware(), handler.CreateAssessment)
	}

	interventions := crisis.Group("/interventions")
	interventions.Use(middleware.AuthMiddleware())
	{
		interventions.GET("", handler.ListInterventions)
		interventions.POST("/:id/complete", handler.CompleteIntervention)
	}
}

// recoverConfig 危机接口 panic 时仍返回危机资源，其余接口返回通用错误
func recoverConfig() middleware.RecoverConfig {
	cfg := middleware.DefaultRecoverConfig
	cfg.OnPanic = func(ctx context.Context, c *app.RequestContext) {
		if strings.HasPrefix(string(c.Path()), crisisPrefix) {
			handler.CrisisPanicResponse(ctx, c)
			return
		}
		response.Error(ctx, c, errors.InternalError)
	}
	return cfg
}
