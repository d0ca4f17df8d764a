package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"CrisisDesk/internal/crisis"
	"CrisisDesk/internal/service"
	pkgerrors "CrisisDesk/pkg/errors"
	"CrisisDesk/pkg/response"
)

// CrisisPanicResponse 危机接口 panic 后的 500 响应，同样带上危机资源
func CrisisPanicResponse(ctx context.Context, c *app.RequestContext) {
	response.JSON(ctx, c, pkgerrors.InternalError, &crisis.Response{
		Success:   false,
		Error:     pkgerrors.InternalError.Message,
		Resources: fallbackResources(),
	})
}

// fallbackResources 服务未初始化或资源读取失败时退回内置资源
func fallbackResources() (set crisis.ResourceSet) {
	defer func() {
		if r := recover(); r != nil {
			set = crisis.DefaultResources()
		}
	}()
	return service.Crisis().Resources()
}
