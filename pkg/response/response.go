package response

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"CrisisDesk/pkg/errors"
)

// ErrorResponse 统一的错误响应格式
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

// SuccessResponse 统一的成功响应格式
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// StatusOf 错误到 HTTP 状态码，nil 为 200
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}

	def, ok := errors.As(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch def.Code {
	case errors.ValidationFailed.Code, errors.InvalidInterventionID.Code:
		return http.StatusBadRequest // 400
	case errors.Unauthorized.Code:
		return http.StatusUnauthorized // 401
	case errors.Forbidden.Code:
		return http.StatusForbidden // 403
	case errors.InterventionNotFound.Code:
		return http.StatusNotFound // 404
	case errors.RateLimited.Code:
		return http.StatusTooManyRequests // 429
	case errors.DependencyUnavailable.Code:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}

// JSON 按 err 映射状态码并原样输出 body，用于评估这类自带错误字段的响应
func JSON(ctx context.Context, c *app.RequestContext, err error, body interface{}) {
	c.JSON(StatusOf(err), body)
}

// Error 返回错误响应，非 Definition 错误不暴露内部信息
func Error(ctx context.Context, c *app.RequestContext, err error) {
	ErrorWithDetails(ctx, c, err, nil)
}

func ErrorWithDetails(ctx context.Context, c *app.RequestContext, err error, details map[string]interface{}) {
	def, ok := errors.As(err)
	if !ok {
		def = errors.InternalError
	}

	c.JSON(StatusOf(err), ErrorResponse{
		Error: ErrorDetail{
			Code:    def.Code,
			Message: def.Message,
			Details: details,
		},
	})
}

func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
	})
}
