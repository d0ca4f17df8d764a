package middleware

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"

	"CrisisDesk/internal/audit"
)

const HeaderRequestID = "X-Request-ID"

const maxRequestIDLength = 128

// RequestIDMiddleware 透传或生成请求 ID，同时作为审计关联 ID
func RequestIDMiddleware() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		requestID := toValidUTF8(string(c.GetHeader(HeaderRequestID)))
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}

		c.Set("request_id", requestID)
		c.Header(HeaderRequestID, requestID)
		c.Next(audit.WithCorrelationID(ctx, requestID))
	}
}

// GetRequestID 未经过 RequestIDMiddleware 时返回空串
func GetRequestID(c *app.RequestContext) string {
	return c.GetString("request_id")
}
