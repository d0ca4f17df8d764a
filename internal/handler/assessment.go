package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudwego/hertz/pkg/app"

	"CrisisDesk/internal/crisis"
	"CrisisDesk/internal/middleware"
	"CrisisDesk/internal/service"
	pkgerrors "CrisisDesk/pkg/errors"
	"CrisisDesk/pkg/response"
)

// CreateAssessment 提交危机自评，匿名可用
// POST /v1/crisis/assessments
func CreateAssessment(ctx context.Context, c *app.RequestContext) {
	svc := service.Crisis()

	var req crisis.Request
	if verr := decodeAssessment(c.Request.Body(), &req); verr != nil {
		response.JSON(ctx, c, verr, &crisis.Response{
			Success:   false,
			Error:     pkgerrors.ValidationFailed.Message,
			Details:   verr.Details,
			Resources: svc.Resources(),
		})
		return
	}

	if userID, ok := middleware.GetUserID(ctx, c); ok {
		req.UserID = userID
	}
	req.ClientIP = c.ClientIP()

	resp, err := svc.Assess(ctx, req)
	if resp != nil {
		middleware.SetAssessmentOutcome(c, resp.Severity.String(), resp.RateLimited)
	}
	response.JSON(ctx, c, err, resp)
}

// GetResources 危机资源，不鉴权不限流
// GET /v1/crisis/resources
func GetResources(ctx context.Context, c *app.RequestContext) {
	response.JSON(ctx, c, nil, &crisis.Response{
		Success:   true,
		Resources: service.Crisis().Resources(),
	})
}

// decodeAssessment 类型错误按字段报告，例如 "hasPlan": "yes"
func decodeAssessment(body []byte, req *crisis.Request) *crisis.ValidationError {
	if len(bytes.TrimSpace(body)) == 0 {
		return crisis.NewValidationError("body", "request body is required")
	}

	if err := json.Unmarshal(body, req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return crisis.NewValidationError(typeErr.Field, fmt.Sprintf("must be of type %s", typeErr.Type))
		}
		return crisis.NewValidationError("body", "must be a valid JSON object")
	}
	return nil
}
