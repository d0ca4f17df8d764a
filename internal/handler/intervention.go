package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"CrisisDesk/internal/middleware"
	"CrisisDesk/internal/model"
	"CrisisDesk/internal/model/dto"
	"CrisisDesk/internal/service"
	"CrisisDesk/pkg/errors"
	"CrisisDesk/pkg/response"
)

// ListInterventions 当前用户的干预历史
// GET /v1/crisis/interventions
func ListInterventions(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	var req dto.ListInterventionsRequest
	if err := c.BindQuery(&req); err != nil {
		response.ErrorWithDetails(ctx, c, errors.ValidationFailed, map[string]interface{}{
			"query": "limit and offset must be integers",
		})
		return
	}

	result, err := service.Crisis().ListInterventions(ctx, userID, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}

// CompleteIntervention 标记干预结束
// POST /v1/crisis/interventions/:id/complete
func CompleteIntervention(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	id := c.Param("id")
	if err := service.Crisis().CompleteIntervention(ctx, userID, id); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]string{
		"id":     id,
		"status": string(model.InterventionStatusCompleted),
	})
}
