package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"CrisisDesk/internal/crisis"
	"CrisisDesk/internal/model/dto"
	"CrisisDesk/pkg/errors"
	"CrisisDesk/pkg/logger"
)

const auditActionComplete = "INTERVENTION_COMPLETE"

// InterventionHistory 干预记录查询与完成，由 repository.InterventionStore 实现
type InterventionHistory interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]dto.InterventionItem, int64, error)
	Complete(ctx context.Context, id int64, userID string, at time.Time) error
}

// CrisisService handler 层的危机服务入口
type CrisisService struct {
	assessor crisis.Assessor
	history  InterventionHistory
	auditor  crisis.Auditor
	now      func() time.Time
}

var (
	crisisService *CrisisService
	crisisMu      sync.RWMutex
)

// NewCrisisService history 与 auditor 可为 nil
func NewCrisisService(assessor crisis.Assessor, history InterventionHistory, auditor crisis.Auditor) *CrisisService {
	return &CrisisService{
		assessor: assessor,
		history:  history,
		auditor:  auditor,
		now:      time.Now,
	}
}

// Init 注册全局实例，cmd/server 在注册路由前调用
func Init(s *CrisisService) {
	crisisMu.Lock()
	defer crisisMu.Unlock()
	crisisService = s
}

func Crisis() *CrisisService {
	crisisMu.RLock()
	defer crisisMu.RUnlock()
	if crisisService == nil {
		panic("crisis service not initialized, call service.Init() first")
	}
	return crisisService
}

func (s *CrisisService) Resources() crisis.ResourceSet {
	return s.assessor.Resources()
}

func (s *CrisisService) Assess(ctx context.Context, req crisis.Request) (*crisis.Response, error) {
	return s.assessor.Assess(ctx, req)
}

// ListInterventions 查询当前用户的干预历史
func (s *CrisisService) ListInterventions(ctx context.Context, userID string, req dto.ListInterventionsRequest) (*dto.ListInterventionsResponse, error) {
	if s.history == nil {
		return nil, errors.DependencyUnavailable
	}

	items, total, err := s.history.ListByUser(ctx, userID, req.Limit, req.Offset)
	if err != nil {
		logger.Logger.Error("Failed to list interventions",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, errors.NewDependencyError("database", err)
	}

	return &dto.ListInterventionsResponse{Items: items, Total: total}, nil
}

// CompleteIntervention 标记干预结束，rawID 为路径参数
func (s *CrisisService) CompleteIntervention(ctx context.Context, userID, rawID string) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return errors.InvalidInterventionID
	}
	if s.history == nil {
		return errors.DependencyUnavailable
	}

	entry := crisis.AuditEntry{
		Action:   auditActionComplete,
		Entity:   crisis.AuditEntityRecord,
		EntityID: rawID,
		UserID:   userID,
	}

	if err := s.history.Complete(ctx, id, userID, s.now()); err != nil {
		if s.auditor != nil {
			s.auditor.LogError(ctx, entry, err)
		}
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.NewDependencyError("database", err)
	}

	if s.auditor != nil {
		s.auditor.LogSuccess(ctx, entry)
	}
	return nil
}
