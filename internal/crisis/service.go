package crisis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	pkgerrors "CrisisDesk/pkg/errors"
	"CrisisDesk/pkg/metrics"
)

// State 单次评估请求的状态，线性推进不回退
type State string

const (
	StateReceived         State = "RECEIVED"
	StateValidated        State = "VALIDATED"
	StateRateChecked      State = "RATE_CHECKED"
	StateClassified       State = "CLASSIFIED"
	StatePlanned          State = "PLANNED"
	StateDispatched       State = "DISPATCHED"
	StateResponded        State = "RESPONDED"
	StateValidationFailed State = "VALIDATION_FAILED"
	StateRateLimited      State = "RATE_LIMITED"
)

// Response 评估响应，Resources 在任何情况下都有值
type Response struct {
	Success           bool              `json:"success"`
	Severity          Severity          `json:"severity,omitempty"`
	InterventionType  InterventionType  `json:"interventionType,omitempty"`
	Urgent            *bool             `json:"urgent,omitempty"`
	Message           string            `json:"message,omitempty"`
	NextSteps         []string          `json:"nextSteps,omitempty"`
	AlertsSent        *bool             `json:"alertsSent,omitempty"`
	EmergencyDispatch *bool             `json:"emergencyDispatch,omitempty"`
	FollowUpRequired  *bool             `json:"followUpRequired,omitempty"`
	FollowUpDate      *time.Time        `json:"followUpDate,omitempty"`
	InterventionID    string            `json:"interventionId,omitempty"`
	Resources         ResourceSet       `json:"resources"`
	Error             string            `json:"error,omitempty"`
	Details           map[string]string `json:"details,omitempty"`
	RateLimited       bool              `json:"rateLimited,omitempty"`
}

// Assessor 评估入口，审计装饰器与传输层依赖此接口
type Assessor interface {
	Assess(ctx context.Context, req Request) (*Response, error)
	Resources() ResourceSet
}

// Service 评估编排
type Service struct {
	catalog     *Catalog
	limiter     RateLimiter
	coordinator *Coordinator
	logger      *zap.Logger
}

// Option 可选依赖
type Option func(*Service)

// WithRateLimiter 未设置时不限流
func WithRateLimiter(l RateLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService coordinator 为 nil 时所有评估都退化为只返回资源
func NewService(catalog *Catalog, coordinator *Coordinator, opts ...Option) *Service {
	s := &Service{
		catalog:     catalog,
		coordinator: coordinator,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resources 不经过状态机，无需认证与限流
func (s *Service) Resources() ResourceSet {
	return s.catalog.Get()
}

// Assess 执行一次完整评估。返回的 error 为 pkg/errors 定义之一，仅用于映射状态码，
// Response 始终非 nil 且携带资源。
func (s *Service) Assess(ctx context.Context, req Request) (resp *Response, err error) {
	start := time.Now()
	state := StateReceived
	severity := ""

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Crisis assessment panicked",
				zap.Any("panic", r),
				zap.String("state", string(state)),
				zap.String("user_id", req.UserID),
			)
			resp = s.failure(pkgerrors.InternalError)
			err = pkgerrors.InternalError
			state = "PANIC"
		}
		metrics.GetMetrics().RecordAssessment(ctx, severity, string(state), time.Since(start).Seconds())
	}()

	in, verr := Validate(req)
	if verr != nil {
		state = StateValidationFailed
		resp = s.failure(pkgerrors.ValidationFailed)
		var ve *ValidationError
		if errors.As(verr, &ve) {
			resp.Details = ve.Details
		}
		s.logger.Info("Crisis assessment rejected by validation",
			zap.String("user_id", req.UserID),
			zap.Int("invalid_fields", len(resp.Details)),
		)
		return resp, verr
	}
	state = StateValidated

	if s.rateLimited(ctx, req) {
		state = StateRateLimited
		resp = s.failure(pkgerrors.RateLimited)
		resp.RateLimited = true
		metrics.GetMetrics().RecordRateLimited(ctx)
		return resp, pkgerrors.RateLimited
	}
	state = StateRateChecked

	sev := Classify(in)
	severity = sev.String()
	state = StateClassified

	plan := PlanFor(sev)
	state = StatePlanned

	var outcome Outcome
	if s.coordinator != nil {
		outcome = s.coordinator.Dispatch(ctx, plan, in, req.UserID)
	}
	state = StateDispatched

	resp = s.success(plan, outcome)
	state = StateResponded

	s.logger.Info("Crisis assessment completed",
		zap.String("user_id", req.UserID),
		zap.String("severity", severity),
		zap.String("intervention_type", string(plan.InterventionType)),
		zap.Bool("degraded", outcome.Degraded()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}

// rateLimited 限流器异常时放行，危机请求不能因为限流组件故障被拒绝
func (s *Service) rateLimited(ctx context.Context, req Request) bool {
	if s.limiter == nil {
		return false
	}
	id := rateLimitIdentifier(req)
	decision, err := s.limiter.Check(ctx, id)
	if err != nil {
		s.logger.Warn("Rate limiter unavailable, allowing assessment",
			zap.String("identifier", id),
			zap.Error(err),
		)
		return false
	}
	if !decision.Allowed {
		s.logger.Warn("Crisis assessment rate limited",
			zap.String("identifier", id),
			zap.Time("reset_at", decision.ResetAt),
		)
		return true
	}
	return false
}

func rateLimitIdentifier(req Request) string {
	switch {
	case req.UserID != "":
		return "user:" + req.UserID
	case req.ClientIP != "":
		return "ip:" + req.ClientIP
	default:
		return "anonymous"
	}
}

func (s *Service) success(plan Plan, outcome Outcome) *Response {
	resp := &Response{
		Success:           true,
		Severity:          plan.Severity,
		InterventionType:  plan.InterventionType,
		Message:           plan.Message,
		NextSteps:         plan.NextSteps,
		AlertsSent:        boolPtr(outcome.AlertsSent),
		EmergencyDispatch: boolPtr(outcome.EmergencyDispatchTriggered),
		FollowUpRequired:  boolPtr(plan.FollowUpRequired),
		FollowUpDate:      outcome.FollowUpDate,
		Resources:         s.catalog.Get(),
	}
	if plan.UrgentReported {
		resp.Urgent = boolPtr(plan.Urgent)
	}
	if outcome.RecordID != 0 {
		// 雪花 ID 超出 JS 安全整数范围，以字符串输出
		resp.InterventionID = strconv.FormatInt(outcome.RecordID, 10)
	}
	return resp
}

func (s *Service) failure(def pkgerrors.Definition) *Response {
	return &Response{
		Success:   false,
		Error:     def.Message,
		Resources: s.catalog.Get(),
	}
}

func boolPtr(v bool) *bool {
	return &v
}
