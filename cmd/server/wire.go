package main

import (
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"CrisisDesk/config"
	"CrisisDesk/internal/audit"
	"CrisisDesk/internal/crisis"
	"CrisisDesk/internal/middleware"
	"CrisisDesk/internal/notify"
	"CrisisDesk/internal/queue"
	"CrisisDesk/internal/ratelimit"
	"CrisisDesk/internal/repository"
	"CrisisDesk/internal/service"
	"CrisisDesk/pkg/logger"
	"CrisisDesk/pkg/sms"
	"CrisisDesk/pkg/snowflake"
	"CrisisDesk/storage/database"
	"CrisisDesk/storage/mq"
	"CrisisDesk/storage/redis"
	"CrisisDesk/utils"
)

// buildCrisisService 组装评估链路，返回的 Coordinator 用于关闭时等待后台随访调度
func buildCrisisService(auditor *audit.Auditor) (*service.CrisisService, *crisis.Coordinator) {
	cfg := config.Cfg

	catalog, err := crisis.LoadCatalog(cfg.CrisisResourcesFile)
	if err != nil {
		logger.Logger.Warn("Falling back to built-in crisis resources", zap.Error(err))
	}

	cipher, err := utils.NewCipher(cfg.EncryptionKey)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize PHI cipher", zap.Error(err))
	}
	store := repository.NewInterventionStore(database.DB(), cipher, logger.Named("repository"))

	broker := mq.Broker{}
	notifyLogger := logger.Named("notify")

	// 短信不可用时只跳过联系人通知，不影响其他协作方
	var contacts crisis.ContactNotifier
	if client, err := sms.New(cfg.SMSProvider); err != nil {
		logger.Logger.Warn("SMS service disabled, emergency contacts will not be notified", zap.Error(err))
	} else {
		contacts = notify.NewSMSContactNotifier(client, notify.SMSConfig{
			SignName:      cfg.SMSSignName,
			TemplateCode:  cfg.SMSTemplateCode,
			PhoneHashSalt: cfg.PhoneHashSalt,
		}, notifyLogger)
	}

	coordinator := crisis.NewCoordinator(crisis.CoordinatorConfig{
		Store:      store,
		Notifier:   notify.NewCrisisTeamBroadcaster(broker, notifyLogger),
		Dispatcher: notify.NewEmergencyDispatcher(broker, uuid.NewString, notifyLogger),
		Contacts:   contacts,
		FollowUps:  queue.NewFollowUpProducer(broker, store, logger.Named("follow_up")),
		Auditor:    auditor,
		IDs:        snowflake.Default(),
		Catalog:    catalog,
		Timeout:    cfg.CrisisCollaboratorTimeout,
		Logger:     logger.Named("dispatch"),
	})

	opts := []crisis.Option{crisis.WithLogger(logger.Named("assessment"))}
	if cfg.RateLimitEnabled {
		opts = append(opts, crisis.WithRateLimiter(ratelimit.NewSlidingWindowLimiter(redis.Client(), ratelimit.Config{
			Window:        time.Duration(cfg.CrisisRateLimitWin) * time.Second,
			MaxRequests:   cfg.CrisisRateLimitMax,
			BlockDuration: time.Duration(cfg.CrisisRateLimitBlock) * time.Second,
			KeyPrefix:     redis.Key("rate", "assess"),
		})))
	}

	assessor := crisis.WithAudit(crisis.NewService(catalog, coordinator, opts...), auditor)
	return service.NewCrisisService(assessor, store, auditor), coordinator
}

// newHertz 开启链路追踪时挂载 obs-opentelemetry 的 server tracer
func newHertz(addr string) *server.Hertz {
	opts := []hertzconfig.Option{server.WithHostPorts(addr)}
	if !config.Cfg.TracingEnabled {
		return server.New(opts...)
	}

	tracer, tracingMiddleware := middleware.NewServerTracerConfig()
	h := server.New(append(opts, tracer)...)
	h.Use(tracingMiddleware)
	return h
}
