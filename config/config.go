package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"crisisdesk"`

	// PostgreSQL 配置
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"crisisdesk"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"30"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"200"`
	// 只读副本，逗号分隔的 host:port，留空则不启用读写分离
	PostgreSQLReplicaHosts []string `env:"POSTGRESQL_REPLICA_HOSTS" envSeparator:","`

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"crisis"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// JWT 配置
	JWTSecret        string `env:"JWT_SECRET"` // 必填，用于签名 JWT
	JWTExpireMinutes int    `env:"JWT_EXPIRE_MINUTES" envDefault:"30"`
	JWTRefreshDays   int    `env:"JWT_REFRESH_DAYS" envDefault:"7"`

	// 短信服务配置（紧急联系人通知）
	// AccessKey 通过阿里云 SDK 的环境变量 ALIBABA_CLOUD_ACCESS_KEY_ID / ALIBABA_CLOUD_ACCESS_KEY_SECRET 获取
	SMSProvider     string `env:"SMS_PROVIDER" envDefault:"aliyun"` // aliyun, mock
	SMSSignName     string `env:"SMS_SIGN_NAME"`
	SMSTemplateCode string `env:"SMS_TEMPLATE_CODE"`

	// 加密配置，症状等 PHI 字段落库前加密
	EncryptionKey string `env:"ENCRYPTION_KEY"` // 32字节 AES-256
	PhoneHashSalt string `env:"PHONEHASH_SALT"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// 链路追踪配置
	TracingEnabled     bool    `env:"TRACING_ENABLED" envDefault:"false"`
	TracingEndpoint    string  `env:"TRACING_ENDPOINT" envDefault:"localhost:4317"`
	TracingSampleRatio float64 `env:"TRACING_SAMPLE_RATIO" envDefault:"0.1"`
	ServiceVersion     string  `env:"SERVICE_VERSION" envDefault:"dev"`

	// 危机评估限流配置
	RateLimitEnabled     bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	CrisisRateLimitMax   int  `env:"CRISIS_RATE_LIMIT_MAX" envDefault:"10"`     // 窗口内最大评估次数
	CrisisRateLimitWin   int  `env:"CRISIS_RATE_LIMIT_WINDOW" envDefault:"60"`  // 秒
	CrisisRateLimitBlock int  `env:"CRISIS_RATE_LIMIT_BLOCK" envDefault:"300"`  // 超限后阻塞秒数

	// 危机调度配置
	CrisisCollaboratorTimeout time.Duration `env:"CRISIS_COLLABORATOR_TIMEOUT" envDefault:"3s"`
	CrisisResourcesFile       string        `env:"CRISIS_RESOURCES_FILE"`
	// 允许携带凭证跨域访问的求助页面来源，其余来源只能匿名调用
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// 随访调度配置
	FollowUpScanInterval time.Duration `env:"FOLLOW_UP_SCAN_INTERVAL" envDefault:"5m"`
	FollowUpScanWindow   time.Duration `env:"FOLLOW_UP_SCAN_WINDOW" envDefault:"10m"`
}

// Load 从 .env 与环境变量解析配置，不做校验
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	return cfg, nil
}

// Init 加载并校验全局配置，各 cmd 入口最先调用
func Init() {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	warnConfig(cfg)
	Cfg = cfg
}

// Validate 校验必填项
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if len(c.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	if c.CrisisCollaboratorTimeout <= 0 {
		return fmt.Errorf("CRISIS_COLLABORATOR_TIMEOUT must be positive")
	}

	return nil
}

func warnConfig(c Config) {
	if strings.EqualFold(c.SMSProvider, "aliyun") {
		if c.SMSSignName == "" {
			log.Printf("WARN: SMS_SIGN_NAME is not set, emergency contact SMS may not work properly")
		}
		if c.SMSTemplateCode == "" {
			log.Printf("WARN: SMS_TEMPLATE_CODE is not set, emergency contact SMS may not work properly")
		}
	}

	if c.CrisisResourcesFile == "" {
		log.Printf("INFO: CRISIS_RESOURCES_FILE is not set, using built-in crisis resources")
	}
}

func (c *Config) GetDSN() string {
	return c.dsnForHost(c.PostgreSQLHost, c.PostgreSQLPort)
}

// GetReplicaDSNs 返回只读副本 DSN 列表
func (c *Config) GetReplicaDSNs() []string {
	dsns := make([]string, 0, len(c.PostgreSQLReplicaHosts))
	for _, hostPort := range c.PostgreSQLReplicaHosts {
		hostPort = strings.TrimSpace(hostPort)
		if hostPort == "" {
			continue
		}
		host, port := hostPort, c.PostgreSQLPort
		if i := strings.LastIndex(hostPort, ":"); i > 0 {
			host, port = hostPort[:i], hostPort[i+1:]
		}
		dsns = append(dsns, c.dsnForHost(host, port))
	}
	return dsns
}

func (c *Config) dsnForHost(host, port string) string {
	return "host=" + host +
		" port=" + port +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
