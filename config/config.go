package config

import (
	"log"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"smsrelay"`

	// PostgreSQL 配置
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"smsrelay"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"30"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"200"`

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"smsrelay"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// 短信网关配置
	// 三项凭证缺失时不在启动阶段报错，构造网关客户端时才快速失败，
	// 只跑 webhook 的部署不需要发送侧凭证
	SMSAPIURL        string `env:"SMS_API_URL"`
	SMSAPIUsername   string `env:"SMS_API_USERNAME"`
	SMSAPIPassword   string `env:"SMS_API_PASSWORD"`
	SMSDefaultSender string `env:"SMS_DEFAULT_SENDER"`
	SMSDcs           string `env:"SMS_DCS" envDefault:"gsm"` // gsm, ucs
	SMSDlrMask       int    `env:"SMS_DLR_MASK" envDefault:"19"`
	SMSUseFlash      bool   `env:"SMS_USE_FLASH" envDefault:"false"`

	// 短信有效期配置
	SMSUseValidatePeriod     bool `env:"SMS_USE_VALIDATE_PERIOD" envDefault:"false"`
	SMSValidatePeriodMinutes int  `env:"SMS_VALIDATE_PERIOD_MINUTES" envDefault:"1440"`
	SMSMaxSendAttempts       int  `env:"SMS_MAX_SEND_ATTEMPTS" envDefault:"3"` // 单次投递内的 HTTP 重试上限

	// DLR 回调配置
	WebBaseURL        string `env:"WEB_BASE_URL"`              // 对外可达的服务地址，用于拼 dlrUrl
	WebhookToken      string `env:"SMS_WEBHOOK_TOKEN"`         // query 参数 token
	WebhookHMACSecret string `env:"SMS_WEBHOOK_HMAC_SECRET"`   // 为空则跳过签名校验

	// 队列 worker 配置
	WorkerIntervalSeconds int `env:"SMS_WORKER_INTERVAL_SECONDS" envDefault:"60"`
	WorkerBatchLimit      int `env:"SMS_WORKER_BATCH_LIMIT" envDefault:"100"`
	StaleJobMinutes       int `env:"SMS_STALE_JOB_MINUTES" envDefault:"30"`

	// 队列 job 默认参数
	JobMaxRetries   int `env:"SMS_JOB_MAX_RETRIES" envDefault:"5"`
	JobDelaySeconds int `env:"SMS_JOB_DELAY_SECONDS" envDefault:"60"`
	JobPriority     int `env:"SMS_JOB_PRIORITY" envDefault:"10"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// OpenTelemetry 配置
	OTLPEndpoint    string  `env:"OTLP_ENDPOINT" envDefault:""`
	OTelSampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"0.1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`
}

func init() {

	if err := godotenv.Load(); err != nil {

		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	Cfg = Config{}
	if err := env.Parse(&Cfg); err != nil {
		log.Fatalf("Failed to parse environment variables: %v", err)
	}

	validateConfig()
}

func validateConfig() {
	if Cfg.SMSAPIURL == "" || Cfg.SMSAPIUsername == "" || Cfg.SMSAPIPassword == "" {
		log.Printf("WARN: SMS gateway credentials are incomplete, message sending will fail until configured")
	}

	if Cfg.WebhookToken == "" {
		log.Printf("WARN: SMS_WEBHOOK_TOKEN is not set, DLR webhook will reject all requests")
	}

	if Cfg.WebhookHMACSecret == "" {
		log.Printf("WARN: SMS_WEBHOOK_HMAC_SECRET is not set, DLR signature verification is disabled")
	}

	if Cfg.SMSDcs != "gsm" && Cfg.SMSDcs != "ucs" {
		log.Fatalf("SMS_DCS must be 'gsm' or 'ucs', got %q", Cfg.SMSDcs)
	}
}

func (c *Config) GetDSN() string {
	return "host=" + c.PostgreSQLHost +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

// GetDlrURL 拼出要配置在短信供应商后台的 DLR 回调地址
// base url 或 token 缺失时返回空串，由调用方决定是否携带 dlrUrl 字段
func (c *Config) GetDlrURL() string {
	if c.WebBaseURL == "" || c.WebhookToken == "" {
		return ""
	}
	return strings.TrimRight(c.WebBaseURL, "/") + "/webhook/dlr?token=" + c.WebhookToken
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
