package gateway

import (
	"context"
	"net/http"
	"time"

	"SmsRelay/config"
	"SmsRelay/pkg/errors"
)

// 节流错误码，网关限速时返回 420 + code 105
const throttlingErrorCode = 105

// Sender 抽象一次短信投递，worker 依赖该接口，便于测试注入 mock
type Sender interface {
	SendSMS(ctx context.Context, data SendData) Result
}

// Client JSON-over-HTTP 网关客户端
type Client struct {
	apiURL   string
	username string
	password string

	dcs                   string
	dlrMask               int
	dlrURL                string
	useFlash              bool
	useValidatePeriod     bool
	validatePeriodMinutes int

	maxRetries int
	httpClient *http.Client

	// 重试等待，生产构造保持契约值，测试可缩短
	throttleDelay    time.Duration
	serverErrorDelay time.Duration
}

// NewClient 构造网关客户端
// URL / 用户名 / 密码任一缺失直接报错，worker 整轮跳过而不是逐条失败
func NewClient(cfg config.Config) (*Client, error) {
	if cfg.SMSAPIURL == "" || cfg.SMSAPIUsername == "" || cfg.SMSAPIPassword == "" {
		return nil, errors.GatewayNotConfigured
	}

	maxRetries := cfg.SMSMaxSendAttempts
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Client{
		apiURL:   cfg.SMSAPIURL,
		username: cfg.SMSAPIUsername,
		password: cfg.SMSAPIPassword,

		dcs:                   cfg.SMSDcs,
		dlrMask:               cfg.SMSDlrMask,
		dlrURL:                cfg.GetDlrURL(),
		useFlash:              cfg.SMSUseFlash,
		useValidatePeriod:     cfg.SMSUseValidatePeriod,
		validatePeriodMinutes: cfg.SMSValidatePeriodMinutes,

		maxRetries: maxRetries,
		httpClient: &http.Client{
			Timeout: 20 * time.Second, // 单次请求上限
		},

		throttleDelay:    1 * time.Second,
		serverErrorDelay: 60 * time.Second,
	}, nil
}
