package gateway

import (
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "SmsRelay/pkg/errors"
	"SmsRelay/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

func newTestClient(apiURL string) *Client {
	return &Client{
		apiURL:   apiURL,
		username: "acme",
		password: "secret",

		dcs:     "gsm",
		dlrMask: 19,
		dlrURL:  "https://crm.example.com/webhook/dlr?token=tok",

		maxRetries: 3,
		httpClient: &http.Client{Timeout: 2 * time.Second},

		// 测试里退避压到毫秒级
		throttleDelay:    time.Millisecond,
		serverErrorDelay: time.Millisecond,
	}
}

func TestBuildPayload(t *testing.T) {
	c := newTestClient("http://gateway.local/send")

	t.Run("默认 text 类型并带 dcs", func(t *testing.T) {
		p, err := c.BuildPayload(SendData{
			Sender:    "ACME",
			Receiver:  "34600111222",
			Text:      "hola",
			MessageID: 42,
		})
		require.NoError(t, err)

		assert.Equal(t, "text", p.Type)
		assert.Equal(t, "gsm", p.Dcs)
		assert.Equal(t, "acme", p.Auth.Username)
		assert.Equal(t, "secret", p.Auth.Password)
		assert.Equal(t, int64(42), p.Custom.OdooMessageID)
	})

	t.Run("非 text 类型不带 dcs", func(t *testing.T) {
		p, err := c.BuildPayload(SendData{
			Type:     "binary",
			Sender:   "ACME",
			Receiver: "34600111222",
			Text:     "hola",
		})
		require.NoError(t, err)

		assert.Equal(t, "binary", p.Type)
		assert.Empty(t, p.Dcs)
	})

	t.Run("receiver 去掉加号前缀", func(t *testing.T) {
		p, err := c.BuildPayload(SendData{
			Sender:   "ACME",
			Receiver: "+34600111222",
			Text:     "hola",
		})
		require.NoError(t, err)

		assert.Equal(t, "34600111222", p.Receiver)
	})

	t.Run("非法 receiver 报错", func(t *testing.T) {
		_, err := c.BuildPayload(SendData{
			Sender:   "ACME",
			Receiver: "abc-123",
			Text:     "hola",
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, pkgerrors.GatewayPayloadError)
	})

	t.Run("dlrMask 与 dlrUrl 成对出现", func(t *testing.T) {
		p, err := c.BuildPayload(SendData{
			Sender:   "ACME",
			Receiver: "34600111222",
			Text:     "hola",
		})
		require.NoError(t, err)

		assert.Equal(t, 19, p.DlrMask)
		assert.Equal(t, c.dlrURL, p.DlrURL)
	})

	t.Run("回调地址缺失时不带 dlrMask", func(t *testing.T) {
		noDlr := newTestClient("http://gateway.local/send")
		noDlr.dlrURL = ""

		p, err := noDlr.BuildPayload(SendData{
			Sender:   "ACME",
			Receiver: "34600111222",
			Text:     "hola",
		})
		require.NoError(t, err)

		assert.Zero(t, p.DlrMask)
		assert.Empty(t, p.DlrURL)
	})

	t.Run("flash 和有效期开关", func(t *testing.T) {
		flashy := newTestClient("http://gateway.local/send")
		flashy.useFlash = true
		flashy.useValidatePeriod = true
		flashy.validatePeriodMinutes = 1440

		p, err := flashy.BuildPayload(SendData{
			Sender:   "ACME",
			Receiver: "34600111222",
			Text:     "hola",
		})
		require.NoError(t, err)

		assert.True(t, p.Flash)
		assert.Equal(t, 1440, p.ValidatePeriodMinutes)
	})
}
