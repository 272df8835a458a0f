package handler

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"

	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"SmsRelay/internal/model"
	"SmsRelay/pkg/logger"
)

const testToken = "hook-token"

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	// 库名取测试名哈希，子测试名里的空格和标点不会破坏 DSN
	dsn := fmt.Sprintf("file:%x?mode=memory&cache=shared", sha256.Sum256([]byte(t.Name())))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&model.Message{}, &model.QueueJob{}, &model.DlrEvent{}))
	return db
}

func setupWebhook(t *testing.T, token, secret string) (*route.Engine, *gorm.DB) {
	t.Helper()

	db := setupDB(t)
	h := NewWebhookHandler(db, token, secret)

	engine := route.NewEngine(hertzconfig.NewOptions([]hertzconfig.Option{}))
	engine.POST("/webhook/dlr", h.HandleDLR)

	return engine, db
}

func postDLR(engine *route.Engine, path, body string, headers ...ut.Header) *ut.ResponseRecorder {
	allHeaders := append([]ut.Header{{Key: "Content-Type", Value: "application/json"}}, headers...)
	return ut.PerformRequest(engine, http.MethodPost, path,
		&ut.Body{Body: bytes.NewBufferString(body), Len: len(body)},
		allHeaders...)
}

func seedMessage(t *testing.T, db *gorm.DB, msgID string, state model.MessageState) *model.Message {
	t.Helper()

	msg := &model.Message{
		Name:      "SMS +34600111222",
		Sender:    "ACME",
		Receiver:  "+34600111222",
		Text:      "hola",
		MsgID:     msgID,
		NumParts:  1,
		State:     state,
		DedupHash: strings.Repeat("b", 64),
	}
	require.NoError(t, db.Create(msg).Error)
	return msg
}

func dlrBody(messageID int64, providerMsgID, event string) string {
	return fmt.Sprintf(`{
		"msgId": %q,
		"event": %q,
		"errorCode": 0,
		"partNum": 1,
		"numParts": 1,
		"custom": {"odoo_message_id": %d}
	}`, providerMsgID, event, messageID)
}

func TestHandleDLR_TokenAuth(t *testing.T) {
	t.Run("缺 token 拒绝", func(t *testing.T) {
		engine, _ := setupWebhook(t, testToken, "")
		w := postDLR(engine, "/webhook/dlr", "{}")

		resp := w.Result()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
		assert.Equal(t, "Unauthorized", string(resp.Body()))
	})

	t.Run("token 错误拒绝", func(t *testing.T) {
		engine, _ := setupWebhook(t, testToken, "")
		w := postDLR(engine, "/webhook/dlr?token=wrong", "{}")

		assert.Equal(t, http.StatusUnauthorized, w.Result().StatusCode())
	})

	t.Run("未配置 token 时全部拒绝", func(t *testing.T) {
		engine, _ := setupWebhook(t, "", "")
		w := postDLR(engine, "/webhook/dlr", "{}")

		assert.Equal(t, http.StatusUnauthorized, w.Result().StatusCode())
	})
}

func TestHandleDLR_HMACSignature(t *testing.T) {
	const secret = "hmac-secret"

	sign := func(body string) string {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(body))
		return hex.EncodeToString(mac.Sum(nil))
	}

	t.Run("缺签名拒绝", func(t *testing.T) {
		engine, _ := setupWebhook(t, testToken, secret)
		w := postDLR(engine, "/webhook/dlr?token="+testToken, "{}")

		resp := w.Result()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode())
		assert.Equal(t, "Forbidden: Missing Signature", string(resp.Body()))
	})

	t.Run("签名不匹配拒绝", func(t *testing.T) {
		engine, _ := setupWebhook(t, testToken, secret)
		w := postDLR(engine, "/webhook/dlr?token="+testToken, "{}",
			ut.Header{Key: "X-SmsEs-Signature", Value: "deadbeef"})

		resp := w.Result()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode())
		assert.Equal(t, "Forbidden: Invalid Signature", string(resp.Body()))
	})

	t.Run("签名正确放行", func(t *testing.T) {
		engine, db := setupWebhook(t, testToken, secret)
		msg := seedMessage(t, db, "prov-1", model.MessageStateAPISent)

		body := dlrBody(msg.ID, "prov-1", "DELIVERED")
		w := postDLR(engine, "/webhook/dlr?token="+testToken, body,
			ut.Header{Key: "X-SmsEs-Signature", Value: sign(body)})

		resp := w.Result()
		assert.Equal(t, http.StatusOK, resp.StatusCode())
		assert.Equal(t, "OK", string(resp.Body()))
	})
}

func TestHandleDLR_MalformedJSON(t *testing.T) {
	engine, _ := setupWebhook(t, testToken, "")
	w := postDLR(engine, "/webhook/dlr?token="+testToken, "{not json")

	resp := w.Result()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	assert.Equal(t, "Bad Request: Malformed JSON", string(resp.Body()))
}

func TestHandleDLR_MessageNotFound(t *testing.T) {
	engine, db := setupWebhook(t, testToken, "")

	w := postDLR(engine, "/webhook/dlr?token="+testToken,
		`{"msgId": "unknown", "event": "DELIVERED", "custom": {"odoo_message_id": 424242}}`)

	// 对不上账也回 200，避免供应商无限重投
	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, "OK: Message not found", string(resp.Body()))

	var eventCount int64
	require.NoError(t, db.Model(&model.DlrEvent{}).Count(&eventCount).Error)
	assert.Zero(t, eventCount)
}

func TestHandleDLR_StateTransitions(t *testing.T) {
	cases := []struct {
		event string
		want  model.MessageState
	}{
		{"DELIVERED", model.MessageStateDelivered},
		{"UNDELIVERED", model.MessageStateUndelivered},
		{"REJECTED", model.MessageStateRejected},
		{"BUFFERED", model.MessageStateDlrBuffered},
		{"SENT_TO_SMSC", model.MessageStateDlrSentSMSC},
	}

	for _, tc := range cases {
		t.Run(tc.event, func(t *testing.T) {
			engine, db := setupWebhook(t, testToken, "")
			msg := seedMessage(t, db, "prov-1", model.MessageStateAPISent)

			w := postDLR(engine, "/webhook/dlr?token="+testToken, dlrBody(msg.ID, "prov-1", tc.event))
			assert.Equal(t, http.StatusOK, w.Result().StatusCode())

			var reloaded model.Message
			require.NoError(t, db.First(&reloaded, msg.ID).Error)
			assert.Equal(t, tc.want, reloaded.State)

			var events []model.DlrEvent
			require.NoError(t, db.Where("message_id = ?", msg.ID).Find(&events).Error)
			require.Len(t, events, 1)
			assert.Equal(t, tc.event, events[0].Event)
		})
	}
}

func TestHandleDLR_UnknownEventKeepsState(t *testing.T) {
	engine, db := setupWebhook(t, testToken, "")
	msg := seedMessage(t, db, "prov-1", model.MessageStateAPISent)

	w := postDLR(engine, "/webhook/dlr?token="+testToken, dlrBody(msg.ID, "prov-1", "EXPIRED"))
	assert.Equal(t, http.StatusOK, w.Result().StatusCode())

	// 状态不变，但回执仍然入库
	var reloaded model.Message
	require.NoError(t, db.First(&reloaded, msg.ID).Error)
	assert.Equal(t, model.MessageStateAPISent, reloaded.State)

	var eventCount int64
	require.NoError(t, db.Model(&model.DlrEvent{}).Where("message_id = ?", msg.ID).Count(&eventCount).Error)
	assert.Equal(t, int64(1), eventCount)
}

func TestHandleDLR_Reconciliation(t *testing.T) {
	t.Run("custom.odoo_message_id 优先于 msgId", func(t *testing.T) {
		engine, db := setupWebhook(t, testToken, "")
		target := seedMessage(t, db, "prov-a", model.MessageStateAPISent)
		decoy := seedMessage(t, db, "prov-b", model.MessageStateAPISent)

		// custom 指向 target，msgId 指向 decoy
		w := postDLR(engine, "/webhook/dlr?token="+testToken, dlrBody(target.ID, "prov-b", "DELIVERED"))
		assert.Equal(t, http.StatusOK, w.Result().StatusCode())

		var reloaded model.Message
		require.NoError(t, db.First(&reloaded, target.ID).Error)
		assert.Equal(t, model.MessageStateDelivered, reloaded.State)

		var decoyReloaded model.Message
		require.NoError(t, db.First(&decoyReloaded, decoy.ID).Error)
		assert.Equal(t, model.MessageStateAPISent, decoyReloaded.State)
	})

	t.Run("没有 custom 时按 msgId 兜底", func(t *testing.T) {
		engine, db := setupWebhook(t, testToken, "")
		msg := seedMessage(t, db, "prov-c", model.MessageStateAPISent)

		w := postDLR(engine, "/webhook/dlr?token="+testToken,
			`{"msgId": "prov-c", "event": "DELIVERED"}`)
		assert.Equal(t, http.StatusOK, w.Result().StatusCode())

		var reloaded model.Message
		require.NoError(t, db.First(&reloaded, msg.ID).Error)
		assert.Equal(t, model.MessageStateDelivered, reloaded.State)
	})

	t.Run("odoo_message_id 是字符串也能对上", func(t *testing.T) {
		engine, db := setupWebhook(t, testToken, "")
		msg := seedMessage(t, db, "prov-d", model.MessageStateAPISent)

		body := fmt.Sprintf(`{"event": "DELIVERED", "custom": {"odoo_message_id": "%d"}}`, msg.ID)
		w := postDLR(engine, "/webhook/dlr?token="+testToken, body)
		assert.Equal(t, http.StatusOK, w.Result().StatusCode())

		var reloaded model.Message
		require.NoError(t, db.First(&reloaded, msg.ID).Error)
		assert.Equal(t, model.MessageStateDelivered, reloaded.State)
	})
}

func TestHandleDLR_NumericTimestamps(t *testing.T) {
	engine, db := setupWebhook(t, testToken, "")
	msg := seedMessage(t, db, "prov-1", model.MessageStateAPISent)

	// sendTime 和 dlrTime 都是 unix 时间戳小数
	body := fmt.Sprintf(`{"event": "DELIVERED", "sendTime": 1700000000.5, "dlrTime": 1700000042.25, "custom": {"odoo_message_id": %d}}`, msg.ID)
	w := postDLR(engine, "/webhook/dlr?token="+testToken, body)

	resp := w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, "OK", string(resp.Body()))

	var event model.DlrEvent
	require.NoError(t, db.Where("message_id = ?", msg.ID).First(&event).Error)
	assert.Equal(t, 1700000000.5, event.SendTime)
	assert.Equal(t, 1700000042.25, event.DlrTime)
}

func TestHandleDLR_ErrorCodeFormats(t *testing.T) {
	t.Run("数字错误码", func(t *testing.T) {
		engine, db := setupWebhook(t, testToken, "")
		msg := seedMessage(t, db, "prov-1", model.MessageStateAPISent)

		body := fmt.Sprintf(`{"event": "UNDELIVERED", "errorCode": 34, "errorMessage": "absent subscriber", "custom": {"odoo_message_id": %d}}`, msg.ID)
		w := postDLR(engine, "/webhook/dlr?token="+testToken, body)
		assert.Equal(t, http.StatusOK, w.Result().StatusCode())

		var event model.DlrEvent
		require.NoError(t, db.Where("message_id = ?", msg.ID).First(&event).Error)
		assert.Equal(t, "34", event.ErrorCode)
		assert.Equal(t, "absent subscriber", event.ErrorMessage)
	})

	t.Run("字符串错误码", func(t *testing.T) {
		engine, db := setupWebhook(t, testToken, "")
		msg := seedMessage(t, db, "prov-1", model.MessageStateAPISent)

		body := fmt.Sprintf(`{"event": "UNDELIVERED", "errorCode": "E-7", "custom": {"odoo_message_id": %d}}`, msg.ID)
		w := postDLR(engine, "/webhook/dlr?token="+testToken, body)
		assert.Equal(t, http.StatusOK, w.Result().StatusCode())

		var event model.DlrEvent
		require.NoError(t, db.Where("message_id = ?", msg.ID).First(&event).Error)
		assert.Equal(t, "E-7", event.ErrorCode)
	})
}
