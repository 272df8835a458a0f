package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/cloudwego/hertz/pkg/app"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"SmsRelay/config"
	"SmsRelay/internal/model"
	"SmsRelay/internal/queue"
	"SmsRelay/pkg/logger"
	"SmsRelay/pkg/metrics"
	"SmsRelay/storage/database"
)

var (
	webhookOnce sync.Once
	webhookInst *WebhookHandler
)

// WebhookHandler 接收网关的 DLR 回执
// 响应是给供应商看的纯文本，不走统一 JSON 响应格式
type WebhookHandler struct {
	db         *gorm.DB
	token      string
	hmacSecret string

	// 事件发布可关掉，测试环境没有 broker
	publishEvents bool
}

func Webhook() *WebhookHandler {
	webhookOnce.Do(func() {
		webhookInst = NewWebhookHandler(database.DB(), config.Cfg.WebhookToken, config.Cfg.WebhookHMACSecret)
		webhookInst.publishEvents = true
	})
	return webhookInst
}

func NewWebhookHandler(db *gorm.DB, token, hmacSecret string) *WebhookHandler {
	return &WebhookHandler{
		db:         db,
		token:      token,
		hmacSecret: hmacSecret,
	}
}

// 回执请求体，errorCode 可能是数字也可能是字符串
type dlrPayload struct {
	MsgID        string                 `json:"msgId"`
	Event        string                 `json:"event"`
	ErrorCode    interface{}            `json:"errorCode"`
	ErrorMessage string                 `json:"errorMessage"`
	PartNum      int                    `json:"partNum"`
	NumParts     int                    `json:"numParts"`
	SendTime     float64                `json:"sendTime"`
	DlrTime      float64                `json:"dlrTime"`
	Custom       map[string]interface{} `json:"custom"`
}

// HandleDLR POST /webhook/dlr?token=...
// 鉴权失败不碰数据库；对账不到消息也回 200，避免供应商无限重投
func (h *WebhookHandler) HandleDLR(ctx context.Context, c *app.RequestContext) {
	receivedToken := c.Query("token")
	if h.token == "" || subtle.ConstantTimeCompare([]byte(receivedToken), []byte(h.token)) != 1 {
		logger.Logger.Warn("DLR webhook rejected: invalid token")
		c.String(http.StatusUnauthorized, "Unauthorized")
		return
	}

	body := c.Request.Body()

	if h.hmacSecret != "" {
		signature := string(c.GetHeader("X-SmsEs-Signature"))
		if signature == "" {
			logger.Logger.Warn("DLR webhook rejected: HMAC secret configured but signature missing")
			c.String(http.StatusForbidden, "Forbidden: Missing Signature")
			return
		}

		mac := hmac.New(sha256.New, []byte(h.hmacSecret))
		mac.Write(body)
		digest := hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(digest), []byte(signature)) {
			logger.Logger.Warn("DLR webhook rejected: invalid HMAC signature")
			c.String(http.StatusForbidden, "Forbidden: Invalid Signature")
			return
		}
	}

	var dlr dlrPayload
	if err := json.Unmarshal(body, &dlr); err != nil {
		logger.Logger.Error("Failed to decode DLR body", zap.Error(err))
		c.String(http.StatusBadRequest, "Bad Request: Malformed JSON")
		return
	}

	message, err := h.reconcile(ctx, &dlr)
	if err != nil {
		logger.Logger.Error("DLR reconciliation query failed", zap.Error(err))
		c.String(http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if message == nil {
		logger.Logger.Warn("No message found for incoming DLR",
			zap.Any("odoo_message_id", dlr.Custom["odoo_message_id"]),
			zap.String("msg_id", dlr.MsgID),
		)
		c.String(http.StatusOK, "OK: Message not found")
		return
	}

	oldState := message.State
	newState, mapped := model.DlrEventStates[dlr.Event]

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if mapped {
			if err := tx.Model(message).Update("state", newState).Error; err != nil {
				return err
			}
		}

		event := model.DlrEvent{
			MessageID:    message.ID,
			Event:        dlr.Event,
			ErrorCode:    stringifyCode(dlr.ErrorCode),
			ErrorMessage: dlr.ErrorMessage,
			PartNum:      dlr.PartNum,
			NumParts:     dlr.NumParts,
			SendTime:     dlr.SendTime,
			DlrTime:      dlr.DlrTime,
			Custom:       model.JSONB(dlr.Custom),
		}
		return tx.Create(&event).Error
	})
	if err != nil {
		logger.Logger.Error("Failed to persist DLR",
			zap.Int64("message_id", message.ID),
			zap.Error(err),
		)
		c.String(http.StatusInternalServerError, "Internal Server Error")
		return
	}

	metrics.RecordDlrEvent(dlr.Event)

	if mapped {
		message.State = newState
		logger.Logger.Info("Message state updated by DLR",
			zap.Int64("message_id", message.ID),
			zap.String("event", dlr.Event),
			zap.String("old_state", string(oldState)),
			zap.String("new_state", string(newState)),
		)
		if h.publishEvents {
			_ = queue.PublishStatusEvent(message, oldState, stringifyCode(dlr.ErrorCode), dlr.ErrorMessage)
		}
	} else {
		logger.Logger.Info("DLR event recorded without state change",
			zap.Int64("message_id", message.ID),
			zap.String("event", dlr.Event),
		)
	}

	c.String(http.StatusOK, "OK")
}

// reconcile 对账：custom.odoo_message_id 优先，msgId 兜底
func (h *WebhookHandler) reconcile(ctx context.Context, dlr *dlrPayload) (*model.Message, error) {
	if raw, ok := dlr.Custom["odoo_message_id"]; ok {
		if id, ok := toInt64(raw); ok {
			var msg model.Message
			err := h.db.WithContext(ctx).First(&msg, id).Error
			if err == nil {
				return &msg, nil
			}
			if err != gorm.ErrRecordNotFound {
				return nil, err
			}
		} else {
			logger.Logger.Warn("odoo_message_id in DLR is not an integer",
				zap.Any("odoo_message_id", raw),
			)
		}
	}

	if dlr.MsgID != "" {
		var msg model.Message
		err := h.db.WithContext(ctx).Where("msg_id = ?", dlr.MsgID).First(&msg).Error
		if err == nil {
			return &msg, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	}

	return nil, nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		id, err := n.Int64()
		return id, err == nil
	case string:
		var id int64
		if _, err := fmt.Sscanf(n, "%d", &id); err == nil {
			return id, true
		}
	}
	return 0, false
}

func stringifyCode(v interface{}) string {
	if v == nil {
		return ""
	}
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprint(v)
}
