package handler

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SmsRelay/internal/model"
	"SmsRelay/internal/model/dto"
	"SmsRelay/internal/service"
	"SmsRelay/internal/worker"
	"SmsRelay/pkg/gateway"
)

// 完整投递链路：draft -> queued -> api_sent -> delivered
func TestDeliveryPipeline_EndToEnd(t *testing.T) {
	engine, db := setupWebhook(t, testToken, "")
	ctx := context.Background()

	svc := service.NewMessageService(db)
	msg, err := svc.CreateDraft(ctx, dto.CreateMessageRequest{
		Sender:   "ACME",
		Receiver: "+34600111222",
		Text:     "pipeline test",
	})
	require.NoError(t, err)
	assert.Equal(t, model.MessageStateDraft, msg.State)

	// 入队
	queueResult, err := svc.QueueForDelivery(ctx, []int64{msg.ID})
	require.NoError(t, err)
	require.Equal(t, 1, queueResult.Queued)

	// worker 处理，网关受理
	mock := gateway.NewMockSender()
	mock.Results = []gateway.Result{{Success: true, MsgID: "prov-e2e", NumParts: 1}}
	p := worker.NewProcessor(db, func() (gateway.Sender, error) {
		return mock, nil
	})
	require.NoError(t, p.ProcessQueue(ctx, 10))

	var afterSend model.Message
	require.NoError(t, db.First(&afterSend, msg.ID).Error)
	assert.Equal(t, model.MessageStateAPISent, afterSend.State)
	assert.Equal(t, "prov-e2e", afterSend.MsgID)

	// 供应商回执送达
	body := fmt.Sprintf(`{"msgId": "prov-e2e", "event": "DELIVERED", "custom": {"odoo_message_id": %d}}`, msg.ID)
	w := postDLR(engine, "/webhook/dlr?token="+testToken, body)
	require.Equal(t, http.StatusOK, w.Result().StatusCode())

	var final model.Message
	require.NoError(t, db.First(&final, msg.ID).Error)
	assert.Equal(t, model.MessageStateDelivered, final.State)

	var events []model.DlrEvent
	require.NoError(t, db.Where("message_id = ?", msg.ID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, "DELIVERED", events[0].Event)

	// 同内容再次撰写会被去重取消
	dup, err := svc.CreateDraft(ctx, dto.CreateMessageRequest{
		Sender:   "ACME",
		Receiver: "+34600111222",
		Text:     "pipeline test",
	})
	require.NoError(t, err)

	dupResult, err := svc.QueueForDelivery(ctx, []int64{dup.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, dupResult.Queued)
	assert.Equal(t, 1, dupResult.Cancelled)
}
