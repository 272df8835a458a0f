package queue

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"SmsRelay/internal/model"
	"SmsRelay/pkg/logger"
	"SmsRelay/pkg/snowflake"
	"SmsRelay/storage/mq"
)

// PublishStatusEvent 发布消息状态变更事件，供宿主应用消费
// 调用方按 best-effort 处理：发布失败只记日志，不影响投递事务
func PublishStatusEvent(msg *model.Message, oldState model.MessageState, errCode, errText string) error {
	id, err := snowflake.NextID()
	if err != nil {
		logger.Logger.Error("Failed to generate event ID",
			zap.Int64("message_id", msg.ID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to generate event ID: %w", err)
	}

	event := model.MessageStatusEvent{
		EventID:    fmt.Sprintf("sms_status_%d", id),
		MessageID:  msg.ID,
		MsgID:      msg.MsgID,
		Receiver:   msg.Receiver,
		OldState:   string(oldState),
		NewState:   string(msg.State),
		ErrorCode:  errCode,
		ErrorText:  errText,
		OccurredAt: time.Now().Format(time.RFC3339),
	}

	routingKey := fmt.Sprintf("sms.message.%s", msg.State)

	if err := mq.PublishMessage(mq.EventsExchange, routingKey, event); err != nil {
		logger.Logger.Error("Failed to publish message status event",
			zap.String("event_id", event.EventID),
			zap.Int64("message_id", msg.ID),
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Info("Published message status event",
		zap.String("event_id", event.EventID),
		zap.Int64("message_id", msg.ID),
		zap.String("old_state", event.OldState),
		zap.String("new_state", event.NewState),
	)

	return nil
}
