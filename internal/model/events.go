package model

// MessageStatusEvent 消息状态变更事件（发给宿主应用的事件总线）
type MessageStatusEvent struct {
	EventID    string `json:"event_id"`    // 事件唯一ID，用于消费端幂等
	MessageID  int64  `json:"message_id"`
	MsgID      string `json:"msg_id"`
	Receiver   string `json:"receiver"`
	OldState   string `json:"old_state"`
	NewState   string `json:"new_state"`
	ErrorCode  string `json:"error_code,omitempty"`
	ErrorText  string `json:"error_text,omitempty"`
	OccurredAt string `json:"occurred_at"`
}
