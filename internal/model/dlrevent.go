package model

// DlrEvent 一条送达回执，只追加不修改
type DlrEvent struct {
	BaseModel
	MessageID    int64    `gorm:"not null;index;constraint:OnDelete:CASCADE" json:"message_id"`
	Event        string   `gorm:"type:varchar(32);not null" json:"event"`
	ErrorCode    string   `gorm:"type:varchar(32)" json:"error_code,omitempty"`
	ErrorMessage string   `gorm:"type:varchar(255)" json:"error_message,omitempty"`
	PartNum      int      `gorm:"default:0" json:"part_num"`
	NumParts     int      `gorm:"default:0" json:"num_parts"`
	SendTime     float64  `gorm:"default:0" json:"send_time"`
	DlrTime      float64  `gorm:"default:0" json:"dlr_time"`
	Custom       JSONB    `gorm:"type:jsonb" json:"custom,omitempty"`
}

// TableName 指定表名
func (DlrEvent) TableName() string {
	return "sms_dlr_events"
}

// DlrEventStates 回执事件到消息状态的映射，未知事件不改状态
var DlrEventStates = map[string]MessageState{
	"DELIVERED":    MessageStateDelivered,
	"UNDELIVERED":  MessageStateUndelivered,
	"REJECTED":     MessageStateRejected,
	"BUFFERED":     MessageStateDlrBuffered,
	"SENT_TO_SMSC": MessageStateDlrSentSMSC,
}
