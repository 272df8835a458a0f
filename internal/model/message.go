package model

// MessageState 消息生命周期状态枚举
type MessageState string

const (
	MessageStateDraft        MessageState = "draft"            // 草稿
	MessageStateQueued       MessageState = "queued"           // 已入队
	MessageStateSending      MessageState = "sending"          // 发送中
	MessageStateAPISent      MessageState = "api_sent"         // 网关已受理
	MessageStateAPIFailed    MessageState = "api_failed"       // 网关拒绝/重试耗尽
	MessageStateDlrBuffered  MessageState = "dlr_buffered"     // 运营商缓存
	MessageStateDlrSentSMSC  MessageState = "dlr_sent_to_smsc" // 已提交短信中心
	MessageStateDelivered    MessageState = "delivered"        // 已送达
	MessageStateUndelivered  MessageState = "undelivered"      // 未送达
	MessageStateRejected     MessageState = "rejected"         // 被拒绝
	MessageStateCancelled    MessageState = "cancelled"        // 已取消（去重）
)

// EffectivelySentStates 去重检查认定为“已实际发出”的状态集合
// 处于这些状态的同内容消息存在时，新消息会被取消而不是再次发送
var EffectivelySentStates = []MessageState{
	MessageStateAPISent,
	MessageStateDlrBuffered,
	MessageStateDlrSentSMSC,
	MessageStateDelivered,
	MessageStateUndelivered,
	MessageStateRejected,
}

// FinalStates 送达率统计的分母：已有终态回执的消息
var FinalStates = []MessageState{
	MessageStateDelivered,
	MessageStateUndelivered,
	MessageStateRejected,
	MessageStateAPIFailed,
}

// Message 一条出站短信记录
type Message struct {
	BaseModel
	Name      string       `gorm:"type:varchar(255);not null" json:"name"`
	Sender    string       `gorm:"type:varchar(64);not null" json:"sender"`
	Receiver  string       `gorm:"type:varchar(32);not null;index" json:"receiver"`
	Text      string       `gorm:"type:text;not null" json:"text"`
	MsgID     string       `gorm:"type:varchar(64);index:idx_sms_messages_msg_id" json:"msg_id"` // 先本地 uuid，网关受理后覆盖为供应商 id
	NumParts  int          `gorm:"not null;default:1" json:"num_parts"`
	State     MessageState `gorm:"type:varchar(24);not null;default:'draft';index" json:"state"`
	DedupHash string       `gorm:"type:char(64);not null;index:idx_sms_messages_dedup" json:"dedup_hash"`

	// 来源引用：通用 model/id 一对，外加常用来源的专用列
	ResModel  string `gorm:"type:varchar(64)" json:"res_model,omitempty"`
	ResID     int64  `gorm:"default:0" json:"res_id,omitempty"`
	ContactID *int64 `gorm:"index" json:"contact_id,omitempty"`
	LeadID    *int64 `gorm:"index" json:"lead_id,omitempty"`
	OrderID   *int64 `gorm:"index" json:"order_id,omitempty"`
	InvoiceID *int64 `gorm:"index" json:"invoice_id,omitempty"`

	DlrEvents []DlrEvent `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"dlr_events,omitempty"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "sms_messages"
}
