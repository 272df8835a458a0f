package dto

// CreateMessageRequest 创建草稿消息
type CreateMessageRequest struct {
	Name     string `json:"name"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Text     string `json:"text"`

	ResModel  string `json:"res_model,omitempty"`
	ResID     int64  `json:"res_id,omitempty"`
	ContactID *int64 `json:"contact_id,omitempty"`
	LeadID    *int64 `json:"lead_id,omitempty"`
	OrderID   *int64 `json:"order_id,omitempty"`
	InvoiceID *int64 `json:"invoice_id,omitempty"`

	// Queue 为 true 时创建后立即入队
	Queue bool `json:"queue,omitempty"`
}

// ComposeRequest 按来源记录批量撰写
type ComposeRequest struct {
	ResModel string  `json:"res_model"`
	ResIDs   []int64 `json:"res_ids"`
	Text     string  `json:"text"`
	Sender   string  `json:"sender,omitempty"`
}

// ComposeResponse 批量撰写结果
type ComposeResponse struct {
	CreatedIDs []int64 `json:"created_ids"`
	SkippedIDs []int64 `json:"skipped_ids"` // 无可用号码的来源记录
	Queued     int     `json:"queued"`
	Cancelled  int     `json:"cancelled"`
}

// QueueResult 入队操作结果
type QueueResult struct {
	Queued    int `json:"queued"`
	Cancelled int `json:"cancelled"` // 去重取消的条数
}

// ListMessagesQuery 消息列表过滤
type ListMessagesQuery struct {
	State    string `query:"state"`
	Receiver string `query:"receiver"`
	Page     int    `query:"page"`
	PageSize int    `query:"page_size"`
}

// DashboardKPIs 投递看板
type DashboardKPIs struct {
	TotalSent    int64   `json:"total_sent"`
	Delivered    int64   `json:"delivered"`
	Undelivered  int64   `json:"undelivered"`
	Failed       int64   `json:"failed"`
	DeliveryRate float64 `json:"delivery_rate"`
}
