package model

import "time"

// QueueJobState 队列任务状态枚举
type QueueJobState string

const (
	QueueJobStatePending    QueueJobState = "pending"     // 待处理
	QueueJobStateInProgress QueueJobState = "in_progress" // 处理中
	QueueJobStateSuccess    QueueJobState = "success"     // 成功
	QueueJobStateFailed     QueueJobState = "failed"      // 失败
	QueueJobStateCancelled  QueueJobState = "cancelled"   // 已取消，保留态，核心流程不会设置
)

// QueueJob 一次投递任务，与消息一对一创建
type QueueJob struct {
	BaseModel
	Name         string        `gorm:"type:varchar(255);not null" json:"name"`
	MessageID    int64         `gorm:"not null;index;constraint:OnDelete:CASCADE" json:"message_id"`
	Message      *Message      `gorm:"foreignKey:MessageID" json:"message,omitempty"`
	State        QueueJobState `gorm:"type:varchar(16);not null;default:'pending';index:idx_sms_queue_jobs_due" json:"state"`
	RetryCount   int           `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries   int           `gorm:"not null;default:5" json:"max_retries"`
	DelaySeconds int           `gorm:"not null;default:60" json:"delay_seconds"`
	NextTryAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_sms_queue_jobs_due" json:"next_try_at"`
	Priority     int           `gorm:"not null;default:10" json:"priority"`
	ErrorMessage string        `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt    *time.Time    `json:"started_at,omitempty"` // 领取时刻，卡死任务回收依据
}

// TableName 指定表名
func (QueueJob) TableName() string {
	return "sms_queue_jobs"
}
