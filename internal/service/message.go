package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"SmsRelay/config"
	"SmsRelay/internal/model"
	"SmsRelay/internal/model/dto"
	pkgerrors "SmsRelay/pkg/errors"
	"SmsRelay/pkg/logger"
	"SmsRelay/storage/database"
	"SmsRelay/utils"
)

var (
	messageService *MessageService
	messageOnce    sync.Once
)

func Message() *MessageService {
	messageOnce.Do(func() {
		messageService = NewMessageService(database.DB())
	})

	return messageService
}

type MessageService struct {
	db *gorm.DB
}

// NewMessageService 注入 db，测试时换成 sqlite 内存库
func NewMessageService(db *gorm.DB) *MessageService {
	return &MessageService{db: db}
}

// CreateDraft 创建草稿消息，msg_id 先用本地 uuid 占位，网关受理后覆盖
func (s *MessageService) CreateDraft(ctx context.Context, req dto.CreateMessageRequest) (*model.Message, error) {
	if req.Receiver == "" {
		return nil, pkgerrors.ReceiverRequired
	}
	if !utils.ValidateReceiver(req.Receiver) {
		return nil, pkgerrors.ReceiverInvalid
	}
	if req.Text == "" {
		return nil, pkgerrors.TextRequired
	}

	sender := req.Sender
	if sender == "" {
		sender = config.Cfg.SMSDefaultSender
	}

	name := req.Name
	if name == "" {
		name = "SMS " + req.Receiver
	}

	msg := &model.Message{
		Name:      name,
		Sender:    sender,
		Receiver:  req.Receiver,
		Text:      req.Text,
		MsgID:     uuid.NewString(),
		NumParts:  1,
		State:     model.MessageStateDraft,
		DedupHash: utils.MessageFingerprint(sender, req.Receiver, req.Text),
		ResModel:  req.ResModel,
		ResID:     req.ResID,
		ContactID: req.ContactID,
		LeadID:    req.LeadID,
		OrderID:   req.OrderID,
		InvoiceID: req.InvoiceID,
	}

	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	logger.Logger.Info("Message draft created",
		zap.Int64("id", msg.ID),
		zap.String("receiver", msg.Receiver),
	)

	return msg, nil
}

// QueueForDelivery 将草稿消息入队
// 只考虑 draft 状态，重复入队调用天然幂等
// 已有同内容消息处于“实际已发出”状态的，标记 cancelled 并加名称前缀，不建任务
func (s *MessageService) QueueForDelivery(ctx context.Context, ids []int64) (*dto.QueueResult, error) {
	result := &dto.QueueResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var drafts []model.Message
		if err := tx.Where("id IN ? AND state = ?", ids, model.MessageStateDraft).
			Find(&drafts).Error; err != nil {
			return fmt.Errorf("failed to load drafts: %w", err)
		}

		for i := range drafts {
			msg := &drafts[i]

			var dupCount int64
			if err := tx.Model(&model.Message{}).
				Where("dedup_hash = ? AND id <> ? AND state IN ?",
					msg.DedupHash, msg.ID, model.EffectivelySentStates).
				Count(&dupCount).Error; err != nil {
				return fmt.Errorf("failed to check duplicates: %w", err)
			}

			if dupCount > 0 {
				if err := tx.Model(msg).Updates(map[string]interface{}{
					"state": model.MessageStateCancelled,
					"name":  "[DUPLICATE] " + msg.Name,
				}).Error; err != nil {
					return fmt.Errorf("failed to cancel duplicate: %w", err)
				}
				result.Cancelled++
				logger.Logger.Warn("Duplicate message cancelled",
					zap.Int64("id", msg.ID),
					zap.String("receiver", msg.Receiver),
				)
				continue
			}

			job := &model.QueueJob{
				Name:         fmt.Sprintf("SMS to %s: %s", msg.Receiver, msg.Name),
				MessageID:    msg.ID,
				State:        model.QueueJobStatePending,
				MaxRetries:   config.Cfg.JobMaxRetries,
				DelaySeconds: config.Cfg.JobDelaySeconds,
				NextTryAt:    time.Now(), // 立即到期
				Priority:     config.Cfg.JobPriority,
			}
			if err := tx.Create(job).Error; err != nil {
				return fmt.Errorf("failed to create queue job: %w", err)
			}

			if err := tx.Model(msg).Update("state", model.MessageStateQueued).Error; err != nil {
				return fmt.Errorf("failed to mark message queued: %w", err)
			}
			result.Queued++
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Logger.Info("Messages queued for delivery",
		zap.Int("queued", result.Queued),
		zap.Int("cancelled", result.Cancelled),
	)

	return result, nil
}

// Get 按 id 查询消息，附带回执
func (s *MessageService) Get(ctx context.Context, id int64) (*model.Message, error) {
	var msg model.Message
	err := s.db.WithContext(ctx).Preload("DlrEvents").First(&msg, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.MessageNotFound
		}
		return nil, fmt.Errorf("failed to query message: %w", err)
	}
	return &msg, nil
}

// List 分页列出消息
func (s *MessageService) List(ctx context.Context, q dto.ListMessagesQuery) ([]model.Message, int64, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	query := s.db.WithContext(ctx).Model(&model.Message{})
	if q.State != "" {
		query = query.Where("state = ?", q.State)
	}
	if q.Receiver != "" {
		query = query.Where("receiver = ?", q.Receiver)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	var messages []model.Message
	err := query.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&messages).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}

	return messages, total, nil
}
