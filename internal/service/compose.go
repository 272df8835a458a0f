package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"SmsRelay/internal/model/dto"
	pkgerrors "SmsRelay/pkg/errors"
	"SmsRelay/pkg/logger"
)

// Recipient 来源记录解析出的收件人
type Recipient struct {
	Name   string
	Number string // 为空表示该记录没有可用号码

	ContactID *int64
	LeadID    *int64
	OrderID   *int64
	InvoiceID *int64
}

// RecipientResolver 把一个来源记录 id 解析为收件人
// 宿主应用按来源模型注册，这里不做任何反射式探测
type RecipientResolver func(ctx context.Context, resID int64) (*Recipient, error)

var (
	resolverMu sync.RWMutex
	resolvers  = make(map[string]RecipientResolver)
)

// RegisterResolver 注册来源模型的收件人解析器
func RegisterResolver(resModel string, r RecipientResolver) {
	resolverMu.Lock()
	defer resolverMu.Unlock()
	resolvers[resModel] = r
}

func lookupResolver(resModel string) (RecipientResolver, bool) {
	resolverMu.RLock()
	defer resolverMu.RUnlock()
	r, ok := resolvers[resModel]
	return r, ok
}

// Compose 按来源记录批量撰写并入队
// 无号码的记录记入 skipped，不算错误
func (s *MessageService) Compose(ctx context.Context, req dto.ComposeRequest) (*dto.ComposeResponse, error) {
	if req.Text == "" {
		return nil, pkgerrors.TextRequired
	}

	resolver, ok := lookupResolver(req.ResModel)
	if !ok {
		return nil, pkgerrors.OriginModelUnknown
	}

	resp := &dto.ComposeResponse{
		CreatedIDs: make([]int64, 0, len(req.ResIDs)),
		SkippedIDs: make([]int64, 0),
	}

	for _, resID := range req.ResIDs {
		recipient, err := resolver(ctx, resID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve recipient for %s/%d: %w", req.ResModel, resID, err)
		}
		if recipient == nil || recipient.Number == "" {
			resp.SkippedIDs = append(resp.SkippedIDs, resID)
			continue
		}

		msg, err := s.CreateDraft(ctx, dto.CreateMessageRequest{
			Name:      recipient.Name,
			Sender:    req.Sender,
			Receiver:  recipient.Number,
			Text:      req.Text,
			ResModel:  req.ResModel,
			ResID:     resID,
			ContactID: recipient.ContactID,
			LeadID:    recipient.LeadID,
			OrderID:   recipient.OrderID,
			InvoiceID: recipient.InvoiceID,
		})
		if err != nil {
			return nil, err
		}
		resp.CreatedIDs = append(resp.CreatedIDs, msg.ID)
	}

	if len(resp.CreatedIDs) > 0 {
		result, err := s.QueueForDelivery(ctx, resp.CreatedIDs)
		if err != nil {
			return nil, err
		}
		resp.Queued = result.Queued
		resp.Cancelled = result.Cancelled
	}

	logger.Logger.Info("Compose finished",
		zap.String("res_model", req.ResModel),
		zap.Int("created", len(resp.CreatedIDs)),
		zap.Int("skipped", len(resp.SkippedIDs)),
		zap.Int("queued", resp.Queued),
	)

	return resp, nil
}
