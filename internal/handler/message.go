package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"

	"SmsRelay/internal/model/dto"
	"SmsRelay/internal/service"
	pkgerrors "SmsRelay/pkg/errors"
	"SmsRelay/pkg/response"
)

// CreateMessage 创建草稿消息，queue=true 时立即入队
func CreateMessage(ctx context.Context, c *app.RequestContext) {
	var req dto.CreateMessageRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	msg, err := service.Message().CreateDraft(ctx, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	if req.Queue {
		result, err := service.Message().QueueForDelivery(ctx, []int64{msg.ID})
		if err != nil {
			response.Error(ctx, c, err)
			return
		}
		refreshed, err := service.Message().Get(ctx, msg.ID)
		if err != nil {
			response.Error(ctx, c, err)
			return
		}
		response.SuccessWithMeta(ctx, c, refreshed, map[string]interface{}{
			"queued":    result.Queued,
			"cancelled": result.Cancelled,
		})
		return
	}

	response.Success(ctx, c, msg)
}

// ComposeMessages 按来源记录批量撰写并入队
func ComposeMessages(ctx context.Context, c *app.RequestContext) {
	var req dto.ComposeRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	resp, err := service.Message().Compose(ctx, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, resp)
}

// QueueMessage 将单条草稿入队
func QueueMessage(ctx context.Context, c *app.RequestContext) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(ctx, c, pkgerrors.MessageNotFound)
		return
	}

	result, err := service.Message().QueueForDelivery(ctx, []int64{id})
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}

// GetMessage 消息详情，带回执记录
func GetMessage(ctx context.Context, c *app.RequestContext) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(ctx, c, pkgerrors.MessageNotFound)
		return
	}

	msg, err := service.Message().Get(ctx, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, msg)
}

// ListMessages 分页消息列表
func ListMessages(ctx context.Context, c *app.RequestContext) {
	var query dto.ListMessagesQuery
	if err := c.BindQuery(&query); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	messages, total, err := service.Message().List(ctx, query)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.SuccessWithMeta(ctx, c, messages, map[string]interface{}{
		"total": total,
	})
}
