package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"SmsRelay/config"
	"SmsRelay/internal/model"
	"SmsRelay/internal/queue"
	"SmsRelay/pkg/gateway"
	"SmsRelay/pkg/logger"
	"SmsRelay/pkg/metrics"
	"SmsRelay/storage/database"
)

var (
	processorOnce sync.Once
	processorInst *Processor
)

// SenderFactory 构造一次网关客户端，整轮复用
// 凭证缺失时返回错误，worker 跳过本轮而不逐条失败
type SenderFactory func() (gateway.Sender, error)

type Processor struct {
	db            *gorm.DB
	senderFactory SenderFactory
	logger        *zap.Logger

	staleAfter time.Duration

	// 事件发布可关掉，测试环境没有 broker
	publishEvents bool
}

func GetProcessor() *Processor {
	processorOnce.Do(func() {
		processorInst = NewProcessor(database.DB(), func() (gateway.Sender, error) {
			return gateway.NewClient(config.Cfg)
		})
		processorInst.publishEvents = true
	})
	return processorInst
}

// NewProcessor 注入 db 和网关工厂，测试时换成 sqlite + mock
func NewProcessor(db *gorm.DB, factory SenderFactory) *Processor {
	staleMinutes := config.Cfg.StaleJobMinutes
	if staleMinutes <= 0 {
		staleMinutes = 30
	}

	return &Processor{
		db:            db,
		senderFactory: factory,
		logger:        logger.Logger,
		staleAfter:    time.Duration(staleMinutes) * time.Minute,
	}
}

// ReclaimStale 把滞留 in_progress 的任务翻回 pending
// 条件更新，多实例重复执行不会二次回收
func (p *Processor) ReclaimStale(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-p.staleAfter)

	res := p.db.WithContext(ctx).Model(&model.QueueJob{}).
		Where("state = ? AND started_at IS NOT NULL AND started_at < ?",
			model.QueueJobStateInProgress, cutoff).
		Updates(map[string]interface{}{
			"state":      model.QueueJobStatePending,
			"started_at": nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reclaim stale jobs: %w", res.Error)
	}

	if res.RowsAffected > 0 {
		p.logger.Warn("Reclaimed stale in-progress jobs",
			zap.Int64("count", res.RowsAffected),
			zap.Duration("stale_after", p.staleAfter),
		)
	}

	return res.RowsAffected, nil
}

// ProcessQueue 处理一轮到期任务，严格串行
// 网关未配置时整轮跳过，不动任何任务
func (p *Processor) ProcessQueue(ctx context.Context, limit int) error {
	if limit <= 0 {
		limit = 100
	}

	startTime := time.Now()

	if _, err := p.ReclaimStale(ctx); err != nil {
		p.logger.Error("Stale job reclaim failed", zap.Error(err))
	}

	sender, err := p.senderFactory()
	if err != nil {
		p.logger.Error("SMS gateway unavailable, skipping queue run", zap.Error(err))
		return err
	}

	var jobs []model.QueueJob
	err = p.db.WithContext(ctx).
		Preload("Message").
		Where("state = ? AND next_try_at <= ?", model.QueueJobStatePending, time.Now()).
		Order("priority DESC, created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return fmt.Errorf("failed to load due jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	p.logger.Info("Processing delivery queue",
		zap.Int("job_count", len(jobs)),
	)

	for i := range jobs {
		p.processJob(ctx, sender, &jobs[i])
	}

	p.logger.Info("Queue run completed",
		zap.Int("job_count", len(jobs)),
		zap.Duration("duration", time.Since(startTime)),
	)

	return nil
}

// processJob 处理单个任务：领取先落库，再发网络请求
// 领取窗口用条件更新收紧，两个实例不可能同时领到一个任务
func (p *Processor) processJob(ctx context.Context, sender gateway.Sender, job *model.QueueJob) {
	if job.Message == nil {
		p.logger.Error("Queue job has no message, marking failed",
			zap.Int64("job_id", job.ID),
		)
		p.failJob(ctx, job, -1, "message record missing")
		return
	}

	now := time.Now()
	claim := p.db.WithContext(ctx).Model(&model.QueueJob{}).
		Where("id = ? AND state = ?", job.ID, model.QueueJobStatePending).
		Updates(map[string]interface{}{
			"state":      model.QueueJobStateInProgress,
			"started_at": now,
		})
	if claim.Error != nil {
		p.logger.Error("Failed to claim job",
			zap.Int64("job_id", job.ID),
			zap.Error(claim.Error),
		)
		return
	}
	if claim.RowsAffected == 0 {
		// 别的实例抢先领取
		p.logger.Debug("Job already claimed elsewhere", zap.Int64("job_id", job.ID))
		return
	}
	job.State = model.QueueJobStateInProgress
	job.StartedAt = &now

	if err := p.db.WithContext(ctx).Model(job.Message).
		Update("state", model.MessageStateSending).Error; err != nil {
		p.logger.Error("Failed to mark message sending",
			zap.Int64("message_id", job.MessageID),
			zap.Error(err),
		)
	} else {
		job.Message.State = model.MessageStateSending
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Panic while processing job",
				zap.Int64("job_id", job.ID),
				zap.Any("panic", r),
			)
			p.HandleSendFailure(ctx, job, -1, fmt.Sprintf("panic: %v", r))
		}
	}()

	result := sender.SendSMS(ctx, gateway.SendData{
		Sender:    job.Message.Sender,
		Receiver:  job.Message.Receiver,
		Text:      job.Message.Text,
		MessageID: job.Message.ID,
	})

	if result.Success {
		p.completeJob(ctx, job, result)
		return
	}

	p.HandleSendFailure(ctx, job, result.ErrorCode, result.ErrorMessage)
}

// completeJob 网关受理：消息转 api_sent 并记下供应商 msgId
func (p *Processor) completeJob(ctx context.Context, job *model.QueueJob, result gateway.Result) {
	oldState := job.Message.State

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(job.Message).Updates(map[string]interface{}{
			"state":     model.MessageStateAPISent,
			"msg_id":    result.MsgID,
			"num_parts": result.NumParts,
		}).Error; err != nil {
			return err
		}

		return tx.Model(job).Updates(map[string]interface{}{
			"state":         model.QueueJobStateSuccess,
			"error_message": "",
		}).Error
	})
	if err != nil {
		p.logger.Error("Failed to persist job success",
			zap.Int64("job_id", job.ID),
			zap.Error(err),
		)
		return
	}

	job.Message.State = model.MessageStateAPISent
	job.Message.MsgID = result.MsgID

	p.logger.Info("Job completed",
		zap.Int64("job_id", job.ID),
		zap.Int64("message_id", job.MessageID),
		zap.String("msg_id", job.Message.MsgID),
	)
	metrics.RecordJobProcessed("success")

	if p.publishEvents {
		_ = queue.PublishStatusEvent(job.Message, oldState, "", "")
	}
}

// HandleSendFailure 失败处理：线性退避重试，重试耗尽后任务和消息一起转终态
// 重试判定看自增前的计数，max_retries 为 5 的任务在第 6 次失败才转终态
func (p *Processor) HandleSendFailure(ctx context.Context, job *model.QueueJob, errorCode int, errorMessage string) {
	errorText := fmt.Sprintf("code %d: %s", errorCode, errorMessage)

	if job.RetryCount < job.MaxRetries {
		newRetryCount := job.RetryCount + 1
		nextTry := time.Now().Add(time.Duration(job.DelaySeconds*newRetryCount) * time.Second)

		err := p.db.WithContext(ctx).Model(job).Updates(map[string]interface{}{
			"state":         model.QueueJobStatePending,
			"retry_count":   newRetryCount,
			"next_try_at":   nextTry,
			"started_at":    nil,
			"error_message": errorText,
		}).Error
		if err != nil {
			p.logger.Error("Failed to schedule job retry",
				zap.Int64("job_id", job.ID),
				zap.Error(err),
			)
			return
		}
		job.RetryCount = newRetryCount

		p.logger.Warn("Job send failed, scheduled retry",
			zap.Int64("job_id", job.ID),
			zap.Int("retry_count", newRetryCount),
			zap.Int("max_retries", job.MaxRetries),
			zap.Time("next_try_at", nextTry),
			zap.String("error", errorText),
		)
		metrics.RecordJobProcessed("retry")
		return
	}

	p.failJob(ctx, job, errorCode, errorText)
}

func (p *Processor) failJob(ctx context.Context, job *model.QueueJob, errorCode int, errorText string) {
	var oldState model.MessageState
	if job.Message != nil {
		oldState = job.Message.State
	}

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(job).Updates(map[string]interface{}{
			"state":         model.QueueJobStateFailed,
			"error_message": errorText,
		}).Error; err != nil {
			return err
		}

		if job.Message != nil {
			return tx.Model(job.Message).
				Update("state", model.MessageStateAPIFailed).Error
		}
		return nil
	})
	if err != nil {
		p.logger.Error("Failed to persist job failure",
			zap.Int64("job_id", job.ID),
			zap.Error(err),
		)
		return
	}

	p.logger.Error("Job failed permanently",
		zap.Int64("job_id", job.ID),
		zap.Int64("message_id", job.MessageID),
		zap.Int("retry_count", job.RetryCount),
		zap.String("error", errorText),
	)
	metrics.RecordJobProcessed("failed")

	if job.Message != nil {
		job.Message.State = model.MessageStateAPIFailed
		if p.publishEvents {
			_ = queue.PublishStatusEvent(job.Message, oldState,
				fmt.Sprintf("%d", errorCode), errorText)
		}
	}
}
