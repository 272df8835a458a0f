package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"SmsRelay/config"
	"SmsRelay/internal/cache"
	"SmsRelay/internal/worker"
	"SmsRelay/pkg/logger"
	"SmsRelay/pkg/metrics"
	"SmsRelay/pkg/otel"
	"SmsRelay/pkg/snowflake"
	"SmsRelay/storage"
)

const queueLockKey = "sms_queue_worker"

func main() {

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	// 状态事件的 event_id 由 snowflake 生成
	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	if config.Cfg.OTLPEndpoint != "" {
		shutdown, err := otel.InitOpenTelemetry(ctx, otel.Config{
			ServiceName:    config.Cfg.ServiceName + "-worker",
			ServiceVersion: "1.0.0",
			Environment:    config.Cfg.Environment,
			OTLPEndpoint:   config.Cfg.OTLPEndpoint,
			SampleRatio:    config.Cfg.OTelSampleRatio,
		})
		if err != nil {
			logger.Logger.Warn("Failed to initialize OpenTelemetry", zap.Error(err))
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
				}
			}()
		}
	}

	if err := metrics.InitMetrics(); err != nil {
		logger.Logger.Fatal("Failed to initialize delivery metrics", zap.Error(err))
	}

	interval := time.Duration(config.Cfg.WorkerIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	logger.Logger.Info("Worker service starting",
		zap.String("service", config.Cfg.ServiceName+"-worker"),
		zap.String("environment", config.Cfg.Environment),
		zap.Duration("interval", interval),
	)

	// 启动先跑一轮，再按固定间隔轮询
	runOnce(ctx, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Logger.Info("Worker service shutting down gracefully")
			return
		case <-ticker.C:
			runOnce(ctx, interval)
		}
	}
}

// runOnce 抢到分布式锁后处理一批到期任务，多实例部署时同一轮只有一个 worker 扫队列
func runOnce(ctx context.Context, lockTTL time.Duration) {
	acquired, err := cache.TryLock(ctx, queueLockKey, lockTTL)
	if err != nil {
		logger.Logger.Error("Failed to acquire queue lock", zap.Error(err))
		return
	}
	if !acquired {
		logger.Logger.Debug("Queue lock held by another worker, skipping round")
		return
	}
	defer func() {
		if err := cache.Unlock(ctx, queueLockKey); err != nil {
			logger.Logger.Warn("Failed to release queue lock", zap.Error(err))
		}
	}()

	if err := worker.GetProcessor().ProcessQueue(ctx, config.Cfg.WorkerBatchLimit); err != nil {
		logger.Logger.Error("Queue processing round failed", zap.Error(err))
	}
}
