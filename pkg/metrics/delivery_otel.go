package metrics

import (
	"context"
)

// 包级便捷函数，指标未初始化时静默丢弃

// RecordGatewayRequest 记录一次网关请求
func RecordGatewayRequest(outcome string, statusCode int, duration float64) {
	ctx := context.Background()
	m := GetMetrics()
	if m != nil {
		m.RecordGatewayRequest(ctx, outcome, statusCode, duration)
	}
}

// RecordSendRetry 记录一次网关内部重试
func RecordSendRetry(reason string) {
	ctx := context.Background()
	m := GetMetrics()
	if m != nil {
		m.RecordSendRetry(ctx, reason)
	}
}

// RecordJobProcessed 记录队列任务处理结果
func RecordJobProcessed(outcome string) {
	ctx := context.Background()
	m := GetMetrics()
	if m != nil {
		m.RecordJobProcessed(ctx, outcome)
	}
}

// RecordDlrEvent 记录送达回执
func RecordDlrEvent(event string) {
	ctx := context.Background()
	m := GetMetrics()
	if m != nil {
		m.RecordDlrEvent(ctx, event)
	}
}

// UpdateQueuePending 调整待处理任务数
func UpdateQueuePending(delta int64) {
	ctx := context.Background()
	m := GetMetrics()
	if m != nil {
		m.UpdateQueuePending(ctx, delta)
	}
}
