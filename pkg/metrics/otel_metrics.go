package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics OpenTelemetry 指标集合
type OTelMetrics struct {
	// 投递相关指标
	GatewayRequestsTotal metric.Int64Counter
	SendDuration         metric.Float64Histogram
	SendRetryTotal       metric.Int64Counter
	JobsProcessedTotal   metric.Int64Counter
	DlrEventsTotal       metric.Int64Counter
	QueuePendingJobs     metric.Int64UpDownCounter

	// HTTP 相关指标
	HTTPServerRequestTotal   metric.Int64Counter
	HTTPServerDuration       metric.Float64Histogram
	HTTPServerActiveRequests metric.Int64UpDownCounter
}

var (
	// 全局指标实例
	metrics *OTelMetrics
	// meter 用于创建指标
	meter = otel.Meter("smsrelay")
)

// InitMetrics 初始化 OpenTelemetry 指标
func InitMetrics() error {
	var err error

	metrics = &OTelMetrics{}

	metrics.GatewayRequestsTotal, err = meter.Int64Counter(
		"sms_gateway_requests_total",
		metric.WithDescription("Total number of SMS gateway send attempts"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	metrics.SendDuration, err = meter.Float64Histogram(
		"sms_send_duration_seconds",
		metric.WithDescription("Time spent sending one SMS including internal retries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	metrics.SendRetryTotal, err = meter.Int64Counter(
		"sms_send_retry_total",
		metric.WithDescription("Total number of gateway retry attempts"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return err
	}

	metrics.JobsProcessedTotal, err = meter.Int64Counter(
		"sms_jobs_processed_total",
		metric.WithDescription("Total number of queue jobs processed by outcome"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return err
	}

	metrics.DlrEventsTotal, err = meter.Int64Counter(
		"sms_dlr_events_total",
		metric.WithDescription("Total number of delivery report events received"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	metrics.QueuePendingJobs, err = meter.Int64UpDownCounter(
		"sms_queue_pending_jobs",
		metric.WithDescription("Number of pending jobs in the delivery queue"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return err
	}

	metrics.HTTPServerRequestTotal, err = meter.Int64Counter(
		"http_server_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	metrics.HTTPServerDuration, err = meter.Float64Histogram(
		"http_server_duration_seconds",
		metric.WithDescription("HTTP request handling duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	metrics.HTTPServerActiveRequests, err = meter.Int64UpDownCounter(
		"http_server_active_requests",
		metric.WithDescription("Number of in-flight HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// GetMetrics 获取全局指标实例
func GetMetrics() *OTelMetrics {
	return metrics
}

// RecordGatewayRequest 记录一次网关请求及其结果
func (m *OTelMetrics) RecordGatewayRequest(ctx context.Context, outcome string, statusCode int, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("outcome", outcome),
		attribute.Int("status_code", statusCode),
	}

	m.GatewayRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.SendDuration.Record(ctx, duration, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordSendRetry 记录一次网关内部重试
func (m *OTelMetrics) RecordSendRetry(ctx context.Context, reason string) {
	m.SendRetryTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("retry_reason", reason),
	))
}

// RecordJobProcessed 记录一个队列任务的处理结果
func (m *OTelMetrics) RecordJobProcessed(ctx context.Context, outcome string) {
	m.JobsProcessedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordDlrEvent 记录一条送达回执
func (m *OTelMetrics) RecordDlrEvent(ctx context.Context, event string) {
	m.DlrEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
	))
}

// UpdateQueuePending 调整待处理任务数
func (m *OTelMetrics) UpdateQueuePending(ctx context.Context, delta int64) {
	m.QueuePendingJobs.Add(ctx, delta)
}
