package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"SmsRelay/pkg/logger"
	"SmsRelay/pkg/metrics"

	"context"
)

// Result 一次投递的最终结果，SendSMS 不向上抛错误
type Result struct {
	Success      bool
	MsgID        string
	NumParts     int
	ErrorCode    int
	ErrorMessage string
}

// 202 受理响应体
type acceptedResponse struct {
	MsgID    string `json:"msgId"`
	NumParts int    `json:"numParts"`
}

// 420 拒绝响应体
type rejectedResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SendSMS 发送一条短信，内部按状态码重试
// 202 受理；420+105 节流，1 秒后重试；其余 420 终态；5xx 60 秒后重试；
// 其他状态码终态；网络错误 60 秒后重试；重试耗尽返回 code -1
func (c *Client) SendSMS(ctx context.Context, data SendData) Result {
	start := time.Now()

	payload, err := c.BuildPayload(data)
	if err != nil {
		logger.Logger.Error("Failed to build SMS payload",
			zap.Int64("message_id", data.MessageID),
			zap.Error(err),
		)
		return Result{
			Success:      false,
			ErrorCode:    -1,
			ErrorMessage: fmt.Sprintf("payload error: %v", err),
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{
			Success:      false,
			ErrorCode:    -1,
			ErrorMessage: fmt.Sprintf("payload error: %v", err),
		}
	}

	logger.Logger.Info("Sending SMS",
		zap.Int64("message_id", data.MessageID),
		zap.String("receiver", payload.Receiver),
		zap.String("sender", payload.Sender),
	)

	attempts := 0
	for attempts < c.maxRetries {
		attempts++

		result, retry := c.attempt(ctx, data.MessageID, body, attempts)
		if !retry {
			metrics.RecordGatewayRequest(outcomeOf(result), result.ErrorCode, time.Since(start).Seconds())
			return result
		}
	}

	logger.Logger.Error("SMS send exhausted all attempts",
		zap.Int64("message_id", data.MessageID),
		zap.Int("attempts", c.maxRetries),
	)
	metrics.RecordGatewayRequest("exhausted", -1, time.Since(start).Seconds())

	return Result{
		Success:      false,
		ErrorCode:    -1,
		ErrorMessage: fmt.Sprintf("failed after %d attempts", c.maxRetries),
	}
}

// attempt 执行一次 HTTP 请求，retry=true 表示调用方应继续循环
func (c *Client) attempt(ctx context.Context, messageID int64, body []byte, attempt int) (Result, bool) {
	reqCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return Result{Success: false, ErrorCode: -1, ErrorMessage: fmt.Sprintf("request error: %v", err)}, false
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Logger.Error("SMS gateway connection error",
			zap.Int64("message_id", messageID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		metrics.RecordSendRetry("transport_error")
		if attempt < c.maxRetries {
			time.Sleep(c.serverErrorDelay)
		}
		return Result{}, true
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusAccepted:
		var accepted acceptedResponse
		if err := json.Unmarshal(respBody, &accepted); err != nil {
			logger.Logger.Warn("SMS accepted but response body unreadable",
				zap.Int64("message_id", messageID),
				zap.Error(err),
			)
		}
		if accepted.NumParts == 0 {
			accepted.NumParts = 1
		}
		logger.Logger.Info("SMS accepted by gateway",
			zap.Int64("message_id", messageID),
			zap.String("msg_id", accepted.MsgID),
			zap.Int("num_parts", accepted.NumParts),
		)
		return Result{
			Success:  true,
			MsgID:    accepted.MsgID,
			NumParts: accepted.NumParts,
		}, false

	case resp.StatusCode == 420:
		var rejected rejectedResponse
		_ = json.Unmarshal(respBody, &rejected)
		errorCode := rejected.Error.Code
		errorMessage := rejected.Error.Message
		if errorMessage == "" {
			errorMessage = "unknown error"
		}
		logger.Logger.Warn("SMS rejected by gateway",
			zap.Int64("message_id", messageID),
			zap.Int("error_code", errorCode),
			zap.String("error_message", errorMessage),
		)

		if errorCode == throttlingErrorCode {
			metrics.RecordSendRetry("throttling")
			time.Sleep(c.throttleDelay)
			return Result{}, true
		}

		// 业务拒绝，重试也不会成功
		return Result{
			Success:      false,
			ErrorCode:    errorCode,
			ErrorMessage: errorMessage,
		}, false

	case resp.StatusCode >= 500 && resp.StatusCode < 600:
		logger.Logger.Error("SMS gateway server error",
			zap.Int64("message_id", messageID),
			zap.Int("status_code", resp.StatusCode),
			zap.Int("attempt", attempt),
		)
		metrics.RecordSendRetry("server_error")
		time.Sleep(c.serverErrorDelay)
		return Result{}, true

	default:
		logger.Logger.Error("Unexpected SMS gateway response",
			zap.Int64("message_id", messageID),
			zap.Int("status_code", resp.StatusCode),
			zap.String("body", string(respBody)),
		)
		return Result{
			Success:      false,
			ErrorCode:    resp.StatusCode,
			ErrorMessage: string(respBody),
		}, false
	}
}

func outcomeOf(r Result) string {
	if r.Success {
		return "success"
	}
	return "failed"
}
