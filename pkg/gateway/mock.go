package gateway

import (
	"context"
	"sync"
)

// MockSender 可配置的网关 mock，实现 Sender 接口
type MockSender struct {
	mu    sync.Mutex
	Calls []SendData

	// Results 按调用顺序逐个弹出，耗尽后返回默认成功结果
	Results []Result
}

func NewMockSender() *MockSender {
	return &MockSender{
		Calls: make([]SendData, 0),
	}
}

func (m *MockSender) SendSMS(ctx context.Context, data SendData) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, data)

	if len(m.Results) > 0 {
		r := m.Results[0]
		m.Results = m.Results[1:]
		return r
	}

	return Result{
		Success:  true,
		MsgID:    "mock-msg-id",
		NumParts: 1,
	}
}

func (m *MockSender) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
