package llm

import (
	"context"
	"encoding/json"
	"sync/atomic"
)

// MockBackend 确定性的离线后端
// 对任何输入立即返回带 schema 标签的占位对象，零成本
type MockBackend struct {
	calls atomic.Int64
}

// NewMockBackend 创建 mock 后端
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// Name 实现 Backend
func (m *MockBackend) Name() string {
	return "mock"
}

// Calls 已处理的调用次数
func (m *MockBackend) Calls() int64 {
	return m.calls.Load()
}

// Send 返回 SchemaHint 对应的占位对象，并标记 _mock
func (m *MockBackend) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &BackendError{Message: err.Error()}
	}
	m.calls.Add(1)

	obj := map[string]any{}
	if req.SchemaHint != "" {
		if err := json.Unmarshal([]byte(req.SchemaHint), &obj); err != nil {
			obj = map[string]any{}
		}
	}
	if _, ok := obj["_schema"]; !ok {
		obj["_schema"] = "mock.v1"
	}
	obj["_mock"] = true

	data, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return &SendResult{Text: string(data), Model: "mock"}, nil
}
