package llm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weibaohui/decision-council/internal/domain"
)

// scriptedBackend 按顺序返回预设响应
type scriptedBackend struct {
	mu        sync.Mutex
	SendFunc  func(call int, req SendRequest) (*SendResult, error)
	Requests  []SendRequest
	SendCalls int
}

func (b *scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	b.mu.Lock()
	b.SendCalls++
	call := b.SendCalls
	b.Requests = append(b.Requests, req)
	b.mu.Unlock()
	return b.SendFunc(call, req)
}

func textResult(text string) *SendResult {
	return &SendResult{Text: text, Model: "gpt-4o-mini", Usage: Usage{PromptTokens: 1000, CompletionTokens: 1000, TotalTokens: 2000}}
}

type recordingObserver struct {
	mu      sync.Mutex
	records []CallRecord
}

func (o *recordingObserver) ObserveCall(ctx context.Context, rec CallRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, rec)
}

func TestCompleteStructuredValidFirstAttempt(t *testing.T) {
	backend := &scriptedBackend{SendFunc: func(call int, req SendRequest) (*SendResult, error) {
		return textResult(`{"summary":"fine"}`), nil
	}}
	obs := &recordingObserver{}
	client := NewStructuredClient(backend, StructuredOptions{Observer: obs})

	ctx := WithLabel(context.Background(), "STRATEGIST")
	res, err := client.Complete(ctx, "be a strategist", "question", `{"summary":"..."}`)
	require.NoError(t, err)
	assert.Equal(t, "fine", res.Object["summary"])
	assert.False(t, res.Repaired)
	// 首次即合法时不发起修复调用
	assert.Equal(t, 1, backend.SendCalls)

	req := backend.Requests[0]
	assert.True(t, req.JSONMode)
	assert.Equal(t, 0.3, req.Temperature)
	assert.Equal(t, 1200, req.MaxTokens)
	assert.Contains(t, req.System, `{"summary":"..."}`)

	require.Len(t, obs.records, 1)
	assert.Equal(t, "STRATEGIST", obs.records[0].Label)
	assert.InDelta(t, 0.00075, obs.records[0].CostUSD, 1e-9)
	assert.InDelta(t, 0.00075, res.CostUSD, 1e-9)
}

func TestCompleteStructuredRepairsOnce(t *testing.T) {
	backend := &scriptedBackend{SendFunc: func(call int, req SendRequest) (*SendResult, error) {
		if call == 1 {
			return textResult(`Here you go: {summary: fine`), nil
		}
		return textResult("```json\n{\"summary\":\"fixed\"}\n```"), nil
	}}
	obs := &recordingObserver{}
	client := NewStructuredClient(backend, StructuredOptions{Observer: obs})

	res, err := client.Complete(context.Background(), "sys", "user", "")
	require.NoError(t, err)
	assert.True(t, res.Repaired)
	assert.Equal(t, "fixed", res.Object["summary"])
	assert.Equal(t, 2, backend.SendCalls)
	assert.Equal(t, 4000, res.Usage.TotalTokens)

	repair := backend.Requests[1]
	assert.Equal(t, repairSystemPrompt, repair.System)
	assert.Contains(t, repair.User, "{summary: fine")
	assert.Equal(t, 0.0, repair.Temperature)

	require.Len(t, obs.records, 2)
	assert.True(t, obs.records[1].Repair)
}

func TestCompleteStructuredUnparsableAfterRepair(t *testing.T) {
	backend := &scriptedBackend{SendFunc: func(call int, req SendRequest) (*SendResult, error) {
		return textResult("I cannot answer in JSON."), nil
	}}
	client := NewStructuredClient(backend, StructuredOptions{})

	_, err := client.CompleteStructured(context.Background(), "sys", "user", "")
	require.Error(t, err)
	var ge *GenerationError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, domain.KindUnparsableOutput, ge.Kind)
	assert.ErrorIs(t, err, ErrNotJSONObject)
	assert.Equal(t, 2, backend.SendCalls)
}

func TestCompleteStructuredBackendUnavailable(t *testing.T) {
	backend := &scriptedBackend{SendFunc: func(call int, req SendRequest) (*SendResult, error) {
		return nil, &BackendError{Status: 503, Message: "overloaded"}
	}}
	obs := &recordingObserver{}
	client := NewStructuredClient(backend, StructuredOptions{Observer: obs})

	_, err := client.CompleteStructured(context.Background(), "sys", "user", "")
	var ge *GenerationError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, domain.KindBackendUnavailable, ge.Kind)
	assert.Equal(t, 503, ge.Status)
	assert.Equal(t, "overloaded", ge.Message)
	assert.Equal(t, domain.KindBackendUnavailable, KindOf(err))
	// 不自动重试
	assert.Equal(t, 1, backend.SendCalls)
	require.Len(t, obs.records, 1)
	assert.Error(t, obs.records[0].Err)
}

func TestCompleteStructuredRepairBackendFailure(t *testing.T) {
	backend := &scriptedBackend{SendFunc: func(call int, req SendRequest) (*SendResult, error) {
		if call == 1 {
			return textResult("not json"), nil
		}
		return nil, errors.New("connection reset")
	}}
	client := NewStructuredClient(backend, StructuredOptions{})

	_, err := client.CompleteStructured(context.Background(), "sys", "user", "")
	assert.Equal(t, domain.KindBackendUnavailable, KindOf(err))
	assert.Equal(t, 2, backend.SendCalls)
}

type panickingObserver struct{}

func (panickingObserver) ObserveCall(ctx context.Context, rec CallRecord) {
	panic("storage exploded")
}

func TestCompleteStructuredObserverPanicIsContained(t *testing.T) {
	backend := &scriptedBackend{SendFunc: func(call int, req SendRequest) (*SendResult, error) {
		return textResult(`{"a":1}`), nil
	}}
	client := NewStructuredClient(backend, StructuredOptions{Observer: panickingObserver{}})

	obj, err := client.CompleteStructured(context.Background(), "sys", "user", "")
	require.NoError(t, err)
	assert.Equal(t, float64(1), obj["a"])
}

func TestMockBackend(t *testing.T) {
	hint := domain.SchemaHint(domain.ContractFor(domain.RoleRiskOfficer))
	mock := NewMockBackend()
	client := NewStructuredClient(mock, StructuredOptions{Observer: ObserverFunc(func(ctx context.Context, rec CallRecord) {
		assert.Equal(t, 0.0, rec.CostUSD)
	})})

	obj, err := client.CompleteStructured(context.Background(), "sys", "user", hint)
	require.NoError(t, err)
	assert.Equal(t, true, obj["_mock"])
	assert.Equal(t, "council.risk_officer.v1", obj["_schema"])
	assert.NoError(t, domain.ValidateOutput(domain.ContractFor(domain.RoleRiskOfficer), obj))
	assert.Equal(t, int64(1), mock.Calls())

	obj, err = client.CompleteStructured(context.Background(), "sys", "user", "")
	require.NoError(t, err)
	assert.Equal(t, "mock.v1", obj["_schema"])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = mock.Send(ctx, SendRequest{})
	assert.Error(t, err)
}

func TestParseObject(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{name: "plain", text: `{"a":1}`},
		{name: "fenced", text: "```json\n{\"a\":1}\n```"},
		{name: "prose", text: `The answer is {"a":1}.`},
		{name: "array", text: `[1,2]`, wantErr: true},
		{name: "null", text: `null`, wantErr: true},
		{name: "empty", text: "   ", wantErr: true},
		{name: "truncated", text: `{"a":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := ParseObject(tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotJSONObject)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, float64(1), obj["a"])
		})
	}
}

func TestPriceTableEstimate(t *testing.T) {
	table := DefaultPrices()
	assert.InDelta(t, 0.00075, table.Estimate("gpt-4o-mini", 1000, 1000), 1e-12)
	// 带日期后缀的模型名按前缀匹配，优先最长前缀
	assert.InDelta(t, 0.00075, table.Estimate("gpt-4o-mini-2024-07-18", 1000, 1000), 1e-12)
	assert.InDelta(t, 0.0125, table.Estimate("GPT-4o-2024-08-06", 1000, 1000), 1e-12)
	assert.Equal(t, 0.0, table.Estimate("unknown-model", 1000, 1000))
	assert.Equal(t, 0.0, table.Estimate("mock", 1000, 1000))
}
