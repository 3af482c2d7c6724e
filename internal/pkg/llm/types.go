package llm

import (
	"context"
	"time"
)

// Backend 生成后端：真实网络后端或确定性 mock
type Backend interface {
	Name() string
	Send(ctx context.Context, req SendRequest) (*SendResult, error)
}

// SendRequest 一次生成调用
type SendRequest struct {
	Model       string
	System      string
	User        string
	MaxTokens   int
	Temperature float64
	// JSONMode 请求后端输出 JSON 对象
	JSONMode bool
	// SchemaHint 期望的对象形状，mock 后端直接使用它生成占位输出
	SchemaHint string
}

// Usage token 用量
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// SendResult 后端返回的原始文本与用量
type SendResult struct {
	Text  string
	Usage Usage
	Model string
}

// ChatMessage OpenAI 兼容的消息
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat 输出格式约束
type ResponseFormat struct {
	Type string `json:"type"` // text, json_object
}

// ChatRequest OpenAI 兼容的 /chat/completions 请求
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ChatChoice 单个候选
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", etc.
}

// APIError 后端返回的错误体
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// ChatResponse /chat/completions 响应
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
	Error   *APIError    `json:"error,omitempty"`
}

// CallRecord 一次生成调用的成本记录
type CallRecord struct {
	Label            string
	Backend          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
	CostUSD          float64
	Repair           bool
	Err              error
}

// UsageObserver 接收每次调用的成本记录，由调用方负责持久化
type UsageObserver interface {
	ObserveCall(ctx context.Context, rec CallRecord)
}

// ObserverFunc 函数适配器
type ObserverFunc func(ctx context.Context, rec CallRecord)

// ObserveCall 实现 UsageObserver
func (f ObserverFunc) ObserveCall(ctx context.Context, rec CallRecord) {
	f(ctx, rec)
}

type labelKey struct{}

// WithLabel 给上下文打上调用标签（通常是角色名），用于成本记录
func WithLabel(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, labelKey{}, label)
}

// LabelFrom 读取调用标签
func LabelFrom(ctx context.Context) string {
	label, _ := ctx.Value(labelKey{}).(string)
	return label
}
