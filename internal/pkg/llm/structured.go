package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/weibaohui/decision-council/internal/domain"
	"github.com/weibaohui/decision-council/internal/utils"
)

const repairSystemPrompt = "You repair malformed model output. Transform this into a single valid JSON object, no commentary."

// StructuredOptions 结构化生成参数
type StructuredOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Prices      PriceTable
	Observer    UsageObserver
}

// StructuredResult 结构化生成结果
type StructuredResult struct {
	Object   map[string]any
	Repaired bool
	Usage    Usage
	CostUSD  float64
}

// StructuredClient 请求 JSON 输出、解析，并在解析失败时最多修复一次
type StructuredClient struct {
	backend Backend
	opts    StructuredOptions
	now     func() time.Time
}

// NewStructuredClient 创建结构化生成客户端
func NewStructuredClient(backend Backend, opts StructuredOptions) *StructuredClient {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1200
	}
	if opts.Temperature <= 0 {
		opts.Temperature = 0.3
	}
	if opts.Prices == nil {
		opts.Prices = DefaultPrices()
	}
	return &StructuredClient{backend: backend, opts: opts, now: time.Now}
}

// BackendName 当前后端名称
func (c *StructuredClient) BackendName() string {
	return c.backend.Name()
}

// CompleteStructured 返回解析后的对象
func (c *StructuredClient) CompleteStructured(ctx context.Context, system, user, schemaHint string) (map[string]any, error) {
	res, err := c.Complete(ctx, system, user, schemaHint)
	if err != nil {
		return nil, err
	}
	return res.Object, nil
}

// Complete 完整结果，包含是否经过修复与用量
func (c *StructuredClient) Complete(ctx context.Context, system, user, schemaHint string) (*StructuredResult, error) {
	if schemaHint != "" {
		system = system + "\n\nReturn a single JSON object shaped like this example:\n" + schemaHint
	}

	sent, err := c.send(ctx, SendRequest{
		Model:       c.opts.Model,
		System:      system,
		User:        user,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
		JSONMode:    true,
		SchemaHint:  schemaHint,
	}, false)
	if err != nil {
		return nil, backendUnavailable(err)
	}

	result := &StructuredResult{Usage: sent.Usage, CostUSD: sent.cost}
	obj, parseErr := ParseObject(sent.Text)
	if parseErr == nil {
		result.Object = obj
		return result, nil
	}

	klog.Warningf("[llm] 输出无法解析为 JSON，尝试修复: label=%s, error=%v", LabelFrom(ctx), parseErr)
	repairUser := "Malformed output:\n" + sent.Text
	if schemaHint != "" {
		repairUser = "Expected shape:\n" + schemaHint + "\n\n" + repairUser
	}
	repaired, err := c.send(ctx, SendRequest{
		Model:       c.opts.Model,
		System:      repairSystemPrompt,
		User:        repairUser,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: 0,
		JSONMode:    true,
		SchemaHint:  schemaHint,
	}, true)
	if err != nil {
		return nil, backendUnavailable(err)
	}
	result.Usage = addUsage(result.Usage, repaired.Usage)
	result.CostUSD += repaired.cost

	obj, parseErr = ParseObject(repaired.Text)
	if parseErr != nil {
		return nil, &GenerationError{
			Kind:    domain.KindUnparsableOutput,
			Message: "output could not be parsed as a JSON object after one repair attempt",
			Err:     parseErr,
		}
	}
	result.Object = obj
	result.Repaired = true
	return result, nil
}

type sendOutcome struct {
	*SendResult
	cost float64
}

// send 调用后端并上报成本记录
func (c *StructuredClient) send(ctx context.Context, req SendRequest, repair bool) (*sendOutcome, error) {
	start := c.now()
	res, err := c.backend.Send(ctx, req)
	latency := c.now().Sub(start)

	rec := CallRecord{
		Label:   LabelFrom(ctx),
		Backend: c.backend.Name(),
		Model:   req.Model,
		Latency: latency,
		Repair:  repair,
		Err:     err,
	}
	if err != nil {
		klog.Warningf("[llm] 后端调用失败: backend=%s, label=%s, error=%v", c.backend.Name(), rec.Label, err)
		c.observe(ctx, rec)
		return nil, err
	}

	if res.Model != "" {
		rec.Model = res.Model
	}
	rec.PromptTokens = res.Usage.PromptTokens
	rec.CompletionTokens = res.Usage.CompletionTokens
	rec.CostUSD = c.opts.Prices.Estimate(rec.Model, rec.PromptTokens, rec.CompletionTokens)
	c.observe(ctx, rec)

	klog.V(6).Infof("[llm] 调用完成: backend=%s, label=%s, tokens=%d/%d, latency=%s",
		rec.Backend, rec.Label, rec.PromptTokens, rec.CompletionTokens, latency)
	return &sendOutcome{SendResult: res, cost: rec.CostUSD}, nil
}

// observe 观察者异常不影响主流程
func (c *StructuredClient) observe(ctx context.Context, rec CallRecord) {
	if c.opts.Observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("[llm] 成本观察者 panic: %v", r)
		}
	}()
	c.opts.Observer.ObserveCall(ctx, rec)
}

func addUsage(a, b Usage) Usage {
	return Usage{
		PromptTokens:     a.PromptTokens + b.PromptTokens,
		CompletionTokens: a.CompletionTokens + b.CompletionTokens,
		TotalTokens:      a.TotalTokens + b.TotalTokens,
	}
}

// ParseObject 把文本解析为 JSON 对象，容忍代码块包裹和前后说明文字
func ParseObject(text string) (map[string]any, error) {
	trimmed := utils.StripCodeFence(strings.TrimSpace(text))
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty output", ErrNotJSONObject)
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil && obj != nil {
		return obj, nil
	}

	candidate := utils.ExtractJSON(trimmed)
	if candidate == trimmed {
		return nil, fmt.Errorf("%w: no object found", ErrNotJSONObject)
	}
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSONObject, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: null", ErrNotJSONObject)
	}
	return obj, nil
}

// IsGenerationError 是否为结构化生成错误
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}
