package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"k8s.io/klog/v2"

	"github.com/weibaohui/decision-council/config"
)

// EinoBackend 通过 eino ChatModel 调用生成后端
type EinoBackend struct {
	chatModel model.BaseChatModel
	modelName string
}

// NewEinoBackend 使用 eino-ext openai ChatModel 创建后端
func NewEinoBackend(ctx context.Context, cfg *config.Config) (*EinoBackend, error) {
	chatModel, err := openai.NewChatModel(ctx, chatModelConfig(cfg))
	if err != nil {
		klog.Errorf("[EinoBackend] 创建 ChatModel 失败: %v", err)
		return nil, fmt.Errorf("create eino chat model: %w", err)
	}
	klog.V(6).Infof("[EinoBackend] ChatModel 创建成功: model=%s", cfg.LLM.Model)
	return NewEinoBackendWithModel(chatModel, cfg.LLM.Model), nil
}

// chatModelConfig 所有角色调用都要求单个 JSON 对象，与 HTTP 客户端一致开启 JSON 模式
func chatModelConfig(cfg *config.Config) *openai.ChatModelConfig {
	maxTokens := cfg.LLM.MaxTokens
	return &openai.ChatModelConfig{
		BaseURL:   cfg.LLM.APIURL,
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		MaxTokens: &maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
}

// NewEinoBackendWithModel 包装已有的 ChatModel
func NewEinoBackendWithModel(chatModel model.BaseChatModel, modelName string) *EinoBackend {
	return &EinoBackend{chatModel: chatModel, modelName: modelName}
}

// Name 实现 Backend
func (b *EinoBackend) Name() string {
	return "eino"
}

// Send 实现 Backend
func (b *EinoBackend) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	system := req.System
	if req.JSONMode {
		system += "\n\nRespond with a single JSON object only."
	}
	messages := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(req.User),
	}

	opts := []model.Option{model.WithTemperature(float32(req.Temperature))}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	modelName := b.modelName
	if req.Model != "" {
		modelName = req.Model
		opts = append(opts, model.WithModel(req.Model))
	}

	msg, err := b.chatModel.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, &BackendError{Status: statusFromError(err), Message: err.Error()}
	}
	if msg == nil {
		return nil, ErrEmptyResponse
	}

	result := &SendResult{Text: msg.Content, Model: modelName}
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		result.Usage = Usage{
			PromptTokens:     msg.ResponseMeta.Usage.PromptTokens,
			CompletionTokens: msg.ResponseMeta.Usage.CompletionTokens,
			TotalTokens:      msg.ResponseMeta.Usage.TotalTokens,
		}
	}
	return result, nil
}

// statusFromError eino 不暴露状态码，只能从错误文本识别限流
func statusFromError(err error) int {
	if IsRateLimitError(err) {
		return 429
	}
	return 0
}
