package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"k8s.io/klog/v2"

	"github.com/weibaohui/decision-council/config"
)

// Client OpenAI 兼容的 HTTP 生成后端
type Client struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Client    *http.Client
}

// NewClient 创建新的 LLM 客户端
func NewClient(cfg *config.Config) *Client {
	return &Client{
		BaseURL:   strings.TrimRight(cfg.LLM.APIURL, "/"),
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Client: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

// Name 实现 Backend
func (c *Client) Name() string {
	return "http"
}

// Send 发送一次对话请求
func (c *Client) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	model := req.Model
	if model == "" {
		model = c.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.MaxTokens
	}

	chatReq := ChatRequest{
		Model: model,
		Messages: []ChatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	resp, err := c.sendRequest(ctx, chatReq)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	if resp.Usage.TotalTokens == 0 {
		resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	}
	if resp.Model == "" {
		resp.Model = model
	}
	return &SendResult{
		Text:  resp.Choices[0].Message.Content,
		Usage: resp.Usage,
		Model: resp.Model,
	}, nil
}

// sendRequest 发送 HTTP 请求到 LLM API
func (c *Client) sendRequest(ctx context.Context, reqBody ChatRequest) (*ChatResponse, error) {
	url := c.BaseURL + "/chat/completions"
	klog.V(6).Infof("发送 LLM 请求: url=%s, model=%s", url, reqBody.Model)

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, &BackendError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &BackendError{Status: resp.StatusCode, Message: "failed to read response: " + err.Error()}
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		if resp.StatusCode >= 300 {
			return nil, &BackendError{Status: resp.StatusCode, Message: truncate(string(body), 200)}
		}
		return nil, &BackendError{Status: resp.StatusCode, Message: "failed to unmarshal response: " + err.Error()}
	}

	if chatResp.Error != nil {
		return nil, &BackendError{Status: resp.StatusCode, Message: chatResp.Error.Message}
	}
	if resp.StatusCode >= 300 {
		return nil, &BackendError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	return &chatResp, nil
}

// truncate 最多保留 n 字节，不截断多字节字符
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
