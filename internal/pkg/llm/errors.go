package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/weibaohui/decision-council/internal/domain"
)

var (
	// ErrEmptyResponse 后端没有返回候选
	ErrEmptyResponse = errors.New("no response from backend")
	// ErrNotJSONObject 文本无法解析为 JSON 对象
	ErrNotJSONObject = errors.New("output is not a JSON object")
)

// BackendError 后端调用失败（网络或 HTTP 错误）
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Message)
	}
	return "backend error: " + e.Message
}

// GenerationError 结构化生成不可恢复的失败
type GenerationError struct {
	Kind    domain.ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// backendUnavailable 把后端错误包装为 BackendUnavailable
func backendUnavailable(err error) *GenerationError {
	ge := &GenerationError{Kind: domain.KindBackendUnavailable, Message: err.Error(), Err: err}
	var be *BackendError
	if errors.As(err, &be) {
		ge.Status = be.Status
		ge.Message = be.Message
	}
	return ge
}

// KindOf 提取错误分类，非 GenerationError 视为 BackendUnavailable
func KindOf(err error) domain.ErrorKind {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return domain.KindBackendUnavailable
}

// IsRateLimitError 判断后端错误是否为限流
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var be *BackendError
	if errors.As(err, &be) && be.Status == 429 {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	rateLimitKeywords := []string{
		"429",
		"rate limit",
		"quota exceeded",
		"too many requests",
		"rate-limited",
		"request rate exceeded",
	}
	for _, keyword := range rateLimitKeywords {
		if strings.Contains(errMsg, keyword) {
			return true
		}
	}
	return false
}
