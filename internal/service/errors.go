package service

import (
	"errors"
	"fmt"
	"net/http"

	"k8s.io/klog/v2"

	"github.com/weibaohui/decision-council/internal/domain"
)

// ConsultError 对调用方可见的咨询错误
type ConsultError struct {
	Kind       domain.ErrorKind
	Message    string
	RetryAfter int // 秒，仅 AdmissionDenied 使用
}

func (e *ConsultError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// HTTPStatus 错误分类对应的 HTTP 状态码
func (e *ConsultError) HTTPStatus() int {
	switch e.Kind {
	case domain.KindAdmissionDenied:
		return http.StatusTooManyRequests
	case domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func invalidRequest(format string, args ...any) *ConsultError {
	return &ConsultError{Kind: domain.KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) *ConsultError {
	return &ConsultError{Kind: domain.KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// internalErrorMessage 未知错误对外只给出固定文案
const internalErrorMessage = "internal error"

// AsConsultError 把任意错误转换为 ConsultError
// 未知错误归为 InternalError，原始信息只写日志
func AsConsultError(err error) *ConsultError {
	if err == nil {
		return nil
	}
	var ce *ConsultError
	if errors.As(err, &ce) {
		return ce
	}
	klog.Errorf("[service] 内部错误: %v", err)
	return &ConsultError{Kind: domain.KindInternal, Message: internalErrorMessage}
}
