package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode 提供商错误码
type ErrorCode string

const (
	ErrCodeRateLimited     ErrorCode = "LLM_RATE_LIMITED"
	ErrCodeTimeout         ErrorCode = "LLM_TIMEOUT"
	ErrCodeInvalidRequest  ErrorCode = "LLM_INVALID_REQUEST"
	ErrCodeContentFiltered ErrorCode = "LLM_CONTENT_FILTERED"
	ErrCodeUnavailable     ErrorCode = "LLM_UNAVAILABLE"
	ErrCodeUpstream        ErrorCode = "LLM_UPSTREAM_ERROR"
)

// Error 提供商调用错误。
// Retryable 标记该错误是否适合重试（限流、超时、上游 5xx）。
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
}

func (e *Error) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("%s: %s (http %d)", e.Code, e.Message, e.HTTPStatus)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError 创建提供商错误。
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Retryable: code == ErrCodeRateLimited || code == ErrCodeTimeout || code == ErrCodeUpstream || code == ErrCodeUnavailable,
	}
}

// IsRateLimit 判断错误是否为限流。
// 除类型化错误码外，也识别消息文本中的常见限流标记，
// 以兼容未包装的上游错误。
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Code == ErrCodeRateLimited
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "429")
}

// IsRetryable 判断错误是否适合重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Retryable
	}
	return IsRateLimit(err)
}
