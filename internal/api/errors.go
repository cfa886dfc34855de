package api

import (
	"errors"
	"fmt"
)

// 错误分类
var (
	// ErrNetwork 请求未拿到响应（连接失败、超时、取消）
	ErrNetwork = errors.New("network failure")
	// ErrUnauthorized 401 / 403
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMalformed success=false 或缺少必要字段
	ErrMalformed = errors.New("malformed response")
	// ErrServer 其他非 2xx 状态码
	ErrServer = errors.New("server error")
	// ErrNoSession 调用需要登录的接口但未提供会话
	ErrNoSession = errors.New("no session")
)

// APIError 带状态码和后端消息的错误，Unwrap 返回上面的分类
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	Kind       error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %v (status %d): %s", e.Method, e.Path, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %v (status %d)", e.Method, e.Path, e.Kind, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.Kind
}

// IsUnauthorized 便捷判断
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
