package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/Maryclair03/Latest-LittleWatch/internal/config"
	"github.com/Maryclair03/Latest-LittleWatch/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UnauthorizedHandler 统一的未授权处理（登出并跳转登录）
type UnauthorizedHandler func(statusCode int)

// envelope 后端统一响应 {success, message, data}
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`

	raw []byte
}

// Client LittleWatch 后端 REST 客户端
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger

	mu             sync.RWMutex
	onUnauthorized UnauthorizedHandler
}

// NewClient 创建 REST 客户端
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	c := &Client{logger: logger}

	c.httpClient = resty.New().
		SetBaseURL(strings.TrimRight(cfg.API.BaseURL, "/")).
		SetTimeout(cfg.API.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", cfg.API.UserAgent).
		OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			req.SetHeader("X-Request-ID", uuid.NewString())
			return nil
		}).
		OnAfterResponse(c.interceptUnauthorized)

	return c
}

// SetUnauthorizedHandler 注册未授权回调；只有携带 token 的请求会触发
func (c *Client) SetUnauthorizedHandler(h UnauthorizedHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = h
}

func (c *Client) interceptUnauthorized(_ *resty.Client, resp *resty.Response) error {
	status := resp.StatusCode()
	if status != http.StatusUnauthorized && status != http.StatusForbidden {
		return nil
	}
	// 登录/注册失败返回的 401 不代表会话过期
	if resp.Request == nil || resp.Request.Header.Get("Authorization") == "" {
		return nil
	}

	c.logger.Warn("Authenticated request rejected",
		zap.Int("status_code", status),
		zap.String("url", resp.Request.URL),
	)

	c.mu.RLock()
	h := c.onUnauthorized
	c.mu.RUnlock()
	if h != nil {
		h(status)
	}
	return nil
}

// request 构造请求；sess 非 nil 时附带 Bearer token
func (c *Client) request(ctx context.Context, sess *models.Session) *resty.Request {
	req := c.httpClient.R().SetContext(ctx)
	if sess != nil && sess.AuthToken != "" {
		req.SetHeader("Authorization", "Bearer "+sess.AuthToken)
	}
	return req
}

func (c *Client) authedRequest(ctx context.Context, sess *models.Session) (*resty.Request, error) {
	if !sess.Valid() {
		return nil, ErrNoSession
	}
	return c.request(ctx, sess), nil
}

// execute 发送请求并解析统一响应
func (c *Client) execute(req *resty.Request, method, path string) (*envelope, error) {
	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Debug("API request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}

	body := resp.Body()
	env := &envelope{raw: body}
	parseErr := json.Unmarshal(body, env)

	status := resp.StatusCode()
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, &APIError{Method: method, Path: path, StatusCode: status, Message: env.Message, Kind: ErrUnauthorized}
	case status >= 400:
		return nil, &APIError{Method: method, Path: path, StatusCode: status, Message: env.Message, Kind: ErrServer}
	}

	if parseErr != nil {
		return nil, &APIError{Method: method, Path: path, StatusCode: status, Message: "invalid JSON body", Kind: ErrMalformed}
	}
	if !env.Success {
		return nil, &APIError{Method: method, Path: path, StatusCode: status, Message: env.Message, Kind: ErrMalformed}
	}
	return env, nil
}

// decodeData 解析 data 字段；required 时 data 缺失视为异常响应
func decodeData[T any](env *envelope, required bool) (T, error) {
	var out T
	if len(env.Data) == 0 || string(env.Data) == "null" {
		if required {
			return out, fmt.Errorf("%w: missing data", ErrMalformed)
		}
		return out, nil
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return out, nil
}
