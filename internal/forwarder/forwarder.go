package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HeaderWriter 接收网关下发的会话刷新指令（Set-Cookie），gin.ResponseWriter 与 http.ResponseWriter 均满足
type HeaderWriter interface {
	Header() http.Header
}

// Request 一次逻辑调用
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any          // 非 nil 时按 JSON 编码
	Token  string       // 会话凭证，作为 cookie 透传
	Relay  HeaderWriter // 非 nil 时把网关的 Set-Cookie 复制到调用方响应
}

// Result 统一的成功/失败信封
type Result struct {
	OK      bool            `json:"ok"`
	Data    json.RawMessage `json:"data,omitempty"`
	Status  int             `json:"status,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Decode 解析 Data 到 v，Data 为空时不做任何事
func (r *Result) Decode(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

const (
	messageNetwork         = "Network error"
	messageInvalidResponse = "Invalid response"
	messageBadRequest      = "Bad request"
	messageForbidden       = "Forbidden"
	messageUnknown         = "Unknown error"

	maxErrorBody = 64 << 10
)

// Forwarder 把逻辑请求转发到后端网关
type Forwarder struct {
	baseURL    string
	cookieName string
	client     *http.Client
	logger     *slog.Logger
}

// Option 配置项
type Option func(*Forwarder)

// WithHTTPClient 替换默认 http.Client
func WithHTTPClient(c *http.Client) Option {
	return func(f *Forwarder) { f.client = c }
}

// WithLogger 设置日志
func WithLogger(l *slog.Logger) Option {
	return func(f *Forwarder) { f.logger = l }
}

// New 创建 Forwarder
func New(baseURL, cookieName string, timeout time.Duration, opts ...Option) *Forwarder {
	f := &Forwarder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		cookieName: cookieName,
		client:     &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Do 执行调用。任何失败都折叠进 Result，不返回 error
func (f *Forwarder) Do(ctx context.Context, req Request) *Result {
	start := time.Now()
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := f.build(ctx, method, req)
	if err != nil {
		f.logger.Error("Failed to build gateway request", "method", method, "path", req.Path, "error", err)
		return failure(0, messageNetwork)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		f.logger.Warn("Gateway request failed", "method", method, "path", req.Path, "error", err)
		return failure(0, messageNetwork)
	}
	defer resp.Body.Close()

	if req.Relay != nil {
		relayCookies(resp.Header, req.Relay.Header())
	}

	result := f.read(resp)
	f.logger.Debug("Gateway request",
		"method", method,
		"path", req.Path,
		"status", resp.StatusCode,
		"ok", result.OK,
		"latency", time.Since(start))
	return result
}

// Get GET 快捷方法
func (f *Forwarder) Get(ctx context.Context, path, token string, query url.Values) *Result {
	return f.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query, Token: token})
}

// Post POST 快捷方法
func (f *Forwarder) Post(ctx context.Context, path, token string, body any) *Result {
	return f.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body, Token: token})
}

func (f *Forwarder) build(ctx context.Context, method string, req Request) (*http.Request, error) {
	target := f.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		if raw, ok := req.Body.(json.RawMessage); ok {
			body = bytes.NewReader(raw)
		} else {
			data, err := json.Marshal(req.Body)
			if err != nil {
				return nil, err
			}
			body = bytes.NewReader(data)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Token != "" {
		httpReq.AddCookie(&http.Cookie{Name: f.cookieName, Value: req.Token})
	}
	return httpReq, nil
}

func (f *Forwarder) read(resp *http.Response) *Result {
	success := resp.StatusCode >= 200 && resp.StatusCode < 300

	limit := int64(-1)
	if !success {
		limit = maxErrorBody
	}
	data, err := readBody(resp.Body, limit)
	if err != nil {
		f.logger.Warn("Failed to read gateway response", "status", resp.StatusCode, "error", err)
		return failure(0, messageNetwork)
	}

	if success {
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) == 0 {
			return &Result{OK: true, Status: resp.StatusCode}
		}
		if !json.Valid(trimmed) {
			return failure(resp.StatusCode, messageInvalidResponse)
		}
		return &Result{OK: true, Status: resp.StatusCode, Data: json.RawMessage(trimmed)}
	}

	if msg := errorMessage(data); msg != "" {
		return failure(resp.StatusCode, msg)
	}
	return failure(resp.StatusCode, fallbackMessage(resp.StatusCode))
}

func readBody(r io.Reader, limit int64) ([]byte, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit)
	}
	return io.ReadAll(r)
}

// errorMessage 从结构化错误体中取出消息：优先 error，其次 message
func errorMessage(data []byte) string {
	var body struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	switch v := body.Error.(type) {
	case string:
		if v != "" {
			return v
		}
	case map[string]any:
		if m, ok := v["message"].(string); ok && m != "" {
			return m
		}
	}
	return body.Message
}

func fallbackMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return messageBadRequest
	case http.StatusForbidden:
		return messageForbidden
	default:
		return messageUnknown
	}
}

// relayCookies 复制全部 Set-Cookie 指令
func relayCookies(from, to http.Header) {
	for _, c := range from.Values("Set-Cookie") {
		to.Add("Set-Cookie", c)
	}
}

func failure(status int, message string) *Result {
	return &Result{OK: false, Status: status, Message: message}
}
