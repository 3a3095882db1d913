// Package dialogue 把用户输入发送到对话后端，带有限次重试、指数退避、
// 请求超时和本地兜底回复，保证任何情况下都能返回合法回复。
package dialogue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/digital-human/internal/model/avatar"
	wire "github.com/zhouzirui/digital-human/internal/model/dialogue"
	"github.com/zhouzirui/digital-human/internal/store"
)

const defaultSessionKey = "default"

// Config 对话客户端配置。
type Config struct {
	BaseURL          string        `mapstructure:"base_url"`
	// MaxRetries 是首次请求之后的重试次数，0 表示不重试；与其他字段不同，零值不会被替换为默认值。
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxHistoryLength int           `mapstructure:"max_history_length"`
	HealthTimeout    time.Duration `mapstructure:"health_timeout"`
}

// DefaultConfig 返回默认配置。零值字段在 NewClient 中回退到这里的取值，MaxRetries 除外。
func DefaultConfig() Config {
	return Config{
		BaseURL:          "http://localhost:8000",
		MaxRetries:       3,
		RetryDelay:       time.Second,
		Timeout:          15 * time.Second,
		MaxHistoryLength: 50,
		HealthTimeout:    5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxHistoryLength <= 0 {
		c.MaxHistoryLength = d.MaxHistoryLength
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = d.HealthTimeout
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return c
}

// Recorder receives one observation per SendUserInput call.
type Recorder interface {
	ObserveDialogue(status int, retries int, fallback bool, elapsed time.Duration)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithSleep replaces the backoff wait.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) { c.sleep = fn }
}

// RequestOption overrides retry parameters for a single call.
type RequestOption func(*requestConfig)

type requestConfig struct {
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
}

// WithMaxRetries 覆盖本次请求的最大重试次数。
func WithMaxRetries(n int) RequestOption {
	return func(rc *requestConfig) {
		if n >= 0 {
			rc.maxRetries = n
		}
	}
}

// WithRetryDelay 覆盖本次请求的退避基数。
func WithRetryDelay(d time.Duration) RequestOption {
	return func(rc *requestConfig) {
		if d > 0 {
			rc.retryDelay = d
		}
	}
}

// WithTimeout 覆盖本次请求的单次超时。
func WithTimeout(d time.Duration) RequestOption {
	return func(rc *requestConfig) {
		if d > 0 {
			rc.timeout = d
		}
	}
}

// RequestError 描述一次失败的请求。Status 为 408 表示超时，0 表示网络错误。
type RequestError struct {
	Status    int
	Message   string
	Retryable bool
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("dialogue request failed (status %d): %s", e.Status, e.Message)
}

// Client talks to the dialogue backend.
type Client struct {
	cfg      Config
	http     *http.Client
	store    *store.Store
	logger   zerolog.Logger
	recorder Recorder
	sleep    SleepFunc

	mu      sync.Mutex
	history map[string][]wire.ChatRequest
}

// NewClient 创建对话客户端。
func NewClient(cfg Config, st *store.Store, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:     cfg.withDefaults(),
		http:    &http.Client{},
		store:   st,
		logger:  logger.With().Str("component", "dialogue").Logger(),
		sleep:   sleepContext,
		history: make(map[string][]wire.ChatRequest),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendUserInput never fails: after the retry budget is exhausted it answers
// with a local fallback reply and records the failure in the store.
func (c *Client) SendUserInput(ctx context.Context, req wire.ChatRequest, opts ...RequestOption) wire.ChatResponse {
	started := time.Now()
	rc := requestConfig{maxRetries: c.cfg.MaxRetries, retryDelay: c.cfg.RetryDelay, timeout: c.cfg.Timeout}
	for _, opt := range opts {
		opt(&rc)
	}

	c.appendHistory(req)

	// disconnected -> connected is not a legal edge, so announce the attempt first.
	if status := c.store.Get().Connection.Status; status == avatar.ConnectionDisconnected {
		c.store.SetConnectionStatus(avatar.ConnectionConnecting)
	}

	var lastErr *RequestError
	attempt := 0
	for ; attempt <= rc.maxRetries; attempt++ {
		if attempt > 0 {
			c.store.SetConnectionStatus(avatar.ConnectionConnecting)
			c.store.SetReconnectAttempts(attempt)
		}

		resp, reqErr := c.post(ctx, req, rc.timeout)
		if reqErr == nil {
			c.store.SetConnectionStatus(avatar.ConnectionConnected)
			c.store.ClearError()
			c.observe(http.StatusOK, attempt, false, started)
			return resp
		}

		lastErr = reqErr
		if !reqErr.Retryable || attempt == rc.maxRetries {
			break
		}

		delay := rc.retryDelay * time.Duration(1<<attempt)
		c.logger.Warn().
			Int("attempt", attempt+1).
			Int("status", reqErr.Status).
			Dur("retry_in", delay).
			Msg(reqErr.Message)
		if err := c.sleep(ctx, delay); err != nil {
			lastErr = &RequestError{Status: 0, Message: fmt.Sprintf("请求已取消: %v", err)}
			break
		}
	}

	c.logger.Error().Err(lastErr).Int("attempts", attempt+1).Msg("dialogue backend unreachable, using fallback reply")
	c.store.SetConnectionStatus(avatar.ConnectionError)
	c.store.PushError(fmt.Sprintf("对话服务暂时不可用: %s", lastErr.Message), store.SeverityError, 0)
	c.observe(lastErr.Status, attempt, true, started)
	return FallbackReply(req.UserText)
}

func (c *Client) post(ctx context.Context, req wire.ChatRequest, timeout time.Duration) (wire.ChatResponse, *RequestError) {
	body, err := json.Marshal(req)
	if err != nil {
		return wire.ChatResponse{}, &RequestError{Message: fmt.Sprintf("请求编码失败: %v", err)}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.BaseURL+"/v1/chat", bytes.NewReader(body))
	if err != nil {
		return wire.ChatResponse{}, &RequestError{Message: fmt.Sprintf("请求构造失败: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return wire.ChatResponse{}, classifyTransportError(ctx, reqCtx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return wire.ChatResponse{}, &RequestError{
			Status:    resp.StatusCode,
			Message:   fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
			Retryable: retryableStatus(resp.StatusCode),
		}
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		if reqCtx.Err() != nil {
			return wire.ChatResponse{}, classifyTransportError(ctx, reqCtx, err)
		}
		return wire.ChatResponse{}, &RequestError{Status: resp.StatusCode, Message: fmt.Sprintf("响应解析失败: %v", err)}
	}

	return wire.Normalize(stringField(raw, "replyText"), stringField(raw, "emotion"), stringField(raw, "action")), nil
}

func classifyTransportError(parent, reqCtx context.Context, err error) *RequestError {
	if parent.Err() != nil {
		return &RequestError{Status: 0, Message: fmt.Sprintf("请求已取消: %v", parent.Err())}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return &RequestError{Status: http.StatusRequestTimeout, Message: "请求超时", Retryable: true}
	}
	return &RequestError{Status: 0, Message: fmt.Sprintf("网络连接失败: %v", err), Retryable: true}
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

func stringField(raw map[string]any, key string) string {
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}

func (c *Client) observe(status, retries int, fallback bool, started time.Time) {
	if c.recorder != nil {
		c.recorder.ObserveDialogue(status, retries, fallback, time.Since(started))
	}
}

// CheckServerHealth probes GET /health with a bounded timeout. It never fails;
// problems are reported through the returned status.
func (c *Client) CheckServerHealth(ctx context.Context) wire.HealthStatus {
	started := time.Now()
	status := wire.HealthStatus{CheckedAt: started}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		status.Error = err.Error()
		return status
	}

	resp, err := c.http.Do(req)
	status.Latency = time.Since(started)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	defer resp.Body.Close()

	var body struct {
		Status   string            `json:"status"`
		Services map[string]string `json:"services"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	status.Services = body.Services

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return status
	}
	status.Healthy = true
	return status
}

func (c *Client) appendHistory(req wire.ChatRequest) {
	key := sessionKey(req.SessionID)

	c.mu.Lock()
	defer c.mu.Unlock()
	history := append(c.history[key], req)
	if overflow := len(history) - c.cfg.MaxHistoryLength; overflow > 0 {
		history = append([]wire.ChatRequest(nil), history[overflow:]...)
	}
	c.history[key] = history
}

// GetSessionHistory 返回某个会话已发送的请求，最新的在最后。
func (c *Client) GetSessionHistory(sessionID string) []wire.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wire.ChatRequest(nil), c.history[sessionKey(sessionID)]...)
}

// ClearSession 清空某个会话的本地历史。
func (c *Client) ClearSession(sessionID string) bool {
	key := sessionKey(sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.history[key]; !ok {
		return false
	}
	delete(c.history, key)
	return true
}

func sessionKey(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return defaultSessionKey
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
