package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"opsdashboard/pkg/cache"
	"opsdashboard/pkg/monitoring"
	"opsdashboard/pkg/observability"
	"opsdashboard/pkg/resilience"
)

const tracerName = "upstream"

// TokenSource 提供并可作废上游 bearer token
type TokenSource interface {
	Token(ctx context.Context) (*oauth2.Token, error)
	Invalidate()
}

// Config 上游客户端配置
type Config struct {
	BaseURL string
	// Timeout 单次 HTTP 调用超时
	Timeout time.Duration
	// MaxRetries 总尝试次数（包含第一次）
	MaxRetries int
	// BackoffUnit 退避与 Retry-After 的时间单位
	BackoffUnit time.Duration
	// MaxBackoffUnits 指数退避上限（单位数）
	MaxBackoffUnits int
	// CircuitBreaker 是否启用熔断
	CircuitBreaker bool
}

// DefaultConfig 默认配置
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:         baseURL,
		Timeout:         20 * time.Second,
		MaxRetries:      5,
		BackoffUnit:     time.Second,
		MaxBackoffUnits: 16,
	}
}

// GetOptions 单次 GetJSON 的选项；零值字段使用客户端默认值
type GetOptions struct {
	// TTL 响应缓存时间，0 表示不读写缓存
	TTL        time.Duration
	MaxRetries int
	Timeout    time.Duration
}

// Client 带 token 刷新、重试退避和响应缓存的上游客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	cache      cache.Cache
	breaker    *gobreaker.CircuitBreaker
	policy     resilience.RetryPolicy
	unit       time.Duration
	timeout    time.Duration
	maxRetries int
	logger     *zap.Logger
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 指定 HTTP 客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSleep 替换重试等待函数
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.policy.Sleep = sleep }
}

// WithRand 替换抖动随机源
func WithRand(r func() float64) Option {
	return func(c *Client) { c.policy.Rand = r }
}

// NewClient 创建上游客户端；cache 为 nil 时不缓存响应
func NewClient(cfg Config, tokens TokenSource, respCache cache.Cache, logger *zap.Logger, opts ...Option) *Client {
	def := DefaultConfig(cfg.BaseURL)
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = def.BackoffUnit
	}
	if cfg.MaxBackoffUnits <= 0 {
		cfg.MaxBackoffUnits = def.MaxBackoffUnits
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// 默认策略按退避单位缩放
	policy := resilience.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.MaxRetries
	policy.BaseDelay = cfg.BackoffUnit
	policy.MaxDelay = time.Duration(cfg.MaxBackoffUnits) * cfg.BackoffUnit
	policy.Jitter = cfg.BackoffUnit / 2
	policy.RetryableErrors = isRetryable

	c := &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{},
		tokens:     tokens,
		cache:      respCache,
		unit:       cfg.BackoffUnit,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		logger:     logger,
		policy:     policy,
	}
	if cfg.CircuitBreaker {
		c.breaker = newCircuitBreaker("upstream")
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newCircuitBreaker 创建熔断器
func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,                // 半开状态下最大请求数
		Interval:    10 * time.Second, // 统计周期
		Timeout:     30 * time.Second, // 熔断器开启后等待时间
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// 失败率 >= 60% 且请求数 >= 5 时触发熔断
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		// 只有不可达、5xx 和限流才算失败；调用方取消不算
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var ue *UpstreamError
			if errors.As(err, &ue) {
				return ue.StatusCode != 0 && ue.StatusCode < 500 && !ue.Transient()
			}
			return !errors.Is(err, context.DeadlineExceeded)
		},
	})
}

func isRetryable(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Transient()
}

// GetJSON 带认证的 GET：命中缓存直接返回；401 作废 token 重新登录后重发一次；
// 429/502/503/504 退避重试；其他非 2xx 立即失败；2xx 响应体必须是合法 JSON。
func (c *Client) GetJSON(ctx context.Context, path string, params map[string]string, opts GetOptions) (json.RawMessage, error) {
	fullURL := c.baseURL + path
	key := CacheKey(fullURL, params)

	if opts.TTL > 0 {
		if data, ok := c.lookup(ctx, key); ok {
			return data, nil
		}
	}

	ctx, span := observability.StartSpan(ctx, tracerName, "upstream.GET "+path)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", http.MethodGet),
		attribute.String("http.url", fullURL),
	)

	fetch := func() (json.RawMessage, error) {
		return c.fetchWithRetry(ctx, path, fullURL, params, opts)
	}

	var (
		data json.RawMessage
		err  error
	)
	if c.breaker != nil {
		var out interface{}
		out, err = c.breaker.Execute(func() (interface{}, error) { return fetch() })
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &UpstreamError{URL: fullURL, Err: err}
		}
		if err == nil {
			data = out.(json.RawMessage)
		}
	} else {
		data, err = fetch()
	}
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	if opts.TTL > 0 && c.cache != nil {
		if err := c.cache.SetBytes(ctx, key, data, opts.TTL); err != nil {
			c.logger.Warn("failed to cache upstream response", zap.String("key", key), zap.Error(err))
		}
	}
	return data, nil
}

func (c *Client) lookup(ctx context.Context, key string) (json.RawMessage, bool) {
	if c.cache == nil {
		return nil, false
	}
	data, err := c.cache.GetBytes(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn("response cache lookup failed", zap.String("key", key), zap.Error(err))
		}
		monitoring.CacheLookupsTotal.WithLabelValues("response", "miss").Inc()
		return nil, false
	}
	monitoring.CacheLookupsTotal.WithLabelValues("response", "hit").Inc()
	return data, true
}

func (c *Client) fetchWithRetry(ctx context.Context, path, fullURL string, params map[string]string, opts GetOptions) (json.RawMessage, error) {
	policy := c.policy
	if opts.MaxRetries > 0 {
		policy.MaxAttempts = opts.MaxRetries
	}
	timeout := c.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		status := "error"
		var ue *UpstreamError
		if errors.As(err, &ue) {
			status = strconv.Itoa(ue.StatusCode)
		}
		monitoring.UpstreamRetriesTotal.WithLabelValues(path, status).Inc()
		c.logger.Warn("upstream request throttled, retrying",
			zap.String("url", fullURL),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	var body []byte
	err := resilience.Retry(ctx, policy, func(int) error {
		var aErr error
		body, aErr = c.attempt(ctx, path, fullURL, params, timeout)
		return aErr
	})
	if err != nil {
		return nil, err
	}

	if !json.Valid(body) {
		return nil, &ParseError{URL: fullURL, Err: errors.New("response body is not valid JSON")}
	}
	return json.RawMessage(body), nil
}

// attempt 一次尝试；遇到 401 时刷新 token 并在同一次尝试内重发
func (c *Client) attempt(ctx context.Context, path, fullURL string, params map[string]string, timeout time.Duration) ([]byte, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, body, err := c.send(ctx, path, fullURL, params, tok, timeout)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Info("upstream token rejected, logging in again", zap.String("url", fullURL))
		c.tokens.Invalidate()
		tok, err = c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		resp, body, err = c.send(ctx, path, fullURL, params, tok, timeout)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(resp, fullURL, body, c.unit)
	}
	return body, nil
}

func (c *Client) send(ctx context.Context, path, fullURL string, params map[string]string, tok *oauth2.Token, timeout time.Duration) (*http.Response, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqURL := fullURL
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		reqURL = fullURL + "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, nil, &UpstreamError{URL: fullURL, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	tok.SetAuthHeader(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	monitoring.UpstreamRequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if err != nil {
		monitoring.UpstreamRequestsTotal.WithLabelValues(path, "error").Inc()
		return nil, nil, &UpstreamError{URL: fullURL, Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	monitoring.UpstreamRequestsTotal.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &UpstreamError{StatusCode: resp.StatusCode, URL: fullURL, Err: fmt.Errorf("read response: %w", err)}
	}
	return resp, body, nil
}
