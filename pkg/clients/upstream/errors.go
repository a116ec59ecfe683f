package upstream

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrAuth 上游登录失败
	ErrAuth = errors.New("upstream auth failed")
	// ErrUpstream 上游返回错误状态或不可达
	ErrUpstream = errors.New("upstream request failed")
	// ErrParse 上游返回的内容无法解析
	ErrParse = errors.New("upstream response malformed")
)

// maxErrorBody 错误中保留的响应体长度
const maxErrorBody = 512

// AuthError 登录失败或未返回 token
type AuthError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *AuthError) Error() string {
	msg := "upstream login failed"
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg = msg + ": " + e.Message
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is 支持 errors.Is(err, ErrAuth)
func (e *AuthError) Is(target error) bool { return target == ErrAuth }

// UpstreamError 非 2xx 状态、重试耗尽或传输失败（StatusCode 为 0）
type UpstreamError struct {
	StatusCode int
	URL        string
	Body       string
	Err        error

	retryAfter    time.Duration
	hasRetryAfter bool
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	b.WriteString("upstream ")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, "status %d", e.StatusCode)
	} else {
		b.WriteString("request failed")
	}
	if e.URL != "" {
		b.WriteString(" for ")
		b.WriteString(e.URL)
	}
	if e.Body != "" {
		b.WriteString(": ")
		b.WriteString(e.Body)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is 支持 errors.Is(err, ErrUpstream)
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// RetryAfter 返回服务端 Retry-After 指定的等待时间
func (e *UpstreamError) RetryAfter() (time.Duration, bool) {
	return e.retryAfter, e.hasRetryAfter
}

// Transient 是否为可重试的状态码
func (e *UpstreamError) Transient() bool {
	return isTransientStatus(e.StatusCode)
}

// ParseError 2xx 响应体不是合法 JSON 或结构不符
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("parse upstream response: %v", e.Err)
	}
	return fmt.Sprintf("parse upstream response from %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is 支持 errors.Is(err, ErrParse)
func (e *ParseError) Is(target error) bool { return target == ErrParse }

func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// newStatusError 根据响应构建 UpstreamError；unit 为 Retry-After 秒数对应的时间单位
func newStatusError(resp *http.Response, url string, body []byte, unit time.Duration) *UpstreamError {
	e := &UpstreamError{
		StatusCode: resp.StatusCode,
		URL:        url,
		Body:       truncate(string(body), maxErrorBody),
	}
	if !isTransientStatus(resp.StatusCode) {
		return e
	}
	if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
		e.hasRetryAfter = true
		secs, err := strconv.ParseFloat(ra, 64)
		if err != nil || secs < 0 {
			// 非数字（如 HTTP 日期）按 2 个单位处理
			secs = 2
		}
		e.retryAfter = time.Duration(secs * float64(unit))
	}
	return e
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
