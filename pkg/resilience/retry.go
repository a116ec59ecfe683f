package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

var (
	// ErrMaxRetriesExceeded 超过最大重试次数
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// RetryAfterError 可以指定下一次重试等待时间的错误（例如 HTTP Retry-After）
type RetryAfterError interface {
	error
	RetryAfter() (time.Duration, bool)
}

// RetryPolicy 重试策略
type RetryPolicy struct {
	// MaxAttempts 最大尝试次数（包含第一次）
	MaxAttempts int
	// BaseDelay 初始延迟（退避的时间单位）
	BaseDelay time.Duration
	// MaxDelay 最大延迟（不含抖动）
	MaxDelay time.Duration
	// BackoffMultiplier 退避乘数（指数退避）
	BackoffMultiplier float64
	// Jitter 随机抖动上限，实际抖动在 [0, Jitter) 内均匀分布
	Jitter time.Duration
	// RetryableErrors 可重试的错误判断函数，nil 表示所有错误都可重试
	RetryableErrors func(error) bool
	// OnRetry 重试回调
	OnRetry func(attempt int, err error, delay time.Duration)
	// Sleep 等待函数，nil 时使用可取消的 timer
	Sleep func(ctx context.Context, d time.Duration) error
	// Rand 返回 [0,1) 的随机数，nil 时使用 math/rand
	Rand func() float64
}

// DefaultRetryPolicy 默认重试策略：5 次尝试，1s 起步翻倍，封顶 16s，抖动 0.5s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       5,
		BaseDelay:         time.Second,
		MaxDelay:          16 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            500 * time.Millisecond,
	}
}

// Retry 执行带重试的函数，fn 收到从 1 开始的尝试序号
func Retry(ctx context.Context, policy RetryPolicy, fn func(attempt int) error) error {
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		// 检查是否可重试
		if policy.RetryableErrors != nil && !policy.RetryableErrors(err) {
			return err
		}

		if attempt >= maxAttempts {
			return errors.Join(ErrMaxRetriesExceeded, lastErr)
		}

		delay := policy.NextDelay(attempt, err)

		// 调用重试回调
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err, delay)
		}

		if err := policy.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// NextDelay 计算第 attempt 次失败后的等待时间
func (p *RetryPolicy) NextDelay(attempt int, err error) time.Duration {
	var ra RetryAfterError
	if errors.As(err, &ra) {
		if d, ok := ra.RetryAfter(); ok {
			return d
		}
	}
	return p.calculateDelay(attempt) + p.jitter()
}

// calculateDelay 计算延迟时间（指数退避）
func (p *RetryPolicy) calculateDelay(attempt int) time.Duration {
	multiplier := p.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	delay := float64(p.BaseDelay) * math.Pow(multiplier, float64(attempt-1))

	// 限制最大延迟
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	return time.Duration(delay)
}

func (p *RetryPolicy) jitter() time.Duration {
	if p.Jitter <= 0 {
		return 0
	}
	r := rand.Float64
	if p.Rand != nil {
		r = p.Rand
	}
	return time.Duration(r() * float64(p.Jitter))
}

func (p *RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

// SleepContext 等待 d，ctx 取消时提前返回
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
