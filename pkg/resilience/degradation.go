package resilience

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"opsdashboard/pkg/cache"
)

// Source 结果来源
type Source int

const (
	// SourceLive 实时获取成功
	SourceLive Source = iota
	// SourceStale 实时获取失败，使用上一次成功的缓存值
	SourceStale
	// SourceDefault 实时获取失败且无缓存，使用默认值
	SourceDefault
)

// String 返回来源字符串
func (s Source) String() string {
	switch s {
	case SourceLive:
		return "live"
	case SourceStale:
		return "stale"
	case SourceDefault:
		return "default"
	default:
		return "unknown"
	}
}

// MarshalText 以字符串形式输出到 JSON
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result 带来源的获取结果；失败时 Err 记录原因，Value 始终可用
type Result[T any] struct {
	Value  T
	Source Source
	Err    error
}

// Degraded 是否为降级数据
func (r Result[T]) Degraded() bool {
	return r.Source != SourceLive
}

// LastGoodStore last-known-good 存储
type LastGoodStore = cache.Store

// SafeFetch 执行 fetch；成功时把结果写入 lastGoodKey，失败时返回 lastGoodKey 下的旧值，
// 都没有则返回 fallback。该函数不会返回错误也不会 panic。
func SafeFetch[T any](
	ctx context.Context,
	store LastGoodStore,
	lastGoodKey string,
	ttl time.Duration,
	fetch func(ctx context.Context) (T, error),
	fallback T,
) Result[T] {
	value, err := protect(ctx, fetch)
	if err == nil {
		if store != nil {
			// 写入失败不影响本次结果
			_ = cache.SetObject(ctx, store, lastGoodKey, value, ttl)
		}
		return Result[T]{Value: value, Source: SourceLive}
	}

	if store != nil {
		var stale T
		if gErr := cache.GetObject(ctx, store, lastGoodKey, &stale); gErr == nil {
			return Result[T]{Value: stale, Source: SourceStale, Err: err}
		}
	}

	return Result[T]{Value: fallback, Source: SourceDefault, Err: err}
}

func protect[T any](ctx context.Context, fetch func(ctx context.Context) (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			value = zero
			err = fmt.Errorf("fetch panicked: %v", r)
		}
	}()
	return fetch(ctx)
}

// DegradationLevel 降级级别
type DegradationLevel int

const (
	// LevelNormal 正常级别
	LevelNormal DegradationLevel = iota
	// LevelPartial 部分降级
	LevelPartial
	// LevelFull 完全降级
	LevelFull
)

// String 返回降级级别字符串
func (l DegradationLevel) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelPartial:
		return "partial"
	case LevelFull:
		return "full"
	default:
		return "unknown"
	}
}

// DegradationTracker 记录每个功能最近一次获取是否降级
type DegradationTracker struct {
	mu       sync.RWMutex
	features map[string]featureState
}

type featureState struct {
	source    Source
	lastError string
	updatedAt time.Time
}

// FeatureStatus 单个功能的降级状态
type FeatureStatus struct {
	Feature   string    `json:"feature"`
	Source    Source    `json:"source"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDegradationTracker 创建降级状态记录器
func NewDegradationTracker() *DegradationTracker {
	return &DegradationTracker{
		features: make(map[string]featureState),
	}
}

// Record 记录一次获取结果
func (t *DegradationTracker) Record(feature string, source Source, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := featureState{source: source, updatedAt: time.Now()}
	if err != nil {
		st.lastError = err.Error()
	}
	t.features[feature] = st
}

// Level 获取当前降级级别
func (t *DegradationTracker) Level() DegradationLevel {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.features) == 0 {
		return LevelNormal
	}

	degraded := 0
	for _, st := range t.features {
		if st.source != SourceLive {
			degraded++
		}
	}

	switch {
	case degraded == 0:
		return LevelNormal
	case degraded == len(t.features):
		return LevelFull
	default:
		return LevelPartial
	}
}

// Degraded 返回当前处于降级状态的功能（按名称排序）
func (t *DegradationTracker) Degraded() []FeatureStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]FeatureStatus, 0)
	for name, st := range t.features {
		if st.source == SourceLive {
			continue
		}
		out = append(out, FeatureStatus{
			Feature:   name,
			Source:    st.source,
			LastError: st.lastError,
			UpdatedAt: st.updatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Feature < out[j].Feature })
	return out
}
