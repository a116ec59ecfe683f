package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status 健康状态
type Status string

const (
	// StatusHealthy 健康
	StatusHealthy Status = "healthy"
	// StatusUnhealthy 不健康
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded 降级
	StatusDegraded Status = "degraded"
)

// CheckResult 检查结果
type CheckResult struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Checker 健康检查器接口
type Checker interface {
	// Check 执行健康检查
	Check(ctx context.Context) CheckResult
	// Name 检查器名称
	Name() string
}

// HealthChecker 健康检查管理器
type HealthChecker struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewHealthChecker 创建健康检查管理器
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checkers: make(map[string]Checker),
	}
}

// Register 注册检查器
func (h *HealthChecker) Register(checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[checker.Name()] = checker
}

// Check 并发执行所有检查
func (h *HealthChecker) Check(ctx context.Context) map[string]CheckResult {
	h.mu.RLock()
	checkers := make([]Checker, 0, len(h.checkers))
	for _, checker := range h.checkers {
		checkers = append(checkers, checker)
	}
	h.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]CheckResult, len(checkers))
	)
	for _, checker := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			result := c.Check(ctx)
			mu.Lock()
			results[c.Name()] = result
			mu.Unlock()
		}(checker)
	}

	wg.Wait()
	return results
}

// Overall 汇总整体状态
func Overall(results map[string]CheckResult) Status {
	hasDegraded := false
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			hasDegraded = true
		}
	}
	if hasDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// ServiceChecker 依赖（数据库、Redis、上游 API）健康检查
type ServiceChecker struct {
	name      string
	checkFn   func(context.Context) error
	threshold time.Duration // 响应时间阈值，0 表示不检查
	critical  bool
}

// NewServiceChecker 创建服务检查器；critical 为 false 时失败只算降级
func NewServiceChecker(name string, checkFn func(context.Context) error, threshold time.Duration, critical bool) *ServiceChecker {
	return &ServiceChecker{
		name:      name,
		checkFn:   checkFn,
		threshold: threshold,
		critical:  critical,
	}
}

// Name 返回检查器名称
func (s *ServiceChecker) Name() string {
	return s.name
}

// Check 执行检查
func (s *ServiceChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	err := s.checkFn(ctx)
	duration := time.Since(start)

	if err != nil {
		status := StatusUnhealthy
		if !s.critical {
			status = StatusDegraded
		}
		return CheckResult{
			Status:    status,
			Timestamp: time.Now(),
			Duration:  duration,
			Error:     err.Error(),
		}
	}

	// 检查响应时间
	if s.threshold > 0 && duration > s.threshold {
		return CheckResult{
			Status:    StatusDegraded,
			Timestamp: time.Now(),
			Duration:  duration,
			Details: map[string]interface{}{
				"threshold": s.threshold.String(),
				"actual":    duration.String(),
			},
			Error: fmt.Sprintf("response time exceeds threshold: %v > %v", duration, s.threshold),
		}
	}

	return CheckResult{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Duration:  duration,
	}
}

// Report 健康检查响应
type Report struct {
	Status    Status                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp string                 `json:"timestamp"`
	Uptime    int64                  `json:"uptime"` // 秒
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Reporter 生成服务健康报告
type Reporter struct {
	checker   *HealthChecker
	service   string
	version   string
	startedAt time.Time
}

// NewReporter 创建健康报告生成器
func NewReporter(checker *HealthChecker, service, version string) *Reporter {
	return &Reporter{
		checker:   checker,
		service:   service,
		version:   version,
		startedAt: time.Now(),
	}
}

// Report 执行所有检查并生成报告
func (r *Reporter) Report(ctx context.Context) Report {
	results := r.checker.Check(ctx)
	return Report{
		Status:    Overall(results),
		Service:   r.service,
		Version:   r.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    int64(time.Since(r.startedAt).Seconds()),
		Checks:    results,
	}
}
