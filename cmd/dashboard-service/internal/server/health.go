package server

import (
	"context"
	"fmt"
	"time"

	"opsdashboard/cmd/dashboard-service/internal/conf"
	"opsdashboard/cmd/dashboard-service/internal/data"
	"opsdashboard/pkg/health"
	"opsdashboard/pkg/resilience"
)

// NewHealthReporter 数据库和缓存为关键依赖；上游全部降级时只报告 degraded
func NewHealthReporter(c *conf.Config, d *data.Data, tracker *resilience.DegradationTracker) *health.Reporter {
	checker := health.NewHealthChecker()
	checker.Register(health.NewServiceChecker("database", d.PingDB, time.Second, true))
	checker.Register(health.NewServiceChecker("cache", d.PingCache, 500*time.Millisecond, true))
	checker.Register(health.NewServiceChecker("upstream", upstreamCheck(tracker), 0, false))
	return health.NewReporter(checker, c.Observability.ServiceName, c.Observability.ServiceVersion)
}

func upstreamCheck(tracker *resilience.DegradationTracker) func(context.Context) error {
	return func(context.Context) error {
		if tracker.Level() != resilience.LevelFull {
			return nil
		}
		degraded := tracker.Degraded()
		last := ""
		if len(degraded) > 0 {
			last = degraded[0].LastError
		}
		return fmt.Errorf("all %d metrics are served from fallback: %s", len(degraded), last)
	}
}
