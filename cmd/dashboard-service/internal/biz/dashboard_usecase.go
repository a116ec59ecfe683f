package biz

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"opsdashboard/cmd/dashboard-service/internal/domain"
	"opsdashboard/pkg/clients/upstream"
	"opsdashboard/pkg/monitoring"
	"opsdashboard/pkg/observability"
	"opsdashboard/pkg/resilience"
)

const tracerName = "dashboard"

// Dashboard 仪表盘响应，每个指标一个字段
type Dashboard struct {
	// LicenseKeyStats 全局授权码统计，仅对 MASTER 返回
	LicenseKeyStats       *domain.LicenseKeyStats     `json:"licenseKeyStats,omitempty"`
	UsersLast5            []domain.MonthTotal         `json:"usersLast5"`
	VerificationsLast5    []domain.MonthTotal         `json:"verificationsLast5"`
	SupportLast5          []domain.MonthTotal         `json:"supportLast5"`
	ChatThreadsLast5      []domain.MonthTotal         `json:"chatThreadsLast5"`
	RecentActivities      []domain.Activity           `json:"recentActivities"`
	MostActiveDays        []domain.DayActivity        `json:"mostActiveDays"`
	MostActiveHours       domain.HourlyActivity       `json:"mostActiveHours"`
	TopCarDiagnoses       domain.TopDiagnoses         `json:"topCarDiagnoses"`
	RelatedPartsClickRate []domain.ClickRatePoint     `json:"relatedPartsClickRate"`
	PartsStats            []domain.PartsStat          `json:"partsStats"`
	AvgStepsPerDiagnosis  []domain.StepsPoint         `json:"avgStepsPerDiagnosis"`
	AvgDiagnosisTime      []domain.DiagnosisTimePoint `json:"avgDiagnosisTime"`
	DIYTrend              []domain.DIYPoint           `json:"diyTrend"`
	TopProblemReasons     domain.ProblemReasons       `json:"topProblemReasons"`
	Meta                  DashboardMeta               `json:"meta"`
}

// DashboardMeta 生成时间和每个指标的数据来源
type DashboardMeta struct {
	GeneratedAt time.Time                           `json:"generatedAt"`
	Query       domain.DashboardQuery               `json:"query"`
	Sources     map[domain.Metric]resilience.Source `json:"sources"`
	Degraded    []domain.Metric                     `json:"degraded"`
}

// DashboardConfig 聚合配置
type DashboardConfig struct {
	// LastGoodTTL last-known-good 值的保存时间
	LastGoodTTL time.Duration
	// Concurrency 同时进行的上游请求数
	Concurrency int
	// FetchTimeout 一次构建中全部上游获取的截止时间，到期未完成的指标用 last-good 或默认值；0 表示不限制
	FetchTimeout time.Duration
}

// DashboardUsecase 并发获取所有指标；单个指标失败时用 last-good 或默认值代替，
// 不会让整个仪表盘失败
type DashboardUsecase struct {
	metrics *MetricUsecase
	store   resilience.LastGoodStore
	tracker *resilience.DegradationTracker
	cfg     DashboardConfig
	log     *zap.Logger
	now     func() time.Time
}

// NewDashboardUsecase 创建仪表盘用例
func NewDashboardUsecase(
	metrics *MetricUsecase,
	store resilience.LastGoodStore,
	tracker *resilience.DegradationTracker,
	cfg DashboardConfig,
	logger *zap.Logger,
) *DashboardUsecase {
	if cfg.LastGoodTTL <= 0 {
		cfg.LastGoodTTL = 300 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	return &DashboardUsecase{
		metrics: metrics,
		store:   store,
		tracker: tracker,
		cfg:     cfg,
		log:     logger,
		now:     time.Now,
	}
}

// LastGoodKey lastgood::<metric>::<排序后的参数>
func LastGoodKey(metric domain.Metric, p map[string]string) string {
	return "lastgood::" + string(metric) + "::" + upstream.SortedParams(p)
}

// sourceRecorder 收集一次构建中各指标的来源
type sourceRecorder struct {
	mu      sync.Mutex
	sources map[domain.Metric]resilience.Source
}

func (r *sourceRecorder) record(metric domain.Metric, source resilience.Source) {
	r.mu.Lock()
	r.sources[metric] = source
	r.mu.Unlock()
}

// fetchContext 上游获取使用的 context，带 FetchTimeout 截止时间
func (uc *DashboardUsecase) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if uc.cfg.FetchTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, uc.cfg.FetchTimeout)
}

// safeFetch 通过 SafeFetch 获取单个指标并记录来源、日志和指标。
// fetch 在 fetchCtx 下执行；last-good 读写用 ctx，截止时间到了仍能读到旧值。
func safeFetch[T any](
	ctx context.Context,
	fetchCtx context.Context,
	uc *DashboardUsecase,
	metric domain.Metric,
	p map[string]string,
	fetch func(ctx context.Context) (T, error),
	fallback T,
) resilience.Result[T] {
	bounded := func(context.Context) (T, error) { return fetch(fetchCtx) }
	res := resilience.SafeFetch(ctx, uc.store, LastGoodKey(metric, p), uc.cfg.LastGoodTTL, bounded, fallback)

	monitoring.MetricFetchesTotal.WithLabelValues(string(metric), res.Source.String()).Inc()
	if uc.tracker != nil {
		uc.tracker.Record(string(metric), res.Source, res.Err)
	}
	if res.Err != nil {
		uc.log.Warn("metric fetch failed, serving fallback",
			zap.String("metric", string(metric)),
			zap.String("source", res.Source.String()),
			zap.Error(res.Err),
		)
	}
	return res
}

// spawn 在 errgroup 中获取指标并写入 dst
func spawn[T any](
	g *errgroup.Group,
	ctx context.Context,
	fetchCtx context.Context,
	uc *DashboardUsecase,
	rec *sourceRecorder,
	metric domain.Metric,
	p map[string]string,
	dst *T,
	fetch func(ctx context.Context) (T, error),
	fallback T,
) {
	g.Go(func() error {
		res := safeFetch(ctx, fetchCtx, uc, metric, p, fetch, fallback)
		*dst = res.Value
		rec.record(metric, res.Source)
		return nil
	})
}

// Build 构建仪表盘。q 必须已经 Normalize；withLicenseKeys 控制是否包含全局授权码统计。
// 上游失败不会返回错误。
func (uc *DashboardUsecase) Build(ctx context.Context, q domain.DashboardQuery, withLicenseKeys bool) *Dashboard {
	ctx, span := observability.StartSpan(ctx, tracerName, "dashboard.Build")
	defer span.End()
	span.SetAttributes(
		attribute.String("dashboard.license_key", q.LicenseKey),
		attribute.Bool("dashboard.with_license_keys", withLicenseKeys),
	)

	m := uc.metrics
	lk := q.LicenseKey
	rec := &sourceRecorder{sources: make(map[domain.Metric]resilience.Source)}
	d := &Dashboard{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.cfg.Concurrency)
	fctx, cancel := uc.fetchContext(gctx)
	defer cancel()

	if withLicenseKeys {
		stats := new(domain.LicenseKeyStats)
		d.LicenseKeyStats = stats
		spawn(g, gctx, fctx, uc, rec, domain.MetricLicenseKeyStats, nil, stats, m.LicenseKeyStats, domain.LicenseKeyStats{})
	}

	spawn(g, gctx, fctx, uc, rec, domain.MetricUsersLast5, nil, &d.UsersLast5,
		m.UsersLast5, []domain.MonthTotal{})
	spawn(g, gctx, fctx, uc, rec, domain.MetricVerificationsLast5, params("licenseKey", lk), &d.VerificationsLast5,
		func(ctx context.Context) ([]domain.MonthTotal, error) { return m.VerificationsLast5(ctx, lk) }, []domain.MonthTotal{})
	spawn(g, gctx, fctx, uc, rec, domain.MetricSupportLast5, params("licenseKey", lk), &d.SupportLast5,
		func(ctx context.Context) ([]domain.MonthTotal, error) { return m.SupportLast5(ctx, lk) }, []domain.MonthTotal{})
	spawn(g, gctx, fctx, uc, rec, domain.MetricChatThreadsLast5, params("licenseKey", lk), &d.ChatThreadsLast5,
		func(ctx context.Context) ([]domain.MonthTotal, error) { return m.ChatThreadsLast5(ctx, lk) }, []domain.MonthTotal{})
	spawn(g, gctx, fctx, uc, rec, domain.MetricRecentActivities, activityParams(q.Limit, lk), &d.RecentActivities,
		func(ctx context.Context) ([]domain.Activity, error) { return m.RecentActivities(ctx, q.Limit, lk) }, []domain.Activity{})
	spawn(g, gctx, fctx, uc, rec, domain.MetricMostActiveDays, params("period", q.Period, "licenseKey", lk), &d.MostActiveDays,
		func(ctx context.Context) ([]domain.DayActivity, error) { return m.MostActiveDays(ctx, q.Period, lk) }, []domain.DayActivity{})
	spawn(g, gctx, fctx, uc, rec, domain.MetricMostActiveHours, params("period", q.Period, "licenseKey", lk), &d.MostActiveHours,
		func(ctx context.Context) (domain.HourlyActivity, error) { return m.MostActiveHours(ctx, q.Period, lk) }, EmptyHourlyActivity(q.Period))
	spawn(g, gctx, fctx, uc, rec, domain.MetricTopCarDiagnoses, params("licenseKey", lk, "dateRange", q.DateRange), &d.TopCarDiagnoses,
		func(ctx context.Context) (domain.TopDiagnoses, error) { return m.TopCarDiagnoses(ctx, lk, q.DateRange) },
		domain.TopDiagnoses{Top5Makes: []domain.MakeCount{}, Top5Models: []domain.ModelCount{}})
	spawn(g, gctx, fctx, uc, rec, domain.MetricRelatedPartsClickRate, params("granularity", q.Granularity, "licenseKey", lk), &d.RelatedPartsClickRate,
		func(ctx context.Context) ([]domain.ClickRatePoint, error) { return m.RelatedPartsClickRate(ctx, q.Granularity, lk) }, []domain.ClickRatePoint{})
	spawn(g, gctx, fctx, uc, rec, domain.MetricPartsStats, params("licenseKey", lk), &d.PartsStats,
		func(ctx context.Context) ([]domain.PartsStat, error) { return m.PartsStats(ctx, lk) }, []domain.PartsStat{})
	spawn(g, gctx, fctx, uc, rec, domain.MetricAvgStepsPerDiagnosis, params("period", q.DiagPeriod, "licenseKey", lk), &d.AvgStepsPerDiagnosis,
		func(ctx context.Context) ([]domain.StepsPoint, error) { return m.AvgStepsPerDiagnosis(ctx, q.DiagPeriod, lk) }, []domain.StepsPoint{})
	spawn(g, gctx, fctx, uc, rec, domain.MetricAvgDiagnosisTime, params("period", q.DiagPeriod, "licenseKey", lk), &d.AvgDiagnosisTime,
		func(ctx context.Context) ([]domain.DiagnosisTimePoint, error) { return m.AvgDiagnosisTime(ctx, q.DiagPeriod, lk) }, []domain.DiagnosisTimePoint{})
	spawn(g, gctx, fctx, uc, rec, domain.MetricDIYTrend, params("period", q.DIYPeriod, "licenseKey", lk), &d.DIYTrend,
		func(ctx context.Context) ([]domain.DIYPoint, error) { return m.DIYTrend(ctx, q.DIYPeriod, lk) }, []domain.DIYPoint{})
	spawn(g, gctx, fctx, uc, rec, domain.MetricTopProblemReasons, params("licenseKey", lk, "dateRange", q.DateRange), &d.TopProblemReasons,
		func(ctx context.Context) (domain.ProblemReasons, error) { return m.TopProblemReasons(ctx, lk, q.DateRange) },
		domain.ProblemReasons{HighPriority: []domain.TitleCount{}, LowPriority: []domain.TitleCount{}})

	// 各任务总是返回 nil
	_ = g.Wait()

	d.Meta = DashboardMeta{
		GeneratedAt: uc.now().UTC(),
		Query:       q,
		Sources:     rec.sources,
		Degraded:    degradedMetrics(rec.sources),
	}
	span.SetAttributes(attribute.Int("dashboard.degraded", len(d.Meta.Degraded)))
	return d
}

func degradedMetrics(sources map[domain.Metric]resilience.Source) []domain.Metric {
	out := make([]domain.Metric, 0)
	for metric, source := range sources {
		if source != resilience.SourceLive {
			out = append(out, metric)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LicenseKeySummary 单独获取授权码统计
func (uc *DashboardUsecase) LicenseKeySummary(ctx context.Context) resilience.Result[domain.LicenseKeyStats] {
	fctx, cancel := uc.fetchContext(ctx)
	defer cancel()
	return safeFetch(ctx, fctx, uc, domain.MetricLicenseKeyStats, nil, uc.metrics.LicenseKeyStats, domain.LicenseKeyStats{})
}

// RecentActivities 单独获取最近活动
func (uc *DashboardUsecase) RecentActivities(ctx context.Context, limit int, licenseKey string) resilience.Result[[]domain.Activity] {
	fctx, cancel := uc.fetchContext(ctx)
	defer cancel()
	return safeFetch(ctx, fctx, uc, domain.MetricRecentActivities, activityParams(limit, licenseKey),
		func(ctx context.Context) ([]domain.Activity, error) {
			return uc.metrics.RecentActivities(ctx, limit, licenseKey)
		}, []domain.Activity{})
}
