package biz

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"opsdashboard/cmd/dashboard-service/internal/domain"
	"opsdashboard/pkg/clients/upstream"
)

// 上游接口路径
const (
	PathLicenseKeyData        = "/admin/dashboard/license-key-data"
	PathUserChart             = "/admin/dashboard/user-chart"
	PathCarPartVerifyChart    = "/admin/dashboard/car-part-verify-chart"
	PathSupportChart          = "/admin/dashboard/support-chart"
	PathChatThreadChart       = "/admin/dashboard/chat-thread-chart"
	PathRecentActivities      = "/admin/dashboard/recent-activities"
	PathMostActiveDays        = "/admin/dashboard/get-most-active-days"
	PathMostActiveHours       = "/admin/dashboard/get-most-active-hours"
	PathTopCarDiagnoses       = "/admin/dashboard/get-top-car-diagnoses"
	PathRelatedPartsClickRate = "/admin/dashboard/get-related-parts-click-rate"
	PathPartsStats            = "/admin/dashboard/get-parts-stats"
	PathAvgStepsPerDiagnosis  = "/admin/dashboard/get-avg-steps-per-diagnosis"
	PathAvgDiagnosisTime      = "/admin/dashboard/get-avg-diagnosis-time"
	PathDIYTrend              = "/admin/dashboard/get-diy-trend"
	PathTopProblemReasons     = "/admin/dashboard/get-top-problem-reasons"
)

// 响应缓存时间
const (
	shortTTL = 30 * time.Second
	longTTL  = 60 * time.Second
)

// Fetcher 上游 JSON 获取接口，由 upstream.Client 实现
type Fetcher interface {
	GetJSON(ctx context.Context, path string, params map[string]string, opts upstream.GetOptions) (json.RawMessage, error)
}

// MetricUsecase 每个上游指标接口对应一个方法：获取、归一化、返回类型化结果。
// 错误原样返回，由调用方决定是否降级。
type MetricUsecase struct {
	fetcher Fetcher
	log     *zap.Logger
}

// NewMetricUsecase 创建指标用例
func NewMetricUsecase(fetcher Fetcher, logger *zap.Logger) *MetricUsecase {
	return &MetricUsecase{
		fetcher: fetcher,
		log:     logger,
	}
}

// params 构造查询参数，忽略空值
func params(kv ...string) map[string]string {
	out := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			out[kv[i]] = kv[i+1]
		}
	}
	return out
}

func (uc *MetricUsecase) get(ctx context.Context, path string, p map[string]string, ttl time.Duration) (json.RawMessage, error) {
	return uc.fetcher.GetJSON(ctx, path, p, upstream.GetOptions{TTL: ttl})
}

// LicenseKeyStats 授权码统计
func (uc *MetricUsecase) LicenseKeyStats(ctx context.Context) (domain.LicenseKeyStats, error) {
	body, err := uc.get(ctx, PathLicenseKeyData, nil, longTTL)
	if err != nil {
		return domain.LicenseKeyStats{}, err
	}
	return NormalizeLicenseKeyStats(PathLicenseKeyData, body)
}

// UsersLast5 近 5 个月新增用户；该接口不支持 licenseKey
func (uc *MetricUsecase) UsersLast5(ctx context.Context) ([]domain.MonthTotal, error) {
	body, err := uc.get(ctx, PathUserChart, nil, longTTL)
	if err != nil {
		return nil, err
	}
	return NormalizeMonthTotals(PathUserChart, body)
}

// VerificationsLast5 近 5 个月配件验证
func (uc *MetricUsecase) VerificationsLast5(ctx context.Context, licenseKey string) ([]domain.MonthTotal, error) {
	return uc.monthChart(ctx, PathCarPartVerifyChart, licenseKey)
}

// SupportLast5 近 5 个月支持请求
func (uc *MetricUsecase) SupportLast5(ctx context.Context, licenseKey string) ([]domain.MonthTotal, error) {
	return uc.monthChart(ctx, PathSupportChart, licenseKey)
}

// ChatThreadsLast5 近 5 个月会话
func (uc *MetricUsecase) ChatThreadsLast5(ctx context.Context, licenseKey string) ([]domain.MonthTotal, error) {
	return uc.monthChart(ctx, PathChatThreadChart, licenseKey)
}

func (uc *MetricUsecase) monthChart(ctx context.Context, path, licenseKey string) ([]domain.MonthTotal, error) {
	body, err := uc.get(ctx, path, params("licenseKey", licenseKey), longTTL)
	if err != nil {
		return nil, err
	}
	return NormalizeMonthTotals(path, body)
}

// RecentActivities 最近活动，最多 limit 条
func (uc *MetricUsecase) RecentActivities(ctx context.Context, limit int, licenseKey string) ([]domain.Activity, error) {
	body, err := uc.get(ctx, PathRecentActivities, params("licenseKey", licenseKey), shortTTL)
	if err != nil {
		return nil, err
	}
	return NormalizeRecentActivities(PathRecentActivities, body, limit)
}

// MostActiveDays 一周中各天的活跃度
func (uc *MetricUsecase) MostActiveDays(ctx context.Context, period, licenseKey string) ([]domain.DayActivity, error) {
	body, err := uc.get(ctx, PathMostActiveDays, params("period", orDefault(period, "all"), "licenseKey", licenseKey), longTTL)
	if err != nil {
		return nil, err
	}
	return NormalizeMostActiveDays(PathMostActiveDays, body)
}

// MostActiveHours 24 小时活跃度
func (uc *MetricUsecase) MostActiveHours(ctx context.Context, period, licenseKey string) (domain.HourlyActivity, error) {
	period = orDefault(period, "all")
	body, err := uc.get(ctx, PathMostActiveHours, params("period", period, "licenseKey", licenseKey), longTTL)
	if err != nil {
		return domain.HourlyActivity{}, err
	}
	return NormalizeMostActiveHours(PathMostActiveHours, body, period)
}

// TopCarDiagnoses 诊断最多的品牌和车型
func (uc *MetricUsecase) TopCarDiagnoses(ctx context.Context, licenseKey, dateRange string) (domain.TopDiagnoses, error) {
	body, err := uc.get(ctx, PathTopCarDiagnoses, params("licenseKey", licenseKey, "dateRange", dateRange), longTTL)
	if err != nil {
		return domain.TopDiagnoses{}, err
	}
	return NormalizeTopDiagnoses(PathTopCarDiagnoses, body)
}

// RelatedPartsClickRate 相关配件点击率
func (uc *MetricUsecase) RelatedPartsClickRate(ctx context.Context, granularity, licenseKey string) ([]domain.ClickRatePoint, error) {
	body, err := uc.get(ctx, PathRelatedPartsClickRate, params("granularity", orDefault(granularity, "daily"), "licenseKey", licenseKey), shortTTL)
	if err != nil {
		return nil, err
	}
	return NormalizeClickRates(PathRelatedPartsClickRate, body)
}

// PartsStats 配件统计
func (uc *MetricUsecase) PartsStats(ctx context.Context, licenseKey string) ([]domain.PartsStat, error) {
	body, err := uc.get(ctx, PathPartsStats, params("licenseKey", licenseKey), longTTL)
	if err != nil {
		return nil, err
	}
	return NormalizePartsStats(PathPartsStats, body)
}

// AvgStepsPerDiagnosis 每次诊断平均步数
func (uc *MetricUsecase) AvgStepsPerDiagnosis(ctx context.Context, period, licenseKey string) ([]domain.StepsPoint, error) {
	body, err := uc.get(ctx, PathAvgStepsPerDiagnosis, params("period", orDefault(period, "daily"), "licenseKey", licenseKey), shortTTL)
	if err != nil {
		return nil, err
	}
	return NormalizeSteps(PathAvgStepsPerDiagnosis, body)
}

// AvgDiagnosisTime 平均诊断时长
func (uc *MetricUsecase) AvgDiagnosisTime(ctx context.Context, period, licenseKey string) ([]domain.DiagnosisTimePoint, error) {
	body, err := uc.get(ctx, PathAvgDiagnosisTime, params("period", orDefault(period, "daily"), "licenseKey", licenseKey), shortTTL)
	if err != nil {
		return nil, err
	}
	return NormalizeDiagnosisTimes(PathAvgDiagnosisTime, body)
}

// DIYTrend DIY 趋势
func (uc *MetricUsecase) DIYTrend(ctx context.Context, period, licenseKey string) ([]domain.DIYPoint, error) {
	body, err := uc.get(ctx, PathDIYTrend, params("period", orDefault(period, "daily"), "licenseKey", licenseKey), shortTTL)
	if err != nil {
		return nil, err
	}
	return NormalizeDIYTrend(PathDIYTrend, body)
}

// TopProblemReasons 高/低优先级问题原因
func (uc *MetricUsecase) TopProblemReasons(ctx context.Context, licenseKey, dateRange string) (domain.ProblemReasons, error) {
	body, err := uc.get(ctx, PathTopProblemReasons, params("licenseKey", licenseKey, "dateRange", dateRange), longTTL)
	if err != nil {
		return domain.ProblemReasons{}, err
	}
	return NormalizeProblemReasons(PathTopProblemReasons, body)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// activityParams recent-activities 的 last-good 键参数，limit 只在本地生效
func activityParams(limit int, licenseKey string) map[string]string {
	return params("licenseKey", licenseKey, "limit", strconv.Itoa(limit))
}
