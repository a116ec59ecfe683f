package biz

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"opsdashboard/cmd/dashboard-service/internal/domain"
	"opsdashboard/pkg/clients/upstream"
)

// 上游返回的 JSON 先解码为带宽松字段的结构体，再由这里补齐派生字段。
// 所有函数都是纯函数，同一输入多次调用得到相同输出。

func parseErr(path string, err error) error {
	return &upstream.ParseError{URL: path, Err: err}
}

// decodeEnvelope 2xx 响应体必须是 JSON 对象
func decodeEnvelope(path string, body json.RawMessage) (*domain.Envelope, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(body), []byte("{")) {
		return nil, parseErr(path, errors.New("response body is not a JSON object"))
	}
	var env domain.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, parseErr(path, fmt.Errorf("decode envelope: %w", err))
	}
	return &env, nil
}

// falsy null、缺失、空对象、空数组、空字符串、0 和 false 都视为没有数据
func falsy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return false
	}
	switch buf.String() {
	case "null", "{}", "[]", `""`, "0", "false":
		return true
	}
	return false
}

// decodeList 把 payload 解码为列表；没有数据时返回空列表
func decodeList[T any](path string, raw json.RawMessage) ([]T, error) {
	out := []T{}
	if falsy(raw) {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, parseErr(path, fmt.Errorf("decode payload list: %w", err))
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// decodeObject 把 payload 解码为对象；没有数据时返回零值
func decodeObject[T any](path string, raw json.RawMessage) (T, error) {
	var out T
	if falsy(raw) {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		var zero T
		return zero, parseErr(path, fmt.Errorf("decode payload object: %w", err))
	}
	return out, nil
}

func payloadList[T any](path string, body json.RawMessage) ([]T, error) {
	env, err := decodeEnvelope(path, body)
	if err != nil {
		return nil, err
	}
	return decodeList[T](path, env.Payload)
}

func payloadObject[T any](path string, body json.RawMessage) (T, error) {
	env, err := decodeEnvelope(path, body)
	if err != nil {
		var zero T
		return zero, err
	}
	return decodeObject[T](path, env.Payload)
}

// NormalizeLicenseKeyStats 授权码统计来自外壳顶层字段，total 为三者之和
func NormalizeLicenseKeyStats(path string, body json.RawMessage) (domain.LicenseKeyStats, error) {
	if _, err := decodeEnvelope(path, body); err != nil {
		return domain.LicenseKeyStats{}, err
	}
	var p domain.LicenseKeyPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.LicenseKeyStats{}, parseErr(path, fmt.Errorf("decode license key stats: %w", err))
	}
	return domain.LicenseKeyStats{
		New:      p.NewUsers,
		Active:   p.ActiveUser,
		Inactive: p.InactiveUser,
		Total:    p.NewUsers + p.ActiveUser + p.InactiveUser,
	}, nil
}

// NormalizeMonthTotals 近 5 个月图表
func NormalizeMonthTotals(path string, body json.RawMessage) ([]domain.MonthTotal, error) {
	return payloadList[domain.MonthTotal](path, body)
}

// NormalizeRecentActivities activities 不是列表时返回空列表，超过 limit 的部分截掉
func NormalizeRecentActivities(path string, body json.RawMessage, limit int) ([]domain.Activity, error) {
	env, err := decodeEnvelope(path, body)
	if err != nil {
		return nil, err
	}

	acts := []domain.Activity{}
	if falsy(env.Activities) {
		return acts, nil
	}
	if err := json.Unmarshal(env.Activities, &acts); err != nil {
		return []domain.Activity{}, nil
	}
	if limit >= 0 && len(acts) > limit {
		acts = acts[:limit]
	}
	return acts, nil
}

// NormalizeMostActiveDays 一周活跃度
func NormalizeMostActiveDays(path string, body json.RawMessage) ([]domain.DayActivity, error) {
	return payloadList[domain.DayActivity](path, body)
}

// NormalizeMostActiveHours perHour 总是 0..23 共 24 项，缺失的小时为 0；
// 上游未给 period 时使用请求的 period
func NormalizeMostActiveHours(path string, body json.RawMessage, period string) (domain.HourlyActivity, error) {
	p, err := payloadObject[domain.HourlyActivityPayload](path, body)
	if err != nil {
		return domain.HourlyActivity{}, err
	}

	out := domain.HourlyActivity{
		Period:             p.Period.Text(),
		TotalDistinctUsers: p.TotalDistinctUsers,
	}
	if out.Period == "" {
		out.Period = period
	}
	out.PerHour = fillHours(p.PerHour)
	return out, nil
}

// fillHours 按小时展开为 24 项；同一小时出现多次时以最后一次为准
func fillHours(in []domain.HourCount) []domain.HourCount {
	var seen [24]domain.Count
	for _, h := range in {
		if h.Hour >= 0 && h.Hour < 24 {
			seen[h.Hour] = h.DistinctUsers
		}
	}
	out := make([]domain.HourCount, 24)
	for h := range out {
		out[h] = domain.HourCount{Hour: domain.Count(h), DistinctUsers: seen[h]}
	}
	return out
}

// EmptyHourlyActivity 没有数据时的默认值
func EmptyHourlyActivity(period string) domain.HourlyActivity {
	return domain.HourlyActivity{Period: period, PerHour: fillHours(nil)}
}

// NormalizeTopDiagnoses 品牌和车型前 5
func NormalizeTopDiagnoses(path string, body json.RawMessage) (domain.TopDiagnoses, error) {
	p, err := payloadObject[domain.TopDiagnoses](path, body)
	if err != nil {
		return domain.TopDiagnoses{}, err
	}
	if p.Top5Makes == nil {
		p.Top5Makes = []domain.MakeCount{}
	}
	if p.Top5Models == nil {
		p.Top5Models = []domain.ModelCount{}
	}
	return p, nil
}

// NormalizeClickRates 配件点击率
func NormalizeClickRates(path string, body json.RawMessage) ([]domain.ClickRatePoint, error) {
	return payloadList[domain.ClickRatePoint](path, body)
}

// NormalizePartsStats 配件统计
func NormalizePartsStats(path string, body json.RawMessage) ([]domain.PartsStat, error) {
	return payloadList[domain.PartsStat](path, body)
}

// NormalizeSteps 每次诊断平均步数
func NormalizeSteps(path string, body json.RawMessage) ([]domain.StepsPoint, error) {
	return payloadList[domain.StepsPoint](path, body)
}

// NormalizeDiagnosisTimes 保留原始文本，并提取分钟数到 minutes
func NormalizeDiagnosisTimes(path string, body json.RawMessage) ([]domain.DiagnosisTimePoint, error) {
	points, err := payloadList[domain.DiagnosisTimePoint](path, body)
	if err != nil {
		return nil, err
	}
	for i := range points {
		points[i].Minutes = domain.ExtractNumber(points[i].AvgDiagnosisTimeMinutes.Text())
	}
	return points, nil
}

// NormalizeDIYTrend DIY 趋势
func NormalizeDIYTrend(path string, body json.RawMessage) ([]domain.DIYPoint, error) {
	return payloadList[domain.DIYPoint](path, body)
}

// NormalizeProblemReasons 高/低优先级问题原因
func NormalizeProblemReasons(path string, body json.RawMessage) (domain.ProblemReasons, error) {
	p, err := payloadObject[domain.ProblemReasons](path, body)
	if err != nil {
		return domain.ProblemReasons{}, err
	}
	if p.HighPriority == nil {
		p.HighPriority = []domain.TitleCount{}
	}
	if p.LowPriority == nil {
		p.LowPriority = []domain.TitleCount{}
	}
	return p, nil
}
