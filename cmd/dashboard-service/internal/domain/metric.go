package domain

import "encoding/json"

// Metric 指标名称（也是仪表盘响应中的 key）
type Metric string

const (
	MetricLicenseKeyStats       Metric = "licenseKeyStats"
	MetricUsersLast5            Metric = "usersLast5"
	MetricVerificationsLast5    Metric = "verificationsLast5"
	MetricSupportLast5          Metric = "supportLast5"
	MetricChatThreadsLast5      Metric = "chatThreadsLast5"
	MetricRecentActivities      Metric = "recentActivities"
	MetricMostActiveDays        Metric = "mostActiveDays"
	MetricMostActiveHours       Metric = "mostActiveHours"
	MetricTopCarDiagnoses       Metric = "topCarDiagnoses"
	MetricRelatedPartsClickRate Metric = "relatedPartsClickRate"
	MetricPartsStats            Metric = "partsStats"
	MetricAvgStepsPerDiagnosis  Metric = "avgStepsPerDiagnosis"
	MetricAvgDiagnosisTime      Metric = "avgDiagnosisTime"
	MetricDIYTrend              Metric = "diyTrend"
	MetricTopProblemReasons     Metric = "topProblemReasons"
)

// Envelope 上游统一响应外壳 {isSuccess,statusCode,message,payload|activities}；
// 只解析需要的字段，其余字段类型不做要求
type Envelope struct {
	Payload    json.RawMessage `json:"payload"`
	Activities json.RawMessage `json:"activities"`
}

// LicenseKeyStats 授权码统计；上游字段 newUsers/activeUser/inactiveUser 在外壳顶层
type LicenseKeyStats struct {
	New      Count `json:"new"`
	Active   Count `json:"active"`
	Inactive Count `json:"inactive"`
	Total    Count `json:"total"`
}

// LicenseKeyPayload 上游 license-key-data 响应
type LicenseKeyPayload struct {
	NewUsers     Count `json:"newUsers"`
	ActiveUser   Count `json:"activeUser"`
	InactiveUser Count `json:"inactiveUser"`
}

// MonthTotal 近 5 个月的月度合计
type MonthTotal struct {
	Month Dimension `json:"month"`
	Total Count     `json:"total"`
}

// Activity 最近活动，原样透传
type Activity = json.RawMessage

// DayActivity 一周内各天活跃度
type DayActivity struct {
	DayOfWeek          Dimension `json:"dayOfWeek"`
	DistinctUsers      Count     `json:"distinctUsers"`
	TotalConversations Count     `json:"totalConversations"`
}

// HourCount 某小时的去重用户数
type HourCount struct {
	Hour          Count `json:"hour"`
	DistinctUsers Count `json:"distinctUsers"`
}

// HourlyActivity 一天 24 小时的活跃度，PerHour 恒为 0..23 共 24 项
type HourlyActivity struct {
	Period             string      `json:"period"`
	TotalDistinctUsers Count       `json:"totalDistinctUsers"`
	PerHour            []HourCount `json:"perHour"`
}

// HourlyActivityPayload 上游 get-most-active-hours 负载
type HourlyActivityPayload struct {
	Period             Dimension   `json:"period"`
	TotalDistinctUsers Count       `json:"totalDistinctUsers"`
	PerHour            []HourCount `json:"perHour"`
}

// MakeCount 车辆品牌计数
type MakeCount struct {
	Make  Label `json:"make"`
	Count Count `json:"count"`
}

// ModelCount 车型计数
type ModelCount struct {
	Model Label `json:"model"`
	Count Count `json:"count"`
}

// TopDiagnoses 诊断最多的品牌和车型
type TopDiagnoses struct {
	Top5Makes  []MakeCount  `json:"top5Makes"`
	Top5Models []ModelCount `json:"top5Models"`
}

// Bucket 时间桶标识（按日为 date，按小时为 hour，聚合键为 _id）
type Bucket struct {
	Date Dimension `json:"date"`
	Hour Dimension `json:"hour"`
	ID   Dimension `json:"_id"`
}

// ClickRatePoint 相关配件点击率
type ClickRatePoint struct {
	Bucket
	ClickRate Rate `json:"clickRate"`
}

// PartsStat 配件统计
type PartsStat struct {
	Label Label `json:"label"`
	Count Count `json:"count"`
}

// StepsPoint 每次诊断平均步数
type StepsPoint struct {
	Bucket
	AvgStepsPerDiagnosis Rate `json:"avgStepsPerDiagnosis"`
}

// DiagnosisTimePoint 平均诊断时长；AvgDiagnosisTimeMinutes 为上游原文（如 "3.42 Minutes"），
// Minutes 为从中提取的数值
type DiagnosisTimePoint struct {
	Bucket
	AvgDiagnosisTimeMinutes Dimension `json:"avgDiagnosisTimeMinutes"`
	Minutes                 float64   `json:"minutes"`
}

// DIYPoint DIY 趋势
type DIYPoint struct {
	Bucket
	TotalUsers   Count `json:"totalUsers"`
	EngagedUsers Count `json:"engagedUsers"`
	ClickRate    Rate  `json:"clickRate"`
}

// TitleCount 问题原因计数
type TitleCount struct {
	Title Label `json:"title"`
	Count Count `json:"count"`
}

// ProblemReasons 高/低优先级问题原因
type ProblemReasons struct {
	HighPriority []TitleCount `json:"highPriority"`
	LowPriority  []TitleCount `json:"lowPriority"`
}
