package domain

import (
	"fmt"
	"strings"
)

const (
	// DefaultActivityLimit 最近活动默认条数
	DefaultActivityLimit = 5
	// MaxActivityLimit 最近活动最大条数
	MaxActivityLimit = 50
)

var (
	periods      = []string{"all", "am", "pm"}
	dateRanges   = []string{"7d", "1m", "1y"}
	granularity  = []string{"hourly", "daily", "weekly"}
	trendPeriods = []string{"daily", "hourly"}
)

// DashboardQuery 仪表盘查询参数
type DashboardQuery struct {
	// LicenseKey 为空表示全部客户
	LicenseKey string `form:"licenseKey" json:"licenseKey,omitempty"`
	// Period 活跃天/小时的时段：all|am|pm
	Period string `form:"period" json:"period"`
	// DateRange 诊断/问题统计的时间范围：7d|1m|1y，可为空
	DateRange string `form:"dateRange" json:"dateRange,omitempty"`
	// Granularity 配件点击率粒度：hourly|daily|weekly
	Granularity string `form:"granularity" json:"granularity"`
	// DiagPeriod 诊断步数/时长的周期：daily|hourly
	DiagPeriod string `form:"diagPeriod" json:"diagPeriod"`
	// DIYPeriod DIY 趋势的周期：daily|hourly
	DIYPeriod string `form:"diyPeriod" json:"diyPeriod"`
	// Limit 最近活动条数
	Limit int `form:"limit" json:"limit"`
}

// Normalize 填充默认值并校验，非法时返回包装 ErrInvalidQuery 的错误
func (q *DashboardQuery) Normalize() error {
	q.LicenseKey = strings.TrimSpace(q.LicenseKey)

	var err error
	if q.Period, err = oneOf("period", q.Period, "all", periods); err != nil {
		return err
	}
	if q.DateRange, err = oneOf("dateRange", q.DateRange, "", dateRanges); err != nil {
		return err
	}
	if q.Granularity, err = oneOf("granularity", q.Granularity, "daily", granularity); err != nil {
		return err
	}
	if q.DiagPeriod, err = oneOf("diagPeriod", q.DiagPeriod, "daily", trendPeriods); err != nil {
		return err
	}
	if q.DIYPeriod, err = oneOf("diyPeriod", q.DIYPeriod, "daily", trendPeriods); err != nil {
		return err
	}

	switch {
	case q.Limit == 0:
		q.Limit = DefaultActivityLimit
	case q.Limit < 0 || q.Limit > MaxActivityLimit:
		return fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidQuery, MaxActivityLimit)
	}
	return nil
}

// oneOf 空值取默认值，否则必须在 allowed 中
func oneOf(name, value, def string, allowed []string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return def, nil
	}
	for _, a := range allowed {
		if value == a {
			return value, nil
		}
	}
	return "", fmt.Errorf("%w: %s must be one of %s", ErrInvalidQuery, name, strings.Join(allowed, "|"))
}
