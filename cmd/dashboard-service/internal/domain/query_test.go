package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardQuery_Defaults(t *testing.T) {
	q := DashboardQuery{LicenseKey: "  LK-1 "}
	require.NoError(t, q.Normalize())

	assert.Equal(t, DashboardQuery{
		LicenseKey:  "LK-1",
		Period:      "all",
		Granularity: "daily",
		DiagPeriod:  "daily",
		DIYPeriod:   "daily",
		Limit:       DefaultActivityLimit,
	}, q)
}

func TestDashboardQuery_Invalid(t *testing.T) {
	tests := []struct {
		name string
		q    DashboardQuery
	}{
		{"period", DashboardQuery{Period: "noon"}},
		{"dateRange", DashboardQuery{DateRange: "2w"}},
		{"granularity", DashboardQuery{Granularity: "monthly"}},
		{"diagPeriod", DashboardQuery{DiagPeriod: "weekly"}},
		{"diyPeriod", DashboardQuery{DIYPeriod: "yearly"}},
		{"limit too large", DashboardQuery{Limit: MaxActivityLimit + 1}},
		{"negative limit", DashboardQuery{Limit: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Normalize()
			assert.ErrorIs(t, err, ErrInvalidQuery)
		})
	}
}

func TestDashboardQuery_KeepsValidValues(t *testing.T) {
	q := DashboardQuery{Period: "pm", DateRange: "1y", Granularity: "weekly", DiagPeriod: "hourly", DIYPeriod: "hourly", Limit: 50}
	require.NoError(t, q.Normalize())
	assert.Equal(t, "pm", q.Period)
	assert.Equal(t, "1y", q.DateRange)
	assert.Equal(t, "weekly", q.Granularity)
	assert.Equal(t, 50, q.Limit)
}
