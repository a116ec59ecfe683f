package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCount_Lenient(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Count
	}{
		{"number", `{"total":12}`, 12},
		{"fraction truncated", `{"total":7.9}`, 7},
		{"numeric string", `{"total":" 42 "}`, 42},
		{"non numeric string", `{"total":"abc"}`, 0},
		{"null", `{"total":null}`, 0},
		{"missing", `{}`, 0},
		{"bool", `{"total":true}`, 0},
		{"object", `{"total":{"n":1}}`, 0},
		{"negative", `{"total":-3}`, -3},
		{"too large", `{"total":1e300}`, math.MaxInt64},
		{"too large string", `{"total":"9.3e18"}`, math.MaxInt64},
		{"too small", `{"total":-1e300}`, math.MinInt64},
		{"overflows float", `{"total":1e400}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got MonthTotal
			require.NoError(t, json.Unmarshal([]byte(tt.in), &got))
			assert.Equal(t, tt.want, got.Total)
		})
	}
}

func TestRate_Lenient(t *testing.T) {
	var p ClickRatePoint
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2026-10-01","clickRate":"12.5"}`), &p))
	assert.Equal(t, Rate(12.5), p.ClickRate)
	assert.Equal(t, "2026-10-01", p.Date.Text())

	require.NoError(t, json.Unmarshal([]byte(`{"clickRate":"n/a"}`), &p))
	assert.Equal(t, Rate(0), p.ClickRate)

	require.NoError(t, json.Unmarshal([]byte(`{"clickRate":"NaN"}`), &p))
	assert.Equal(t, Rate(0), p.ClickRate)
}

func TestLabel_DefaultsToEmDash(t *testing.T) {
	var items []PartsStat
	require.NoError(t, json.Unmarshal([]byte(`[{"label":"Brakes","count":3},{"label":null},{"count":"2"},{"label":7}]`), &items))

	out, err := json.Marshal(items)
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"label":"Brakes","count":3},{"label":"—","count":0},{"label":"—","count":2},{"label":"7","count":0}]`,
		string(out))
}

func TestDimension_Passthrough(t *testing.T) {
	var m MonthTotal
	require.NoError(t, json.Unmarshal([]byte(`{"month":"2026-09","total":1}`), &m))
	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"month":"2026-09","total":1}`, string(out))

	var d DayActivity
	require.NoError(t, json.Unmarshal([]byte(`{"dayOfWeek":3}`), &d))
	assert.Equal(t, "3", d.DayOfWeek.Text())

	out, err = json.Marshal(MonthTotal{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"month":null,"total":0}`, string(out))
}

func TestExtractNumber(t *testing.T) {
	assert.Equal(t, 3.42, ExtractNumber("3.42 Minutes"))
	assert.Equal(t, 0.0, ExtractNumber("Minutes"))
	assert.Equal(t, 0.0, ExtractNumber(""))
	assert.Equal(t, 12.0, ExtractNumber("about 12 min"))
	assert.Equal(t, -1.5, ExtractNumber("-1.5"))
	assert.Equal(t, 0.5, ExtractNumber(".5m"))
}

func TestNormalizedRecords_Idempotent(t *testing.T) {
	raw := `[{"dayOfWeek":"Mon","distinctUsers":"4","totalConversations":null}]`

	var first []DayActivity
	require.NoError(t, json.Unmarshal([]byte(raw), &first))
	once, err := json.Marshal(first)
	require.NoError(t, err)

	var second []DayActivity
	require.NoError(t, json.Unmarshal(once, &second))
	twice, err := json.Marshal(second)
	require.NoError(t, err)

	assert.JSONEq(t, string(once), string(twice))
	assert.JSONEq(t, `[{"dayOfWeek":"Mon","distinctUsers":4,"totalConversations":0}]`, string(once))
}
