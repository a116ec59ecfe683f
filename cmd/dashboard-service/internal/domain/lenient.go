package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// EmDash 缺失标签的占位符
const EmDash = "—"

// Count 宽松计数：数字或数字字符串取整数部分，超出 int64 范围时取边界值，
// 其他（null、缺失、非数字）为 0。解码永不失败。
type Count int64

// UnmarshalJSON 实现宽松解码
func (c *Count) UnmarshalJSON(data []byte) error {
	f, ok := lenientFloat(data)
	if !ok {
		*c = 0
		return nil
	}
	switch f = math.Trunc(f); {
	case f >= math.MaxInt64:
		*c = math.MaxInt64
	case f <= math.MinInt64:
		*c = math.MinInt64
	default:
		*c = Count(f)
	}
	return nil
}

// Rate 宽松比率：数字或数字字符串，其他为 0.0
type Rate float64

// UnmarshalJSON 实现宽松解码
func (r *Rate) UnmarshalJSON(data []byte) error {
	f, ok := lenientFloat(data)
	if !ok {
		*r = 0
		return nil
	}
	*r = Rate(f)
	return nil
}

// Label 字符串标签；空、null 或缺失时输出 "—"
type Label string

// UnmarshalJSON 字符串原样保留，数字取其文本，其他视为空
func (l *Label) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = Label(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*l = Label(n.String())
		return nil
	}
	*l = ""
	return nil
}

// MarshalJSON 空标签输出占位符
func (l Label) MarshalJSON() ([]byte, error) {
	if l == "" {
		return json.Marshal(EmDash)
	}
	return json.Marshal(string(l))
}

// Dimension 原样透传的维度字段（月份、日期、小时、_id 等），缺失时输出 null
type Dimension []byte

// UnmarshalJSON 保存原始 JSON
func (d *Dimension) UnmarshalJSON(data []byte) error {
	*d = append((*d)[:0], bytes.TrimSpace(data)...)
	return nil
}

// MarshalJSON 输出原始 JSON
func (d Dimension) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return d, nil
}

// Text 字符串值去掉引号，数字取其文本，null 或缺失为空
func (d Dimension) Text() string {
	if len(d) == 0 || string(d) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(d, &s); err == nil {
		return s
	}
	return string(d)
}

var leadingNumber = regexp.MustCompile(`[-+]?\d*\.?\d+`)

// ExtractNumber 提取文本中的第一个数字，如 "3.42 Minutes" 得 3.42；没有数字时为 0.0
func ExtractNumber(s string) float64 {
	m := leadingNumber.FindString(s)
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func lenientFloat(data []byte) (float64, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return 0, false
	}

	var raw string
	switch data[0] {
	case '"':
		if err := json.Unmarshal(data, &raw); err != nil {
			return 0, false
		}
		raw = strings.TrimSpace(raw)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		raw = string(data)
	default:
		return 0, false
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
