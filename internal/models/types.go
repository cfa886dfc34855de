package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// FlexString 兼容后端既可能返回数字也可能返回字符串的 ID 字段
type FlexString string

// UnmarshalJSON 接受 "abc"、123、null
func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("unexpected id format: %s", string(data))
	}
	*s = FlexString(n.String())
	return nil
}

func (s FlexString) String() string { return string(s) }

// Timestamp 时间点，兼容 RFC3339 字符串与毫秒时间戳
type Timestamp struct {
	time.Time
}

// UnmarshalJSON 解析 "2025-01-02T03:04:05Z" 或 1735787045000
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" || string(data) == `""` {
		t.Time = time.Time{}
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
			if parsed, err := time.Parse(layout, v); err == nil {
				t.Time = parsed
				return nil
			}
		}
		return fmt.Errorf("unsupported timestamp format: %q", v)
	}
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("unsupported timestamp format: %s", string(data))
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

// MarshalJSON 统一输出 RFC3339
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

// Float64Ptr 辅助函数
func Float64Ptr(v float64) *float64 { return &v }

// StringPtr 辅助函数
func StringPtr(v string) *string { return &v }

// BoolPtr 辅助函数
func BoolPtr(v bool) *bool { return &v }
