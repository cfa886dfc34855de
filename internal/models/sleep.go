package models

// SleepDay 每日睡眠时长
type SleepDay struct {
	Date  string  `json:"date"`
	Hours float64 `json:"hours"`
}

// SleepStatistics 睡眠统计（字段随后端版本变化，保留原始键值）
type SleepStatistics map[string]any

// CurrentSleep 当前睡眠状态
type CurrentSleep struct {
	IsSleeping             bool      `json:"isSleeping"`
	StartTime              Timestamp `json:"startTime"`
	CurrentDurationMinutes float64   `json:"currentDurationMinutes"`
}
