package models

import "encoding/json"

// HistoryPeriod 历史查询时间窗
type HistoryPeriod string

const (
	Period24H HistoryPeriod = "24H"
	Period1W  HistoryPeriod = "1W"
	Period1M  HistoryPeriod = "1M"
)

// Valid 是否为后端支持的时间窗
func (p HistoryPeriod) Valid() bool {
	switch p {
	case Period24H, Period1W, Period1M:
		return true
	}
	return false
}

// HistoryReading 历史读数
type HistoryReading struct {
	ID               FlexString `json:"id"`
	HeartRate        *float64   `json:"heart_rate"`
	Temperature      *float64   `json:"temperature"`
	OxygenSaturation *float64   `json:"oxygen_saturation"`
	MovementStatus   *string    `json:"movement_status"`
	IsAlert          bool       `json:"is_alert"`
	Timestamp        Timestamp  `json:"timestamp"`
}

// HistorySummary 历史汇总
type HistorySummary struct {
	AvgHeartRate        *float64 `json:"avg_heart_rate"`
	AvgTemperature      *float64 `json:"avg_temperature"`
	AvgOxygenSaturation *float64 `json:"avg_oxygen_saturation"`
	TotalReadings       int      `json:"total_readings"`
}

// UnmarshalJSON 兼容 avgHeartRate / avgTemperature / avgOxygen / totalReadings
func (s *HistorySummary) UnmarshalJSON(data []byte) error {
	type alias HistorySummary
	var raw struct {
		alias
		AvgHeartRateCamel   *float64 `json:"avgHeartRate"`
		AvgTemperatureCamel *float64 `json:"avgTemperature"`
		AvgOxygenCamel      *float64 `json:"avgOxygen"`
		TotalReadingsCamel  int      `json:"totalReadings"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = HistorySummary(raw.alias)
	if s.AvgHeartRate == nil {
		s.AvgHeartRate = raw.AvgHeartRateCamel
	}
	if s.AvgTemperature == nil {
		s.AvgTemperature = raw.AvgTemperatureCamel
	}
	if s.AvgOxygenSaturation == nil {
		s.AvgOxygenSaturation = raw.AvgOxygenCamel
	}
	if s.TotalReadings == 0 {
		s.TotalReadings = raw.TotalReadingsCamel
	}
	return nil
}

// HistoryPage history-by-serial 单页数据
type HistoryPage struct {
	Readings []HistoryReading `json:"readings"`
	Summary  *HistorySummary  `json:"summary"`
}

// HistoryQuery 分页查询参数
type HistoryQuery struct {
	Period HistoryPeriod
	Page   int
	Limit  int
}
