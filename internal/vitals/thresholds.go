package vitals

import "strconv"

// Status 体征分级
type Status string

const (
	StatusNormal   Status = "normal"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// 状态文案
const (
	LabelNoReading   = "No Reading"
	LabelNormal      = "Normal Range"
	LabelOutOfIdeal  = "Outside Ideal Range"
	LabelSlightlyLow = "Slightly Low"
	LabelCritical    = "Critical"
)

// Classification 单项体征的分级结果
type Classification struct {
	Status Status
	Label  string
}

var noReading = Classification{Status: StatusNormal, Label: LabelNoReading}

// hasReading nil 与 0 都视为无读数
func hasReading(v *float64) bool {
	return v != nil && *v != 0
}

// ClassifyHeartRate 心率分级（BPM）
//   - critical: <80 或 >170
//   - warning:  80-89 或 161-170
//   - normal:   90-160
func ClassifyHeartRate(v *float64) Classification {
	if !hasReading(v) {
		return noReading
	}
	hr := *v
	switch {
	case hr < 80 || hr > 170:
		return Classification{Status: StatusCritical, Label: LabelCritical}
	case hr < 90 || hr > 160:
		return Classification{Status: StatusWarning, Label: LabelOutOfIdeal}
	default:
		return Classification{Status: StatusNormal, Label: LabelNormal}
	}
}

// ClassifyTemperature 体温分级（°C）
//   - critical: <35.5 或 >=38.0
//   - warning:  35.5-35.9 或 37.6-37.9
//   - normal:   36.0-37.5
func ClassifyTemperature(v *float64) Classification {
	if !hasReading(v) {
		return noReading
	}
	t := *v
	switch {
	case t < 35.5 || t >= 38.0:
		return Classification{Status: StatusCritical, Label: LabelCritical}
	case t < 36.0 || t > 37.5:
		return Classification{Status: StatusWarning, Label: LabelOutOfIdeal}
	default:
		return Classification{Status: StatusNormal, Label: LabelNormal}
	}
}

// ClassifyOxygen 血氧分级（%）
//   - critical: <90
//   - warning:  90-94
//   - normal:   95-100
func ClassifyOxygen(v *float64) Classification {
	if !hasReading(v) {
		return noReading
	}
	o := *v
	switch {
	case o < 90:
		return Classification{Status: StatusCritical, Label: LabelCritical}
	case o < 95:
		return Classification{Status: StatusWarning, Label: LabelSlightlyLow}
	default:
		return Classification{Status: StatusNormal, Label: LabelNormal}
	}
}

// formatValue 渲染数值；无读数显示 "--"，decimals < 0 表示按原值最短输出
func formatValue(v *float64, decimals int) string {
	if !hasReading(v) {
		return Placeholder
	}
	return strconv.FormatFloat(*v, 'f', decimals, 64)
}

// Placeholder 无读数占位
const Placeholder = "--"
