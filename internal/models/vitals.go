package models

import (
	"encoding/json"
	"time"
)

// VitalsReading 单次生命体征读数（vitals_update / latest-by-serial 的 vitals 部分）
// 指针字段：nil 表示缺失或 null，即"无读数"；0 按原值保留
type VitalsReading struct {
	HeartRate        *float64  `json:"heart_rate"`        // 心率 BPM
	Temperature      *float64  `json:"temperature"`       // 体温 °C
	OxygenSaturation *float64  `json:"oxygen_saturation"` // 血氧 %
	MovementStatus   *string   `json:"movement_status"`   // 体动状态
	Timestamp        Timestamp `json:"timestamp"`
	IsAlert          *bool     `json:"is_alert"`
}

// DeviceStatus 手环状态
type DeviceStatus struct {
	DeviceSerial string   `json:"device_serial,omitempty"`
	BatteryLevel *float64 `json:"battery_level"` // 0-100
	IsConnected  *bool    `json:"is_connected"`
}

// VitalsPayload 快照载荷 {vitals, device}
type VitalsPayload struct {
	Vitals *VitalsReading `json:"vitals"`
	Device *DeviceStatus  `json:"device"`
}

// VitalsEnvelope vitals_update 事件体 {success, data}
type VitalsEnvelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    *VitalsPayload `json:"data"`
}

// VitalsSnapshot 客户端持有的最新快照（整体替换，后写者胜）
type VitalsSnapshot struct {
	HeartRate        *float64  `json:"heart_rate"`
	Temperature      *float64  `json:"temperature"`
	OxygenSaturation *float64  `json:"oxygen_saturation"`
	MovementStatus   *string   `json:"movement_status"`
	BatteryLevel     *float64  `json:"battery_level"`
	DeviceConnected  bool      `json:"device_connected"`
	Timestamp        time.Time `json:"timestamp"`
	IsAlert          bool      `json:"is_alert"`
	Source           string    `json:"source"` // "channel" | "poll"
	ReceivedAt       time.Time `json:"received_at"`
}

// SnapshotFromPayload 由载荷构造快照；缺失字段保持 nil
func SnapshotFromPayload(p *VitalsPayload, source string, receivedAt time.Time) VitalsSnapshot {
	snap := VitalsSnapshot{Source: source, ReceivedAt: receivedAt}
	if p == nil {
		return snap
	}
	if v := p.Vitals; v != nil {
		snap.HeartRate = v.HeartRate
		snap.Temperature = v.Temperature
		snap.OxygenSaturation = v.OxygenSaturation
		snap.MovementStatus = v.MovementStatus
		snap.Timestamp = v.Timestamp.Time
		snap.IsAlert = v.IsAlert != nil && *v.IsAlert
	}
	if d := p.Device; d != nil {
		snap.BatteryLevel = d.BatteryLevel
		snap.DeviceConnected = d.IsConnected != nil && *d.IsConnected
	}
	return snap
}

// AlertNotification new_notification 事件携带的告警描述
type AlertNotification struct {
	ID        FlexString      `json:"id"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Type      string          `json:"type,omitempty"`
	Severity  string          `json:"severity,omitempty"`
	Timestamp Timestamp       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ChannelState 实时通道状态
type ChannelState string

const (
	ChannelDisconnected ChannelState = "disconnected"
	ChannelConnecting   ChannelState = "connecting"
	ChannelConnected    ChannelState = "connected"
	ChannelError        ChannelState = "error"
)
