package vitals

import (
	"strconv"
	"sync"
	"time"

	"github.com/Maryclair03/Latest-LittleWatch/internal/models"
)

// 快照来源
const (
	SourceChannel = "channel"
	SourcePoll    = "poll"
)

// 实时指示文案
const (
	IndicatorLive       = "Live"
	IndicatorConnecting = "Connecting..."
)

// Projection 客户端持有的最新体征视图
// 快照整体替换，后写者胜，不区分来源；分级在每次 Render 时重新计算
type Projection struct {
	mu       sync.RWMutex
	snapshot *models.VitalsSnapshot
	alert    bool
	state    models.ChannelState
	now      func() time.Time
	onChange func(View)
}

// NewProjection 创建空视图
func NewProjection() *Projection {
	return &Projection{
		state: models.ChannelDisconnected,
		now:   time.Now,
	}
}

// SetOnChange 注册变更回调，在调用 Apply/Acknowledge 等方法的 goroutine 上执行
func (p *Projection) SetOnChange(fn func(View)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// ApplySnapshot 用载荷整体替换当前快照
// 缺失或 null 字段记为无读数；is_alert 为 true 时置位告警标志，否则不改变
func (p *Projection) ApplySnapshot(payload *models.VitalsPayload, source string) models.VitalsSnapshot {
	p.mu.Lock()
	snap := models.SnapshotFromPayload(payload, source, p.now())
	p.snapshot = &snap
	if snap.IsAlert {
		p.alert = true
	}
	p.mu.Unlock()

	p.notify()
	return snap
}

// RaiseAlert 收到 new_notification 时置位告警标志
func (p *Projection) RaiseAlert() {
	p.mu.Lock()
	changed := !p.alert
	p.alert = true
	p.mu.Unlock()

	if changed {
		p.notify()
	}
}

// AcknowledgeAlerts 用户查看通知后清除告警标志
func (p *Projection) AcknowledgeAlerts() {
	p.mu.Lock()
	changed := p.alert
	p.alert = false
	p.mu.Unlock()

	if changed {
		p.notify()
	}
}

// SetChannelState 记录实时通道状态，用于 Live 指示
func (p *Projection) SetChannelState(s models.ChannelState) {
	p.mu.Lock()
	changed := p.state != s
	p.state = s
	p.mu.Unlock()

	if changed {
		p.notify()
	}
}

// Snapshot 当前快照；尚无数据时 ok 为 false
func (p *Projection) Snapshot() (models.VitalsSnapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.snapshot == nil {
		return models.VitalsSnapshot{}, false
	}
	return *p.snapshot, true
}

// HasAlert 告警标志
func (p *Projection) HasAlert() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.alert
}

// Reset 清空快照与告警（登出时）
func (p *Projection) Reset() {
	p.mu.Lock()
	p.snapshot = nil
	p.alert = false
	p.state = models.ChannelDisconnected
	p.mu.Unlock()
}

func (p *Projection) notify() {
	p.mu.RLock()
	fn := p.onChange
	p.mu.RUnlock()
	if fn != nil {
		fn(p.Render())
	}
}

// VitalView 单项体征的展示数据
type VitalView struct {
	Value  string `json:"value"`
	Unit   string `json:"unit"`
	Status Status `json:"status"`
	Label  string `json:"label"`
}

// View 首页展示数据
type View struct {
	HeartRate       VitalView `json:"heart_rate"`
	Temperature     VitalView `json:"temperature"`
	Oxygen          VitalView `json:"oxygen_saturation"`
	Movement        string    `json:"movement"`
	Battery         string    `json:"battery"`
	DeviceConnected bool      `json:"device_connected"`
	Indicator       string    `json:"indicator"`
	HasAlert        bool      `json:"has_alert"`
	Source          string    `json:"source,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Render 由当前快照生成展示数据
func (p *Projection) Render() View {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var snap models.VitalsSnapshot
	if p.snapshot != nil {
		snap = *p.snapshot
	}

	v := View{
		HeartRate:       render(snap.HeartRate, -1, "BPM", ClassifyHeartRate),
		Temperature:     render(snap.Temperature, 1, "°C", ClassifyTemperature),
		Oxygen:          render(snap.OxygenSaturation, -1, "%", ClassifyOxygen),
		Movement:        Placeholder,
		Battery:         Placeholder,
		DeviceConnected: snap.DeviceConnected,
		Indicator:       IndicatorConnecting,
		HasAlert:        p.alert,
		Source:          snap.Source,
		UpdatedAt:       snap.ReceivedAt,
	}
	if snap.MovementStatus != nil && *snap.MovementStatus != "" {
		v.Movement = *snap.MovementStatus
	}
	if snap.BatteryLevel != nil {
		v.Battery = strconv.FormatFloat(*snap.BatteryLevel, 'f', 0, 64) + "%"
	}
	if p.state == models.ChannelConnected {
		v.Indicator = IndicatorLive
	}
	return v
}

func render(v *float64, decimals int, unit string, classify func(*float64) Classification) VitalView {
	c := classify(v)
	return VitalView{
		Value:  formatValue(v, decimals),
		Unit:   unit,
		Status: c.Status,
		Label:  c.Label,
	}
}
