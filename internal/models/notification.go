package models

// Notification 通知列表项
type Notification struct {
	ID        FlexString `json:"id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      string     `json:"type,omitempty"`
	Icon      string     `json:"icon,omitempty"`
	Time      string     `json:"time,omitempty"` // 后端已格式化的相对时间
	Read      bool       `json:"read"`
	CreatedAt Timestamp  `json:"created_at"`
}
