package models

import "encoding/json"

// Session 登录会话（登录成功创建，绑定设备后写入 DeviceSerial，登出整体清除）
type Session struct {
	UserID       string `json:"user_id"`
	AuthToken    string `json:"auth_token"`
	DeviceSerial string `json:"device_serial,omitempty"` // 空表示未绑定设备
}

// HasDevice 是否已绑定设备
func (s *Session) HasDevice() bool {
	return s != nil && s.DeviceSerial != ""
}

// Valid 会话至少需要用户和 token
func (s *Session) Valid() bool {
	return s != nil && s.UserID != "" && s.AuthToken != ""
}

// UserProfile GET /user/profile 返回的数据
type UserProfile struct {
	UserID              FlexString `json:"user_id"`
	Name                string     `json:"name,omitempty"`
	Email               string     `json:"email,omitempty"`
	Phone               string     `json:"phone,omitempty"`
	DeviceSerial        string     `json:"device_serial,omitempty"`
	NotificationEnabled *bool      `json:"notification_enabled,omitempty"`
}

// UnmarshalJSON 兼容 deviceSerial / userId 驼峰写法
func (p *UserProfile) UnmarshalJSON(data []byte) error {
	type alias UserProfile
	var raw struct {
		alias
		DeviceSerialCamel string     `json:"deviceSerial"`
		UserIDCamel       FlexString `json:"userId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = UserProfile(raw.alias)
	if p.DeviceSerial == "" {
		p.DeviceSerial = raw.DeviceSerialCamel
	}
	if p.UserID == "" {
		p.UserID = raw.UserIDCamel
	}
	return nil
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupRequest 注册请求
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Password string `json:"password"`
}

// LoginResult 登录结果
type LoginResult struct {
	Token string `json:"token"`
	User  struct {
		ID           FlexString `json:"id"`
		UserID       FlexString `json:"user_id"`
		Name         string     `json:"name,omitempty"`
		Email        string     `json:"email,omitempty"`
		DeviceSerial string     `json:"device_serial,omitempty"`
	} `json:"user"`
}

// ResolvedUserID 后端不同版本使用 id 或 user_id
func (r *LoginResult) ResolvedUserID() string {
	if r.User.UserID != "" {
		return r.User.UserID.String()
	}
	return r.User.ID.String()
}
