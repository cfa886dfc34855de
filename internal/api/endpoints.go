package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Maryclair03/Latest-LittleWatch/internal/models"
)

// Login POST /auth/login
func (c *Client) Login(ctx context.Context, email, password string) (*models.LoginResult, error) {
	req := c.request(ctx, nil).SetBody(models.LoginRequest{Email: email, Password: password})
	env, err := c.execute(req, http.MethodPost, "/auth/login")
	if err != nil {
		return nil, err
	}

	result, err := decodeData[models.LoginResult](env, false)
	if err != nil {
		return nil, err
	}
	// 部分后端版本把 token 放在顶层
	if result.Token == "" {
		if err := json.Unmarshal(env.raw, &result); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if result.Token == "" || result.ResolvedUserID() == "" {
		return nil, fmt.Errorf("%w: login response missing token or user id", ErrMalformed)
	}
	return &result, nil
}

// Signup POST /user/signup
func (c *Client) Signup(ctx context.Context, in models.SignupRequest) error {
	req := c.request(ctx, nil).SetBody(in)
	_, err := c.execute(req, http.MethodPost, "/user/signup")
	return err
}

// GetProfile GET /user/profile
func (c *Client) GetProfile(ctx context.Context, sess *models.Session) (*models.UserProfile, error) {
	req, err := c.authedRequest(ctx, sess)
	if err != nil {
		return nil, err
	}
	env, err := c.execute(req, http.MethodGet, "/user/profile")
	if err != nil {
		return nil, err
	}
	profile, err := decodeData[models.UserProfile](env, true)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetLatestVitals GET /vitals/latest-by-serial/{serial}
func (c *Client) GetLatestVitals(ctx context.Context, sess *models.Session, serial string) (*models.VitalsPayload, error) {
	if serial == "" {
		return nil, errors.New("device serial is required")
	}
	req, err := c.authedRequest(ctx, sess)
	if err != nil {
		return nil, err
	}
	env, err := c.execute(req, http.MethodGet, "/vitals/latest-by-serial/"+url.PathEscape(serial))
	if err != nil {
		return nil, err
	}
	payload, err := decodeData[models.VitalsPayload](env, true)
	if err != nil {
		return nil, err
	}
	if payload.Vitals == nil {
		return nil, fmt.Errorf("%w: missing vitals", ErrMalformed)
	}
	return &payload, nil
}

// GetHistory GET /vitals/history-by-serial/{serial}?period&page&limit
func (c *Client) GetHistory(ctx context.Context, sess *models.Session, serial string, q models.HistoryQuery) (*models.HistoryPage, error) {
	if serial == "" {
		return nil, errors.New("device serial is required")
	}
	req, err := c.authedRequest(ctx, sess)
	if err != nil {
		return nil, err
	}
	req.SetQueryParams(map[string]string{
		"period": string(q.Period),
		"page":   strconv.Itoa(q.Page),
		"limit":  strconv.Itoa(q.Limit),
	})
	env, err := c.execute(req, http.MethodGet, "/vitals/history-by-serial/"+url.PathEscape(serial))
	if err != nil {
		return nil, err
	}
	page, err := decodeData[models.HistoryPage](env, true)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// LinkDevice POST /devices/link；serial 来自二维码，去掉首尾空白
func (c *Client) LinkDevice(ctx context.Context, sess *models.Session, serial string) (string, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return "", errors.New("device serial is required")
	}
	req, err := c.authedRequest(ctx, sess)
	if err != nil {
		return "", err
	}
	req.SetBody(map[string]string{"device_serial": serial})
	if _, err := c.execute(req, http.MethodPost, "/devices/link"); err != nil {
		return "", err
	}
	return serial, nil
}

// UnlinkDevice POST /devices/unlink
func (c *Client) UnlinkDevice(ctx context.Context, sess *models.Session) error {
	req, err := c.authedRequest(ctx, sess)
	if err != nil {
		return err
	}
	_, err = c.execute(req, http.MethodPost, "/devices/unlink")
	return err
}

// UpdateFCMToken PUT /user/fcm-token
func (c *Client) UpdateFCMToken(ctx context.Context, sess *models.Session, token string) error {
	req, err := c.authedRequest(ctx, sess)
	if err != nil {
		return err
	}
	req.SetBody(map[string]string{"fcmToken": token})
	_, err = c.execute(req, http.MethodPut, "/user/fcm-token")
	return err
}

// UpdateNotificationSettings PUT /user/notification-settings
func (c *Client) UpdateNotificationSettings(ctx context.Context, sess *models.Session, enabled bool) error {
	req, err := c.authedRequest(ctx, sess)
	if err != nil {
		return err
	}
	req.SetBody(map[string]bool{"notificationEnabled": enabled})
	_, err = c.execute(req, http.MethodPut, "/user/notification-settings")
	return err
}

// Logout POST /user/logout
func (c *Client) Logout(ctx context.Context, sess *models.Session) error {
	req, err := c.authedRequest(ctx, sess)
	if err != nil {
		return err
	}
	_, err = c.execute(req, http.MethodPost, "/user/logout")
	return err
}

// ListNotifications GET /notifications
func (c *Client) ListNotifications(ctx context.Context, sess *models.Session) ([]models.Notification, error) {
	req, err := c.authedRequest(ctx, sess)
	if err != nil {
		return nil, err
	}
	env, err := c.execute(req, http.MethodGet, "/notifications")
	if err != nil {
		return nil, err
	}
	return decodeData[[]models.Notification](env, false)
}

// MarkNotificationRead PUT /notifications/{id}/read
func (c *Client) MarkNotificationRead(ctx context.Context, sess *models.Session, id string) error {
	req, err := c.authedRequest(ctx, sess)
	if err != nil {
		return err
	}
	_, err = c.execute(req, http.MethodPut, "/notifications/"+url.PathEscape(id)+"/read")
	return err
}

// MarkAllNotificationsRead PUT /notifications/read-all
func (c *Client) MarkAllNotificationsRead(ctx context.Context, sess *models.Session) error {
	req, err := c.authedRequest(ctx, sess)
	if err != nil {
		return err
	}
	_, err = c.execute(req, http.MethodPut, "/notifications/read-all")
	return err
}

// ClearNotifications DELETE /notifications/clear-all
func (c *Client) ClearNotifications(ctx context.Context, sess *models.Session) error {
	req, err := c.authedRequest(ctx, sess)
	if err != nil {
		return err
	}
	_, err = c.execute(req, http.MethodDelete, "/notifications/clear-all")
	return err
}

// GetSleepData GET /vitals/sleep/data/{serial}?days=N
func (c *Client) GetSleepData(ctx context.Context, sess *models.Session, serial string, days int) ([]models.SleepDay, error) {
	if serial == "" {
		return nil, errors.New("device serial is required")
	}
	req, err := c.authedRequest(ctx, sess)
	if err != nil {
		return nil, err
	}
	req.SetQueryParam("days", strconv.Itoa(days))
	env, err := c.execute(req, http.MethodGet, "/vitals/sleep/data/"+url.PathEscape(serial))
	if err != nil {
		return nil, err
	}
	return decodeData[[]models.SleepDay](env, false)
}

// GetSleepStatistics GET /vitals/sleep/statistics/{serial}?days=N
func (c *Client) GetSleepStatistics(ctx context.Context, sess *models.Session, serial string, days int) (models.SleepStatistics, error) {
	if serial == "" {
		return nil, errors.New("device serial is required")
	}
	req, err := c.authedRequest(ctx, sess)
	if err != nil {
		return nil, err
	}
	req.SetQueryParam("days", strconv.Itoa(days))
	env, err := c.execute(req, http.MethodGet, "/vitals/sleep/statistics/"+url.PathEscape(serial))
	if err != nil {
		return nil, err
	}
	return decodeData[models.SleepStatistics](env, false)
}

// GetCurrentSleep GET /vitals/sleep/current/{serial}；isSleeping 位于响应顶层
func (c *Client) GetCurrentSleep(ctx context.Context, sess *models.Session, serial string) (*models.CurrentSleep, error) {
	if serial == "" {
		return nil, errors.New("device serial is required")
	}
	req, err := c.authedRequest(ctx, sess)
	if err != nil {
		return nil, err
	}
	env, err := c.execute(req, http.MethodGet, "/vitals/sleep/current/"+url.PathEscape(serial))
	if err != nil {
		return nil, err
	}

	current, err := decodeData[models.CurrentSleep](env, false)
	if err != nil {
		return nil, err
	}
	var top struct {
		IsSleeping bool `json:"isSleeping"`
	}
	if err := json.Unmarshal(env.raw, &top); err == nil && top.IsSleeping {
		current.IsSleeping = true
	}
	return &current, nil
}
