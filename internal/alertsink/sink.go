package alertsink

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Maryclair03/Latest-LittleWatch/internal/models"

	"go.uber.org/zap"
)

// Publisher 消息发布接口（mqtt.Client 实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Message 转发到 MQTT 的告警
type Message struct {
	UserID       string                   `json:"user_id"`
	DeviceSerial string                   `json:"device_serial"`
	Notification models.AlertNotification `json:"notification"`
	ForwardedAt  time.Time                `json:"forwarded_at"`
}

// Sink 把 new_notification 告警转发到 MQTT 主题 "<prefix>/<user_id>/alerts"
type Sink struct {
	publisher Publisher
	prefix    string
	qos       byte
	logger    *zap.Logger
	now       func() time.Time
}

// New 创建告警转发
func New(publisher Publisher, prefix string, qos byte, logger *zap.Logger) *Sink {
	if prefix == "" {
		prefix = "littlewatch"
	}
	return &Sink{
		publisher: publisher,
		prefix:    prefix,
		qos:       qos,
		logger:    logger,
		now:       time.Now,
	}
}

// Topic 用户告警主题
func (s *Sink) Topic(userID string) string {
	return fmt.Sprintf("%s/%s/alerts", s.prefix, userID)
}

// Forward 发布一条告警
func (s *Sink) Forward(userID, deviceSerial string, n models.AlertNotification) error {
	payload, err := json.Marshal(Message{
		UserID:       userID,
		DeviceSerial: deviceSerial,
		Notification: n,
		ForwardedAt:  s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	topic := s.Topic(userID)
	if err := s.publisher.Publish(topic, s.qos, false, payload); err != nil {
		return err
	}

	s.logger.Debug("Forwarded alert notification",
		zap.String("topic", topic),
		zap.String("notification_id", n.ID.String()),
	)
	return nil
}
