package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Maryclair03/Latest-LittleWatch/internal/models"

	"go.uber.org/zap"
)

// Store 会话存储：Get / Set / Clear，底层为持久化 KV
type Store struct {
	kv     KVStore
	prefix string
	logger *zap.Logger
}

// NewStore 创建会话存储
// prefix: key 前缀，如 "littlewatch:session:"
func NewStore(kv KVStore, prefix string, logger *zap.Logger) *Store {
	return &Store{
		kv:     kv,
		prefix: prefix,
		logger: logger,
	}
}

func (s *Store) sessionKey() string  { return s.prefix + "current" }
func (s *Store) fcmTokenKey() string { return s.prefix + "pending_fcm_token" }

// Get 读取当前会话；不存在时返回 (nil, nil)
func (s *Store) Get(ctx context.Context) (*models.Session, error) {
	raw, err := s.kv.Get(ctx, s.sessionKey())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		// 损坏的会话按未登录处理
		s.logger.Warn("Discarding unreadable session", zap.Error(err))
		return nil, nil
	}
	return &sess, nil
}

// Set 保存会话（整体覆盖）
func (s *Store) Set(ctx context.Context, sess models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.kv.Set(ctx, s.sessionKey(), string(data)); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	s.logger.Debug("Session stored",
		zap.String("user_id", sess.UserID),
		zap.String("device_serial", sess.DeviceSerial),
	)
	return nil
}

// Clear 清除会话及其附属数据
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Del(ctx, s.sessionKey(), s.fcmTokenKey()); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	s.logger.Debug("Session cleared")
	return nil
}

// SetDeviceSerial 更新已绑定设备；serial 为空表示解绑
func (s *Store) SetDeviceSerial(ctx context.Context, serial string) (*models.Session, error) {
	sess, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotFound
	}
	sess.DeviceSerial = serial
	if err := s.Set(ctx, *sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// SetPendingFCMToken 未登录时暂存推送 token，下次登录上传
func (s *Store) SetPendingFCMToken(ctx context.Context, token string) error {
	return s.kv.Set(ctx, s.fcmTokenKey(), token)
}

// TakePendingFCMToken 取出并删除暂存的推送 token
func (s *Store) TakePendingFCMToken(ctx context.Context) (string, error) {
	token, err := s.kv.Get(ctx, s.fcmTokenKey())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	if err := s.kv.Del(ctx, s.fcmTokenKey()); err != nil {
		return "", err
	}
	return token, nil
}
