package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Maryclair03/Latest-LittleWatch/internal/alertsink"
	"github.com/Maryclair03/Latest-LittleWatch/internal/api"
	"github.com/Maryclair03/Latest-LittleWatch/internal/channel"
	"github.com/Maryclair03/Latest-LittleWatch/internal/config"
	"github.com/Maryclair03/Latest-LittleWatch/internal/models"
	"github.com/Maryclair03/Latest-LittleWatch/internal/poller"
	"github.com/Maryclair03/Latest-LittleWatch/internal/relay"
	"github.com/Maryclair03/Latest-LittleWatch/internal/runloop"
	"github.com/Maryclair03/Latest-LittleWatch/internal/session"
	"github.com/Maryclair03/Latest-LittleWatch/internal/vitals"

	"go.uber.org/zap"
)

var (
	// ErrNotLoggedIn 没有本地会话
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrNoDevice 账号未绑定手环
	ErrNoDevice = errors.New("no device linked")
	// ErrAlreadyStarted Start 重复调用
	ErrAlreadyStarted = errors.New("monitor already started")
	// ErrNotStarted 监控未启动
	ErrNotStarted = errors.New("monitor not started")
)

const logoutTimeout = 5 * time.Second

// VitalsAPI 监控所需的后端接口（api.Client 实现）
type VitalsAPI interface {
	GetProfile(ctx context.Context, sess *models.Session) (*models.UserProfile, error)
	GetLatestVitals(ctx context.Context, sess *models.Session, serial string) (*models.VitalsPayload, error)
	SetUnauthorizedHandler(h api.UnauthorizedHandler)
}

// RealtimeChannel 实时通道（channel.Channel 实现）
type RealtimeChannel interface {
	Connect(userID, deviceSerial string) error
	Disconnect()
	OnVitalsUpdate(fn func(models.VitalsEnvelope)) *channel.Subscription
	OnNotification(fn func(models.AlertNotification)) *channel.Subscription
	OnStateChange(fn func(models.ChannelState)) *channel.Subscription
}

// ChannelFactory 用监控的执行上下文创建实时通道
type ChannelFactory func(executor runloop.Executor) (RealtimeChannel, error)

// Deps 监控依赖；Relay 与 AlertSink 可为 nil
type Deps struct {
	Store      *session.Store
	API        VitalsAPI
	NewChannel ChannelFactory
	Relay      *relay.Relay
	AlertSink  *alertsink.Sink
}

// MonitorService 首页实时监控：会话 -> 首次加载 -> 实时通道 + 兜底轮询
type MonitorService struct {
	config     *config.Config
	logger     *zap.Logger
	store      *session.Store
	api        VitalsAPI
	newChannel ChannelFactory
	relay      *relay.Relay
	sink       *alertsink.Sink
	projection *vitals.Projection

	mu       sync.Mutex
	started  bool
	sess     *models.Session
	loop     *runloop.Loop
	channel  RealtimeChannel
	subs     []*channel.Subscription
	poller   *poller.Poller
	onLogout func()

	loggingOut atomic.Bool
	logoutWG   sync.WaitGroup
	alertWG    sync.WaitGroup
}

// NewMonitorService 创建监控服务，并接管 API 客户端的未授权回调
func NewMonitorService(cfg *config.Config, deps Deps, logger *zap.Logger) *MonitorService {
	s := &MonitorService{
		config:     cfg,
		logger:     logger,
		store:      deps.Store,
		api:        deps.API,
		newChannel: deps.NewChannel,
		relay:      deps.Relay,
		sink:       deps.AlertSink,
		projection: vitals.NewProjection(),
	}
	deps.API.SetUnauthorizedHandler(s.handleUnauthorized)
	return s
}

// SetOnLogout 注册会话失效后的回调（如退出或跳转登录），每次失效只调用一次
func (s *MonitorService) SetOnLogout(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLogout = fn
}

// Projection 体征视图
func (s *MonitorService) Projection() *vitals.Projection {
	return s.projection
}

// Session 当前会话（未启动时为 nil）
func (s *MonitorService) Session() *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil
	}
	sess := *s.sess
	return &sess
}

// Start 启动监控
//  1. 读取本地会话，没有则 ErrNotLoggedIn
//  2. 获取用户资料中的设备序列号，没有则 ErrNoDevice
//  3. 首次拉取最新体征，失败直接返回
//  4. 连接实时通道并启动兜底轮询
func (s *MonitorService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	// 重新登录后的新会话，任何一步的未授权都要能再次登出
	s.loggingOut.Store(false)

	sess, err := s.store.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if !sess.Valid() {
		return ErrNotLoggedIn
	}

	serial, err := s.resolveDevice(ctx, sess)
	if err != nil {
		return err
	}
	sess.DeviceSerial = serial

	s.projection.Reset()

	loop := runloop.New(0, s.logger)
	go loop.Run(context.Background())

	userID := sess.UserID
	p := poller.New(
		func(ctx context.Context) (*models.VitalsPayload, error) {
			return s.api.GetLatestVitals(ctx, sess, serial)
		},
		func(payload *models.VitalsPayload) {
			s.apply(payload, vitals.SourcePoll, userID, serial)
		},
		loop,
		s.logger,
	)

	// 首次加载的错误返回给调用方
	if err := p.Refresh(ctx); err != nil {
		p.Stop()
		stopLoop(loop)
		return fmt.Errorf("failed to load latest vitals: %w", err)
	}

	ch, err := s.newChannel(loop)
	if err != nil {
		p.Stop()
		stopLoop(loop)
		return fmt.Errorf("failed to create realtime channel: %w", err)
	}
	subs := []*channel.Subscription{
		ch.OnStateChange(s.projection.SetChannelState),
		ch.OnVitalsUpdate(func(env models.VitalsEnvelope) {
			if !env.Success || env.Data == nil {
				s.logger.Warn("Ignoring unsuccessful vitals_update", zap.String("message", env.Message))
				return
			}
			s.apply(env.Data, vitals.SourceChannel, userID, serial)
		}),
		ch.OnNotification(func(n models.AlertNotification) {
			s.projection.RaiseAlert()
			s.forwardAlert(userID, serial, n)
		}),
	}
	if err := ch.Connect(userID, serial); err != nil {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
		p.Stop()
		stopLoop(loop)
		return fmt.Errorf("failed to connect realtime channel: %w", err)
	}

	p.Start(s.config.Poller.Interval)
	if s.relay != nil {
		s.relay.Start()
	}

	s.sess = sess
	s.loop = loop
	s.channel = ch
	s.subs = subs
	s.poller = p
	s.started = true

	s.logger.Info("Monitor started",
		zap.String("user_id", userID),
		zap.String("device_serial", serial),
		zap.Duration("poll_interval", s.config.Poller.Interval),
	)
	return nil
}

// resolveDevice 以用户资料中的序列号为准，并写回本地会话
func (s *MonitorService) resolveDevice(ctx context.Context, sess *models.Session) (string, error) {
	profile, err := s.api.GetProfile(ctx, sess)
	if err != nil {
		if api.IsUnauthorized(err) || !sess.HasDevice() {
			return "", fmt.Errorf("failed to load profile: %w", err)
		}
		s.logger.Warn("Profile unavailable, using stored device serial",
			zap.String("device_serial", sess.DeviceSerial),
			zap.Error(err),
		)
		return sess.DeviceSerial, nil
	}

	serial := profile.DeviceSerial
	if serial == "" {
		return "", ErrNoDevice
	}
	if serial != sess.DeviceSerial {
		if _, err := s.store.SetDeviceSerial(ctx, serial); err != nil {
			s.logger.Warn("Failed to persist device serial", zap.Error(err))
		}
	}
	return serial, nil
}

// apply 在执行上下文上应用快照
func (s *MonitorService) apply(payload *models.VitalsPayload, source, userID, serial string) {
	snap := s.projection.ApplySnapshot(payload, source)
	if s.relay != nil {
		s.relay.Enqueue(relay.Record{UserID: userID, DeviceSerial: serial, Snapshot: snap})
	}
}

func (s *MonitorService) forwardAlert(userID, serial string, n models.AlertNotification) {
	if s.sink == nil {
		return
	}
	s.alertWG.Add(1)
	go func() {
		defer s.alertWG.Done()
		if err := s.sink.Forward(userID, serial, n); err != nil {
			s.logger.Warn("Failed to forward alert", zap.Error(err))
		}
	}()
}

// Refresh 下拉刷新
func (s *MonitorService) Refresh(ctx context.Context) error {
	s.mu.Lock()
	p := s.poller
	s.mu.Unlock()
	if p == nil {
		return ErrNotStarted
	}
	return p.Refresh(ctx)
}

// AcknowledgeAlerts 用户查看通知后清除告警标志
func (s *MonitorService) AcknowledgeAlerts() {
	s.mu.Lock()
	loop := s.loop
	s.mu.Unlock()
	if loop == nil || !loop.Post(s.projection.AcknowledgeAlerts) {
		s.projection.AcknowledgeAlerts()
	}
}

// Stop 停止监控；返回后不会再有快照被应用，已收到的告警也已转发完
func (s *MonitorService) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	loop, ch, subs, p := s.loop, s.channel, s.subs, s.poller
	s.loop, s.channel, s.subs, s.poller = nil, nil, nil, nil
	s.mu.Unlock()

	p.Stop()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
	ch.Disconnect()
	stopLoop(loop)
	s.alertWG.Wait()
	s.projection.SetChannelState(models.ChannelDisconnected)
	if s.relay != nil {
		s.relay.Stop()
	}

	s.logger.Info("Monitor stopped")
}

// Wait 等待进行中的登出处理完成
func (s *MonitorService) Wait() {
	s.logoutWG.Wait()
}

// handleUnauthorized 会话失效：清除会话、停止通道和轮询、通知上层，只执行一次
// 可能在轮询的请求内部被调用，因此在新的 goroutine 中执行
func (s *MonitorService) handleUnauthorized(statusCode int) {
	if !s.loggingOut.CompareAndSwap(false, true) {
		return
	}
	s.logger.Warn("Session rejected by server, logging out", zap.Int("status_code", statusCode))

	s.logoutWG.Add(1)
	go func() {
		defer s.logoutWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
		defer cancel()
		if err := s.store.Clear(ctx); err != nil {
			s.logger.Error("Failed to clear session", zap.Error(err))
		}

		s.Stop()
		s.projection.Reset()

		s.mu.Lock()
		s.sess = nil
		fn := s.onLogout
		s.mu.Unlock()
		if fn != nil {
			fn()
		}
	}()
}

func stopLoop(loop *runloop.Loop) {
	loop.Stop()
	<-loop.Done()
}
