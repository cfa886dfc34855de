package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Maryclair03/Latest-LittleWatch/internal/config"
	"github.com/Maryclair03/Latest-LittleWatch/internal/models"
	"github.com/Maryclair03/Latest-LittleWatch/internal/runloop"

	"go.uber.org/zap"
)

// 事件名
const (
	EventVitalsUpdate    = "vitals_update"
	EventNewNotification = "new_notification"
	EventRegisterDevice  = "register_device"
	EventJoinUserRoom    = "join_user_room"

	stateEvent = "\x00state"
)

var (
	// ErrTransport 通道无法建立或握手失败
	ErrTransport = errors.New("transport failure")
	// ErrAlreadyConnected Connect 重复调用
	ErrAlreadyConnected = errors.New("channel already connected")

	errServerClosed = errors.New("server closed connection")
)

// 服务端未给出心跳参数时的默认值（Engine.IO v4 默认）
const (
	defaultPingInterval = 25 * time.Second
	defaultPingTimeout  = 20 * time.Second
)

// Handler 事件处理函数，payload 为事件第一个参数的原始 JSON（可能为 nil）
type Handler func(payload json.RawMessage)

// Subscription 订阅句柄
type Subscription struct {
	ch     *Channel
	event  string
	id     uint64
	active atomic.Bool
}

// Unsubscribe 取消订阅；已投递但未执行的回调也不会再执行
func (s *Subscription) Unsubscribe() {
	if s == nil || !s.active.CompareAndSwap(true, false) {
		return
	}
	s.ch.removeHandler(s.event, s.id)
}

type handlerEntry struct {
	sub *Subscription
	fn  Handler
}

// registration 每次连接成功后发送的注册信息
type registration struct {
	userID       string
	deviceSerial string
}

// Channel 实时通道：单条 Socket.IO 长连接，按用户/设备注册后接收推送
type Channel struct {
	socketURL         string
	header            http.Header
	reconnectAttempts int
	reconnectDelay    time.Duration
	handshakeTimeout  time.Duration

	transport Transport
	executor  runloop.Executor
	logger    *zap.Logger

	handlersMu sync.RWMutex
	handlers   map[string][]handlerEntry
	nextID     uint64

	stateMu sync.RWMutex
	state   models.ChannelState

	connMu  sync.Mutex
	conn    Conn
	writeMu sync.Mutex

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewChannel 创建实时通道
func NewChannel(cfg *config.Config, transport Transport, executor runloop.Executor, logger *zap.Logger) (*Channel, error) {
	socketURL, err := BuildSocketURL(cfg.Channel.URL, cfg.Channel.Path)
	if err != nil {
		return nil, err
	}
	if executor == nil {
		executor = runloop.Inline{}
	}
	return &Channel{
		socketURL:         socketURL,
		header:            http.Header{},
		reconnectAttempts: cfg.Channel.ReconnectAttempts,
		reconnectDelay:    cfg.Channel.ReconnectDelay,
		handshakeTimeout:  cfg.Channel.HandshakeTimeout,
		transport:         transport,
		executor:          executor,
		logger:            logger,
		handlers:          make(map[string][]handlerEntry),
		state:             models.ChannelDisconnected,
	}, nil
}

// SetHeader 设置握手请求头（如 Authorization），需在 Connect 前调用
func (c *Channel) SetHeader(key, value string) {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	c.header.Set(key, value)
}

// State 当前通道状态
func (c *Channel) State() models.ChannelState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Subscribe 订阅事件
func (c *Channel) Subscribe(event string, fn Handler) *Subscription {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	c.nextID++
	sub := &Subscription{ch: c, event: event, id: c.nextID}
	sub.active.Store(true)
	c.handlers[event] = append(c.handlers[event], handlerEntry{sub: sub, fn: fn})
	return sub
}

// OnStateChange 订阅状态变化
func (c *Channel) OnStateChange(fn func(models.ChannelState)) *Subscription {
	return c.Subscribe(stateEvent, func(payload json.RawMessage) {
		fn(models.ChannelState(payload))
	})
}

// OnVitalsUpdate 订阅 vitals_update，解码失败的事件记录后丢弃
func (c *Channel) OnVitalsUpdate(fn func(models.VitalsEnvelope)) *Subscription {
	return c.Subscribe(EventVitalsUpdate, func(payload json.RawMessage) {
		var env models.VitalsEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			c.logger.Warn("Dropping malformed vitals_update", zap.Error(err))
			return
		}
		fn(env)
	})
}

// OnNotification 订阅 new_notification
func (c *Channel) OnNotification(fn func(models.AlertNotification)) *Subscription {
	return c.Subscribe(EventNewNotification, func(payload json.RawMessage) {
		var n models.AlertNotification
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &n); err != nil {
				// 描述无法解析时仍视为一次告警
				c.logger.Warn("Malformed new_notification payload", zap.Error(err))
				n = models.AlertNotification{}
			}
		}
		fn(n)
	})
}

func (c *Channel) removeHandler(event string, id uint64) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	entries := c.handlers[event]
	for i, e := range entries {
		if e.sub.id == id {
			c.handlers[event] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(c.handlers[event]) == 0 {
		delete(c.handlers, event)
	}
}

// dispatch 把回调投递到执行上下文
func (c *Channel) dispatch(event string, payload json.RawMessage) {
	c.handlersMu.RLock()
	entries := append([]handlerEntry(nil), c.handlers[event]...)
	c.handlersMu.RUnlock()

	for _, e := range entries {
		e := e
		c.executor.Post(func() {
			if !e.sub.active.Load() {
				return
			}
			e.fn(payload)
		})
	}
}

func (c *Channel) setState(s models.ChannelState) {
	c.stateMu.Lock()
	if c.state == s {
		c.stateMu.Unlock()
		return
	}
	c.state = s
	c.stateMu.Unlock()

	c.logger.Debug("Channel state changed", zap.String("state", string(s)))
	c.dispatch(stateEvent, json.RawMessage(s))
}

// Connect 打开通道；连接在后台建立，断线后按配置重连
func (c *Channel) Connect(userID, deviceSerial string) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.cancel != nil {
		return ErrAlreadyConnected
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	reg := registration{userID: userID, deviceSerial: deviceSerial}
	header := c.header.Clone()

	c.logger.Info("Connecting realtime channel",
		zap.String("url", c.socketURL),
		zap.String("user_id", userID),
		zap.String("device_serial", deviceSerial),
	)

	go c.run(ctx, reg, header, c.done)
	return nil
}

// Disconnect 关闭通道并等待后台 goroutine 退出；之后不会再有事件回调
func (c *Channel) Disconnect() {
	c.lifecycleMu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.lifecycleMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn != nil {
		c.write(conn, encodeDisconnect())
		conn.Close()
	}

	<-done
	c.setState(models.ChannelDisconnected)
	c.logger.Info("Realtime channel disconnected")
}

// Emit 在已连接时发送事件
func (c *Channel) Emit(event string, args ...any) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil || c.State() != models.ChannelConnected {
		return fmt.Errorf("%w: channel not connected", ErrTransport)
	}
	frame, err := encodeEvent(event, args...)
	if err != nil {
		return err
	}
	return c.write(conn, frame)
}

func (c *Channel) write(conn Conn, frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(frame)
}

func (c *Channel) run(ctx context.Context, reg registration, header http.Header, done chan struct{}) {
	defer close(done)

	failures := 0
	for {
		c.setState(models.ChannelConnecting)

		conn, hb, err := c.open(ctx, header)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			c.setState(models.ChannelError)
			c.logger.Warn("Realtime channel connect failed",
				zap.Int("attempt", failures),
				zap.Error(err),
			)
			if failures > c.reconnectAttempts {
				c.logger.Error("Realtime channel giving up after repeated failures",
					zap.Int("attempts", failures),
				)
				return
			}
			if !sleepCtx(ctx, c.reconnectDelay) {
				return
			}
			continue
		}

		failures = 0

		// Disconnect 可能在 open 返回前已取消
		if ctx.Err() != nil {
			c.closeConn(conn)
			return
		}

		c.setState(models.ChannelConnected)
		c.logger.Info("Realtime channel connected")

		err = c.register(conn, reg)
		if err == nil {
			err = c.readLoop(ctx, conn, hb)
		}
		c.closeConn(conn)

		if ctx.Err() != nil {
			return
		}
		c.setState(models.ChannelDisconnected)
		c.logger.Warn("Realtime channel lost", zap.Error(err))

		if c.reconnectAttempts <= 0 {
			return
		}
		if !sleepCtx(ctx, c.reconnectDelay) {
			return
		}
	}
}

func (c *Channel) closeConn(conn Conn) {
	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connMu.Unlock()
	conn.Close()
}

// register 连接成功后发送设备注册与用户房间加入
func (c *Channel) register(conn Conn, reg registration) error {
	frame, err := encodeEvent(EventRegisterDevice, map[string]string{
		"userId":       reg.userID,
		"deviceSerial": reg.deviceSerial,
	})
	if err != nil {
		return err
	}
	if err := c.write(conn, frame); err != nil {
		return fmt.Errorf("failed to send %s: %w", EventRegisterDevice, err)
	}

	frame, err = encodeEvent(EventJoinUserRoom, reg.userID)
	if err != nil {
		return err
	}
	if err := c.write(conn, frame); err != nil {
		return fmt.Errorf("failed to send %s: %w", EventJoinUserRoom, err)
	}
	return nil
}

// heartbeat 服务端下发的心跳参数
type heartbeat struct {
	interval time.Duration
	timeout  time.Duration
}

func (h heartbeat) deadline() time.Time {
	return time.Now().Add(h.interval + h.timeout)
}

// open 建立传输并完成 Engine.IO / Socket.IO 握手
func (c *Channel) open(ctx context.Context, header http.Header) (Conn, heartbeat, error) {
	hb := heartbeat{interval: defaultPingInterval, timeout: defaultPingTimeout}

	dialCtx := ctx
	if c.handshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.handshakeTimeout)
		defer cancel()
	}

	conn, err := c.transport.Dial(dialCtx, c.socketURL, header)
	if err != nil {
		return nil, hb, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	// 握手期间也允许 Disconnect 关闭连接
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	fail := func(err error) (Conn, heartbeat, error) {
		c.closeConn(conn)
		return nil, hb, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if c.handshakeTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(c.handshakeTimeout))
	}

	// 1. Engine.IO open
	frame, err := conn.ReadMessage()
	if err != nil {
		return fail(fmt.Errorf("waiting for open packet: %w", err))
	}
	p, err := decodePacket(frame)
	if err != nil {
		return fail(err)
	}
	if p.engine != engineOpen {
		return fail(fmt.Errorf("expected open packet, got %q", frame))
	}
	var open openPayload
	if err := json.Unmarshal(p.data, &open); err != nil {
		return fail(fmt.Errorf("invalid open payload: %w", err))
	}
	if open.PingInterval > 0 {
		hb.interval = time.Duration(open.PingInterval) * time.Millisecond
	}
	if open.PingTimeout > 0 {
		hb.timeout = time.Duration(open.PingTimeout) * time.Millisecond
	}

	// 2. 命名空间连接
	connectFrame, err := encodeConnect(nil)
	if err != nil {
		return fail(err)
	}
	if err := c.write(conn, connectFrame); err != nil {
		return fail(fmt.Errorf("sending connect: %w", err))
	}

	// 3. 等待连接确认
	for {
		frame, err := conn.ReadMessage()
		if err != nil {
			return fail(fmt.Errorf("waiting for connect ack: %w", err))
		}
		p, err := decodePacket(frame)
		if err != nil {
			return fail(err)
		}
		switch {
		case p.engine == enginePing:
			if err := c.write(conn, encodePong()); err != nil {
				return fail(err)
			}
		case p.engine == engineMessage && !p.mainNamespace():
			c.logger.Debug("Ignoring packet for other namespace", zap.String("namespace", p.namespace))
		case p.engine == engineMessage && p.socket == socketConnect:
			conn.SetReadDeadline(time.Time{})
			return conn, hb, nil
		case p.engine == engineMessage && p.socket == socketConnectError:
			return fail(fmt.Errorf("connect rejected: %s", string(p.data)))
		case p.engine == engineClose:
			return fail(errServerClosed)
		}
	}
}

// readLoop 读取并分发事件，直到连接断开
func (c *Channel) readLoop(ctx context.Context, conn Conn, hb heartbeat) error {
	for {
		conn.SetReadDeadline(hb.deadline())
		frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p, err := decodePacket(frame)
		if err != nil {
			c.logger.Debug("Ignoring undecodable frame", zap.Error(err))
			continue
		}

		switch p.engine {
		case enginePing:
			if err := c.write(conn, encodePong()); err != nil {
				return err
			}
		case engineClose:
			return errServerClosed
		case engineMessage:
			if !p.mainNamespace() {
				c.logger.Debug("Ignoring packet for other namespace", zap.String("namespace", p.namespace))
				continue
			}
			switch p.socket {
			case socketEvent:
				var payload json.RawMessage
				if len(p.args) > 0 {
					payload = p.args[0]
				}
				c.logger.Debug("Channel event received", zap.String("event", p.event))
				c.dispatch(p.event, payload)
			case socketDisconnect:
				return errServerClosed
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
