package channel

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Maryclair03/Latest-LittleWatch/internal/config"
	"github.com/Maryclair03/Latest-LittleWatch/internal/models"
	"github.com/Maryclair03/Latest-LittleWatch/internal/runloop"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	registerFrame = `42["register_device",{"deviceSerial":"ABC123","userId":"user-1"}]`
	joinFrame     = `42["join_user_room","user-1"]`
)

// fakeSocketServer 最小 Socket.IO 服务端：完成握手后记录客户端发来的帧
type fakeSocketServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	frames      chan string
	conns       chan *websocket.Conn
	dials       atomic.Int32
	rejectFirst atomic.Int32
}

func newFakeSocketServer(t *testing.T) *fakeSocketServer {
	t.Helper()
	f := &fakeSocketServer{
		frames: make(chan string, 64),
		conns:  make(chan *websocket.Conn, 8),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSocketServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("EIO") != "4" || r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, "bad query", http.StatusBadRequest)
		return
	}
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	f.dials.Add(1)

	open := `0{"sid":"sid-1","upgrades":[],"pingInterval":25000,"pingTimeout":20000}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(open)); err != nil {
		return
	}
	_, msg, err := conn.ReadMessage()
	if err != nil || string(msg) != "40" {
		return
	}

	if f.rejectFirst.Load() > 0 {
		f.rejectFirst.Add(-1)
		conn.WriteMessage(websocket.TextMessage, []byte(`44{"message":"Not authorized"}`))
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`40{"sid":"socket-1"}`)); err != nil {
		return
	}
	f.conns <- conn

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f.frames <- string(msg)
	}
}

func (f *fakeSocketServer) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-f.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client connection")
		return nil
	}
}

func (f *fakeSocketServer) nextFrame(t *testing.T) string {
	t.Helper()
	select {
	case fr := <-f.frames:
		return fr
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client frame")
		return ""
	}
}

func (f *fakeSocketServer) assertNoFrame(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case fr := <-f.frames:
		t.Fatalf("unexpected frame %q", fr)
	case <-time.After(wait):
	}
}

func newTestChannel(t *testing.T, url string, attempts int, executor runloop.Executor) *Channel {
	t.Helper()
	cfg := &config.Config{}
	cfg.Channel.URL = url
	cfg.Channel.Path = "/socket.io/"
	cfg.Channel.ReconnectAttempts = attempts
	cfg.Channel.ReconnectDelay = 10 * time.Millisecond
	cfg.Channel.HandshakeTimeout = 2 * time.Second

	ch, err := NewChannel(cfg, NewWebsocketTransport(2*time.Second), executor, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(ch.Disconnect)
	return ch
}

func TestChannel_RegistersOncePerConnect(t *testing.T) {
	srv := newFakeSocketServer(t)
	ch := newTestChannel(t, srv.srv.URL, 3, runloop.Inline{})

	require.NoError(t, ch.Connect("user-1", "ABC123"))
	srv.nextConn(t)

	assert.Equal(t, registerFrame, srv.nextFrame(t))
	assert.Equal(t, joinFrame, srv.nextFrame(t))
	srv.assertNoFrame(t, 100*time.Millisecond)

	assert.Eventually(t, func() bool { return ch.State() == models.ChannelConnected }, time.Second, 10*time.Millisecond)
}

func TestChannel_ReRegistersAfterReconnect(t *testing.T) {
	srv := newFakeSocketServer(t)
	ch := newTestChannel(t, srv.srv.URL, 3, runloop.Inline{})

	require.NoError(t, ch.Connect("user-1", "ABC123"))
	first := srv.nextConn(t)
	assert.Equal(t, registerFrame, srv.nextFrame(t))
	assert.Equal(t, joinFrame, srv.nextFrame(t))

	// 服务端断开，客户端应重连并再次注册一次
	first.Close()
	srv.nextConn(t)
	assert.Equal(t, registerFrame, srv.nextFrame(t))
	assert.Equal(t, joinFrame, srv.nextFrame(t))
	srv.assertNoFrame(t, 100*time.Millisecond)

	assert.Equal(t, int32(2), srv.dials.Load())
}

func TestChannel_NoRegistrationOnFailedAttempt(t *testing.T) {
	srv := newFakeSocketServer(t)
	srv.rejectFirst.Store(1)
	ch := newTestChannel(t, srv.srv.URL, 3, runloop.Inline{})

	require.NoError(t, ch.Connect("user-1", "ABC123"))
	srv.nextConn(t)

	// 第一次被拒绝的连接不发送任何注册
	assert.Equal(t, registerFrame, srv.nextFrame(t))
	assert.Equal(t, joinFrame, srv.nextFrame(t))
	srv.assertNoFrame(t, 100*time.Millisecond)
	assert.Equal(t, int32(2), srv.dials.Load())
}

func TestChannel_GivesUpAfterAttempts(t *testing.T) {
	srv := newFakeSocketServer(t)
	srv.rejectFirst.Store(100)
	ch := newTestChannel(t, srv.srv.URL, 2, runloop.Inline{})

	require.NoError(t, ch.Connect("user-1", "ABC123"))

	// 首次尝试 + 2 次重连
	assert.Eventually(t, func() bool { return srv.dials.Load() == 3 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(3), srv.dials.Load())
	assert.Equal(t, models.ChannelError, ch.State())
	srv.assertNoFrame(t, 10*time.Millisecond)
}

func TestChannel_DispatchesVitalsUpdate(t *testing.T) {
	srv := newFakeSocketServer(t)
	ch := newTestChannel(t, srv.srv.URL, 3, runloop.Inline{})

	got := make(chan models.VitalsEnvelope, 1)
	ch.OnVitalsUpdate(func(env models.VitalsEnvelope) { got <- env })

	require.NoError(t, ch.Connect("user-1", "ABC123"))
	conn := srv.nextConn(t)
	srv.nextFrame(t)
	srv.nextFrame(t)

	event := `42["vitals_update",{"success":true,"data":{"vitals":{"heart_rate":120,"temperature":36.8,"oxygen_saturation":97,"is_alert":false},"device":{"battery_level":80,"is_connected":true}}}]`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(event)))

	select {
	case env := <-got:
		require.NotNil(t, env.Data)
		require.NotNil(t, env.Data.Vitals)
		require.NotNil(t, env.Data.Vitals.HeartRate)
		assert.Equal(t, 120.0, *env.Data.Vitals.HeartRate)
		require.NotNil(t, env.Data.Device)
		assert.Equal(t, 80.0, *env.Data.Device.BatteryLevel)
	case <-time.After(2 * time.Second):
		t.Fatal("vitals_update was not dispatched")
	}
}

func TestChannel_DispatchesNotification(t *testing.T) {
	srv := newFakeSocketServer(t)
	ch := newTestChannel(t, srv.srv.URL, 3, runloop.Inline{})

	got := make(chan models.AlertNotification, 1)
	ch.OnNotification(func(n models.AlertNotification) { got <- n })

	require.NoError(t, ch.Connect("user-1", "ABC123"))
	conn := srv.nextConn(t)
	srv.nextFrame(t)
	srv.nextFrame(t)

	event := `42["new_notification",{"id":7,"title":"High heart rate","message":"175 BPM"}]`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(event)))

	select {
	case n := <-got:
		assert.Equal(t, "7", n.ID.String())
		assert.Equal(t, "High heart rate", n.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("new_notification was not dispatched")
	}
}

func TestChannel_IgnoresOtherNamespaces(t *testing.T) {
	srv := newFakeSocketServer(t)
	ch := newTestChannel(t, srv.srv.URL, 3, runloop.Inline{})

	got := make(chan models.VitalsEnvelope, 4)
	ch.OnVitalsUpdate(func(env models.VitalsEnvelope) { got <- env })
	states := make(chan models.ChannelState, 8)
	ch.OnStateChange(func(s models.ChannelState) { states <- s })

	require.NoError(t, ch.Connect("user-1", "ABC123"))
	conn := srv.nextConn(t)
	srv.nextFrame(t)
	srv.nextFrame(t)

	for _, frame := range []string{
		`42/admin,["vitals_update",{"success":true,"data":{"vitals":{"heart_rate":50}}}]`,
		`41/admin,`,
		`42/["vitals_update",{"success":true,"data":{"vitals":{"heart_rate":120}}}]`,
	} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
	}

	select {
	case env := <-got:
		require.NotNil(t, env.Data)
		require.NotNil(t, env.Data.Vitals.HeartRate)
		assert.Equal(t, 120.0, *env.Data.Vitals.HeartRate)
	case <-time.After(2 * time.Second):
		t.Fatal("vitals_update was not dispatched")
	}
	assert.Empty(t, got)
	for len(states) > 0 {
		assert.NotEqual(t, models.ChannelDisconnected, <-states)
	}
	assert.Equal(t, int32(1), srv.dials.Load())
}

func TestChannel_Unsubscribe(t *testing.T) {
	srv := newFakeSocketServer(t)
	ch := newTestChannel(t, srv.srv.URL, 3, runloop.Inline{})

	var removedCalls atomic.Int32
	removed := ch.Subscribe("custom", func(json.RawMessage) { removedCalls.Add(1) })
	kept := make(chan json.RawMessage, 1)
	ch.Subscribe("custom", func(p json.RawMessage) { kept <- p })
	removed.Unsubscribe()
	removed.Unsubscribe()

	require.NoError(t, ch.Connect("user-1", "ABC123"))
	conn := srv.nextConn(t)
	srv.nextFrame(t)
	srv.nextFrame(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`42["custom",{"n":1}]`)))

	select {
	case p := <-kept:
		assert.JSONEq(t, `{"n":1}`, string(p))
	case <-time.After(2 * time.Second):
		t.Fatal("event was not dispatched")
	}
	assert.Equal(t, int32(0), removedCalls.Load())
}

func TestChannel_UnsubscribeSkipsQueuedCallbacks(t *testing.T) {
	loop := runloop.New(8, zap.NewNop())
	ch := &Channel{
		executor: loop,
		logger:   zap.NewNop(),
		handlers: make(map[string][]handlerEntry),
	}

	var calls atomic.Int32
	sub := ch.Subscribe("custom", func(json.RawMessage) { calls.Add(1) })
	ch.dispatch("custom", json.RawMessage(`{}`))
	sub.Unsubscribe()

	loop.Stop()
	loop.Run(testContext(t))
	assert.Equal(t, int32(0), calls.Load())
}

func TestChannel_AnswersPing(t *testing.T) {
	srv := newFakeSocketServer(t)
	ch := newTestChannel(t, srv.srv.URL, 3, runloop.Inline{})

	require.NoError(t, ch.Connect("user-1", "ABC123"))
	conn := srv.nextConn(t)
	srv.nextFrame(t)
	srv.nextFrame(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("2")))
	assert.Equal(t, "3", srv.nextFrame(t))
}

func TestChannel_StateTransitions(t *testing.T) {
	srv := newFakeSocketServer(t)
	ch := newTestChannel(t, srv.srv.URL, 3, runloop.Inline{})

	var mu sync.Mutex
	var states []models.ChannelState
	ch.OnStateChange(func(s models.ChannelState) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	})

	assert.Equal(t, models.ChannelDisconnected, ch.State())
	require.NoError(t, ch.Connect("user-1", "ABC123"))
	srv.nextConn(t)
	srv.nextFrame(t)
	srv.nextFrame(t)

	ch.Disconnect()
	assert.Equal(t, models.ChannelDisconnected, ch.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []models.ChannelState{
		models.ChannelConnecting,
		models.ChannelConnected,
		models.ChannelDisconnected,
	}, states)
}

func TestChannel_ConnectTwice(t *testing.T) {
	srv := newFakeSocketServer(t)
	ch := newTestChannel(t, srv.srv.URL, 3, runloop.Inline{})

	require.NoError(t, ch.Connect("user-1", "ABC123"))
	assert.ErrorIs(t, ch.Connect("user-1", "ABC123"), ErrAlreadyConnected)
}

func TestChannel_EmitRequiresConnection(t *testing.T) {
	srv := newFakeSocketServer(t)
	ch := newTestChannel(t, srv.srv.URL, 3, runloop.Inline{})

	assert.ErrorIs(t, ch.Emit("anything"), ErrTransport)
	ch.Disconnect()
}

func TestChannel_DisconnectStopsCallbacks(t *testing.T) {
	srv := newFakeSocketServer(t)
	ch := newTestChannel(t, srv.srv.URL, 3, runloop.Inline{})

	var calls atomic.Int32
	ch.Subscribe("custom", func(json.RawMessage) { calls.Add(1) })

	require.NoError(t, ch.Connect("user-1", "ABC123"))
	conn := srv.nextConn(t)
	srv.nextFrame(t)
	srv.nextFrame(t)

	ch.Disconnect()
	conn.WriteMessage(websocket.TextMessage, []byte(`42["custom",{}]`))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, models.ChannelDisconnected, ch.State())
}
