package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Conn 一条已建立的双向文本连接
type Conn interface {
	ReadMessage() (string, error)
	WriteMessage(frame string) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Transport 建立连接（测试中可替换）
type Transport interface {
	Dial(ctx context.Context, rawURL string, header http.Header) (Conn, error)
}

// WebsocketTransport 基于 gorilla/websocket 的传输层
type WebsocketTransport struct {
	dialer *websocket.Dialer
}

// NewWebsocketTransport 创建传输层
func NewWebsocketTransport(handshakeTimeout time.Duration) *WebsocketTransport {
	return &WebsocketTransport{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// Dial 建立 websocket 连接
func (t *WebsocketTransport) Dial(ctx context.Context, rawURL string, header http.Header) (Conn, error) {
	c, resp, err := t.dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: %w (status %d)", rawURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", rawURL, err)
	}
	return &wsConn{conn: c}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() (string, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *wsConn) WriteMessage(frame string) error {
	return c.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// BuildSocketURL 把 http(s) 地址转换为 Socket.IO websocket 地址
// 例："https://host" + "/socket.io/" -> "wss://host/socket.io/?EIO=4&transport=websocket"
func BuildSocketURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid channel url %q: %w", base, err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported channel url scheme %q", u.Scheme)
	}
	if path == "" {
		path = "/socket.io/"
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
