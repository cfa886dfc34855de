package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Engine.IO v4 包类型
const (
	engineOpen    byte = '0'
	engineClose   byte = '1'
	enginePing    byte = '2'
	enginePong    byte = '3'
	engineMessage byte = '4'
	engineNoop    byte = '6'
)

// Socket.IO v5 包类型（位于 Engine.IO message 之内）
const (
	socketConnect      byte = '0'
	socketDisconnect   byte = '1'
	socketEvent        byte = '2'
	socketAck          byte = '3'
	socketConnectError byte = '4'
)

var errEmptyPacket = errors.New("empty packet")

// openPayload Engine.IO open 包数据
type openPayload struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"` // 毫秒
	PingTimeout  int      `json:"pingTimeout"`  // 毫秒
}

// packet 解码后的帧
type packet struct {
	engine    byte
	socket    byte // 仅 engine == engineMessage 时有效
	namespace string
	ackID     string
	event     string
	args      []json.RawMessage
	data      json.RawMessage // open / connect / connect_error 的 JSON 数据
}

// mainNamespace 是否属于根命名空间 "/"
func (p packet) mainNamespace() bool {
	return p.namespace == "" || p.namespace == "/"
}

// decodePacket 解析一帧文本
func decodePacket(frame string) (packet, error) {
	if frame == "" {
		return packet{}, errEmptyPacket
	}
	p := packet{engine: frame[0]}
	rest := frame[1:]

	switch p.engine {
	case engineOpen:
		p.data = json.RawMessage(rest)
		return p, nil
	case engineClose, enginePing, enginePong, engineNoop:
		return p, nil
	case engineMessage:
	default:
		return p, fmt.Errorf("unknown engine packet type %q", p.engine)
	}

	if rest == "" {
		return p, errEmptyPacket
	}
	p.socket = rest[0]
	rest = rest[1:]

	// 可选命名空间 "/ns,"
	if strings.HasPrefix(rest, "/") {
		if i := strings.IndexByte(rest, ','); i >= 0 {
			p.namespace = rest[:i]
			rest = rest[i+1:]
		} else {
			p.namespace = rest
			rest = ""
		}
	}
	// 可选 ack id
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	p.ackID = rest[:i]
	rest = rest[i:]

	switch p.socket {
	case socketEvent, socketAck:
		if rest == "" {
			return p, fmt.Errorf("event packet without payload")
		}
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(rest), &items); err != nil {
			return p, fmt.Errorf("failed to decode event payload: %w", err)
		}
		if p.socket == socketEvent {
			if len(items) == 0 {
				return p, fmt.Errorf("event packet without name")
			}
			if err := json.Unmarshal(items[0], &p.event); err != nil {
				return p, fmt.Errorf("failed to decode event name: %w", err)
			}
			items = items[1:]
		}
		p.args = items
	case socketConnect, socketConnectError, socketDisconnect:
		if rest != "" {
			p.data = json.RawMessage(rest)
		}
	default:
		return p, fmt.Errorf("unsupported socket packet type %q", p.socket)
	}
	return p, nil
}

// encodeEvent 编码 "42[event, args...]"
func encodeEvent(event string, args ...any) (string, error) {
	items := make([]any, 0, len(args)+1)
	items = append(items, event)
	items = append(items, args...)
	body, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to encode event %s: %w", event, err)
	}
	return string([]byte{engineMessage, socketEvent}) + string(body), nil
}

// encodeConnect 编码命名空间连接请求，auth 可为 nil
func encodeConnect(auth any) (string, error) {
	frame := string([]byte{engineMessage, socketConnect})
	if auth == nil {
		return frame, nil
	}
	body, err := json.Marshal(auth)
	if err != nil {
		return "", fmt.Errorf("failed to encode connect auth: %w", err)
	}
	return frame + string(body), nil
}

func encodeDisconnect() string {
	return string([]byte{engineMessage, socketDisconnect})
}

func encodePong() string {
	return string([]byte{enginePong})
}
