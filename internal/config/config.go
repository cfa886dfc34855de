package config

import (
	"time"
)

// Session backends
const (
	SessionBackendRedis    = "redis"
	SessionBackendPostgres = "postgres"
)

// Config LittleWatch 客户端配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// REST API
	API struct {
		BaseURL   string        // 如 "https://little-watch-backend.onrender.com/api"
		Timeout   time.Duration // 单次请求超时
		UserAgent string
	}

	// 实时通道（Socket.IO）
	Channel struct {
		URL               string        // 如 "https://little-watch-backend.onrender.com"
		Path              string        // Socket.IO 路径，默认 "/socket.io/"
		ReconnectAttempts int           // 连续重连次数上限
		ReconnectDelay    time.Duration // 每次重连前的等待
		HandshakeTimeout  time.Duration
	}

	// 兜底轮询
	Poller struct {
		Interval time.Duration
	}

	// 会话存储
	Session struct {
		Backend   string // "redis" | "postgres"
		KeyPrefix string // KV key 前缀
	}

	// 可选：把应用后的快照镜像到 Redis Stream
	Relay struct {
		Enabled bool
		Stream  string
		MaxLen  int64
	}

	// 可选：把告警通知转发到 MQTT
	AlertSink struct {
		Enabled     bool
		TopicPrefix string // 实际主题 "<prefix>/<user_id>/alerts"
	}

	// 历史分页
	History struct {
		PageSize int
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.API.BaseURL = getEnv("API_BASE_URL", "https://little-watch-backend.onrender.com/api")
	cfg.API.Timeout = getEnvDuration("API_TIMEOUT", 10*time.Second)
	cfg.API.UserAgent = getEnv("API_USER_AGENT", "littlewatch-cli")

	cfg.Channel.URL = getEnv("CHANNEL_URL", "https://little-watch-backend.onrender.com")
	cfg.Channel.Path = getEnv("CHANNEL_PATH", "/socket.io/")
	cfg.Channel.ReconnectAttempts = getEnvInt("CHANNEL_RECONNECT_ATTEMPTS", 5)
	cfg.Channel.ReconnectDelay = getEnvDuration("CHANNEL_RECONNECT_DELAY", time.Second)
	cfg.Channel.HandshakeTimeout = getEnvDuration("CHANNEL_HANDSHAKE_TIMEOUT", 10*time.Second)

	cfg.Poller.Interval = getEnvDuration("POLL_INTERVAL", 30*time.Second)

	cfg.Session.Backend = getEnv("SESSION_BACKEND", SessionBackendRedis)
	cfg.Session.KeyPrefix = getEnv("SESSION_KEY_PREFIX", "littlewatch:session:")

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "littlewatch"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 2
	cfg.Database.LoadFromEnv("DB")

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "littlewatch"
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Relay.Enabled = getEnvBool("RELAY_ENABLED", false)
	cfg.Relay.Stream = getEnv("RELAY_STREAM", "littlewatch:vitals:stream")
	cfg.Relay.MaxLen = int64(getEnvInt("RELAY_MAXLEN", 100))

	cfg.AlertSink.Enabled = getEnvBool("ALERT_SINK_ENABLED", false)
	cfg.AlertSink.TopicPrefix = getEnv("ALERT_SINK_TOPIC_PREFIX", "littlewatch")

	cfg.History.PageSize = getEnvInt("HISTORY_PAGE_SIZE", 20)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "console")

	return cfg, nil
}
