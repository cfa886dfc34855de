package relay

import (
	"context"
	"sync"
	"time"

	"github.com/Maryclair03/Latest-LittleWatch/internal/models"
	rediscommon "github.com/Maryclair03/Latest-LittleWatch/internal/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	defaultQueueSize = 64
	publishTimeout   = 3 * time.Second
)

// Record 写入 Stream 的一条快照
type Record struct {
	UserID       string                `json:"user_id"`
	DeviceSerial string                `json:"device_serial"`
	Snapshot     models.VitalsSnapshot `json:"snapshot"`
}

// Relay 把已应用的快照镜像到 Redis Stream，供其他进程订阅
type Relay struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger

	mu      sync.Mutex
	queue   chan Record
	closed  bool
	running bool
	wg      sync.WaitGroup
}

// New 创建 Relay
func New(client *redis.Client, stream string, maxLen int64, logger *zap.Logger) *Relay {
	return &Relay{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger,
		queue:  make(chan Record, defaultQueueSize),
	}
}

// Publish 同步写入一条记录，返回 Stream 消息 ID
func (r *Relay) Publish(ctx context.Context, rec Record) (string, error) {
	return rediscommon.PublishJSONToStream(ctx, r.client, r.stream, r.maxLen, rec)
}

// Start 启动后台写入；Stop 之后可再次 Start，使用新的队列
func (r *Relay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	if r.closed {
		r.queue = make(chan Record, defaultQueueSize)
		r.closed = false
	}
	r.running = true

	r.wg.Add(1)
	go r.drain(r.queue)
}

func (r *Relay) drain(queue <-chan Record) {
	defer r.wg.Done()
	for rec := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		id, err := r.Publish(ctx, rec)
		cancel()
		if err != nil {
			r.logger.Warn("Failed to relay vitals snapshot",
				zap.String("stream", r.stream),
				zap.Error(err),
			)
			continue
		}
		r.logger.Debug("Relayed vitals snapshot",
			zap.String("stream", r.stream),
			zap.String("message_id", id),
		)
	}
}

// Enqueue 非阻塞入队；队列满或已停止时丢弃并返回 false
func (r *Relay) Enqueue(rec Record) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.logger.Debug("Relay stopped, dropping snapshot", zap.String("stream", r.stream))
		return false
	}
	select {
	case r.queue <- rec:
		return true
	default:
		r.logger.Warn("Relay queue full, dropping snapshot", zap.String("stream", r.stream))
		return false
	}
}

// Stop 停止接收并等待队列写完
func (r *Relay) Stop() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.running = false
	r.mu.Unlock()
	r.wg.Wait()
}
