package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Maryclair03/Latest-LittleWatch/internal/models"
	"github.com/Maryclair03/Latest-LittleWatch/internal/runloop"

	"go.uber.org/zap"
)

// DefaultInterval 默认轮询间隔
const DefaultInterval = 30 * time.Second

// ErrStopped 轮询器已停止
var ErrStopped = errors.New("poller stopped")

// FetchFunc 拉取最新体征
type FetchFunc func(ctx context.Context) (*models.VitalsPayload, error)

// ApplyFunc 应用拉取结果（在执行上下文上调用）
type ApplyFunc func(payload *models.VitalsPayload)

// Poller 兜底轮询：固定间隔拉取最新体征，无抖动、无退避，失败只记录日志
type Poller struct {
	fetch    FetchFunc
	apply    ApplyFunc
	executor runloop.Executor
	logger   *zap.Logger

	mu      sync.Mutex
	stopped bool
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New 创建轮询器
func New(fetch FetchFunc, apply ApplyFunc, executor runloop.Executor, logger *zap.Logger) *Poller {
	if executor == nil {
		executor = runloop.Inline{}
	}
	return &Poller{
		fetch:    fetch,
		apply:    apply,
		executor: executor,
		logger:   logger,
	}
}

// Start 启动定时轮询；已在运行时忽略
func (p *Poller) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true
	p.stopped = false

	p.wg.Add(1)
	go p.loop(ctx, interval)

	p.logger.Info("Vitals poller started", zap.Duration("interval", interval))
}

// Stop 停止轮询；返回后不会再应用任何拉取结果
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	cancel := p.cancel
	wasRunning := p.running
	p.cancel = nil
	p.running = false
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()

	if wasRunning {
		p.logger.Info("Vitals poller stopped")
	}
}

// Refresh 立即拉取一次（下拉刷新、首次加载），错误返回给调用方
func (p *Poller) Refresh(ctx context.Context) error {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return ErrStopped
	}

	payload, err := p.fetch(ctx)
	if err != nil {
		return err
	}
	p.post(payload)
	return nil
}

func (p *Poller) loop(ctx context.Context, interval time.Duration) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := p.fetch(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Warn("Vitals poll failed", zap.Error(err))
				}
				continue
			}
			p.post(payload)
		}
	}
}

// post 把结果投递到执行上下文；执行时再检查停止标志
func (p *Poller) post(payload *models.VitalsPayload) {
	p.executor.Post(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.stopped {
			return
		}
		p.apply(payload)
	})
}
