package runloop

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Executor 任务投递接口
type Executor interface {
	Post(task func()) bool
}

// Loop 单一执行上下文：所有投递的任务按投递顺序在同一个 goroutine 上串行执行
type Loop struct {
	tasks  chan func()
	logger *zap.Logger

	mu       sync.RWMutex
	stopped  bool
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
}

// New 创建执行循环；buffer 为待执行任务队列长度
func New(buffer int, logger *zap.Logger) *Loop {
	if buffer <= 0 {
		buffer = 64
	}
	return &Loop{
		tasks:  make(chan func(), buffer),
		logger: logger,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Post 投递任务；循环已停止时返回 false。队列满时阻塞直到有空位或 Stop
func (l *Loop) Post(task func()) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.stopped {
		return false
	}
	select {
	case l.tasks <- task:
		return true
	case <-l.quit:
		return false
	}
}

// Run 执行任务直到 ctx 取消或 Stop；返回前把已投递的任务执行完
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case task, ok := <-l.tasks:
			if !ok {
				return
			}
			l.runTask(task)
		case <-ctx.Done():
			l.Stop()
			for task := range l.tasks {
				l.runTask(task)
			}
			return
		}
	}
}

// Stop 停止接受新任务；幂等
func (l *Loop) Stop() {
	// 先唤醒阻塞在 Post 上的调用方，再拿写锁
	l.quitOnce.Do(func() { close(l.quit) })

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	close(l.tasks)
}

// Done Run 退出后关闭
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Recovered from panic in loop task", zap.Any("panic", r))
		}
	}()
	task()
}

// Inline 直接在调用方 goroutine 上执行（测试和无循环场景）
type Inline struct{}

func (Inline) Post(task func()) bool {
	task()
	return true
}
