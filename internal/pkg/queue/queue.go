// Package queue 提供一个带固定 worker 的内存任务队列，管理 API 用它在后台串行执行批量运行。
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrClosed 队列已关闭。
	ErrClosed = errors.New("queue is closed")
	// ErrFull 队列已满。
	ErrFull = errors.New("queue is full")
)

// Job 是一个有名字的后台任务。
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// ErrorHandler 任务失败（含 panic）时的回调。
type ErrorHandler func(job Job, err error)

// Queue 是有界任务队列，Enqueue 不阻塞，队列满时直接拒绝。
type Queue struct {
	logger       *slog.Logger
	workers      int
	jobs         chan Job
	errorHandler ErrorHandler

	wg      sync.WaitGroup
	closed  atomic.Bool
	running atomic.Int32

	stats queueStats
}

type queueStats struct {
	enqueued  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	panics    atomic.Int64
}

// Stats 队列统计快照。
type Stats struct {
	Enqueued  int64 `json:"enqueued"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Panics    int64 `json:"panics"`
	Pending   int   `json:"pending"`
	Running   int   `json:"running"`
}

// New 创建队列。
//
// 参数:
//   - logger: 日志记录器
//   - workers: worker 数量（至少为 1）
//   - capacity: 等待中的任务上限（至少为 1）
func New(logger *slog.Logger, workers, capacity int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		logger:  logger,
		workers: workers,
		jobs:    make(chan Job, capacity),
	}
}

// SetErrorHandler 设置失败回调，必须在 Start 之前调用。
func (q *Queue) SetErrorHandler(handler ErrorHandler) {
	q.errorHandler = handler
}

// Start 启动 worker，直到 ctx 结束或调用 Shutdown。
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			q.logger.Debug("worker stopped", slog.Int("worker_id", id))
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			q.execute(ctx, job, id)
		}
	}
}

// execute 执行单个任务，panic 被恢复并计为失败。
func (q *Queue) execute(ctx context.Context, job Job, workerID int) {
	q.running.Add(1)
	defer q.running.Add(-1)

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				q.stats.panics.Add(1)
				q.logger.Error("job panic recovered",
					slog.String("job", job.Name),
					slog.Int("worker_id", workerID),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		err = job.Run(ctx)
	}()

	if err != nil {
		q.stats.failed.Add(1)
		q.logger.Warn("job failed", slog.String("job", job.Name), slog.String("error", err.Error()))
		if q.errorHandler != nil {
			q.errorHandler(job, err)
		}
		return
	}
	q.stats.succeeded.Add(1)
}

// Enqueue 放入任务，不阻塞。
//
// 返回值:
//
//	error: 队列已关闭返回 ErrClosed，已满返回 ErrFull
func (q *Queue) Enqueue(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %q has no run func", job.Name)
	}
	if q.closed.Load() {
		return ErrClosed
	}
	select {
	case q.jobs <- job:
		q.stats.enqueued.Add(1)
		return nil
	default:
		q.stats.dropped.Add(1)
		q.logger.Warn("queue full, drop job",
			slog.String("job", job.Name),
			slog.Int("capacity", cap(q.jobs)))
		return ErrFull
	}
}

// Shutdown 拒绝新任务并等待正在执行与排队中的任务完成，超时返回错误。
func (q *Queue) Shutdown(timeout time.Duration) error {
	if !q.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	close(q.jobs)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("queue shutdown completed")
		return nil
	case <-time.After(timeout):
		q.logger.Error("queue shutdown timeout", slog.String("timeout", timeout.String()))
		return fmt.Errorf("shutdown timeout after %s", timeout)
	}
}

// Stats 返回统计快照。
func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued:  q.stats.enqueued.Load(),
		Succeeded: q.stats.succeeded.Load(),
		Failed:    q.stats.failed.Load(),
		Dropped:   q.stats.dropped.Load(),
		Panics:    q.stats.panics.Load(),
		Pending:   len(q.jobs),
		Running:   int(q.running.Load()),
	}
}
