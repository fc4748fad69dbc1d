// Package app 协调一次批量运行：获取运行锁、依次抓取所有启用的查询、发送通知，
// 并提供查询的增删改查等维护操作。
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"adhunter/internal/config"
	"adhunter/internal/crawler"
	"adhunter/internal/model"
	"adhunter/internal/pkg/dedup"
	"adhunter/internal/pkg/metrics"
	"adhunter/internal/pkg/notify"
	"adhunter/internal/pkg/runlock"
	"adhunter/internal/store"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrAlreadyRunning 另一个实例持有运行锁。
	ErrAlreadyRunning = errors.New("another instance is already running")
	// ErrNotificationsDisabled 没有配置任何通知渠道。
	ErrNotificationsDisabled = errors.New("no notification channel configured")
)

// releaseTimeout 释放运行锁时使用的独立超时，运行上下文被取消后仍能释放。
const releaseTimeout = 5 * time.Second

// QueryCrawler 抓取一个查询的全部结果页。
type QueryCrawler interface {
	CrawlQuery(ctx context.Context, q *model.SearchQuery, batcher *notify.Batcher) (*crawler.Result, error)
}

// Deps 是 Service 的依赖集合。
type Deps struct {
	Config   *config.Config
	Store    store.Store
	Lock     *runlock.Lock
	Crawler  QueryCrawler
	Notifier notify.Notifier
	Limiter  notify.Waiter
	Redis    *redis.Client // 为空时已推送集合退化为进程内实现
	Logger   *slog.Logger
}

// Service 是运行协调器与查询维护入口，CLI 与管理 API 共用。
type Service struct {
	cfg      *config.Config
	store    store.Store
	lock     *runlock.Lock
	crawler  QueryCrawler
	notifier notify.Notifier
	renderer *notify.Renderer
	limiter  notify.Waiter
	rdb      *redis.Client
	logger   *slog.Logger
}

// New 创建 Service。
func New(d Deps) *Service {
	cfg := d.Config
	if cfg == nil {
		cfg = config.Default()
	}
	n := d.Notifier
	if n == nil {
		n = notify.NewMulti(d.Logger)
	}
	return &Service{
		cfg:      cfg,
		store:    d.Store,
		lock:     d.Lock,
		crawler:  d.Crawler,
		notifier: n,
		renderer: notify.NewRenderer(cfg.Pushover.URLTitle),
		limiter:  d.Limiter,
		rdb:      d.Redis,
		logger:   d.Logger,
	}
}

// RunContext 是一次运行的状态，运行结束即丢弃。
type RunContext struct {
	ID        string
	Token     string
	Batcher   *notify.Batcher
	Delivered dedup.Set
}

// QueryReport 单个查询在一次运行中的结果。
type QueryReport struct {
	Name   string          `json:"name"`
	Result *crawler.Result `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// RunReport 一次批量运行的汇总。
type RunReport struct {
	RunID    string        `json:"run_id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Queries  []QueryReport `json:"queries"`
}

// Failed 返回失败的查询数。
func (r *RunReport) Failed() int {
	n := 0
	for _, q := range r.Queries {
		if q.Error != "" {
			n++
		}
	}
	return n
}

// RunAll 执行一次批量运行。
//
// 先尝试获取运行锁：锁被占用时通知操作者并返回 ErrAlreadyRunning，不触碰锁。
// 获取成功后按保存顺序处理所有启用的查询，查询之间按配置等待。
// 单个查询的错误或 panic 只记录并汇总，不影响其他查询，也不影响锁的释放。
//
// 参数:
//
//	ctx: 运行上下文，进程收到中断信号时取消
//
// 返回值:
//
//	*RunReport: 运行汇总（获取锁失败时为 nil）
//	error: 锁冲突、Redis 错误、上下文取消，或各查询错误的合并
func (s *Service) RunAll(ctx context.Context) (*RunReport, error) {
	rc, err := s.beginRun(ctx)
	if err != nil {
		return nil, err
	}
	defer s.endRun(rc)

	report := &RunReport{RunID: rc.ID, Started: time.Now()}
	log := s.logger.With(slog.String("run_id", rc.ID))
	defer func() {
		report.Duration = time.Since(report.Started)
		metrics.RunDuration.Observe(report.Duration.Seconds())
		s.pushMetrics(log)
	}()

	queries, err := s.store.ListEnabledQueries(ctx)
	if err != nil {
		return report, fmt.Errorf("list enabled queries: %w", err)
	}
	if len(queries) == 0 {
		log.Info("no enabled search queries, nothing to do")
		return report, nil
	}
	log.Info("run started", slog.Int("queries", len(queries)))

	var errs []error
	for i := range queries {
		q := &queries[i]
		if i > 0 {
			if err := crawler.Wait(ctx, s.cfg.Crawler.QueryDelay); err != nil {
				log.Warn("run interrupted", slog.String("error", err.Error()))
				return report, err
			}
		}

		res, err := s.runQuery(ctx, rc, q)
		qr := QueryReport{Name: q.Name, Result: res}
		if err != nil {
			if crawler.IsCanceled(err) && ctx.Err() != nil {
				report.Queries = append(report.Queries, qr)
				log.Warn("run interrupted", slog.String("query", q.Name))
				return report, err
			}
			metrics.QueryFailuresTotal.Inc()
			qr.Error = err.Error()
			errs = append(errs, fmt.Errorf("query %s: %w", q.Name, err))
			log.Error("query failed", slog.String("query", q.Name), slog.String("error", err.Error()))
		}
		report.Queries = append(report.Queries, qr)
	}

	log.Info("run completed",
		slog.Int("queries", len(report.Queries)),
		slog.Int("failed", report.Failed()),
		slog.String("duration", time.Since(report.Started).String()))
	return report, errors.Join(errs...)
}

// beginRun 获取运行锁并准备运行级状态。
func (s *Service) beginRun(ctx context.Context) (*RunContext, error) {
	token, ok, err := s.lock.TryAcquire(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.RunConflictsTotal.Inc()
		s.logger.Warn("another instance is running, exiting", slog.String("lock", s.lock.Key()))
		s.notifyOperator(ctx, "Another instance of adhunter is already running. This run was skipped.")
		return nil, ErrAlreadyRunning
	}

	id := uuid.NewString()
	var delivered dedup.Set
	if s.rdb != nil {
		delivered = dedup.NewRedisSet(s.rdb, id, s.cfg.App.RunLockTTL)
	} else {
		delivered = dedup.NewMemorySet()
	}
	return &RunContext{
		ID:        id,
		Token:     token,
		Delivered: delivered,
		Batcher:   notify.NewBatcher(s.notifier, s.renderer, delivered, s.limiter, s.logger.With(slog.String("run_id", id))),
	}, nil
}

// endRun 释放运行锁并清理已推送集合。使用独立的上下文，运行被取消后同样执行。
func (s *Service) endRun(rc *RunContext) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	if rs, ok := rc.Delivered.(*dedup.RedisSet); ok {
		if err := rs.Clear(ctx); err != nil {
			s.logger.Warn("clear delivered set failed", slog.String("error", err.Error()))
		}
	}
	if err := s.lock.Release(ctx, rc.Token); err != nil {
		s.logger.Error("release run lock failed", slog.String("run_id", rc.ID), slog.String("error", err.Error()))
		return
	}
	s.logger.Debug("run lock released", slog.String("run_id", rc.ID))
}

// runQuery 处理一个查询，panic 被恢复为错误。
func (s *Service) runQuery(ctx context.Context, rc *RunContext, q *model.SearchQuery) (res *crawler.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("query panic recovered",
				slog.String("query", q.Name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	s.logger.Info("processing search query", slog.String("query", q.Name), slog.Bool("first_run", q.FirstRun))
	return s.crawler.CrawlQuery(ctx, q, rc.Batcher)
}

// notifyOperator 直接发送一条系统通知，不经过去重与限流。
func (s *Service) notifyOperator(ctx context.Context, message string) {
	if !s.notifier.Enabled() {
		return
	}
	n := &model.Notification{Title: "adhunter", Message: message}
	if err := s.notifier.Send(ctx, n); err != nil {
		s.logger.Warn("operator notification failed", slog.String("error", err.Error()))
	}
}

func (s *Service) pushMetrics(log *slog.Logger) {
	url := s.cfg.Metrics.PushgatewayURL
	if url == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metrics.Push(ctx, url, s.cfg.Metrics.Job); err != nil {
		log.Warn("metrics push failed", slog.String("error", err.Error()))
	}
}

// TestNotification 发送一条示例通知，用于检查推送凭据。
func (s *Service) TestNotification(ctx context.Context) error {
	if !s.notifier.Enabled() {
		return ErrNotificationsDisabled
	}
	price := int64(1234)
	location := "Milano MI"
	sample := &model.Listing{
		UID:      "test-notification",
		Name:     "Test notification",
		Price:    &price,
		Shipping: true,
		URL:      "https://www.subito.it/",
		Location: &location,
	}
	if err := s.notifier.Send(ctx, s.renderer.Render(sample, "test")); err != nil {
		return fmt.Errorf("send test notification: %w", err)
	}
	return nil
}

// Sleep 获取运行锁并持有 d，期间每秒回调一次剩余时间，用于测试单实例保护。
func (s *Service) Sleep(ctx context.Context, d time.Duration, tick func(remaining time.Duration)) error {
	rc, err := s.beginRun(ctx)
	if err != nil {
		return err
	}
	defer s.endRun(rc)

	deadline := time.Now().Add(d)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if tick != nil {
			tick(remaining.Round(time.Second))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ForceUnlock 无条件删除运行锁，返回删除前锁是否存在。
func (s *Service) ForceUnlock(ctx context.Context) (bool, error) {
	existed, err := s.lock.Force(ctx)
	if err != nil {
		return false, err
	}
	if existed {
		s.logger.Warn("run lock removed by operator", slog.String("lock", s.lock.Key()))
	}
	return existed, nil
}

// Running 报告当前是否有运行持有锁。
func (s *Service) Running(ctx context.Context) (bool, error) {
	return s.lock.Held(ctx)
}

// Location 返回数据存储位置的描述。
func (s *Service) Location() string {
	return s.store.Location()
}

// Ping 检查存储是否可用。
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
