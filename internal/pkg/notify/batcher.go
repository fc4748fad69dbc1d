package notify

import (
	"context"
	"log/slog"

	"adhunter/internal/model"
	"adhunter/internal/pkg/dedup"
	"adhunter/internal/pkg/metrics"
)

// Waiter 在每次发送前等待限流令牌。
type Waiter interface {
	Wait(ctx context.Context) error
}

type pending struct {
	listing   *model.Listing
	queryName string
}

// FlushResult 一次 Flush 的统计。
type FlushResult struct {
	Sent       int
	Failed     int
	Duplicates int
}

// Batcher 缓存一页中需要通知的商品，并在 Flush 时逐条发送。
//
// 同一次运行内按商品标识去重：只有发送成功的标识才会记入已推送集合，
// 失败的商品在后续 Flush 中仍可重试。Batcher 只在运行协程中使用。
type Batcher struct {
	notifier  Notifier
	renderer  *Renderer
	delivered dedup.Set
	limiter   Waiter
	logger    *slog.Logger
	buf       []pending
}

// NewBatcher 创建批量发送器。limiter 可为 nil。
func NewBatcher(n Notifier, r *Renderer, delivered dedup.Set, limiter Waiter, logger *slog.Logger) *Batcher {
	return &Batcher{
		notifier:  n,
		renderer:  r,
		delivered: delivered,
		limiter:   limiter,
		logger:    logger,
	}
}

// Add 将商品加入待发送队列。
func (b *Batcher) Add(l *model.Listing, queryName string) {
	b.buf = append(b.buf, pending{listing: l, queryName: queryName})
}

// Len 返回待发送数量。
func (b *Batcher) Len() int { return len(b.buf) }

// Render 渲染一条通知。
func (b *Batcher) Render(l *model.Listing, queryName string) *model.Notification {
	return b.renderer.Render(l, queryName)
}

// Flush 按加入顺序发送全部待发送商品，结束后总是清空队列。
//
// 通知渠道未配置时不发起任何调用；上下文结束时停止发送剩余条目。
func (b *Batcher) Flush(ctx context.Context) FlushResult {
	var res FlushResult
	items := b.buf
	b.buf = nil
	if len(items) == 0 {
		return res
	}

	if b.notifier == nil || !b.notifier.Enabled() {
		b.logger.Warn("notification credentials missing, dropping queued notifications",
			slog.Int("count", len(items)))
		metrics.NotificationsTotal.WithLabelValues("disabled").Add(float64(len(items)))
		return res
	}

	b.logger.Info("sending queued notifications", slog.Int("count", len(items)))
	for _, it := range items {
		uid := it.listing.UID
		done, err := b.delivered.Contains(ctx, uid)
		if err != nil {
			b.logger.Warn("delivered set lookup failed", slog.String("uid", uid), slog.String("error", err.Error()))
		}
		if done {
			res.Duplicates++
			metrics.NotificationsTotal.WithLabelValues("duplicate").Inc()
			continue
		}

		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				b.logger.Warn("notification flush interrupted", slog.String("error", err.Error()))
				return res
			}
		}

		n := b.renderer.Render(it.listing, it.queryName)
		if err := b.notifier.Send(ctx, n); err != nil {
			res.Failed++
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			b.logger.Warn("notification failed",
				slog.String("uid", uid),
				slog.String("channel", b.notifier.Name()),
				slog.String("error", err.Error()))
			continue
		}
		res.Sent++
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
		if err := b.delivered.Add(ctx, uid); err != nil {
			b.logger.Warn("mark delivered failed", slog.String("uid", uid), slog.String("error", err.Error()))
		}
		b.logger.Debug("notification sent", slog.String("uid", uid), slog.String("query", it.queryName))
	}
	return res
}
