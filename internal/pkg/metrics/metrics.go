package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// PagesFetchedTotal 页面抓取结果计数（status: ok / not_found / error）。
	PagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adhunter_pages_fetched_total",
		Help: "Result pages fetched, by outcome",
	}, []string{"status"})

	// FetchDuration 单页抓取耗时。
	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "adhunter_fetch_duration_seconds",
		Help:    "Duration of a single result page fetch",
		Buckets: prometheus.DefBuckets,
	})

	// ListingsExtractedTotal 成功解析的商品数。
	ListingsExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adhunter_listings_extracted_total",
		Help: "Listings extracted from result pages",
	})

	// ListingsRejectedTotal 解析阶段被丢弃的商品数。
	ListingsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adhunter_listings_rejected_total",
		Help: "Raw items rejected during extraction, by reason",
	}, []string{"reason"})

	// ListingsSkippedTotal 被过滤规则跳过的商品数。
	ListingsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adhunter_listings_skipped_total",
		Help: "Listings skipped by query filters, by reason",
	}, []string{"reason"})

	// ListingsChangedTotal 新增或发生变化的商品数。
	ListingsChangedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adhunter_listings_changed_total",
		Help: "Listings that were new or changed since the last poll",
	})

	// NotificationsTotal 通知发送结果（status: sent / failed / duplicate / disabled）。
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adhunter_notifications_total",
		Help: "Notification delivery attempts, by outcome",
	}, []string{"status"})

	// RunDuration 一次批量运行的耗时。
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "adhunter_run_duration_seconds",
		Help:    "Duration of a full batch run",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	// QueryFailuresTotal 单个查询处理失败（错误或 panic）次数。
	QueryFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adhunter_query_failures_total",
		Help: "Queries whose processing ended with an error or panic",
	})

	// RunConflictsTotal 因已有运行而被拒绝的次数。
	RunConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adhunter_run_conflicts_total",
		Help: "Invocations rejected because another run holds the lock",
	})

	// RateLimitWaitDuration 通知限流等待耗时。
	RateLimitWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "adhunter_ratelimit_wait_seconds",
		Help:    "Time spent waiting for a notification rate limit token",
		Buckets: prometheus.DefBuckets,
	})

	// RateLimitTimeoutTotal 限流等待超时次数。
	RateLimitTimeoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adhunter_ratelimit_timeout_total",
		Help: "Rate limit waits aborted by context cancellation",
	})
)

// Push 将默认注册表中的指标推送到 Pushgateway，gatewayURL 为空时不做任何事。
func Push(ctx context.Context, gatewayURL, job string) error {
	if gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
