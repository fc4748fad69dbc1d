package crawler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"adhunter/internal/config"
	"adhunter/internal/diff"
	"adhunter/internal/extract"
	"adhunter/internal/filter"
	"adhunter/internal/model"
	"adhunter/internal/pkg/metrics"
	"adhunter/internal/pkg/notify"
	"adhunter/internal/store"
)

// defaultMaxPages 是 pages=0 且未配置上限时的安全上限。
const defaultMaxPages = 300

// 停止翻页的原因。
const (
	StopCap        = "cap"
	StopNotFound   = "not_found"
	StopEmpty      = "empty"
	StopParseError = "parse_error"
)

// Result 单个查询一次抓取的统计。
type Result struct {
	Pages      int // 成功解析的页数
	Listings   int // 抽取出的商品数
	Rejected   int // 抽取阶段被丢弃的条目数
	Skipped    int // 被过滤的商品数
	Changed    int // 新增或变化并已写入的商品数
	Queued     int // 加入通知队列的商品数
	Errors     int // 请求失败的页数
	StopReason string
}

// Service 按页抓取一个查询，并把每个商品依次交给 过滤 -> 变化检测 -> 持久化/通知。
//
// 所有页面严格串行处理，页与页之间按配置等待。
type Service struct {
	cfg       config.CrawlerConfig
	fetcher   Fetcher
	extractor *extract.Extractor
	detector  *diff.Detector
	store     store.Store
	logger    *slog.Logger
}

// NewService 创建抓取服务。
func NewService(cfg config.CrawlerConfig, fetcher Fetcher, st store.Store, logger *slog.Logger) *Service {
	return &Service{
		cfg:     cfg,
		fetcher: fetcher,
		extractor: extract.New(extract.Options{
			AllowedHosts: cfg.AllowedHosts,
			SkipPromoted: cfg.SkipPromoted,
		}),
		detector: diff.NewDetector(st),
		store:    st,
		logger:   logger,
	}
}

// PageCap 返回查询实际的翻页上限。
func (s *Service) PageCap(q *model.SearchQuery) int {
	if q.Pages > 0 {
		return q.Pages
	}
	if s.cfg.MaxPages > 0 {
		return s.cfg.MaxPages
	}
	return defaultMaxPages
}

// CrawlQuery 抓取一个查询的全部结果页。
//
// 停止条件：404、页面没有任何条目、页面无法解析、达到页数上限。
// 单页请求失败只记录日志并继续下一页。每页处理完后立即发送该页排队的通知。
// 循环正常结束后清除查询的 first_run 标记；上下文被取消时返回 ctx.Err() 且不清除。
//
// 参数:
//
//	ctx: 上下文
//	q: 查询
//	batcher: 本次运行的通知批量发送器
//
// 返回值:
//
//	*Result: 抓取统计
//	error: 只在上下文结束或无法清除 first_run 时返回
func (s *Service) CrawlQuery(ctx context.Context, q *model.SearchQuery, batcher *notify.Batcher) (*Result, error) {
	res := &Result{StopReason: StopCap}
	log := s.logger.With(slog.String("query", q.Name))
	limit := s.PageCap(q)

	for page := 1; page <= limit; page++ {
		if page > 1 {
			if err := Wait(ctx, s.cfg.PageDelay); err != nil {
				return res, err
			}
		}

		pageURL := BuildPageURL(q.URL, page)
		log.Info("fetching page", slog.Int("page", page), slog.String("url", pageURL))

		start := time.Now()
		p, err := s.fetcher.Fetch(ctx, pageURL)
		metrics.FetchDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Errors++
			metrics.PagesFetchedTotal.WithLabelValues("error").Inc()
			log.Error("page fetch failed", slog.Int("page", page), slog.String("error", err.Error()))
			continue
		}

		if p.StatusCode == 404 {
			metrics.PagesFetchedTotal.WithLabelValues("not_found").Inc()
			log.Warn("got a 404, end of pages", slog.Int("page", page))
			res.StopReason = StopNotFound
			break
		}

		pr, err := s.extractor.ExtractPage(p.Content(), q.ID)
		if err != nil {
			metrics.PagesFetchedTotal.WithLabelValues("parse_error").Inc()
			log.Error("page parse failed", slog.Int("page", page), slog.String("error", err.Error()))
			res.StopReason = StopParseError
			break
		}
		if pr.RawCount == 0 {
			metrics.PagesFetchedTotal.WithLabelValues("empty").Inc()
			log.Warn("found zero listings, end of pages", slog.Int("page", page))
			res.StopReason = StopEmpty
			break
		}

		metrics.PagesFetchedTotal.WithLabelValues("ok").Inc()
		metrics.ListingsExtractedTotal.Add(float64(len(pr.Listings)))
		res.Rejected += len(pr.Rejections)
		for _, rj := range pr.Rejections {
			metrics.ListingsRejectedTotal.WithLabelValues(rj.Reason).Inc()
			log.Info("listing rejected",
				slog.Int("page", page),
				slog.String("reason", rj.Reason),
				slog.String("href", rj.Link),
				slog.String("name", rj.Name))
		}
		res.Pages++
		res.Listings += len(pr.Listings)

		for _, l := range pr.Listings {
			s.handleListing(ctx, log, q, l, batcher, res)
		}

		if batcher.Len() > 0 {
			fr := batcher.Flush(ctx)
			log.Info("page done, notifications flushed",
				slog.Int("page", page),
				slog.Int("sent", fr.Sent),
				slog.Int("failed", fr.Failed),
				slog.Int("duplicates", fr.Duplicates))
		} else {
			log.Info("page done", slog.Int("page", page), slog.Int("listings", len(pr.Listings)))
		}
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	if q.FirstRun {
		if err := s.store.SetQueryFirstRun(ctx, q.ID, false); err != nil {
			return res, err
		}
		q.FirstRun = false
	}

	log.Info("query done",
		slog.Int("pages", res.Pages),
		slog.Int("listings", res.Listings),
		slog.Int("changed", res.Changed),
		slog.Int("queued", res.Queued),
		slog.String("stop", res.StopReason))
	return res, nil
}

// handleListing 处理单个商品：过滤、检测变化、写入、排队通知。
func (s *Service) handleListing(ctx context.Context, log *slog.Logger, q *model.SearchQuery, l *model.Listing, batcher *notify.Batcher, res *Result) {
	if reason, skip := filter.ShouldSkip(q, l); skip {
		res.Skipped++
		metrics.ListingsSkippedTotal.WithLabelValues(string(reason)).Inc()
		log.Info("listing skipped", slog.String("uid", l.UID), slog.String("reason", reason.String()))
		return
	}

	changed, err := s.detector.HasChanged(ctx, l, q.ID)
	if err != nil {
		log.Warn("change detection failed, listing skipped", slog.String("uid", l.UID), slog.String("error", err.Error()))
		return
	}
	if !changed {
		log.Debug("no changes detected", slog.String("uid", l.UID))
		return
	}

	if err := s.store.UpsertListing(ctx, l); err != nil {
		log.Error("save listing failed", slog.String("uid", l.UID), slog.String("error", err.Error()))
		return
	}
	res.Changed++
	metrics.ListingsChangedTotal.Inc()

	if q.FirstRun {
		log.Debug("listing saved", slog.String("uid", l.UID))
		return
	}
	batcher.Add(l, q.Name)
	res.Queued++
	log.Info("changes detected, notification queued", slog.String("uid", l.UID), slog.String("name", l.Name))
}

// Wait 阻塞 d 或直到上下文结束。d<=0 时立即返回（仍检查上下文）。
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsCanceled 判断错误是否由上下文取消或超时引起。
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
