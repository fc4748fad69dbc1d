package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"adhunter/internal/config"
	"adhunter/internal/crawler"
	"adhunter/internal/pkg/notify"
	"adhunter/internal/pkg/ratelimit"
	"adhunter/internal/pkg/runlock"
	"adhunter/internal/store"
	"adhunter/internal/store/redisstore"
	"adhunter/internal/store/sqlstore"

	"github.com/redis/go-redis/v9"
)

// storePrefix 是 Redis 存储的键前缀。
const storePrefix = "adhunter"

// Bootstrap 根据配置组装 Service。
//
// 它负责：
// 1. 连接 Redis（运行锁、已推送集合、通知限流始终使用 Redis）
// 2. 按 store.driver 打开存储
// 3. 按 crawler.fetch_mode 创建抓取器
// 4. 组合 Pushover 与邮件通知渠道
//
// 参数:
//
//	ctx: 上下文
//	cfg: 已校验的配置
//	logger: 日志记录器
//
// 返回值:
//
//	*Service: 组装完成的服务
//	func() error: 释放全部资源
//	error: 任一依赖初始化失败
func Bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, func() error, error) {
	var closers []func() error
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	closers = append(closers, rdb.Close)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = closeAll()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
	}

	st, err := openStore(ctx, cfg, rdb)
	if err != nil {
		_ = closeAll()
		return nil, nil, err
	}
	closers = append(closers, st.Close)

	var fetcher crawler.Fetcher
	switch cfg.Crawler.FetchMode {
	case "browser":
		bf, err := crawler.NewBrowserFetcher(ctx, cfg, logger)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("start browser: %w", err)
		}
		closers = append(closers, bf.Close)
		fetcher = bf
	default:
		fetcher = crawler.NewHTTPFetcher(cfg.Crawler)
	}

	notifier := notify.NewMulti(logger,
		notify.NewPushoverNotifier(cfg.Pushover, logger),
		notify.NewEmailNotifier(cfg.Email, logger),
	)
	if !notifier.Enabled() {
		logger.Warn("no notification channel configured, changes will only be stored")
	}

	svc := New(Deps{
		Config:   cfg,
		Store:    st,
		Lock:     runlock.New(rdb, cfg.App.RunLockKey, cfg.App.RunLockTTL),
		Crawler:  crawler.NewService(cfg.Crawler, fetcher, st, logger),
		Notifier: notifier,
		Limiter:  ratelimit.New(rdb, logger, ratelimit.DefaultKey, cfg.Pushover.RateLimit, cfg.Pushover.RateBurst),
		Redis:    rdb,
		Logger:   logger,
	})
	logger.Debug("service ready",
		slog.String("store", st.Location()),
		slog.String("fetch_mode", cfg.Crawler.FetchMode))
	return svc, closeAll, nil
}

func openStore(ctx context.Context, cfg *config.Config, rdb *redis.Client) (store.Store, error) {
	switch cfg.Store.Driver {
	case "mysql":
		return sqlstore.Open(ctx, "mysql", cfg.MySQL.DSN)
	case "postgres":
		return sqlstore.Open(ctx, "postgres", cfg.Postgres.DSN)
	default:
		return redisstore.New(rdb, storePrefix), nil
	}
}
