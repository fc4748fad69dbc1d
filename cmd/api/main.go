package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adhunter/internal/api"
	"adhunter/internal/app"
	"adhunter/internal/config"
	"adhunter/internal/pkg/logger"

	"github.com/gin-gonic/gin"
)

// main 是管理 API 的入口函数。
//
// 它负责：
// 1. 加载并校验配置
// 2. 初始化日志与业务服务
// 3. 启动 HTTP 服务与后台运行队列，收到信号后优雅关闭
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	appLogger := logger.New(os.Stdout, cfg.App.LogLevel, cfg.App.LogFormat)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, closeFn, err := app.Bootstrap(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("init service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if cfg.App.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Security.JWTSecret == "" {
		appLogger.Warn("security.jwt_secret is empty, admin api is unauthenticated")
	}
	srv := api.NewServer(cfg, svc, appLogger)
	srv.Start(ctx)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info("api server listening", slog.String("addr", cfg.App.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("server run failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down api server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("http shutdown failed", slog.String("error", err.Error()))
	}
	// 运行上下文已取消，正在进行的运行会在当前页结束后退出并释放锁
	if err := srv.Shutdown(30 * time.Second); err != nil {
		appLogger.Error("run queue shutdown failed", slog.String("error", err.Error()))
	}
	if err := closeFn(); err != nil {
		appLogger.Error("close resources failed", slog.String("error", err.Error()))
	}
}
