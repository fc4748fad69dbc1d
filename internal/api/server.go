package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"adhunter/internal/api/middleware"
	"adhunter/internal/app"
	"adhunter/internal/config"
	"adhunter/internal/model"
	"adhunter/internal/pkg/queue"
	"adhunter/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// 手动触发运行的频率上限。
const (
	runTriggerInterval = 30 * time.Second
	runTriggerBurst    = 1
)

// Service 是管理 API 依赖的业务接口，由 *app.Service 实现。
type Service interface {
	RunAll(ctx context.Context) (*app.RunReport, error)
	Running(ctx context.Context) (bool, error)
	Ping(ctx context.Context) error
	AddQuery(ctx context.Context, p model.QueryParams) (*model.SearchQuery, error)
	ListQueries(ctx context.Context) ([]app.QueryInfo, error)
	EnableQueries(ctx context.Context, names ...string) (*app.NamesResult, error)
	DisableQueries(ctx context.Context, names ...string) (*app.NamesResult, error)
	DeleteQueries(ctx context.Context, names ...string) (*app.NamesResult, error)
	ResetQuery(ctx context.Context, name string) error
}

// Server 封装管理 API 的路由与后台运行队列。
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	svc    Service
	router *gin.Engine
	runs   *queue.Queue

	mu      sync.Mutex
	lastRun *runStatus
}

// runStatus 最近一次由 API 触发的运行结果。
type runStatus struct {
	Report   *app.RunReport `json:"report,omitempty"`
	Error    string         `json:"error,omitempty"`
	Finished time.Time      `json:"finished"`
}

// NewServer 创建 API 服务器并注册路由。
//
// 参数:
//
//	cfg: 配置对象
//	svc: 业务服务
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 服务器实例，调用 Start 后才会执行排队的运行
func NewServer(cfg *config.Config, svc Service, logger *slog.Logger) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:    cfg,
		logger: logger,
		svc:    svc,
		router: r,
		runs:   queue.New(logger, 1, cfg.App.RunQueueCap),
	}
	s.registerRoutes()
	return s
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Start 启动后台运行队列。
func (s *Server) Start(ctx context.Context) {
	s.runs.Start(ctx)
}

// Shutdown 停止接收新的运行并等待当前运行结束。
func (s *Server) Shutdown(timeout time.Duration) error {
	return s.runs.Shutdown(timeout)
}

func (s *Server) registerRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	authed := s.router.Group("/")
	authed.Use(middleware.AuthMiddleware(s.cfg.Security.JWTSecret))
	{
		authed.GET("/queries", s.handleListQueries)
		authed.POST("/queries", s.handleCreateQuery)
		authed.POST("/queries/:name/enable", s.handleEnableQuery)
		authed.POST("/queries/:name/disable", s.handleDisableQuery)
		authed.POST("/queries/:name/reset", s.handleResetQuery)
		authed.DELETE("/queries/:name", s.handleDeleteQuery)

		limiter := rate.NewLimiter(rate.Every(runTriggerInterval), runTriggerBurst)
		authed.POST("/runs", middleware.Throttle(limiter), s.handleTriggerRun)
		authed.GET("/runs/last", s.handleLastRun)
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.svc.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	running, _ := s.svc.Running(ctx)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "running": running, "queue": s.runs.Stats()})
}

// createQueryRequest 是 POST /queries 的请求体。
type createQueryRequest struct {
	Name        string `json:"name" binding:"required"`
	URL         string `json:"url" binding:"required"`
	Pages       int    `json:"pages"`
	Pattern     string `json:"pattern"`
	MinPrice    int64  `json:"min_price"`
	MaxPrice    int64  `json:"max_price"`
	SkipSold    bool   `json:"skip_sold"`
	SkipNoPrice bool   `json:"skip_no_price"`
}

func (s *Server) handleCreateQuery(c *gin.Context) {
	var req createQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	q, err := s.svc.AddQuery(c.Request.Context(), model.QueryParams{
		Name:        req.Name,
		URL:         req.URL,
		Pages:       req.Pages,
		Pattern:     req.Pattern,
		MinPrice:    req.MinPrice,
		MaxPrice:    req.MaxPrice,
		SkipSold:    req.SkipSold,
		SkipNoPrice: req.SkipNoPrice,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

func (s *Server) handleListQueries(c *gin.Context) {
	queries, err := s.svc.ListQueries(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"queries": queries})
}

func (s *Server) handleEnableQuery(c *gin.Context) {
	s.applyToName(c, s.svc.EnableQueries)
}

func (s *Server) handleDisableQuery(c *gin.Context) {
	s.applyToName(c, s.svc.DisableQueries)
}

func (s *Server) handleDeleteQuery(c *gin.Context) {
	s.applyToName(c, s.svc.DeleteQueries)
}

// applyToName 对路径中的单个名称执行批量操作，不存在时返回 404。
func (s *Server) applyToName(c *gin.Context, fn func(ctx context.Context, names ...string) (*app.NamesResult, error)) {
	name := c.Param("name")
	res, err := fn(c.Request.Context(), name)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if len(res.Done) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "search query not found"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleResetQuery(c *gin.Context) {
	if err := s.svc.ResetQuery(c.Request.Context(), c.Param("name")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// handleTriggerRun 将一次批量运行放入后台队列。
//
// 已有运行持有锁时返回 409；队列中已有等待的运行时同样返回 409。
func (s *Server) handleTriggerRun(c *gin.Context) {
	running, err := s.svc.Running(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if running {
		c.JSON(http.StatusConflict, gin.H{"error": app.ErrAlreadyRunning.Error()})
		return
	}

	err = s.runs.Enqueue(queue.Job{Name: "run_all", Run: s.runAll})
	switch {
	case errors.Is(err, queue.ErrFull):
		c.JSON(http.StatusConflict, gin.H{"error": "a run is already queued"})
		return
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (s *Server) runAll(ctx context.Context) error {
	report, err := s.svc.RunAll(ctx)
	st := &runStatus{Report: report, Finished: time.Now()}
	if err != nil {
		st.Error = err.Error()
	}
	s.mu.Lock()
	s.lastRun = st
	s.mu.Unlock()
	return err
}

func (s *Server) handleLastRun(c *gin.Context) {
	s.mu.Lock()
	st := s.lastRun
	s.mu.Unlock()
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run recorded yet"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// writeError 将业务错误映射为 HTTP 状态码。
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, app.ErrAlreadyRunning), errors.Is(err, store.ErrQueryExists):
		status = http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInvalidName),
		errors.Is(err, model.ErrInvalidURL),
		errors.Is(err, model.ErrInvalidPattern),
		errors.Is(err, model.ErrInvalidPriceRange):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("path", c.Request.URL.Path), slog.String("error", err.Error()))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
