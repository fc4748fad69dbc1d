package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"adhunter/internal/config"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const stealthScriptTimeout = 5 * time.Second

// 浏览器模式下屏蔽的高带宽资源与追踪脚本。
var blockedURLs = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg", "*.ico", "*.avif",
	"*.woff", "*.woff2", "*.ttf", "*.otf",
	"*.mp4", "*.webm", "*.mp3",
	"*google-analytics*",
	"*googletagmanager*",
	"*doubleclick*",
	"*criteo*",
	"*facebook*",
	"*didomi*",
}

// BrowserFetcher 使用无头 Chrome 渲染结果页，用于需要执行 JS 才能得到列表的页面。
type BrowserFetcher struct {
	mu        sync.Mutex
	browser   *rod.Browser
	timeout   time.Duration
	userAgent string
	logger    *slog.Logger
}

// NewBrowserFetcher 启动浏览器并返回抓取器。调用方负责 Close。
func NewBrowserFetcher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*BrowserFetcher, error) {
	browser, err := startBrowser(ctx, cfg.Browser, logger)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Crawler.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BrowserFetcher{
		browser:   browser,
		timeout:   timeout,
		userAgent: cfg.Crawler.UserAgent,
		logger:    logger,
	}, nil
}

// startBrowser 根据配置启动浏览器。
//
// 未指定浏览器路径时自动下载；针对容器环境关闭沙箱与 GPU。
// 代理 URL 中的用户名密码通过 rod 的认证回调处理。
func startBrowser(ctx context.Context, cfg config.BrowserConfig, logger *slog.Logger) (*rod.Browser, error) {
	bin := cfg.BinPath
	if bin == "" {
		logger.Info("no browser binary specified, downloading default...")
		path, err := launcher.NewBrowser().Get()
		if err != nil {
			return nil, fmt.Errorf("download browser: %w", err)
		}
		bin = path
	}

	l := launcher.New().
		Headless(cfg.Headless).
		Bin(bin).
		NoSandbox(true).
		Set("disable-dev-shm-usage", "true").
		Set("disable-gpu", "true").
		Set("disk-cache-size", "1").
		Set("js-flags", "--max_old_space_size=512")

	var proxyUser, proxyPass string
	if cfg.ProxyURL != "" {
		parsed, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("invalid proxy url: %s", cfg.ProxyURL)
		}
		server := fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
		if parsed.User != nil {
			proxyUser = parsed.User.Username()
			proxyPass, _ = parsed.User.Password()
		}
		l = l.Proxy(server)
		logger.Info("using http proxy", slog.String("server", server))
	}

	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().Context(ctx).ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	if proxyUser != "" {
		go browser.MustHandleAuth(proxyUser, proxyPass)()
	}

	logger.Info("browser started", slog.String("bin", bin), slog.Bool("headless", cfg.Headless))
	return browser, nil
}

// Fetch 打开新标签页加载 url，返回渲染后的 HTML。
//
// 状态码取自主文档的网络响应；拿不到时按 200 处理。
func (f *BrowserFetcher) Fetch(ctx context.Context, target string) (*Page, error) {
	f.mu.Lock()
	browser := f.browser
	f.mu.Unlock()
	if browser == nil {
		return nil, fmt.Errorf("browser not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer func() { _ = page.Close() }()

	if err := applyStealth(ctx, page); err != nil {
		return nil, err
	}
	if err := (proto.NetworkSetBlockedURLs{Urls: blockedURLs}).Call(page); err != nil {
		f.logger.Debug("set blocked urls failed", slog.String("error", err.Error()))
	}
	if f.userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: f.userAgent}); err != nil {
			f.logger.Warn("set user agent failed", slog.String("error", err.Error()))
		}
	}

	status := 0
	contentType := ""
	waitDoc := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument {
			return false
		}
		status = e.Response.Status
		contentType = e.Response.MIMEType
		return true
	})

	if err := page.Navigate(target); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	waitDoc()
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	if status == 0 {
		status = 200
	}

	result := &Page{URL: target, StatusCode: status, ContentType: contentType}
	if status == 404 {
		return result, nil
	}
	if status < 200 || status >= 300 {
		return nil, &StatusError{URL: target, StatusCode: status}
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("read html: %w", err)
	}
	title := ""
	if info, err := page.Info(); err == nil {
		title = info.Title
	}
	if kind := detectBlockType(title, html); kind != "" {
		return nil, &BlockedError{URL: target, Kind: kind}
	}
	result.Body = []byte(html)
	if result.ContentType == "" {
		result.ContentType = "text/html"
	}
	return result, nil
}

// applyStealth 注入反检测脚本，超时或上下文结束时返回错误。
func applyStealth(ctx context.Context, page *rod.Page) error {
	timer := time.NewTimer(stealthScriptTimeout)
	defer timer.Stop()
	done := make(chan error, 1)
	go func() {
		_, err := page.EvalOnNewDocument(stealth.JS)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("apply stealth script: %w", err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("apply stealth script timeout after %v", stealthScriptTimeout)
	case <-ctx.Done():
		return fmt.Errorf("context cancelled during stealth script: %w", ctx.Err())
	}
}

// Close 关闭浏览器。
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.browser = nil
	return err
}
