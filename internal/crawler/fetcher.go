package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"adhunter/internal/config"
	"adhunter/internal/extract"

	"github.com/doyensec/safeurl"
)

// maxPageBytes 单页响应体上限。
const maxPageBytes = 10 << 20

// Page 是一次页面请求的结果。
type Page struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Content 返回交给解析器的页面内容。
func (p *Page) Content() extract.Page {
	return extract.Page{URL: p.URL, ContentType: p.ContentType, Body: p.Body}
}

// Fetcher 抓取一个结果页。
//
// 404 作为正常结果返回（StatusCode=404），其他非 2xx 状态与网络错误返回 error。
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// HTTPFetcher 使用 HTTP 客户端直接请求搜索页或搜索接口。
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	headers   map[string]string
	timeout   time.Duration
}

// HTTPOption 配置 HTTPFetcher。
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient 替换默认的 safeurl 客户端。
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) { f.client = c }
}

// NewHTTPFetcher 创建 HTTP 抓取器。
//
// 默认客户端由 safeurl 构建，只允许 http/https 的 80/443 端口，拒绝内网地址。
func NewHTTPFetcher(cfg config.CrawlerConfig, opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		userAgent: cfg.UserAgent,
		headers:   cfg.Headers,
		timeout:   cfg.RequestTimeout,
	}
	if f.timeout <= 0 {
		f.timeout = 30 * time.Second
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		c := safeurl.GetConfigBuilder().
			SetTimeout(f.timeout).
			SetAllowedSchemes("http", "https").
			SetAllowedPorts(80, 443).
			Build()
		f.client = safeurl.Client(c).Client
	}
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	page := &Page{
		URL:         url,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if resp.StatusCode == http.StatusNotFound {
		return page, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	page.Body = body

	if !strings.Contains(strings.ToLower(page.ContentType), "json") {
		if kind := detectBlockType("", string(body)); kind != "" && kind != "blank_page" {
			return nil, &BlockedError{URL: url, Kind: kind}
		}
	}
	return page, nil
}

// StatusError 非 2xx 且非 404 的响应。
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

// BlockedError 页面被反爬机制拦截。
type BlockedError struct {
	URL  string
	Kind string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked page (%s) for %s", e.Kind, e.URL)
}

// IsBlocked 判断错误是否为拦截页。
func IsBlocked(err error) bool {
	var b *BlockedError
	return errors.As(err, &b)
}
