package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"adhunter/internal/config"
	"adhunter/internal/model"

	"github.com/doyensec/safeurl"
	"github.com/gregdel/pushover"
)

// Pushover 接口的长度上限。
const (
	pushoverMessageMax  = 1024
	pushoverTitleMax    = 250
	pushoverURLMax      = 512
	pushoverURLTitleMax = 100
)

var errImageTooLarge = errors.New("image exceeds size limit")

// pushoverSender 是 *pushover.Pushover 的发送方法，测试中可替换。
type pushoverSender interface {
	SendMessage(message *pushover.Message, recipient *pushover.Recipient) (*pushover.Response, error)
}

// PushoverNotifier 通过 Pushover 推送通知，有图片时附带图片附件。
type PushoverNotifier struct {
	cfg       config.PushoverConfig
	app       pushoverSender
	recipient *pushover.Recipient
	images    *http.Client
	logger    *slog.Logger
}

// PushoverOption 配置 PushoverNotifier。
type PushoverOption func(*PushoverNotifier)

// WithImageClient 替换下载图片附件使用的 HTTP 客户端。
func WithImageClient(c *http.Client) PushoverOption {
	return func(n *PushoverNotifier) { n.images = c }
}

func withSender(s pushoverSender) PushoverOption {
	return func(n *PushoverNotifier) { n.app = s }
}

// NewPushoverNotifier 创建 Pushover 通知器。
//
// 图片下载默认使用 safeurl 客户端，拒绝内网、回环与元数据地址。
func NewPushoverNotifier(cfg config.PushoverConfig, logger *slog.Logger, opts ...PushoverOption) *PushoverNotifier {
	n := &PushoverNotifier{
		cfg:       cfg,
		app:       pushover.New(cfg.AppToken),
		recipient: pushover.NewRecipient(cfg.UserKey),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.images == nil {
		n.images = newImageClient(cfg.ImageTimeout)
	}
	return n
}

func newImageClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(c).Client
}

func (n *PushoverNotifier) Name() string { return "pushover" }

func (n *PushoverNotifier) Enabled() bool {
	return len(n.cfg.AppToken) > 1 && len(n.cfg.UserKey) > 1
}

// Send 发送通知。图片下载失败时降级为纯文本通知。
func (n *PushoverNotifier) Send(ctx context.Context, notif *model.Notification) error {
	if !n.Enabled() {
		return nil
	}

	msg := pushover.NewMessageWithTitle(truncate(notif.Message, pushoverMessageMax), truncate(notif.Title, pushoverTitleMax))
	msg.HTML = true
	if len(notif.URL) <= pushoverURLMax {
		msg.URL = notif.URL
		msg.URLTitle = truncate(notif.URLTitle, pushoverURLTitleMax)
	}

	if notif.ImageURL != "" {
		data, err := n.fetchImage(ctx, notif.ImageURL)
		if err != nil {
			n.logger.Warn("image attachment skipped",
				slog.String("image_url", notif.ImageURL),
				slog.String("error", err.Error()))
		} else if err := msg.AddAttachment(bytes.NewReader(data)); err != nil {
			n.logger.Warn("image attachment rejected", slog.String("error", err.Error()))
		}
	}

	resp, err := n.sendMessage(ctx, msg)
	if err != nil {
		return fmt.Errorf("pushover send: %w", err)
	}
	if resp != nil && resp.Status != 1 {
		return fmt.Errorf("pushover send: status %d", resp.Status)
	}
	return nil
}

type sendResult struct {
	resp *pushover.Response
	err  error
}

// sendMessage 在 SendTimeout 内等待推送结果。
//
// pushover 客户端的请求不接受 context，超时或取消后调用方立即返回，
// 后台请求的结果被丢弃。
func (n *PushoverNotifier) sendMessage(ctx context.Context, msg *pushover.Message) (*pushover.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeout := n.cfg.SendTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan sendResult, 1)
	go func() {
		resp, err := n.app.SendMessage(msg, n.recipient)
		done <- sendResult{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (n *PushoverNotifier) fetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	timeout := n.cfg.ImageTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	resp, err := n.images.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download image: status %d", resp.StatusCode)
	}

	limit := n.cfg.MaxImageBytes
	if limit <= 0 {
		limit = 2 << 20
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, errImageTooLarge
	}
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	return data, nil
}

// truncate 按字符截断，不会切断 UTF-8 编码。
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
