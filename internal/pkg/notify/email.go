package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"adhunter/internal/config"
	"adhunter/internal/model"

	"gopkg.in/gomail.v2"
)

// mailDialer 是 gomail.Dialer 的发送方法，测试中可替换。
type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier 实现邮件通知。
type EmailNotifier struct {
	cfg    config.EmailConfig
	dialer mailDialer
	logger *slog.Logger
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass),
		logger: logger,
	}
}

func (n *EmailNotifier) Name() string { return "email" }

func (n *EmailNotifier) Enabled() bool {
	return n.cfg.SMTPHost != "" && n.cfg.FromEmail != "" && strings.TrimSpace(n.cfg.ToEmail) != ""
}

// Send 发送邮件通知。
func (n *EmailNotifier) Send(ctx context.Context, notif *model.Notification) error {
	if !n.Enabled() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", n.cfg.ToEmail)
	m.SetHeader("Subject", "[adhunter] "+notif.Title)
	m.SetBody("text/html", n.buildHTMLBody(notif))

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("email notification sent", slog.String("to", n.cfg.ToEmail), slog.String("title", notif.Title))
	return nil
}

// buildHTMLBody 生成邮件正文。Message 已经由 Renderer 转义，标题与链接在这里转义。
func (n *EmailNotifier) buildHTMLBody(notif *model.Notification) string {
	image := ""
	if notif.ImageURL != "" {
		image = fmt.Sprintf(`<div class="hero"><img src="%s" alt="" /></div>`, html.EscapeString(notif.ImageURL))
	}
	linkTitle := notif.URLTitle
	if linkTitle == "" {
		linkTitle = notif.URL
	}

	template := `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8" />
<style>
  body { font-family: Arial, sans-serif; background: #f6f7fb; color: #1f2937; }
  .card { max-width: 600px; margin: 24px auto; background: #ffffff; border-radius: 12px; overflow: hidden; border: 1px solid #e5e7eb; }
  .header { background: #0f172a; color: #ffffff; padding: 16px 20px; font-size: 16px; font-weight: bold; }
  .content { padding: 20px; }
  .hero img { width: 100%%; max-width: 520px; display: block; margin: 0 auto 16px; border-radius: 8px; }
  .details { font-size: 16px; margin-bottom: 16px; }
  .cta { display: inline-block; padding: 12px 20px; background: #22c55e; color: #fff; text-decoration: none; border-radius: 8px; font-weight: bold; }
</style>
</head>
<body>
  <div class="card">
    <div class="header">%s</div>
    <div class="content">
      %s
      <div class="details">%s</div>
      <div style="text-align:center; margin-bottom: 12px;">
        <a class="cta" href="%s" target="_blank">%s</a>
      </div>
    </div>
  </div>
</body>
</html>`

	return fmt.Sprintf(template,
		html.EscapeString(notif.Title),
		image,
		notif.Message,
		html.EscapeString(notif.URL),
		html.EscapeString(linkTitle),
	)
}
