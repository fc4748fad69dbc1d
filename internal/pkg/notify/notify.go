package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"adhunter/internal/model"
)

// Notifier 定义通知渠道。
type Notifier interface {
	// Name 返回渠道名，用于日志。
	Name() string
	// Enabled 报告凭据是否已配置；未配置时调用方不应调用 Send。
	Enabled() bool
	// Send 发送一条通知。
	//
	// 参数:
	//   ctx: 上下文
	//   n: 已渲染的通知
	Send(ctx context.Context, n *model.Notification) error
}

// Multi 将通知同时发往多个渠道。
//
// 只要有一个启用的渠道发送成功就视为成功；其余渠道的失败只记录日志。
type Multi struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewMulti 创建组合通知器，nil 项会被忽略。
func NewMulti(logger *slog.Logger, notifiers ...Notifier) *Multi {
	m := &Multi{logger: logger}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Enabled() bool {
	for _, n := range m.notifiers {
		if n.Enabled() {
			return true
		}
	}
	return false
}

func (m *Multi) Send(ctx context.Context, n *model.Notification) error {
	var errs []error
	sent := 0
	for _, child := range m.notifiers {
		if !child.Enabled() {
			continue
		}
		if err := child.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", child.Name(), err))
			continue
		}
		sent++
	}
	if sent > 0 {
		for _, err := range errs {
			m.logger.Warn("notification channel failed", slog.String("error", err.Error()))
		}
		return nil
	}
	if len(errs) == 0 {
		return errors.New("no notification channel enabled")
	}
	return errors.Join(errs...)
}
