package crawler

import (
	"strings"
)

// 拦截页标题特征（小写）。
var blockedTitles = []string{
	"just a moment",
	"attention required",
	"access denied",
	"accesso negato",
	"403 forbidden",
	"429 too many requests",
}

// 只会出现在验证页中的 HTML 标记。
var challengeMarkers = []string{
	"cf-browser-verification",
	`id="challenge-form"`,
	`id="challenge-running"`,
	"challenges.cloudflare.com/turnstile",
}

// containsAny 检查文本是否包含任意一个关键词
func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// detectBlockType 根据标题与 HTML 判断页面是否是拦截页，返回拦截类型。
//
// 返回空串表示页面正常。正文里出现的普通 captcha 脚本不算拦截。
func detectBlockType(title, html string) string {
	lowerTitle := strings.ToLower(strings.TrimSpace(title))
	lowerHTML := strings.ToLower(html)

	switch {
	case containsAny(lowerHTML, challengeMarkers):
		return "challenge"
	case containsAny(lowerTitle, blockedTitles):
		return "blocked_title"
	case strings.TrimSpace(html) == "" || lowerHTML == "<html><head></head><body></body></html>":
		return "blank_page"
	}
	return ""
}
