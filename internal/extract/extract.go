// Package extract 将搜索结果页中的原始条目转换为规范化的 Listing。
//
// HTML 与 JSON 两种输入通过 RawItem 适配为同一套访问接口，
// 上游结构变化只影响适配器，不影响规范化逻辑。
package extract

import (
	"errors"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"adhunter/internal/model"
)

var (
	// ErrNoCanonicalURL 无法解析出站内规范链接，这是唯一的硬失败。
	ErrNoCanonicalURL = errors.New("no canonical on-domain url")
	// ErrPromoted 置顶广告且配置为跳过。
	ErrPromoted = errors.New("promoted listing skipped")
)

var nonDigitRe = regexp.MustCompile(`[^0-9]`)

// ImageCandidate 是一张候选图片及其质量描述（srcset 中的 w 或 x 值，未知为 0）。
type ImageCandidate struct {
	URL     string
	Quality float64
}

// RawItem 是一条未规范化的上游条目。
//
// 所有方法都不能 panic；缺失的字段返回零值。
type RawItem interface {
	Link() string
	Name() string
	Sold() bool
	Shipping() bool
	// PriceText 返回包含价格的原始文本，ok=false 表示没有价格信息。
	PriceText() (text string, ok bool)
	Town() string
	City() string
	ImageCandidates() []ImageCandidate
	Promoted() bool
}

// Options 抽取选项。
type Options struct {
	AllowedHosts []string // 允许的链接域名（不区分大小写）
	SkipPromoted bool
}

// Extractor 负责单条目的规范化。
type Extractor struct {
	allowedHosts map[string]struct{}
	skipPromoted bool
}

// New 创建 Extractor。
func New(opts Options) *Extractor {
	hosts := make(map[string]struct{}, len(opts.AllowedHosts))
	for _, h := range opts.AllowedHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			hosts[h] = struct{}{}
		}
	}
	return &Extractor{allowedHosts: hosts, skipPromoted: opts.SkipPromoted}
}

// Extract 将 raw 规范化为 Listing。
//
// base 用于解析相对链接，可为 nil。只有在无法得到站内链接或标识时返回
// ErrNoCanonicalURL；开启 SkipPromoted 时置顶条目返回 ErrPromoted。
func (e *Extractor) Extract(raw RawItem, base *url.URL, queryID string) (*model.Listing, error) {
	link, ok := e.canonicalURL(raw.Link(), base)
	if !ok {
		return nil, ErrNoCanonicalURL
	}
	uid := DeriveUID(link)
	if uid == "" {
		return nil, ErrNoCanonicalURL
	}
	if e.skipPromoted && raw.Promoted() {
		return nil, ErrPromoted
	}

	name := strings.TrimSpace(raw.Name())
	if name == "" {
		name = model.UnknownName
	}

	var price *int64
	if text, ok := raw.PriceText(); ok {
		price = ParsePrice(text)
	}

	l := &model.Listing{
		UID:      uid,
		QueryID:  queryID,
		Name:     name,
		Sold:     raw.Sold(),
		Shipping: raw.Shipping(),
		Price:    price,
		URL:      link,
		Location: JoinLocation(raw.Town(), raw.City()),
	}
	if img := BestImage(raw.ImageCandidates()); img != "" {
		l.ImageURL = &img
	}
	return l, nil
}

func (e *Extractor) canonicalURL(href string, base *url.URL) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if _, ok := e.allowedHosts[strings.ToLower(u.Hostname())]; !ok {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}

// DeriveUID 取链接路径的最后一段，去掉扩展名并裁剪空白。
//
//	https://www.subito.it/auto/fiat-panda-milano-512345678.htm -> fiat-panda-milano-512345678
func DeriveUID(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return ""
	}
	p := strings.TrimRight(u.Path, "/")
	if p == "" {
		return ""
	}
	last := path.Base(p)
	if i := strings.Index(last, "."); i >= 0 {
		last = last[:i]
	}
	return strings.TrimSpace(last)
}

// ParsePrice 去掉所有非数字字符后解析价格；没有数字或溢出时返回 nil。
func ParsePrice(text string) *int64 {
	digits := nonDigitRe.ReplaceAllString(text, "")
	if digits == "" {
		return nil
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// JoinLocation 拼接 "town city"，只有一项时返回该项，都没有时返回 nil。
func JoinLocation(town, city string) *string {
	town = strings.TrimSpace(town)
	city = strings.TrimSpace(city)
	var loc string
	switch {
	case town != "" && city != "":
		loc = town + " " + city
	case town != "":
		loc = town
	case city != "":
		loc = city
	default:
		return nil
	}
	return &loc
}

// BestImage 选择质量最高的候选图片；质量相同取靠后的一个。
func BestImage(candidates []ImageCandidate) string {
	best := -1
	for i, c := range candidates {
		if strings.TrimSpace(c.URL) == "" {
			continue
		}
		if best < 0 || c.Quality >= candidates[best].Quality {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return strings.TrimSpace(candidates[best].URL)
}

// ParseSrcset 解析 srcset 属性，返回按出现顺序排列的候选图片。
//
// 按 HTML srcset 规则切分：URL 读到空白为止，描述符读到下一个逗号为止，
// 因此 URL 内部的逗号（如 CDN 的 w_1280,h_960）不会被截断。
func ParseSrcset(srcset string) []ImageCandidate {
	var out []ImageCandidate
	s := srcset
	for {
		s = strings.TrimLeft(s, " \t\n\r\f,")
		if s == "" {
			return out
		}
		end := strings.IndexAny(s, " \t\n\r\f")
		if end < 0 {
			end = len(s)
		}
		link := s[:end]
		s = s[end:]

		var descriptor string
		if trimmed := strings.TrimRight(link, ","); trimmed != link {
			// URL 以逗号结尾：没有描述符
			link = trimmed
		} else {
			descriptor, s = readDescriptor(s)
		}
		if link == "" {
			continue
		}
		c := ImageCandidate{URL: link}
		if fields := strings.Fields(descriptor); len(fields) > 0 {
			c.Quality = parseDescriptor(fields[0])
		}
		out = append(out, c)
	}
}

// readDescriptor 读取到括号外的下一个逗号为止，返回描述符与剩余部分。
func readDescriptor(s string) (string, string) {
	depth := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				return s[:i], s[i+1:]
			}
		}
	}
	return s, ""
}

func parseDescriptor(d string) float64 {
	d = strings.ToLower(strings.TrimSpace(d))
	if d == "" {
		return 0
	}
	unit := d[len(d)-1]
	if unit != 'w' && unit != 'x' {
		return 0
	}
	v, err := strconv.ParseFloat(d[:len(d)-1], 64)
	if err != nil {
		return 0
	}
	return v
}
