package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	itemCardSelector  = "div.item-card"
	linkSelector      = "a[class*='link'][href]"
	soldSelector      = "span[class*='item-sold-badge']"
	shippingSelector  = "span[class*='shipping-badge']"
	badgeSelector     = "div[class*='PostingTimeAndPlace-module_with-badge'] span"
	promotedBadgeText = "vetrina"
)

// htmlItem 包装一张商品卡片。
type htmlItem struct {
	sel *goquery.Selection
}

// ParseHTML 解析结果页 HTML，返回全部商品卡片。
//
// 文档本身无法解析时返回错误；没有卡片时返回空切片。
func ParseHTML(r io.Reader) ([]RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	var items []RawItem
	doc.Find(itemCardSelector).Each(func(_ int, s *goquery.Selection) {
		items = append(items, htmlItem{sel: s})
	})
	return items, nil
}

func (h htmlItem) Link() string {
	href, _ := h.sel.Find(linkSelector).First().Attr("href")
	return href
}

func (h htmlItem) Name() string {
	return strings.TrimSpace(h.sel.Find("h2").First().Text())
}

func (h htmlItem) Sold() bool {
	return h.sel.Find(soldSelector).Length() > 0
}

func (h htmlItem) Shipping() bool {
	return h.sel.Find(shippingSelector).Length() > 0
}

// PriceText 返回卡片中第一个包含 "€" 的文本节点。
func (h htmlItem) PriceText() (string, bool) {
	for _, n := range h.sel.Nodes {
		if text, ok := findText(n, "€"); ok {
			return text, true
		}
	}
	return "", false
}

func findText(n *html.Node, needle string) (string, bool) {
	if n.Type == html.TextNode && strings.Contains(n.Data, needle) {
		return n.Data, true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if text, ok := findText(c, needle); ok {
			return text, true
		}
	}
	return "", false
}

// Town 返回城市前面的市镇名；没有 span.city 时退回 span.town。
func (h htmlItem) Town() string {
	city := h.sel.Find("span.city").First()
	if city.Length() > 0 {
		if prev := city.Prev(); prev.Length() > 0 {
			return strings.TrimSpace(prev.Text())
		}
		return ""
	}
	return strings.TrimSpace(h.sel.Find("span.town").First().Text())
}

func (h htmlItem) City() string {
	return strings.TrimSpace(h.sel.Find("span.city").First().Text())
}

func (h htmlItem) ImageCandidates() []ImageCandidate {
	img := h.sel.Find("img").First()
	if img.Length() == 0 {
		return nil
	}
	if srcset, ok := img.Attr("srcset"); ok && strings.TrimSpace(srcset) != "" {
		return ParseSrcset(srcset)
	}
	if src, ok := img.Attr("src"); ok && strings.TrimSpace(src) != "" {
		return []ImageCandidate{{URL: src}}
	}
	return nil
}

func (h htmlItem) Promoted() bool {
	found := false
	h.sel.Find(badgeSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.EqualFold(strings.TrimSpace(s.Text()), promotedBadgeText) {
			found = true
			return false
		}
		return true
	})
	return found
}
