package notify

import (
	"strconv"
	"strings"

	"adhunter/internal/model"

	"github.com/microcosm-cc/bluemonday"
)

const (
	segmentSeparator = " &#183; "
	priceColor       = "#db00ba"
	shippingColor    = "#00b53c"
	soldColor        = "#d60000"
)

// Renderer 把商品渲染成 Pushover 风格的 HTML 通知。
//
// 抓取到的文本一律经过 bluemonday 的严格策略转义，
// 通知正文中只保留由这里生成的标签。
type Renderer struct {
	policy   *bluemonday.Policy
	urlTitle string
}

// NewRenderer 创建渲染器，urlTitle 是通知中链接的显示文字。
func NewRenderer(urlTitle string) *Renderer {
	return &Renderer{policy: bluemonday.StrictPolicy(), urlTitle: urlTitle}
}

// Render 生成一条通知。
//
// 正文依次由 价格、可发货、已售出、地点、查询名 组成，
// 每段只在字段存在或为 true 时出现，段与段之间用 " &#183; " 连接。
func (r *Renderer) Render(l *model.Listing, queryName string) *model.Notification {
	var segments []string
	if l.Price != nil {
		segments = append(segments, colored(priceColor, strconv.FormatInt(*l.Price, 10)+" &euro;"))
	}
	if l.Shipping {
		segments = append(segments, colored(shippingColor, "SPEDIZIONE &#10003;"))
	}
	if l.Sold {
		segments = append(segments, colored(soldColor, "VENDUTO"))
	}
	if l.Location != nil {
		if loc := r.escape(*l.Location); loc != "" {
			segments = append(segments, "<i>"+loc+"</i>")
		}
	}
	if q := r.escape(queryName); q != "" {
		segments = append(segments, "#"+q)
	}

	n := &model.Notification{
		Title:    strings.TrimSpace(l.Name),
		Message:  strings.Join(segments, segmentSeparator),
		URL:      l.URL,
		URLTitle: r.urlTitle,
	}
	if n.Message == "" {
		n.Message = r.escape(n.Title)
	}
	if l.ImageURL != nil {
		n.ImageURL = *l.ImageURL
	}
	return n
}

func (r *Renderer) escape(s string) string {
	return strings.TrimSpace(r.policy.Sanitize(strings.TrimSpace(s)))
}

func colored(color, text string) string {
	return `<font color="` + color + `">` + text + `</font>`
}
