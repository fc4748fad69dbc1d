package extract

import (
	"errors"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON 响应体不是合法 JSON。
var ErrInvalidJSON = errors.New("invalid json payload")

// jsonItem 包装搜索接口返回的一条广告。
type jsonItem struct {
	r gjson.Result
}

// ParseJSON 解析搜索接口的 JSON 响应。
//
// 广告列表位于 "ads" 或 "items" 字段；两者都不存在时返回空切片。
func ParseJSON(body []byte) ([]RawItem, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidJSON
	}
	root := gjson.ParseBytes(body)
	list := root.Get("ads")
	if !list.Exists() {
		list = root.Get("items")
	}
	var items []RawItem
	list.ForEach(func(_, v gjson.Result) bool {
		items = append(items, jsonItem{r: v})
		return true
	})
	return items, nil
}

func (j jsonItem) Link() string {
	if u := j.r.Get("urls.default"); u.Exists() {
		return u.String()
	}
	return j.r.Get("url").String()
}

func (j jsonItem) Name() string {
	return strings.TrimSpace(j.r.Get("subject").String())
}

func (j jsonItem) Sold() bool {
	return j.r.Get("sold").Bool()
}

func (j jsonItem) Shipping() bool {
	f := j.feature("/item_shippable")
	if !f.Exists() {
		return false
	}
	v := strings.ToLower(f.Get("values.0.key").String())
	return v == "1" || v == "true"
}

// PriceText 优先读取 /price 特征，缺失时回退到顶层 price 字段。
func (j jsonItem) PriceText() (string, bool) {
	if f := j.feature("/price"); f.Exists() {
		v := f.Get("values.0.key")
		if !v.Exists() {
			return "", false
		}
		return v.String(), true
	}
	p := j.r.Get("price")
	switch p.Type {
	case gjson.Number:
		return strconv.FormatInt(p.Int(), 10), true
	case gjson.String:
		return p.String(), true
	}
	return "", false
}

// feature 在 features 数组中按 uri 查找。
func (j jsonItem) feature(uri string) gjson.Result {
	var found gjson.Result
	j.r.Get("features").ForEach(func(_, f gjson.Result) bool {
		if f.Get("uri").String() == uri {
			found = f
			return false
		}
		return true
	})
	return found
}

func (j jsonItem) Town() string {
	return j.r.Get("geo.town.value").String()
}

func (j jsonItem) City() string {
	return j.r.Get("geo.city.value").String()
}

// ImageCandidates 取第一张图片的所有尺寸，按出现顺序递增质量。
func (j jsonItem) ImageCandidates() []ImageCandidate {
	var out []ImageCandidate
	j.r.Get("images.0.scale").ForEach(func(_, s gjson.Result) bool {
		if u := s.Get("secureuri").String(); u != "" {
			out = append(out, ImageCandidate{URL: u, Quality: float64(len(out) + 1)})
		}
		return true
	})
	if len(out) == 0 {
		if u := j.r.Get("images.0.uri").String(); u != "" {
			out = append(out, ImageCandidate{URL: u})
		}
	}
	return out
}

func (j jsonItem) Promoted() bool {
	return j.r.Get("promoted").Bool()
}
