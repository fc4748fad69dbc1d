package extract

import (
	"bytes"
	"errors"
	"net/url"
	"strings"

	"adhunter/internal/model"
)

// Page 是一页待解析的搜索结果。
type Page struct {
	URL         string
	ContentType string
	Body        []byte
}

// PageResult 单页抽取结果。
type PageResult struct {
	// RawCount 是页面上发现的原始条目数，0 表示已经翻过最后一页。
	RawCount int
	Listings []*model.Listing
	// Rejected 按原因统计被丢弃的条目（"no_url" / "promoted"）。
	Rejected map[string]int
	// Rejections 逐条记录被丢弃的条目，按页面顺序。
	Rejections []Rejection
}

// Rejection 一条被丢弃的原始条目。
type Rejection struct {
	Reason string
	Link   string
	Name   string
}

// IsJSON 根据 Content-Type 或正文首字符判断是否为 JSON 响应。
func (p Page) IsJSON() bool {
	if strings.Contains(strings.ToLower(p.ContentType), "json") {
		return true
	}
	trimmed := bytes.TrimSpace(p.Body)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// ExtractPage 解析整页并规范化其中的每个条目。
//
// 参数:
//
//	p: 页面内容
//	queryID: 所属查询
//
// 返回值:
//
//	*PageResult: 原始条目数、成功的商品与丢弃统计
//	error: 页面整体无法解析
func (e *Extractor) ExtractPage(p Page, queryID string) (*PageResult, error) {
	var (
		raws []RawItem
		err  error
	)
	if p.IsJSON() {
		raws, err = ParseJSON(p.Body)
	} else {
		raws, err = ParseHTML(bytes.NewReader(p.Body))
	}
	if err != nil {
		return nil, err
	}

	base, _ := url.Parse(p.URL)
	res := &PageResult{RawCount: len(raws), Rejected: map[string]int{}}
	for _, raw := range raws {
		l, err := e.Extract(raw, base, queryID)
		if err == nil {
			res.Listings = append(res.Listings, l)
			continue
		}
		reason := "no_url"
		if errors.Is(err, ErrPromoted) {
			reason = "promoted"
		}
		res.Rejected[reason]++
		res.Rejections = append(res.Rejections, Rejection{
			Reason: reason,
			Link:   strings.TrimSpace(raw.Link()),
			Name:   strings.TrimSpace(raw.Name()),
		})
	}
	return res, nil
}
