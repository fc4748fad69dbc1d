package crawler

import (
	"net/url"
	"strconv"
	"strings"
)

// PagePlaceholder 出现在查询 URL 中时会被替换为页码。
const PagePlaceholder = "{page}"

// pageParam 是 Subito 搜索页的翻页参数。
const pageParam = "o"

// BuildPageURL 构造第 page 页的搜索 URL。
//
// 模板中含有 {page} 时直接替换；否则设置（或覆盖）翻页参数 o。
// 模板无法解析时退化为追加 "&o=N"。
//
// 参数:
//
//	template: 查询保存的 URL
//	page: 页码，从 1 开始
//
// 返回值:
//
//	string: 该页的完整 URL
func BuildPageURL(template string, page int) string {
	n := strconv.Itoa(page)
	if strings.Contains(template, PagePlaceholder) {
		return strings.ReplaceAll(template, PagePlaceholder, n)
	}

	u, err := url.Parse(template)
	if err != nil || u.Host == "" {
		sep := "&"
		if !strings.Contains(template, "?") {
			sep = "?"
		}
		return template + sep + pageParam + "=" + n
	}

	values := u.Query()
	values.Set(pageParam, n)
	qs := values.Encode()
	qs = strings.ReplaceAll(qs, "+", "%20")
	u.RawQuery = qs
	return u.String()
}
