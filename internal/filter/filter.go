// Package filter 判断商品是否满足查询的过滤条件。
package filter

import (
	"regexp"
	"sync"

	"adhunter/internal/model"
)

// Reason 是商品被跳过的原因。
//
// 取值用作指标标签，依次对应 sold / no price / price range / pattern mismatch；
// String 返回写入日志的可读描述。
type Reason string

const (
	ReasonSold            Reason = "sold"
	ReasonNoPrice         Reason = "no_price"
	ReasonPriceRange      Reason = "price_range"
	ReasonPatternMismatch Reason = "pattern_mismatch"
)

// String 返回面向日志的描述。
func (r Reason) String() string {
	switch r {
	case ReasonSold:
		return "item is sold"
	case ReasonNoPrice:
		return "the price is missing"
	case ReasonPriceRange:
		return "price range not matched"
	case ReasonPatternMismatch:
		return "pattern not matched"
	default:
		return string(r)
	}
}

// 编译结果缓存，key 为原始模式；编译失败缓存为 nil。
var patternCache sync.Map

func compile(pattern string) *regexp.Regexp {
	if v, ok := patternCache.Load(pattern); ok {
		return v.(*regexp.Regexp)
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		re = nil
	}
	patternCache.Store(pattern, re)
	return re
}

// ShouldSkip 按固定优先级检查过滤条件，返回第一个命中的原因。
//
// 顺序：已售出 -> 无价格 -> 价格区间 -> 名称模式。价格区间只在有价格时检查，
// MaxPrice 为 0 表示无上限。无法编译的模式视为不匹配。
func ShouldSkip(q *model.SearchQuery, l *model.Listing) (Reason, bool) {
	if q.SkipSold && l.Sold {
		return ReasonSold, true
	}
	if q.SkipNoPrice && l.Price == nil {
		return ReasonNoPrice, true
	}
	if l.Price != nil {
		p := *l.Price
		if p < q.MinPrice || (q.MaxPrice > 0 && p > q.MaxPrice) {
			return ReasonPriceRange, true
		}
	}
	if q.Pattern != nil && *q.Pattern != "" {
		re := compile(*q.Pattern)
		if re == nil || !re.MatchString(l.Name) {
			return ReasonPatternMismatch, true
		}
	}
	return "", false
}
