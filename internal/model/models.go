package model

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// MinPriceFloor 最低价格下限。
	MinPriceFloor int64 = 1
	// MaxPriceCeiling 最高价格上限（0 仍表示不限）。
	MaxPriceCeiling int64 = 9999999
	// UnknownName 缺少标题时使用的占位名称。
	UnknownName = "Unknown"
)

var (
	ErrInvalidName       = errors.New("invalid search query name")
	ErrInvalidURL        = errors.New("invalid search query url")
	ErrInvalidPattern    = errors.New("invalid name pattern")
	ErrInvalidPriceRange = errors.New("max price lower than min price")
)

var nameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SearchQuery 表示一个已保存的搜索条件。
//
// ID 在创建时生成且不可变，所有外键引用都使用 ID；Name 由用户指定，
// 清洗后只保留字母、数字、短横线与下划线，并且大小写不敏感地唯一。
type SearchQuery struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Name        string    `gorm:"size:64;uniqueIndex;not null" json:"name"`
	URL         string    `gorm:"type:text;not null" json:"url"`         // 搜索地址模板
	Pages       int       `gorm:"not null" json:"pages"`                 // 页数上限，0 表示直到结束
	Pattern     *string   `gorm:"size:255" json:"pattern,omitempty"`     // 标题匹配正则（大小写不敏感）
	MinPrice    int64     `gorm:"not null" json:"min_price"`             // 最低价格（>= 1）
	MaxPrice    int64     `gorm:"not null" json:"max_price"`             // 最高价格，0 表示不限
	SkipSold    bool      `gorm:"not null" json:"skip_sold"`             // 跳过已售出
	SkipNoPrice bool      `gorm:"not null" json:"skip_no_price"`         // 跳过无价格
	FirstRun    bool      `gorm:"not null" json:"first_run"`             // 首次运行只建立基线，不通知
	Enabled     bool      `gorm:"not null;index" json:"enabled"`         // 是否参与批量运行
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// QueryParams 是创建 SearchQuery 的原始输入。
type QueryParams struct {
	Name        string
	URL         string
	Pages       int
	Pattern     string
	MinPrice    int64
	MaxPrice    int64
	SkipSold    bool
	SkipNoPrice bool
}

// NewSearchQuery 校验并规范化参数，返回一个新的 SearchQuery。
//
// 规则：
//   - 名称清洗为 [A-Za-z0-9_-]，清洗后为空则拒绝
//   - URL 必须带 scheme 与 host
//   - MinPrice 至少为 1，MaxPrice 不超过 9999999
//   - MaxPrice 非 0 时必须 >= MinPrice
//   - Pattern 必须是合法的正则
func NewSearchQuery(p QueryParams) (*SearchQuery, error) {
	name := SanitizeName(p.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, p.Name)
	}

	rawURL := strings.TrimSpace(p.URL)
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, p.URL)
	}

	if p.Pages < 0 {
		p.Pages = 0
	}

	minPrice := p.MinPrice
	if minPrice < MinPriceFloor {
		minPrice = MinPriceFloor
	}
	maxPrice := p.MaxPrice
	if maxPrice < 0 {
		maxPrice = 0
	}
	if maxPrice > MaxPriceCeiling {
		maxPrice = MaxPriceCeiling
	}
	if maxPrice != 0 && maxPrice < minPrice {
		return nil, fmt.Errorf("%w: min=%d max=%d", ErrInvalidPriceRange, minPrice, maxPrice)
	}

	var pattern *string
	if pat := strings.TrimSpace(p.Pattern); pat != "" {
		if _, err := regexp.Compile("(?i)" + pat); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		pattern = &pat
	}

	return &SearchQuery{
		ID:          uuid.NewString(),
		Name:        name,
		URL:         rawURL,
		Pages:       p.Pages,
		Pattern:     pattern,
		MinPrice:    minPrice,
		MaxPrice:    maxPrice,
		SkipSold:    p.SkipSold,
		SkipNoPrice: p.SkipNoPrice,
		FirstRun:    true,
		Enabled:     true,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// SanitizeName 去掉名称中所有非 [A-Za-z0-9_-] 的字符。
func SanitizeName(name string) string {
	return nameSanitizer.ReplaceAllString(strings.TrimSpace(name), "")
}

// NameKey 返回用于大小写不敏感比较的名称键。
func NameKey(name string) string {
	return strings.ToLower(SanitizeName(name))
}

// Listing 表示一条最近一次观察到的商品广告。
//
// (UID, QueryID) 为复合主键；Price/Location/ImageURL 为可选字段，
// nil 表示上游没有提供，不与零值混用。
type Listing struct {
	UID      string  `gorm:"primaryKey;size:128" json:"uid"`
	QueryID  string  `gorm:"primaryKey;size:36;index" json:"query_id"`
	Name     string  `gorm:"size:512;not null" json:"name"`
	Sold     bool    `gorm:"not null" json:"sold"`
	Shipping bool    `gorm:"not null" json:"shipping"`
	Price    *int64  `json:"price"`
	URL      string  `gorm:"type:text;not null" json:"url"`
	Location *string `gorm:"size:255" json:"location"`
	ImageURL *string `gorm:"type:text" json:"image_url"`
}

// Notification 是变更商品的渲染结果，只存在于一次运行中，不持久化。
type Notification struct {
	Title    string
	Message  string // 带简单 HTML 标记的正文
	URL      string
	URLTitle string
	ImageURL string // 可选，空表示无图片
}
