// Package diff 判断商品相对上次抓取是否为新增或发生了变化。
package diff

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"adhunter/internal/model"
	"adhunter/internal/store"
)

// Detector 通过存储中的上一份记录检测变化。
type Detector struct {
	listings store.ListingStore
}

// NewDetector 创建检测器。
func NewDetector(listings store.ListingStore) *Detector {
	return &Detector{listings: listings}
}

// HasChanged 在持久化之前调用：没有旧记录时视为变化，否则逐字段比较。
//
// 参数:
//
//	ctx: 上下文
//	l: 新抓取的商品
//	queryID: 所属查询
//
// 返回值:
//
//	bool: 是否新增或变化
//	error: 读取存储失败
func (d *Detector) HasChanged(ctx context.Context, l *model.Listing, queryID string) (bool, error) {
	prev, err := d.listings.GetListing(ctx, queryID, l.UID)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("load previous listing: %w", err)
	}
	return !Equal(prev, l), nil
}

// Equal 比较两个商品的全部跟踪字段。
// 字符串比较不区分大小写；nil 与任何值（包括 0 和空串）都不相等。
func Equal(a, b *model.Listing) bool {
	if a == nil || b == nil {
		return a == b
	}
	return strings.EqualFold(a.UID, b.UID) &&
		strings.EqualFold(a.QueryID, b.QueryID) &&
		strings.EqualFold(a.Name, b.Name) &&
		a.Sold == b.Sold &&
		a.Shipping == b.Shipping &&
		equalInt(a.Price, b.Price) &&
		strings.EqualFold(a.URL, b.URL) &&
		equalString(a.Location, b.Location) &&
		equalString(a.ImageURL, b.ImageURL)
}

func equalInt(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return strings.EqualFold(*a, *b)
}
