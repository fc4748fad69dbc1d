package store

import (
	"context"
	"errors"

	"adhunter/internal/model"
)

var (
	// ErrNotFound 记录不存在。
	ErrNotFound = errors.New("not found")
	// ErrQueryExists 同名（大小写不敏感）查询已存在。
	ErrQueryExists = errors.New("search query already exists")
)

// QueryStore 管理 SearchQuery。
//
// ListQueries / ListEnabledQueries 按保存顺序返回。
type QueryStore interface {
	CreateQuery(ctx context.Context, q *model.SearchQuery) error
	GetQueryByName(ctx context.Context, name string) (*model.SearchQuery, error)
	ListQueries(ctx context.Context) ([]model.SearchQuery, error)
	ListEnabledQueries(ctx context.Context) ([]model.SearchQuery, error)
	SetQueryEnabled(ctx context.Context, id string, enabled bool) error
	SetQueryFirstRun(ctx context.Context, id string, firstRun bool) error
	// ResetQuery 将 first_run 置为 true 并删除该查询的全部商品。
	ResetQuery(ctx context.Context, id string) error
	// DeleteQuery 删除查询及其全部商品。
	DeleteQuery(ctx context.Context, id string) error
}

// ListingStore 管理以 (uid, query_id) 为键的 Listing。
type ListingStore interface {
	GetListing(ctx context.Context, queryID, uid string) (*model.Listing, error)
	UpsertListing(ctx context.Context, l *model.Listing) error
	CountListings(ctx context.Context, queryID string) (int64, error)
}

// Store 组合查询与商品存储。
type Store interface {
	QueryStore
	ListingStore
	Ping(ctx context.Context) error
	// Location 返回数据所在位置的可读描述。
	Location() string
	Close() error
}
