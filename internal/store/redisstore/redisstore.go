package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"adhunter/internal/model"
	"adhunter/internal/store"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "adhunter"

// Store 基于 Redis 的文档存储。
//
// 键布局：
//
//	<prefix>:queries          LIST  查询 ID，保存顺序
//	<prefix>:query_names      HASH  小写名称 -> 查询 ID
//	<prefix>:query:<id>       STRING 查询 JSON
//	<prefix>:listings:<qid>   HASH  uid -> 商品 JSON
//
// Redis 客户端由调用方创建与关闭。
type Store struct {
	rdb    *redis.Client
	prefix string
}

var _ store.Store = (*Store)(nil)

// New 创建 Redis 存储。
func New(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) queriesKey() string            { return s.prefix + ":queries" }
func (s *Store) namesKey() string              { return s.prefix + ":query_names" }
func (s *Store) queryKey(id string) string     { return s.prefix + ":query:" + id }
func (s *Store) listingsKey(qid string) string { return s.prefix + ":listings:" + qid }

// CreateQuery 保存新查询；同名（大小写不敏感）时返回 store.ErrQueryExists。
func (s *Store) CreateQuery(ctx context.Context, q *model.SearchQuery) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal query: %w", err)
	}

	nameKey := model.NameKey(q.Name)
	ok, err := s.rdb.HSetNX(ctx, s.namesKey(), nameKey, q.ID).Result()
	if err != nil {
		return fmt.Errorf("reserve query name: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrQueryExists, q.Name)
	}

	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.queryKey(q.ID), data, 0)
		p.RPush(ctx, s.queriesKey(), q.ID)
		return nil
	})
	if err != nil {
		// 释放名称占用
		_ = s.rdb.HDel(ctx, s.namesKey(), nameKey).Err()
		return fmt.Errorf("save query: %w", err)
	}
	return nil
}

// GetQueryByName 按名称（大小写不敏感）查找查询。
func (s *Store) GetQueryByName(ctx context.Context, name string) (*model.SearchQuery, error) {
	id, err := s.rdb.HGet(ctx, s.namesKey(), model.NameKey(name)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup query name: %w", err)
	}
	return s.getQuery(ctx, id)
}

func (s *Store) getQuery(ctx context.Context, id string) (*model.SearchQuery, error) {
	data, err := s.rdb.Get(ctx, s.queryKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get query: %w", err)
	}
	var q model.SearchQuery
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("decode query %s: %w", id, err)
	}
	return &q, nil
}

// ListQueries 按保存顺序返回全部查询。
func (s *Store) ListQueries(ctx context.Context) ([]model.SearchQuery, error) {
	ids, err := s.rdb.LRange(ctx, s.queriesKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list query ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.queryKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load queries: %w", err)
	}

	out := make([]model.SearchQuery, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var q model.SearchQuery
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, fmt.Errorf("decode query %s: %w", ids[i], err)
		}
		out = append(out, q)
	}
	return out, nil
}

// ListEnabledQueries 按保存顺序返回启用的查询。
func (s *Store) ListEnabledQueries(ctx context.Context) ([]model.SearchQuery, error) {
	all, err := s.ListQueries(ctx)
	if err != nil {
		return nil, err
	}
	enabled := all[:0]
	for _, q := range all {
		if q.Enabled {
			enabled = append(enabled, q)
		}
	}
	return enabled, nil
}

func (s *Store) SetQueryEnabled(ctx context.Context, id string, enabled bool) error {
	return s.updateQuery(ctx, id, func(q *model.SearchQuery) { q.Enabled = enabled }, nil)
}

func (s *Store) SetQueryFirstRun(ctx context.Context, id string, firstRun bool) error {
	return s.updateQuery(ctx, id, func(q *model.SearchQuery) { q.FirstRun = firstRun }, nil)
}

// ResetQuery 将查询恢复为首次运行状态，并在同一事务中删除其商品。
func (s *Store) ResetQuery(ctx context.Context, id string) error {
	return s.updateQuery(ctx, id,
		func(q *model.SearchQuery) { q.FirstRun = true },
		func(p redis.Pipeliner) { p.Del(ctx, s.listingsKey(id)) },
	)
}

// updateQuery 在 WATCH 事务中读取、修改并写回查询。
func (s *Store) updateQuery(ctx context.Context, id string, mutate func(*model.SearchQuery), extra func(redis.Pipeliner)) error {
	key := s.queryKey(id)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		var q model.SearchQuery
		if err := json.Unmarshal(data, &q); err != nil {
			return fmt.Errorf("decode query %s: %w", id, err)
		}
		mutate(&q)
		updated, err := json.Marshal(&q)
		if err != nil {
			return fmt.Errorf("marshal query: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, updated, 0)
			if extra != nil {
				extra(p)
			}
			return nil
		})
		return err
	}, key)
	if errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("update query %s: %w", id, err)
	}
	return nil
}

// DeleteQuery 删除查询、名称索引与全部商品。
func (s *Store) DeleteQuery(ctx context.Context, id string) error {
	q, err := s.getQuery(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.queryKey(id))
		p.LRem(ctx, s.queriesKey(), 0, id)
		p.HDel(ctx, s.namesKey(), model.NameKey(q.Name))
		p.Del(ctx, s.listingsKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete query %s: %w", id, err)
	}
	return nil
}

// GetListing 读取 (uid, queryID) 对应的商品，不存在时返回 store.ErrNotFound。
func (s *Store) GetListing(ctx context.Context, queryID, uid string) (*model.Listing, error) {
	data, err := s.rdb.HGet(ctx, s.listingsKey(queryID), uid).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	var l model.Listing
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decode listing %s: %w", uid, err)
	}
	return &l, nil
}

// UpsertListing 按 (uid, queryID) 写入或覆盖商品。
func (s *Store) UpsertListing(ctx context.Context, l *model.Listing) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal listing: %w", err)
	}
	if err := s.rdb.HSet(ctx, s.listingsKey(l.QueryID), l.UID, data).Err(); err != nil {
		return fmt.Errorf("upsert listing: %w", err)
	}
	return nil
}

func (s *Store) CountListings(ctx context.Context, queryID string) (int64, error) {
	n, err := s.rdb.HLen(ctx, s.listingsKey(queryID)).Result()
	if err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Location() string {
	opts := s.rdb.Options()
	return fmt.Sprintf("redis://%s/%d (prefix %q)", opts.Addr, opts.DB, s.prefix)
}

// Close 不关闭共享的 Redis 客户端。
func (s *Store) Close() error {
	return nil
}
