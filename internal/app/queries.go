package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"adhunter/internal/model"
	"adhunter/internal/pkg/metrics"
	"adhunter/internal/store"
)

// QueryInfo 是列表展示用的查询信息。
type QueryInfo struct {
	model.SearchQuery
	Listings int64 `json:"listings"`
}

// NamesResult 批量操作的结果：Done 为处理成功的名称，Unknown 为不存在的名称。
type NamesResult struct {
	Done    []string `json:"done"`
	Unknown []string `json:"unknown,omitempty"`
}

// ensureIdle 在有运行持有锁时拒绝修改查询，并通知运维。
func (s *Service) ensureIdle(ctx context.Context, action string) error {
	held, err := s.lock.Held(ctx)
	if err != nil {
		return err
	}
	if held {
		metrics.RunConflictsTotal.Inc()
		s.logger.Warn("another instance is running, command refused", slog.String("action", action))
		s.notifyOperator(ctx, fmt.Sprintf("Another instance of adhunter is already running. Search queries were not %s.", action))
		return ErrAlreadyRunning
	}
	return nil
}

// AddQuery 校验参数并保存新查询。
//
// 名称会被清洗；同名（大小写不敏感）时返回 store.ErrQueryExists。
// 新查询 first_run=true、enabled=true，首次运行只建立基线。
func (s *Service) AddQuery(ctx context.Context, p model.QueryParams) (*model.SearchQuery, error) {
	if err := s.ensureIdle(ctx, "added"); err != nil {
		return nil, err
	}
	q, err := model.NewSearchQuery(p)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateQuery(ctx, q); err != nil {
		return nil, err
	}
	s.logger.Info("search query added",
		slog.String("query", q.Name),
		slog.String("url", q.URL),
		slog.Int("pages", q.Pages))
	return q, nil
}

// ListQueries 按保存顺序返回全部查询及其已保存的商品数。
func (s *Service) ListQueries(ctx context.Context) ([]QueryInfo, error) {
	queries, err := s.store.ListQueries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]QueryInfo, 0, len(queries))
	for _, q := range queries {
		n, err := s.store.CountListings(ctx, q.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, QueryInfo{SearchQuery: q, Listings: n})
	}
	return out, nil
}

// EnableQueries 启用若干查询。
func (s *Service) EnableQueries(ctx context.Context, names ...string) (*NamesResult, error) {
	return s.forEachName(ctx, "enabled", names, func(q *model.SearchQuery) error {
		return s.store.SetQueryEnabled(ctx, q.ID, true)
	})
}

// DisableQueries 停用若干查询，停用的查询不参与批量运行。
func (s *Service) DisableQueries(ctx context.Context, names ...string) (*NamesResult, error) {
	return s.forEachName(ctx, "disabled", names, func(q *model.SearchQuery) error {
		return s.store.SetQueryEnabled(ctx, q.ID, false)
	})
}

// DeleteQueries 删除若干查询及其全部商品。
func (s *Service) DeleteQueries(ctx context.Context, names ...string) (*NamesResult, error) {
	return s.forEachName(ctx, "deleted", names, func(q *model.SearchQuery) error {
		return s.store.DeleteQuery(ctx, q.ID)
	})
}

// ResetQuery 删除查询的全部商品并恢复 first_run，下次运行重新建立基线。
func (s *Service) ResetQuery(ctx context.Context, name string) error {
	res, err := s.forEachName(ctx, "reset", []string{name}, func(q *model.SearchQuery) error {
		return s.store.ResetQuery(ctx, q.ID)
	})
	if err != nil {
		return err
	}
	if len(res.Unknown) > 0 {
		return fmt.Errorf("search query %q: %w", name, store.ErrNotFound)
	}
	return nil
}

// forEachName 对每个名称执行 fn；不存在的名称记入 Unknown 并跳过。
func (s *Service) forEachName(ctx context.Context, action string, names []string, fn func(q *model.SearchQuery) error) (*NamesResult, error) {
	if err := s.ensureIdle(ctx, action); err != nil {
		return nil, err
	}
	res := &NamesResult{}
	for _, name := range names {
		q, err := s.store.GetQueryByName(ctx, name)
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("search query not found", slog.String("query", name))
			res.Unknown = append(res.Unknown, name)
			continue
		}
		if err != nil {
			return res, err
		}
		if err := fn(q); err != nil {
			return res, fmt.Errorf("%s %s: %w", action, q.Name, err)
		}
		s.logger.Info("search query "+action, slog.String("query", q.Name))
		res.Done = append(res.Done, q.Name)
	}
	return res, nil
}
