package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"adhunter/internal/model"
	"adhunter/internal/store"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"
)

// Store 基于 GORM 的关系型存储（MySQL / Postgres）。
type Store struct {
	db     *gorm.DB
	driver string
}

var _ store.Store = (*Store)(nil)

// Dialector 根据驱动名返回 GORM 方言。
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(driver) {
	case "mysql":
		return mysql.Open(dsn), nil
	case "postgres", "postgresql":
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// Open 连接数据库并执行自动迁移。
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	dialector, err := Dialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	return openDialector(ctx, dialector, strings.ToLower(driver))
}

func openDialector(ctx context.Context, dialector gorm.Dialector, driver string) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.db.WithContext(ctx).AutoMigrate(&model.SearchQuery{}, &model.Listing{}); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return s, nil
}

// NewWithDB 使用已有连接创建存储（不执行迁移）。
func NewWithDB(db *gorm.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// CreateQuery 在事务中检查名称冲突后插入。
func (s *Store) CreateQuery(ctx context.Context, q *model.SearchQuery) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.SearchQuery{}).
			Where("LOWER(name) = ?", model.NameKey(q.Name)).
			Count(&count).Error; err != nil {
			return fmt.Errorf("check query name: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", store.ErrQueryExists, q.Name)
		}
		if err := tx.Create(q).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s", store.ErrQueryExists, q.Name)
			}
			return fmt.Errorf("create query: %w", err)
		}
		return nil
	})
}

func (s *Store) GetQueryByName(ctx context.Context, name string) (*model.SearchQuery, error) {
	var q model.SearchQuery
	err := s.db.WithContext(ctx).Where("LOWER(name) = ?", model.NameKey(name)).First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get query: %w", err)
	}
	return &q, nil
}

func (s *Store) ListQueries(ctx context.Context) ([]model.SearchQuery, error) {
	var out []model.SearchQuery
	if err := s.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	return out, nil
}

func (s *Store) ListEnabledQueries(ctx context.Context) ([]model.SearchQuery, error) {
	var out []model.SearchQuery
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).
		Order("created_at ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list enabled queries: %w", err)
	}
	return out, nil
}

func (s *Store) SetQueryEnabled(ctx context.Context, id string, enabled bool) error {
	return s.updateColumn(ctx, id, "enabled", enabled)
}

func (s *Store) SetQueryFirstRun(ctx context.Context, id string, firstRun bool) error {
	return s.updateColumn(ctx, id, "first_run", firstRun)
}

func (s *Store) updateColumn(ctx context.Context, id, column string, value any) error {
	res := s.db.WithContext(ctx).Model(&model.SearchQuery{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("update query %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		// MySQL 在值未变化时也返回 0 行，需要再确认一次
		var count int64
		if err := s.db.WithContext(ctx).Model(&model.SearchQuery{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("check query %s: %w", id, err)
		}
		if count == 0 {
			return store.ErrNotFound
		}
	}
	return nil
}

// ResetQuery 在事务中恢复 first_run 并删除商品。
func (s *Store) ResetQuery(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.SearchQuery{}).Where("id = ?", id).Update("first_run", true)
		if res.Error != nil {
			return fmt.Errorf("reset query %s: %w", id, res.Error)
		}
		if err := tx.Where("query_id = ?", id).Delete(&model.Listing{}).Error; err != nil {
			return fmt.Errorf("delete listings: %w", err)
		}
		return nil
	})
}

// DeleteQuery 在事务中删除查询及其商品。
func (s *Store) DeleteQuery(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("query_id = ?", id).Delete(&model.Listing{}).Error; err != nil {
			return fmt.Errorf("delete listings: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&model.SearchQuery{})
		if res.Error != nil {
			return fmt.Errorf("delete query %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (s *Store) GetListing(ctx context.Context, queryID, uid string) (*model.Listing, error) {
	var l model.Listing
	err := s.db.WithContext(ctx).Where("uid = ? AND query_id = ?", uid, queryID).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return &l, nil
}

// UpsertListing 按 (uid, query_id) 插入或覆盖全部字段。
func (s *Store) UpsertListing(ctx context.Context, l *model.Listing) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uid"}, {Name: "query_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "sold", "shipping", "price", "url", "location", "image_url"}),
	}).Create(l).Error
	if err != nil {
		return fmt.Errorf("upsert listing: %w", err)
	}
	return nil
}

func (s *Store) CountListings(ctx context.Context, queryID string) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Listing{}).Where("query_id = ?", queryID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Location() string {
	return s.driver + " database " + s.db.Migrator().CurrentDatabase()
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
