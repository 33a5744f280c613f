package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Options 描述 Postgres 连接。
type Options struct {
	DSN          string
	Table        string
	MaxOpenConns int
	MaxIdleConns int
	Config       *gorm.Config
}

// GormStore 基于 gorm 的 TradeStore，表名可配置。
type GormStore struct {
	db    *gorm.DB
	table string
}

// Open 打开 Postgres 连接池。
func Open(opt Options) (*GormStore, error) {
	if opt.DSN == "" {
		return nil, fmt.Errorf("store dsn required")
	}
	cfg := opt.Config
	if cfg == nil {
		cfg = &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	}
	db, err := gorm.Open(postgres.Open(opt.DSN), cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if opt.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opt.MaxOpenConns)
	}
	if opt.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opt.MaxIdleConns)
	}
	return NewGormStore(db, opt.Table), nil
}

// NewGormStore 包装已有的 gorm.DB（测试里配合 sqlmock 使用）。
func NewGormStore(db *gorm.DB, table string) *GormStore {
	if table == "" {
		table = "futures_trades"
	}
	return &GormStore{db: db, table: table}
}

// Migrate 表不存在时建表。
func (s *GormStore) Migrate(ctx context.Context) error {
	tx := s.db.WithContext(ctx).Table(s.table)
	if tx.Migrator().HasTable(s.table) {
		return nil
	}
	if err := tx.Migrator().CreateTable(&TradeRecord{}); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

func (s *GormStore) Insert(ctx context.Context, symbol string, price decimal.Decimal, ts time.Time) (TradeRecord, error) {
	rec := TradeRecord{Symbol: symbol, Price: price, Timestamp: ts}
	if err := s.db.WithContext(ctx).Table(s.table).Create(&rec).Error; err != nil {
		return TradeRecord{}, fmt.Errorf("insert trade %s: %w", symbol, err)
	}
	return rec, nil
}

func (s *GormStore) QueryBySymbol(ctx context.Context, symbol string) ([]TradeRecord, error) {
	var out []TradeRecord
	err := s.db.WithContext(ctx).Table(s.table).
		Where("symbol = ?", symbol).
		Order("timestamp").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query trades %s: %w", symbol, err)
	}
	return out, nil
}

func (s *GormStore) DeleteOlderThan(ctx context.Context, symbol string, cutoff time.Time) (int64, error) {
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Table(s.table).
			Where("symbol = ? AND timestamp < ?", symbol, cutoff).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		res := tx.Table(s.table).Where("id IN ?", ids).Delete(&TradeRecord{})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("delete trades %s older than %s: %w", symbol, cutoff.Format(time.RFC3339), err)
	}
	return removed, nil
}

func (s *GormStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Table(s.table).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return n, nil
}

func (s *GormStore) All(ctx context.Context) ([]TradeRecord, error) {
	var out []TradeRecord
	if err := s.db.WithContext(ctx).Table(s.table).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return out, nil
}

// Close 关闭底层连接池。
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
