// Package store 定义成交记录的持久化接口及其 Postgres / 内存实现。
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord 对应成交表的一行。ID 由存储分配，Timestamp 为写入时刻。
type TradeRecord struct {
	ID        uint            `gorm:"column:id;primaryKey"`
	Symbol    string          `gorm:"column:symbol;index"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric"`
	Timestamp time.Time       `gorm:"column:timestamp;index"`
}

// TradeStore 是接入、清理、回归共享的存储。每个方法都是独立的短会话，
// 自身保证单次操作的原子性，调用方之间无需额外协调。
type TradeStore interface {
	// Insert 写入一笔成交并返回带 ID 的记录。
	Insert(ctx context.Context, symbol string, price decimal.Decimal, ts time.Time) (TradeRecord, error)
	// QueryBySymbol 按时间顺序返回某交易对的全部记录。
	QueryBySymbol(ctx context.Context, symbol string) ([]TradeRecord, error)
	// DeleteOlderThan 在一个事务里删除 symbol 下 timestamp < cutoff 的记录，返回删除条数。
	DeleteOlderThan(ctx context.Context, symbol string, cutoff time.Time) (int64, error)
	// Count 返回表内总行数。
	Count(ctx context.Context) (int64, error)
	// All 按 ID 返回全部记录。
	All(ctx context.Context) ([]TradeRecord, error)
	Close() error
}
