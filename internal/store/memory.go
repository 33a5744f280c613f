package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore 进程内 TradeStore，用于测试和 dry-run。
type MemoryStore struct {
	mu     sync.Mutex
	nextID uint
	rows   []TradeRecord

	// 故障注入
	InsertErr error
	QueryErr  error
	DeleteErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (m *MemoryStore) Insert(_ context.Context, symbol string, price decimal.Decimal, ts time.Time) (TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return TradeRecord{}, m.InsertErr
	}
	rec := TradeRecord{ID: m.nextID, Symbol: symbol, Price: price, Timestamp: ts}
	m.nextID++
	m.rows = append(m.rows, rec)
	return rec, nil
}

func (m *MemoryStore) QueryBySymbol(_ context.Context, symbol string) ([]TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	var out []TradeRecord
	for _, r := range m.rows {
		if r.Symbol == symbol {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryStore) DeleteOlderThan(_ context.Context, symbol string, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return 0, m.DeleteErr
	}
	kept := m.rows[:0]
	var removed int64
	for _, r := range m.rows {
		if r.Symbol == symbol && r.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return removed, nil
}

func (m *MemoryStore) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.QueryErr != nil {
		return 0, m.QueryErr
	}
	return int64(len(m.rows)), nil
}

func (m *MemoryStore) All(_ context.Context) ([]TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	out := make([]TradeRecord, len(m.rows))
	copy(out, m.rows)
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
