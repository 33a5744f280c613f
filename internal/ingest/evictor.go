package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pair-regress-go/infrastructure/logger"
	"pair-regress-go/internal/store"
	"pair-regress-go/metrics"
	"pair-regress-go/monitor/logschema"
)

// DefaultRetention 成交记录的保留窗口。
const DefaultRetention = 60 * time.Minute

// Evictor 删除某个交易对超出保留窗口的成交记录。
type Evictor struct {
	store     store.TradeStore
	symbol    string
	retention time.Duration
	log       *logger.Logger
}

func NewEvictor(st store.TradeStore, symbol string, retention time.Duration, log *logger.Logger) *Evictor {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Evictor{store: st, symbol: symbol, retention: retention, log: log}
}

// Retention 返回保留窗口。
func (e *Evictor) Retention() time.Duration { return e.retention }

// Evict 删除 timestamp < now-retention 的记录。没有过期记录时不产生任何副作用；
// 存储错误被记录后以 ErrStore 返回，事务由存储层负责回滚与释放。
func (e *Evictor) Evict(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-e.retention)
	metrics.EvictionPasses.WithLabelValues(e.symbol).Inc()

	n, err := e.store.DeleteOlderThan(ctx, e.symbol, cutoff)
	if err != nil {
		perr := newError(ErrStore, e.symbol, "evict", err)
		metrics.PipelineErrors.WithLabelValues(e.symbol, KindName(perr)).Inc()
		e.log.LogError(perr, map[string]interface{}{
			"symbol": e.symbol,
			"action": "evict",
			"cutoff": cutoff.Format(time.RFC3339),
		})
		return 0, perr
	}
	if n > 0 {
		metrics.EvictedRecords.WithLabelValues(e.symbol).Add(float64(n))
		e.log.Info(logschema.EventEviction,
			zap.String("symbol", e.symbol),
			zap.Int64("deleted", n),
			zap.Time("cutoff", cutoff),
		)
	}
	return n, nil
}
