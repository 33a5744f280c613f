package regression

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pair-regress-go/infrastructure/logger"
	"pair-regress-go/internal/store"
	"pair-regress-go/metrics"
)

var (
	// ErrEmptyStore 成交表为空，不做任何计算。
	ErrEmptyStore = errors.New("regression: table empty")
	// ErrNoOverlap 两个序列取整后没有共同时刻。
	ErrNoOverlap = errors.New("regression: no overlapping timestamps")
)

// RowCounter 只需要表的总行数。
type RowCounter interface {
	Count(ctx context.Context) (int64, error)
}

// Result 一次回归的输出。
type Result struct {
	Slope     float64
	Intercept float64
	Points    []JoinedPoint
	Adjusted  []float64
	Stats     JoinStats
}

// Engine 对两个快照做对齐、拟合与剔除。Dependent 是被调整的交易对。
type Engine struct {
	store   RowCounter
	roundTo time.Duration
	log     *logger.Logger
}

func NewEngine(st RowCounter, roundTo time.Duration, log *logger.Logger) *Engine {
	if roundTo <= 0 {
		roundTo = time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{store: st, roundTo: roundTo, log: log}
}

// Run 先确认表非空，再按秒对齐两个序列、拟合斜率并输出调整后的序列。
func (e *Engine) Run(ctx context.Context, dependent, independent []Sample) (Result, error) {
	n, err := e.store.Count(ctx)
	if err != nil {
		metrics.RegressionRuns.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("regression: count rows: %w", err)
	}
	if n == 0 {
		e.log.Info("table empty")
		metrics.RegressionRuns.WithLabelValues("empty").Inc()
		return Result{}, ErrEmptyStore
	}
	e.log.Info("table not empty", zap.Int64("rows", n))

	points, stats := Join(dependent, independent, e.roundTo)
	metrics.RecordJoin(stats.Joined, stats.DroppedDependent, stats.DroppedIndependent)
	e.log.Info("series joined",
		zap.Int("dependent", stats.Dependent),
		zap.Int("independent", stats.Independent),
		zap.Int("joined", stats.Joined),
		zap.Int("dropped_dependent", stats.DroppedDependent),
		zap.Int("dropped_independent", stats.DroppedIndependent),
	)
	if len(points) == 0 {
		metrics.RegressionRuns.WithLabelValues("no_overlap").Inc()
		return Result{Stats: stats}, ErrNoOverlap
	}

	slope, intercept, err := FitPoints(points)
	if err != nil {
		metrics.RegressionRuns.WithLabelValues("error").Inc()
		return Result{Stats: stats}, err
	}
	adjusted := Adjust(points, slope)
	metrics.RegressionSlope.Set(slope)
	metrics.RegressionRuns.WithLabelValues("ok").Inc()

	e.log.Info("adjusted series",
		zap.Float64("slope", slope),
		zap.Float64("intercept", intercept),
		zap.Float64s("adjusted", adjusted),
	)
	return Result{
		Slope:     slope,
		Intercept: intercept,
		Points:    points,
		Adjusted:  adjusted,
		Stats:     stats,
	}, nil
}

// Snapshot 读取某个交易对当前的全部记录。
func Snapshot(ctx context.Context, st store.TradeStore, symbol string) ([]Sample, error) {
	records, err := st.QueryBySymbol(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", symbol, err)
	}
	return SamplesFrom(records), nil
}
