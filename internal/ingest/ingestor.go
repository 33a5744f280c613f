package ingest

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pair-regress-go/gateway"
	"pair-regress-go/infrastructure/logger"
	"pair-regress-go/internal/store"
	"pair-regress-go/market"
	"pair-regress-go/metrics"
	"pair-regress-go/monitor/logschema"
)

// Config 单个交易对的接入参数。
type Config struct {
	Symbol       string
	SuccessPause time.Duration // 每笔成功处理后的自节流
	ErrorPause   time.Duration // parse/store 失败后的暂停
	MinBackoff   time.Duration // 重连退避起点
	MaxBackoff   time.Duration // 重连退避上限
	EchoTrades   bool          // 把每笔成交打到日志
}

// DefaultConfig 返回与线上一致的节流参数。
func DefaultConfig(symbol string) Config {
	return Config{
		Symbol:       symbol,
		SuccessPause: time.Second,
		ErrorPause:   10 * time.Second,
		MinBackoff:   time.Second,
		MaxBackoff:   30 * time.Second,
	}
}

// Stats 运行计数快照。
type Stats struct {
	Received   int64
	Stored     int64
	Dropped    int64
	Backoffs   int64
	Evicted    int64
	Reconnects int64
	Alerts     int64
}

// Ingestor 维护一条行情连接并驱动逐条处理：解析、监控、落库，同时清理过期记录。
// 同一交易对任意时刻最多只有一组“处理+清理”在执行。
type Ingestor struct {
	cfg     Config
	symbol  string
	dial    gateway.Dialer
	store   store.TradeStore
	evictor *Evictor
	watcher *market.PriceWatcher
	log     *logger.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	received   atomic.Int64
	stored     atomic.Int64
	dropped    atomic.Int64
	backoffs   atomic.Int64
	evicted    atomic.Int64
	reconnects atomic.Int64
	alerts     atomic.Int64
}

// New 创建 Ingestor。watcher 为 nil 时不做价格异动检查。
func New(cfg Config, dial gateway.Dialer, st store.TradeStore, evictor *Evictor, watcher *market.PriceWatcher, log *logger.Logger) *Ingestor {
	if log == nil {
		log = logger.NewNop()
	}
	symbol := market.CanonicalSymbol(cfg.Symbol)
	if evictor == nil {
		evictor = NewEvictor(st, symbol, DefaultRetention, log)
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = cfg.MinBackoff
	}
	return &Ingestor{
		cfg:     cfg,
		symbol:  symbol,
		dial:    dial,
		store:   st,
		evictor: evictor,
		watcher: watcher,
		log:     log.WithFields(map[string]interface{}{"symbol": symbol}),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// SetClock 替换时间源（测试用）。
func (i *Ingestor) SetClock(now func() time.Time) { i.now = now }

// SetSleeper 替换暂停实现（测试用）。
func (i *Ingestor) SetSleeper(fn func(context.Context, time.Duration) error) { i.sleep = fn }

// Symbol 返回大写交易对。
func (i *Ingestor) Symbol() string { return i.symbol }

// Stats 返回计数快照。
func (i *Ingestor) Stats() Stats {
	return Stats{
		Received:   i.received.Load(),
		Stored:     i.stored.Load(),
		Dropped:    i.dropped.Load(),
		Backoffs:   i.backoffs.Load(),
		Evicted:    i.evicted.Load(),
		Reconnects: i.reconnects.Load(),
		Alerts:     i.alerts.Load(),
	}
}

// Run 连接行情并循环处理直到 ctx 结束。首次连接失败直接返回 ErrTransport；
// 之后的断线按指数退避重连，不设次数上限。
func (i *Ingestor) Run(ctx context.Context) error {
	src, err := i.dial(ctx, i.symbol)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		perr := newError(ErrTransport, i.symbol, "connect", err)
		i.recordError(perr)
		return perr
	}

	backoff := i.cfg.MinBackoff
	for {
		metrics.WSConnected.WithLabelValues(i.symbol).Set(1)
		i.log.Info("trade stream connected", zap.Duration("retention", i.evictor.Retention()))

		err := i.consume(ctx, src)
		_ = src.Close()
		metrics.WSConnected.WithLabelValues(i.symbol).Set(0)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		i.recordError(newError(ErrTransport, i.symbol, "recv", err))

		for {
			if err := i.sleep(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, i.cfg.MaxBackoff)
			i.reconnects.Add(1)
			metrics.Reconnects.WithLabelValues(i.symbol).Inc()

			src, err = i.dial(ctx, i.symbol)
			if err == nil {
				backoff = i.cfg.MinBackoff
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			i.recordError(newError(ErrTransport, i.symbol, "reconnect", err))
		}
	}
}

// consume 逐条接收消息；每条消息的处理与过期清理并发执行，两者都结束后才接收下一条。
func (i *Ingestor) consume(ctx context.Context, src gateway.Source) error {
	for {
		raw, err := src.Recv(ctx)
		if err != nil {
			return err
		}
		i.received.Add(1)
		metrics.TicksReceived.WithLabelValues(i.symbol).Inc()

		var g errgroup.Group
		g.Go(func() error {
			return i.handleAndPause(ctx, raw)
		})
		g.Go(func() error {
			if n, err := i.evictor.Evict(ctx, i.now()); err == nil {
				i.evicted.Add(n)
			}
			return nil
		})
		if err := g.Wait(); err != nil {
			return err
		}
	}
}

// handleAndPause 处理一条消息后按结果暂停；只有 ctx 结束时返回错误。
func (i *Ingestor) handleAndPause(ctx context.Context, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	pause := i.cfg.SuccessPause
	if err := i.HandleTrade(ctx, raw); err != nil {
		pause = i.cfg.ErrorPause
		i.backoffs.Add(1)
	}
	if err := i.sleep(ctx, pause); err != nil && ctx.Err() != nil {
		return err
	}
	return nil
}

// HandleTrade 解析一条 trade 消息，送入 watcher 后写库。失败时返回 *PipelineError。
func (i *Ingestor) HandleTrade(ctx context.Context, raw []byte) error {
	tr, err := gateway.ParseTrade(raw)
	if err != nil {
		i.dropped.Add(1)
		perr := newError(ErrParse, i.symbol, "parse", err)
		i.recordError(perr)
		return perr
	}

	if i.watcher != nil {
		if mv, alerted := i.watcher.Observe(tr.Price); alerted {
			i.alerts.Add(1)
			metrics.PriceAlerts.WithLabelValues(i.symbol, mv.Sign).Inc()
		}
	}
	if i.cfg.EchoTrades {
		i.log.LogTrade(logschema.EventTrade, map[string]interface{}{
			"pair":  tr.Symbol,
			"price": tr.Price.String(),
		})
	}

	tr.Ts = i.now()
	rec, err := i.store.Insert(ctx, tr.Symbol, tr.Price, tr.Ts)
	if err != nil {
		i.dropped.Add(1)
		perr := newError(ErrStore, i.symbol, "insert", err)
		i.recordError(perr)
		return perr
	}
	i.stored.Add(1)
	metrics.TradesStored.WithLabelValues(i.symbol).Inc()
	price, _ := tr.Price.Float64()
	metrics.LastPrice.WithLabelValues(i.symbol).Set(price)
	i.log.Debug("trade stored", zap.Uint("id", rec.ID), zap.String("price", rec.Price.String()))
	return nil
}

func (i *Ingestor) recordError(err *PipelineError) {
	metrics.PipelineErrors.WithLabelValues(i.symbol, KindName(err)).Inc()
	i.log.LogError(err, map[string]interface{}{"op": err.Op, "kind": KindName(err)})
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsCanceled 判断 Run 的返回是否只是正常的取消。
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
