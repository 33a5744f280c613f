package market

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// AlertSender 抽象告警出口，*alert.Manager 满足该接口。
type AlertSender interface {
	SendWarning(message string, fields map[string]interface{}) error
}

// Move 描述一次超过阈值的价格变动。
type Move struct {
	Symbol        string
	Sign          string // "+" 上涨, "-" 下跌
	Price         decimal.Decimal
	Previous      decimal.Decimal
	PercentChange decimal.Decimal
}

// Message 返回告警文案。
func (m Move) Message(threshold decimal.Decimal) string {
	return fmt.Sprintf("Price change: %s%s%% - Current Price: %s USDT", m.Sign, threshold.String(), m.Price.Abs().String())
}

// PriceWatcher 跟踪单个交易对的上一笔价格，变动幅度达到阈值时告警。
// 每个被监控的交易对持有自己的实例，状态不再挂在全局。
type PriceWatcher struct {
	symbol string
	alerts AlertSender

	mu        sync.Mutex
	threshold decimal.Decimal
	last      decimal.Decimal
}

// NewPriceWatcher 创建 watcher；thresholdPct 为百分比（1 表示 1%）。
func NewPriceWatcher(symbol string, thresholdPct float64, alerts AlertSender) *PriceWatcher {
	return &PriceWatcher{
		symbol:    CanonicalSymbol(symbol),
		alerts:    alerts,
		threshold: decimal.NewFromFloat(thresholdPct),
	}
}

// Symbol 返回被监控的交易对。
func (w *PriceWatcher) Symbol() string { return w.symbol }

// SetThreshold 热更新阈值。
func (w *PriceWatcher) SetThreshold(pct float64) {
	w.mu.Lock()
	w.threshold = decimal.NewFromFloat(pct)
	w.mu.Unlock()
}

// Threshold 当前阈值（百分比）。
func (w *PriceWatcher) Threshold() decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.threshold
}

// LastPrice 上一次观察到的价格；零值表示尚无观察。
func (w *PriceWatcher) LastPrice() decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Observe 记录最新价格。首笔价格只建立基准不告警；之后每笔都会覆盖基准，
// 若相对上一笔的变动 >= 阈值则返回 Move 并发送告警。
func (w *PriceWatcher) Observe(current decimal.Decimal) (Move, bool) {
	w.mu.Lock()
	if w.last.Sign() <= 0 {
		w.last = current
		w.mu.Unlock()
		return Move{}, false
	}
	prev := w.last
	pct := current.Sub(prev).Div(prev).Mul(hundred)
	w.last = current
	threshold := w.threshold
	w.mu.Unlock()

	if pct.Abs().LessThan(threshold) {
		return Move{}, false
	}
	sign := "-"
	if pct.Sign() > 0 {
		sign = "+"
	}
	mv := Move{
		Symbol:        w.symbol,
		Sign:          sign,
		Price:         current,
		Previous:      prev,
		PercentChange: pct,
	}
	if w.alerts != nil {
		_ = w.alerts.SendWarning(mv.Message(threshold), map[string]interface{}{
			"symbol":         mv.Symbol,
			"sign":           mv.Sign,
			"price":          mv.Price.String(),
			"previous":       mv.Previous.String(),
			"percent_change": mv.PercentChange.StringFixed(4),
		})
	}
	return mv, true
}
