package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"pair-regress-go/market"
)

// ErrMalformedTrade 表示 trade 消息缺字段或价格非法。
var ErrMalformedTrade = errors.New("malformed trade message")

// CombinedMessage 对应 binance combined stream 包装。
type CombinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// TradeEvent 提取 @trade 消息的核心字段。
type TradeEvent struct {
	Symbol string      `json:"s"`
	Price  json.Number `json:"p"`
}

// ParseTrade 解析单个 @trade 消息（也接受 combined stream 包装）。
// 返回的 Ts 为零值，由接收方填入接收时间。
func ParseTrade(raw []byte) (market.TradeTick, error) {
	if len(raw) == 0 {
		return market.TradeTick{}, fmt.Errorf("%w: empty payload", ErrMalformedTrade)
	}
	payload := raw
	var env CombinedMessage
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		payload = env.Data
	}

	var ev TradeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return market.TradeTick{}, fmt.Errorf("%w: %v", ErrMalformedTrade, err)
	}
	symbol := market.CanonicalSymbol(ev.Symbol)
	if symbol == "" {
		return market.TradeTick{}, fmt.Errorf("%w: missing symbol", ErrMalformedTrade)
	}
	if ev.Price == "" {
		return market.TradeTick{}, fmt.Errorf("%w: missing price", ErrMalformedTrade)
	}
	price, err := decimal.NewFromString(ev.Price.String())
	if err != nil {
		return market.TradeTick{}, fmt.Errorf("%w: price %q: %v", ErrMalformedTrade, ev.Price, err)
	}
	return market.TradeTick{Symbol: symbol, Price: price}, nil
}
