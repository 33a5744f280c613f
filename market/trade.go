package market

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TradeTick 是 feed 推送的一笔成交（已归一化）。
type TradeTick struct {
	Symbol string
	Price  decimal.Decimal
	Ts     time.Time
}

// CanonicalSymbol 返回交易对的标准写法（大写、去空白）。
func CanonicalSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// StreamSymbol 返回订阅流使用的小写写法。
func StreamSymbol(symbol string) string {
	return strings.ToLower(strings.TrimSpace(symbol))
}
