package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal представляет торговое решение
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// Candle представляет свечу
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// IndicatorSnapshot представляет значения индикаторов для одной свечи.
// nil означает, что истории для индикатора еще недостаточно.
type IndicatorSnapshot struct {
	OpenTime time.Time
	Close    float64
	RSI      *float64
	EMA      *float64
	OBV      *float64
	VWAP     *float64
	BBUpper  *float64
	BBLower  *float64
}

// Balances представляет доступные балансы по активам
type Balances map[string]decimal.Decimal

// Available возвращает доступный баланс актива (ноль, если актива нет)
func (b Balances) Available(asset string) decimal.Decimal {
	return b[asset]
}

// OrderIntent представляет рассчитанный, но еще не отправленный ордер
type OrderIntent struct {
	Symbol     string
	Side       Signal
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Notional   decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
}

// OrderFill представляет результат исполнения ордера на бирже
type OrderFill struct {
	Quantity decimal.Decimal
	AvgPrice decimal.Decimal
}

// SignalRecord представляет результат одного цикла оценки для телеметрии
type SignalRecord struct {
	Symbol    string
	Signal    Signal
	Price     float64
	Timestamp time.Time
}

// TradeRecord представляет исполненную сделку для телеметрии и уведомлений
type TradeRecord struct {
	Symbol     string
	Side       Signal
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Notional   decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	Timestamp  time.Time
}
