package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/skalibog/bstb/internal/config"
	"github.com/skalibog/bstb/pkg/models"
)

// ErrInsufficientFunds возвращается, когда доступного баланса не хватает на ордер
var ErrInsufficientFunds = errors.New("недостаточно средств")

// Manager рассчитывает размер позиции и уровни выхода
type Manager struct {
	config  config.RiskConfig
	trading config.TradingConfig

	fraction    decimal.Decimal
	minNotional decimal.Decimal
	stopPct     decimal.Decimal
	profitPct   decimal.Decimal
	feeBuffer   decimal.Decimal
}

// NewManager создает новый риск-менеджер
func NewManager(cfg config.RiskConfig, trading config.TradingConfig) *Manager {
	return &Manager{
		config:      cfg,
		trading:     trading,
		fraction:    decimal.NewFromFloat(cfg.TradeFraction),
		minNotional: decimal.NewFromFloat(cfg.MinNotional),
		stopPct:     decimal.NewFromFloat(cfg.TrailingStopPct),
		profitPct:   decimal.NewFromFloat(cfg.TakeProfitPct),
		feeBuffer:   decimal.NewFromFloat(cfg.FeeBufferPct),
	}
}

// Size превращает сигнал в намерение ордера с ограничением риска.
// Размер считается от котируемого баланса, стоимость не опускается ниже
// минимального нотионала. Для продажи требуемое количество базового актива
// (с учетом буфера на комиссию) не должно превышать доступный баланс.
func (m *Manager) Size(signal models.Signal, balances models.Balances, lastPrice decimal.Decimal) (*models.OrderIntent, error) {
	if signal != models.SignalBuy && signal != models.SignalSell {
		return nil, fmt.Errorf("сигнал %s не подлежит исполнению", signal)
	}
	if !lastPrice.IsPositive() {
		return nil, fmt.Errorf("недопустимая цена: %s", lastPrice)
	}

	quoteAvailable := balances.Available(m.trading.QuoteAsset)

	notional := quoteAvailable.Mul(m.fraction)
	if notional.LessThan(m.minNotional) {
		notional = m.minNotional
	}

	quantity := notional.Div(lastPrice)

	if signal == models.SignalSell {
		one := decimal.NewFromInt(1)
		required := quantity.Mul(one.Add(m.feeBuffer))
		baseAvailable := balances.Available(m.trading.BaseAsset)
		if required.GreaterThan(baseAvailable) {
			return nil, fmt.Errorf("%w: нужно %s %s, доступно %s",
				ErrInsufficientFunds, required, m.trading.BaseAsset, baseAvailable)
		}
	}

	stopLoss, takeProfit := m.exitLevels(signal, lastPrice)

	return &models.OrderIntent{
		Symbol:     m.trading.Symbol,
		Side:       signal,
		Quantity:   quantity,
		Price:      lastPrice,
		Notional:   notional,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	}, nil
}

// exitLevels ставит стоп-лосс и тейк-профит по нужную сторону от цены входа
func (m *Manager) exitLevels(signal models.Signal, lastPrice decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	one := decimal.NewFromInt(1)

	if signal == models.SignalBuy {
		stopLoss := lastPrice.Mul(one.Sub(m.stopPct))
		takeProfit := lastPrice.Mul(one.Add(m.profitPct))
		return stopLoss, takeProfit
	}

	stopLoss := lastPrice.Mul(one.Add(m.stopPct))
	takeProfit := lastPrice.Mul(one.Sub(m.profitPct))
	return stopLoss, takeProfit
}
