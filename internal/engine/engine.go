// Package engine содержит основной цикл: получение данных, расчет
// индикаторов, классификация сигнала, расчет размера и исполнение.
//
// Цикл строго последовательный, следующий не начинается до завершения
// текущего. Завершение процесса между циклами безопасно; завершение
// посреди цикла может оставить отправленный ордер без записи телеметрии
// и уведомления — известное и принятое ограничение.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/skalibog/bstb/internal/analysis/indicators"
	"github.com/skalibog/bstb/internal/analysis/signalgen"
	"github.com/skalibog/bstb/internal/config"
	"github.com/skalibog/bstb/internal/notify"
	"github.com/skalibog/bstb/internal/risk"
	"github.com/skalibog/bstb/internal/storage"
	"github.com/skalibog/bstb/pkg/logger"
	"github.com/skalibog/bstb/pkg/models"
	"go.uber.org/zap"
)

// Outcome представляет итог одного цикла
type Outcome string

const (
	OutcomeHold                      Outcome = "HOLD"
	OutcomeExecuted                  Outcome = "EXECUTED"
	OutcomeRejectedInsufficientFunds Outcome = "REJECTED_INSUFFICIENT_FUNDS"
	OutcomeExecutionFailed           Outcome = "EXECUTION_FAILED"
	OutcomeSkipped                   Outcome = "SKIPPED"
)

// CycleResult представляет итог цикла: ровно одна строка результата на цикл
type CycleResult struct {
	Signal  models.Signal
	Outcome Outcome
	Reason  string
	Trade   *models.TradeRecord
}

// MarketData источник рыночных данных
type MarketData interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error)
	GetLastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetBalances(ctx context.Context) (models.Balances, error)
}

// OrderSubmitter отправляет ордера на биржу
type OrderSubmitter interface {
	CreateMarketOrder(ctx context.Context, symbol string, side models.Signal, quantity decimal.Decimal) (*models.OrderFill, error)
}

// Engine связывает все компоненты решения в один цикл
type Engine struct {
	trading    config.TradingConfig
	analysis   config.AnalysisConfig
	market     MarketData
	orders     OrderSubmitter
	store      storage.Storage
	notifier   notify.Notifier
	indicators *indicators.Engine
	signals    *signalgen.Generator
	risk       *risk.Manager
}

// New создает новый движок
func New(cfg *config.Config, market MarketData, orders OrderSubmitter, store storage.Storage, notifier notify.Notifier) *Engine {
	return &Engine{
		trading:    cfg.Trading,
		analysis:   cfg.Analysis,
		market:     market,
		orders:     orders,
		store:      store,
		notifier:   notifier,
		indicators: indicators.NewEngine(cfg.Analysis),
		signals:    signalgen.NewGenerator(cfg.Analysis),
		risk:       risk.NewManager(cfg.Risk, cfg.Trading),
	}
}

// Run запускает цикл по расписанию до отмены контекста
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Duration(e.trading.PollSeconds) * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.report(e.RunCycle(ctx))

	for {
		select {
		case <-ticker.C:
			e.report(e.RunCycle(ctx))
		case <-ctx.Done():
			logger.Info("Цикл остановлен", zap.String("symbol", e.trading.Symbol))
			return ctx.Err()
		}
	}
}

// RunCycle выполняет один цикл решения. Все ошибки перехватываются
// на границе цикла и превращаются в итог, процесс не падает.
func (e *Engine) RunCycle(ctx context.Context) *CycleResult {
	// Окно свечей заменяется целиком каждый цикл
	candles, err := e.market.GetKlines(ctx, e.trading.Symbol, e.trading.Interval, e.analysis.Lookback)
	if err != nil {
		return &CycleResult{
			Signal:  models.SignalHold,
			Outcome: OutcomeSkipped,
			Reason:  "ошибка получения рыночных данных: " + err.Error(),
		}
	}

	if err := e.store.SaveCandles(ctx, candles); err != nil {
		logger.Warn("Не удалось сохранить свечи", zap.Error(err))
	}

	snapshots, err := e.indicators.Compute(candles)
	if err != nil {
		return &CycleResult{
			Signal:  models.SignalHold,
			Outcome: OutcomeSkipped,
			Reason:  "ошибка расчета индикаторов: " + err.Error(),
		}
	}

	// Сигнал требует двух снимков
	if len(snapshots) < 2 {
		return &CycleResult{
			Signal:  models.SignalHold,
			Outcome: OutcomeHold,
			Reason:  "недостаточно снимков индикаторов",
		}
	}

	current := snapshots[len(snapshots)-1]
	previous := snapshots[len(snapshots)-2]
	signal := e.signals.Evaluate(current, previous)

	record := &models.SignalRecord{
		Symbol:    e.trading.Symbol,
		Signal:    signal,
		Price:     current.Close,
		Timestamp: time.Now(),
	}
	if err := e.store.SaveSignal(ctx, record); err != nil {
		logger.Warn("Не удалось сохранить сигнал", zap.Error(err))
	}

	if signal == models.SignalHold {
		return &CycleResult{
			Signal:  signal,
			Outcome: OutcomeHold,
		}
	}

	return e.execute(ctx, signal)
}

// execute рассчитывает размер и исполняет ордер для сигнала BUY/SELL
func (e *Engine) execute(ctx context.Context, signal models.Signal) *CycleResult {
	// Баланс всегда свежий, решения по кэшу не принимаются
	balances, err := e.market.GetBalances(ctx)
	if err != nil {
		return &CycleResult{
			Signal:  signal,
			Outcome: OutcomeSkipped,
			Reason:  "ошибка получения балансов: " + err.Error(),
		}
	}

	lastPrice, err := e.market.GetLastPrice(ctx, e.trading.Symbol)
	if err != nil {
		return &CycleResult{
			Signal:  signal,
			Outcome: OutcomeSkipped,
			Reason:  "ошибка получения цены: " + err.Error(),
		}
	}

	intent, err := e.risk.Size(signal, balances, lastPrice)
	if err != nil {
		if errors.Is(err, risk.ErrInsufficientFunds) {
			return &CycleResult{
				Signal:  signal,
				Outcome: OutcomeRejectedInsufficientFunds,
				Reason:  err.Error(),
			}
		}
		return &CycleResult{
			Signal:  signal,
			Outcome: OutcomeSkipped,
			Reason:  "ошибка расчета размера: " + err.Error(),
		}
	}

	// Финальная проверка средств по свежему балансу:
	// между расчетом и исполнением балансы могли измениться
	fresh, err := e.market.GetBalances(ctx)
	if err != nil {
		return &CycleResult{
			Signal:  signal,
			Outcome: OutcomeSkipped,
			Reason:  "ошибка финальной проверки балансов: " + err.Error(),
		}
	}
	if err := e.verifyFunds(intent, fresh); err != nil {
		return &CycleResult{
			Signal:  signal,
			Outcome: OutcomeRejectedInsufficientFunds,
			Reason:  err.Error(),
		}
	}

	fill, err := e.orders.CreateMarketOrder(ctx, intent.Symbol, intent.Side, intent.Quantity)
	if err != nil {
		return &CycleResult{
			Signal:  signal,
			Outcome: OutcomeExecutionFailed,
			Reason:  err.Error(),
		}
	}

	trade := e.buildTradeRecord(intent, fill)

	if err := e.store.SaveTrade(ctx, trade); err != nil {
		logger.Warn("Не удалось сохранить сделку", zap.Error(err))
	}
	e.notifier.Send(tradeMessage(trade))

	return &CycleResult{
		Signal:  signal,
		Outcome: OutcomeExecuted,
		Trade:   trade,
	}
}

// verifyFunds проверяет достаточность средств непосредственно перед отправкой
func (e *Engine) verifyFunds(intent *models.OrderIntent, balances models.Balances) error {
	if intent.Side == models.SignalBuy {
		quote := balances.Available(e.trading.QuoteAsset)
		if intent.Notional.GreaterThan(quote) {
			return errorInsufficient(e.trading.QuoteAsset, intent.Notional, quote)
		}
		return nil
	}

	base := balances.Available(e.trading.BaseAsset)
	if intent.Quantity.GreaterThan(base) {
		return errorInsufficient(e.trading.BaseAsset, intent.Quantity, base)
	}
	return nil
}

func errorInsufficient(asset string, required, available decimal.Decimal) error {
	return &insufficientFundsError{asset: asset, required: required, available: available}
}

type insufficientFundsError struct {
	asset     string
	required  decimal.Decimal
	available decimal.Decimal
}

func (e *insufficientFundsError) Error() string {
	return "недостаточно " + e.asset + ": нужно " + e.required.String() + ", доступно " + e.available.String()
}

func (e *insufficientFundsError) Unwrap() error { return risk.ErrInsufficientFunds }

// buildTradeRecord собирает запись сделки, предпочитая фактические
// значения исполнения расчетным
func (e *Engine) buildTradeRecord(intent *models.OrderIntent, fill *models.OrderFill) *models.TradeRecord {
	quantity := intent.Quantity
	price := intent.Price
	if fill != nil && fill.Quantity.IsPositive() {
		quantity = fill.Quantity
		if fill.AvgPrice.IsPositive() {
			price = fill.AvgPrice
		}
	}

	return &models.TradeRecord{
		Symbol:     intent.Symbol,
		Side:       intent.Side,
		Quantity:   quantity,
		Price:      price,
		Notional:   quantity.Mul(price),
		StopLoss:   intent.StopLoss,
		TakeProfit: intent.TakeProfit,
		Timestamp:  time.Now(),
	}
}

// report пишет ровно одну итоговую строку на цикл
func (e *Engine) report(result *CycleResult) {
	fields := []zap.Field{
		zap.String("symbol", e.trading.Symbol),
		zap.String("signal", string(result.Signal)),
		zap.String("outcome", string(result.Outcome)),
	}
	if result.Reason != "" {
		fields = append(fields, zap.String("reason", result.Reason))
	}
	if result.Trade != nil {
		fields = append(fields,
			zap.String("quantity", result.Trade.Quantity.String()),
			zap.String("price", result.Trade.Price.String()))
	}

	switch result.Outcome {
	case OutcomeExecuted, OutcomeHold:
		logger.Info("Итог цикла", fields...)
	default:
		logger.Warn("Итог цикла", fields...)
	}
}

// tradeMessage формирует текст уведомления об исполненной сделке
func tradeMessage(trade *models.TradeRecord) string {
	return "📢 Сделка исполнена!\n" +
		"💰 Действие: " + string(trade.Side) + "\n" +
		"📈 Символ: " + trade.Symbol + "\n" +
		"🔹 Количество: " + trade.Quantity.StringFixed(8) + "\n" +
		"💵 Стоимость: " + trade.Notional.StringFixed(2) + "\n" +
		"📌 Стоп-лосс: " + trade.StopLoss.StringFixed(2) + "\n" +
		"📌 Тейк-профит: " + trade.TakeProfit.StringFixed(2)
}
