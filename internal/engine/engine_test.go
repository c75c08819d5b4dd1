package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/skalibog/bstb/internal/config"
	"github.com/skalibog/bstb/pkg/models"
)

type fakeMarket struct {
	candles   []*models.Candle
	price     decimal.Decimal
	balances  []models.Balances
	balCalls  int
	klinesErr error
	priceErr  error
	balErr    error
}

func (m *fakeMarket) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	if m.klinesErr != nil {
		return nil, m.klinesErr
	}
	return m.candles, nil
}

func (m *fakeMarket) GetLastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if m.priceErr != nil {
		return decimal.Zero, m.priceErr
	}
	return m.price, nil
}

func (m *fakeMarket) GetBalances(ctx context.Context) (models.Balances, error) {
	if m.balErr != nil {
		return nil, m.balErr
	}
	idx := m.balCalls
	if idx >= len(m.balances) {
		idx = len(m.balances) - 1
	}
	m.balCalls++
	return m.balances[idx], nil
}

type fakeOrders struct {
	fill    *models.OrderFill
	err     error
	calls   int
	lastQty decimal.Decimal
}

func (o *fakeOrders) CreateMarketOrder(ctx context.Context, symbol string, side models.Signal, quantity decimal.Decimal) (*models.OrderFill, error) {
	o.calls++
	o.lastQty = quantity
	if o.err != nil {
		return nil, o.err
	}
	if o.fill != nil {
		return o.fill, nil
	}
	return &models.OrderFill{Quantity: quantity, AvgPrice: decimal.Zero}, nil
}

type fakeStore struct {
	candles int
	signals []*models.SignalRecord
	trades  []*models.TradeRecord
}

func (s *fakeStore) SaveCandles(ctx context.Context, candles []*models.Candle) error {
	s.candles++
	return nil
}

func (s *fakeStore) SaveSignal(ctx context.Context, record *models.SignalRecord) error {
	s.signals = append(s.signals, record)
	return nil
}

func (s *fakeStore) SaveTrade(ctx context.Context, trade *models.TradeRecord) error {
	s.trades = append(s.trades, trade)
	return nil
}

func (s *fakeStore) Close() {}

type fakeNotifier struct {
	messages []string
}

func (n *fakeNotifier) Send(msg string) { n.messages = append(n.messages, msg) }
func (n *fakeNotifier) Sendf(format string, args ...any) {
	n.messages = append(n.messages, format)
}

func testConfig() *config.Config {
	return &config.Config{
		Trading: config.TradingConfig{
			Symbol:      "BTCUSDT",
			BaseAsset:   "BTC",
			QuoteAsset:  "USDT",
			Interval:    "1h",
			PollSeconds: 60,
		},
		Analysis: config.AnalysisConfig{
			Strategy:      config.StrategyRSI,
			Lookback:      40,
			RSIPeriod:     14,
			EMASpan:       20,
			BBPeriod:      20,
			RSIOverbought: 70,
			RSIOversold:   30,
		},
		Risk: config.RiskConfig{
			TradeFraction:   0.10,
			MinNotional:     10,
			TrailingStopPct: 0.02,
			TakeProfitPct:   0.05,
		},
	}
}

func makeCandles(closes []float64) []*models.Candle {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]*models.Candle, len(closes))
	for i := range closes {
		candles[i] = &models.Candle{
			Symbol:    "BTCUSDT",
			Interval:  "1h",
			OpenTime:  base.Add(time.Duration(i) * time.Hour),
			Open:      closes[i],
			High:      closes[i],
			Low:       closes[i],
			Close:     closes[i],
			Volume:    1,
			CloseTime: base.Add(time.Duration(i+1) * time.Hour),
		}
	}
	return candles
}

// decliningCloses дают RSI около нуля: стратегия rsi решает BUY
func decliningCloses(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 200 - float64(i)
	}
	return out
}

// risingCloses дают RSI около ста: стратегия rsi решает SELL
func risingCloses(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + float64(i)
	}
	return out
}

// oscillatingCloses держат RSI около 50: HOLD
func oscillatingCloses(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100
		if i%2 == 1 {
			out[i] = 101
		}
	}
	return out
}

func newTestEngine(market *fakeMarket, orders *fakeOrders) (*Engine, *fakeStore, *fakeNotifier) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	return New(testConfig(), market, orders, store, notifier), store, notifier
}

func TestCycleBuyExecuted(t *testing.T) {
	market := &fakeMarket{
		candles:  makeCandles(decliningCloses(40)),
		price:    decimal.RequireFromString("50000"),
		balances: []models.Balances{{"USDT": decimal.RequireFromString("1000")}},
	}
	orders := &fakeOrders{}
	e, store, notifier := newTestEngine(market, orders)

	result := e.RunCycle(context.Background())

	if result.Outcome != OutcomeExecuted {
		t.Fatalf("ожидался EXECUTED, получено %s (%s)", result.Outcome, result.Reason)
	}
	if result.Signal != models.SignalBuy {
		t.Fatalf("ожидался сигнал BUY, получено %s", result.Signal)
	}
	if orders.calls != 1 {
		t.Fatalf("ожидался один ордер, получено %d", orders.calls)
	}
	if !orders.lastQty.Equal(decimal.RequireFromString("0.002")) {
		t.Fatalf("количество: ожидалось 0.002, получено %s", orders.lastQty)
	}
	if len(store.trades) != 1 {
		t.Fatalf("сделка должна попадать в телеметрию")
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("уведомление должно отправляться один раз")
	}
	if store.trades[0].Timestamp.IsZero() {
		t.Fatalf("у записи сделки должна быть метка времени")
	}
}

func TestCycleHold(t *testing.T) {
	market := &fakeMarket{
		candles:  makeCandles(oscillatingCloses(40)),
		price:    decimal.RequireFromString("50000"),
		balances: []models.Balances{{"USDT": decimal.RequireFromString("1000")}},
	}
	orders := &fakeOrders{}
	e, store, _ := newTestEngine(market, orders)

	result := e.RunCycle(context.Background())

	if result.Outcome != OutcomeHold {
		t.Fatalf("ожидался HOLD, получено %s (%s)", result.Outcome, result.Reason)
	}
	if orders.calls != 0 {
		t.Fatalf("при HOLD ордера не отправляются")
	}
	if len(store.signals) != 1 {
		t.Fatalf("сигнал цикла должен попадать в телеметрию")
	}
}

func TestCycleShortWindowHolds(t *testing.T) {
	market := &fakeMarket{
		candles:  makeCandles(decliningCloses(5)),
		price:    decimal.RequireFromString("50000"),
		balances: []models.Balances{{"USDT": decimal.RequireFromString("1000")}},
	}
	orders := &fakeOrders{}
	e, _, _ := newTestEngine(market, orders)

	result := e.RunCycle(context.Background())

	// RSI не определен на коротком окне: решение всегда HOLD
	if result.Outcome != OutcomeHold {
		t.Fatalf("ожидался HOLD, получено %s (%s)", result.Outcome, result.Reason)
	}
	if orders.calls != 0 {
		t.Fatalf("при HOLD ордера не отправляются")
	}
}

func TestCycleDataFetchErrorSkips(t *testing.T) {
	market := &fakeMarket{
		klinesErr: errors.New("connection reset"),
	}
	orders := &fakeOrders{}
	e, _, _ := newTestEngine(market, orders)

	result := e.RunCycle(context.Background())

	if result.Outcome != OutcomeSkipped {
		t.Fatalf("ожидался SKIPPED, получено %s", result.Outcome)
	}
	if result.Reason == "" {
		t.Fatalf("у пропущенного цикла должна быть причина")
	}
	if orders.calls != 0 {
		t.Fatalf("при ошибке данных ордера не отправляются")
	}
}

func TestCycleSellInsufficientFunds(t *testing.T) {
	market := &fakeMarket{
		candles: makeCandles(risingCloses(40)),
		price:   decimal.RequireFromString("50000"),
		balances: []models.Balances{{
			"USDT": decimal.RequireFromString("1000"),
			"BTC":  decimal.RequireFromString("0.0005"),
		}},
	}
	orders := &fakeOrders{}
	e, _, _ := newTestEngine(market, orders)

	result := e.RunCycle(context.Background())

	if result.Signal != models.SignalSell {
		t.Fatalf("ожидался сигнал SELL, получено %s", result.Signal)
	}
	if result.Outcome != OutcomeRejectedInsufficientFunds {
		t.Fatalf("ожидался REJECTED_INSUFFICIENT_FUNDS, получено %s (%s)", result.Outcome, result.Reason)
	}
	if orders.calls != 0 {
		t.Fatalf("при нехватке средств ордер не отправляется")
	}
}

func TestCycleFinalCheckRejects(t *testing.T) {
	// Баланс меняется между расчетом и исполнением
	market := &fakeMarket{
		candles: makeCandles(decliningCloses(40)),
		price:   decimal.RequireFromString("50000"),
		balances: []models.Balances{
			{"USDT": decimal.RequireFromString("1000")},
			{"USDT": decimal.RequireFromString("1")},
		},
	}
	orders := &fakeOrders{}
	e, _, _ := newTestEngine(market, orders)

	result := e.RunCycle(context.Background())

	if result.Outcome != OutcomeRejectedInsufficientFunds {
		t.Fatalf("ожидался REJECTED_INSUFFICIENT_FUNDS, получено %s (%s)", result.Outcome, result.Reason)
	}
	if orders.calls != 0 {
		t.Fatalf("ордер не должен отправляться после провала финальной проверки")
	}
}

func TestCycleExecutionFailed(t *testing.T) {
	market := &fakeMarket{
		candles:  makeCandles(decliningCloses(40)),
		price:    decimal.RequireFromString("50000"),
		balances: []models.Balances{{"USDT": decimal.RequireFromString("1000")}},
	}
	orders := &fakeOrders{err: errors.New("rate limit exceeded")}
	e, store, notifier := newTestEngine(market, orders)

	result := e.RunCycle(context.Background())

	if result.Outcome != OutcomeExecutionFailed {
		t.Fatalf("ожидался EXECUTION_FAILED, получено %s", result.Outcome)
	}
	if orders.calls != 1 {
		t.Fatalf("отправка должна быть ровно одной, без повторов в цикле")
	}
	if len(store.trades) != 0 {
		t.Fatalf("неисполненная сделка не попадает в телеметрию")
	}
	if len(notifier.messages) != 0 {
		t.Fatalf("неисполненная сделка не уведомляется")
	}
}

func TestCycleUsesFillValues(t *testing.T) {
	market := &fakeMarket{
		candles:  makeCandles(decliningCloses(40)),
		price:    decimal.RequireFromString("50000"),
		balances: []models.Balances{{"USDT": decimal.RequireFromString("1000")}},
	}
	orders := &fakeOrders{fill: &models.OrderFill{
		Quantity: decimal.RequireFromString("0.0019"),
		AvgPrice: decimal.RequireFromString("50010"),
	}}
	e, store, _ := newTestEngine(market, orders)

	result := e.RunCycle(context.Background())

	if result.Outcome != OutcomeExecuted {
		t.Fatalf("ожидался EXECUTED, получено %s (%s)", result.Outcome, result.Reason)
	}
	trade := store.trades[0]
	if !trade.Quantity.Equal(decimal.RequireFromString("0.0019")) {
		t.Fatalf("запись сделки должна использовать фактическое количество: %s", trade.Quantity)
	}
	if !trade.Price.Equal(decimal.RequireFromString("50010")) {
		t.Fatalf("запись сделки должна использовать фактическую цену: %s", trade.Price)
	}
}
