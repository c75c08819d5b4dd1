package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/skalibog/bstb/internal/config"
	"github.com/skalibog/bstb/pkg/models"
)

// BinanceClient клиент для взаимодействия со спотовым рынком Binance
type BinanceClient struct {
	spot *binance.Client
}

// NewBinanceClient создает новый клиент Binance
func NewBinanceClient(cfg config.BinanceConfig) (*BinanceClient, error) {
	spotClient := binance.NewClient(cfg.APIKey, cfg.APISecret)

	if cfg.Testnet {
		// Для спот-клиента нужно изменить базовый URL
		spotClient.BaseURL = "https://testnet.binance.vision"
	}

	return &BinanceClient{
		spot: spotClient,
	}, nil
}

// GetKlines получает исторические свечи
func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	klines, err := c.spot.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свечей: %w", err)
	}

	if len(klines) == 0 {
		return nil, fmt.Errorf("биржа вернула пустой список свечей для %s", symbol)
	}

	candles := make([]*models.Candle, len(klines))
	for i, k := range klines {
		open, err := strconv.ParseFloat(k.Open, 64)
		if err != nil {
			return nil, fmt.Errorf("ошибка разбора цены открытия: %w", err)
		}
		high, err := strconv.ParseFloat(k.High, 64)
		if err != nil {
			return nil, fmt.Errorf("ошибка разбора максимума: %w", err)
		}
		low, err := strconv.ParseFloat(k.Low, 64)
		if err != nil {
			return nil, fmt.Errorf("ошибка разбора минимума: %w", err)
		}
		closePrice, err := strconv.ParseFloat(k.Close, 64)
		if err != nil {
			return nil, fmt.Errorf("ошибка разбора цены закрытия: %w", err)
		}
		volume, err := strconv.ParseFloat(k.Volume, 64)
		if err != nil {
			return nil, fmt.Errorf("ошибка разбора объема: %w", err)
		}

		candles[i] = &models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  time.Unix(k.OpenTime/1000, 0),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			CloseTime: time.Unix(k.CloseTime/1000, 0),
		}
	}

	return candles, nil
}

// GetLastPrice получает последнюю цену сделки
func (c *BinanceClient) GetLastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := c.spot.NewListPricesService().
		Symbol(symbol).
		Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ошибка получения цены: %w", err)
	}

	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("не найдена цена для %s", symbol)
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ошибка разбора цены %q: %w", prices[0].Price, err)
	}

	return price, nil
}

// GetBalances получает доступные балансы аккаунта
func (c *BinanceClient) GetBalances(ctx context.Context) (models.Balances, error) {
	account, err := c.spot.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения балансов: %w", err)
	}

	balances := make(models.Balances, len(account.Balances))
	for _, b := range account.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			return nil, fmt.Errorf("ошибка разбора баланса %s: %w", b.Asset, err)
		}
		if free.IsZero() {
			continue
		}
		balances[b.Asset] = free
	}

	return balances, nil
}

// CreateMarketOrder отправляет рыночный ордер и возвращает результат исполнения
func (c *BinanceClient) CreateMarketOrder(ctx context.Context, symbol string, side models.Signal, quantity decimal.Decimal) (*models.OrderFill, error) {
	var sideType binance.SideType
	switch side {
	case models.SignalBuy:
		sideType = binance.SideTypeBuy
	case models.SignalSell:
		sideType = binance.SideTypeSell
	default:
		return nil, fmt.Errorf("недопустимая сторона ордера: %s", side)
	}

	order, err := c.spot.NewCreateOrderService().
		Symbol(symbol).
		Side(sideType).
		Type(binance.OrderTypeMarket).
		Quantity(quantity.String()).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка отправки ордера: %w", err)
	}

	executed, err := decimal.NewFromString(order.ExecutedQuantity)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора исполненного количества: %w", err)
	}

	quoteQty, err := decimal.NewFromString(order.CummulativeQuoteQuantity)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора исполненной стоимости: %w", err)
	}

	fill := &models.OrderFill{Quantity: executed}
	if executed.IsPositive() {
		fill.AvgPrice = quoteQty.Div(executed)
	}

	return fill, nil
}
