package storage

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/skalibog/bstb/internal/config"
	"github.com/skalibog/bstb/pkg/models"
)

// Storage интерфейс телеметрии. Доставка best-effort:
// движок логирует ошибки записи, но цикл из-за них не прерывает.
type Storage interface {
	SaveCandles(ctx context.Context, candles []*models.Candle) error
	SaveSignal(ctx context.Context, record *models.SignalRecord) error
	SaveTrade(ctx context.Context, trade *models.TradeRecord) error
	Close()
}

// InfluxDBStorage реализует интерфейс Storage с использованием InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	org      string
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(context.Background())
	if err != nil {
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	writeAPI := client.WriteAPI(cfg.Organization, cfg.Bucket)

	return &InfluxDBStorage{
		client:   client,
		writeAPI: writeAPI,
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

// SaveCandles сохраняет окно свечей
func (s *InfluxDBStorage) SaveCandles(ctx context.Context, candles []*models.Candle) error {
	for _, candle := range candles {
		point := influxdb2.NewPoint(
			"candles",
			map[string]string{
				"symbol":   candle.Symbol,
				"interval": candle.Interval,
			},
			map[string]interface{}{
				"open":   candle.Open,
				"high":   candle.High,
				"low":    candle.Low,
				"close":  candle.Close,
				"volume": candle.Volume,
			},
			candle.OpenTime,
		)
		s.writeAPI.WritePoint(point)
	}

	s.writeAPI.Flush()
	return nil
}

// SaveSignal сохраняет результат цикла оценки
func (s *InfluxDBStorage) SaveSignal(ctx context.Context, record *models.SignalRecord) error {
	point := influxdb2.NewPoint(
		"signals",
		map[string]string{
			"symbol": record.Symbol,
		},
		map[string]interface{}{
			"signal": string(record.Signal),
			"price":  record.Price,
		},
		record.Timestamp,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}

// SaveTrade сохраняет исполненную сделку
func (s *InfluxDBStorage) SaveTrade(ctx context.Context, trade *models.TradeRecord) error {
	point := influxdb2.NewPoint(
		"trades",
		map[string]string{
			"symbol": trade.Symbol,
			"side":   string(trade.Side),
		},
		map[string]interface{}{
			"amount":      trade.Quantity.InexactFloat64(),
			"price":       trade.Price.InexactFloat64(),
			"notional":    trade.Notional.InexactFloat64(),
			"stop_loss":   trade.StopLoss.InexactFloat64(),
			"take_profit": trade.TakeProfit.InexactFloat64(),
		},
		trade.Timestamp,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}
