package config

import (
	"fmt"
	"io/ioutil"

	"github.com/skalibog/bstb/pkg/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance  BinanceConfig  `yaml:"binance"`
	Trading  TradingConfig  `yaml:"trading"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Risk     RiskConfig     `yaml:"risk"`
	Storage  StorageConfig  `yaml:"storage"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

// TradingConfig содержит настройки торговли
type TradingConfig struct {
	Symbol      string `yaml:"symbol"`
	BaseAsset   string `yaml:"base_asset"`
	QuoteAsset  string `yaml:"quote_asset"`
	Interval    string `yaml:"interval"`
	PollSeconds int    `yaml:"poll_seconds"`
}

// AnalysisConfig содержит настройки расчета индикаторов и генерации сигналов
type AnalysisConfig struct {
	Strategy      string  `yaml:"strategy"` // obv_vwap или rsi
	Lookback      int     `yaml:"lookback"`
	RSIPeriod     int     `yaml:"rsi_period"`
	EMASpan       int     `yaml:"ema_span"`
	BBPeriod      int     `yaml:"bb_period"`
	RSIOverbought float64 `yaml:"rsi_overbought"`
	RSIOversold   float64 `yaml:"rsi_oversold"`
}

// RiskConfig содержит настройки расчета размера позиции
type RiskConfig struct {
	TradeFraction   float64 `yaml:"trade_fraction"`
	MinNotional     float64 `yaml:"min_notional"`
	TrailingStopPct float64 `yaml:"trailing_stop_pct"`
	TakeProfitPct   float64 `yaml:"take_profit_pct"`
	FeeBufferPct    float64 `yaml:"fee_buffer_pct"`
}

// StorageConfig настройки хранения данных
type StorageConfig struct {
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// TelegramConfig настройки уведомлений в Telegram
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// Стратегии генерации сигналов
const (
	StrategyOBVVWAP = "obv_vwap"
	StrategyRSI     = "rsi"
)

// Load загружает конфигурацию из файла и подставляет значения по умолчанию
func Load(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger.Info("Загружена конфигурация",
		zap.String("path", path),
		zap.String("symbol", config.Trading.Symbol),
		zap.String("strategy", config.Analysis.Strategy))
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Trading.Interval == "" {
		c.Trading.Interval = "1h"
	}
	if c.Trading.PollSeconds == 0 {
		c.Trading.PollSeconds = 60
	}
	if c.Analysis.Strategy == "" {
		c.Analysis.Strategy = StrategyOBVVWAP
	}
	if c.Analysis.Lookback == 0 {
		c.Analysis.Lookback = 100
	}
	if c.Analysis.RSIPeriod == 0 {
		c.Analysis.RSIPeriod = 14
	}
	if c.Analysis.EMASpan == 0 {
		c.Analysis.EMASpan = 20
	}
	if c.Analysis.BBPeriod == 0 {
		c.Analysis.BBPeriod = 20
	}
	if c.Analysis.RSIOverbought == 0 {
		c.Analysis.RSIOverbought = 70
	}
	if c.Analysis.RSIOversold == 0 {
		c.Analysis.RSIOversold = 30
	}
	if c.Risk.TradeFraction == 0 {
		c.Risk.TradeFraction = 0.10
	}
	if c.Risk.MinNotional == 0 {
		c.Risk.MinNotional = 10
	}
	if c.Risk.TrailingStopPct == 0 {
		c.Risk.TrailingStopPct = 0.02
	}
	if c.Risk.TakeProfitPct == 0 {
		c.Risk.TakeProfitPct = 0.05
	}
}

// Validate проверяет конфигурацию при старте.
// Ошибки здесь фатальны: с неполной конфигурацией процесс не запускается.
func (c *Config) Validate() error {
	if c.Binance.APIKey == "" || c.Binance.APISecret == "" {
		return fmt.Errorf("не заданы ключи Binance API")
	}
	if c.Trading.Symbol == "" {
		return fmt.Errorf("не задан торговый символ")
	}
	if c.Trading.BaseAsset == "" || c.Trading.QuoteAsset == "" {
		return fmt.Errorf("не заданы базовый и котируемый активы для %s", c.Trading.Symbol)
	}
	if c.Analysis.Strategy != StrategyOBVVWAP && c.Analysis.Strategy != StrategyRSI {
		return fmt.Errorf("неизвестная стратегия: %s", c.Analysis.Strategy)
	}
	if c.Analysis.Lookback < c.Analysis.RSIPeriod+1 || c.Analysis.Lookback < c.Analysis.BBPeriod {
		return fmt.Errorf("окно lookback=%d меньше периода индикаторов", c.Analysis.Lookback)
	}
	if c.Risk.TradeFraction <= 0 || c.Risk.TradeFraction > 1 {
		return fmt.Errorf("trade_fraction должен быть в диапазоне (0, 1]: %f", c.Risk.TradeFraction)
	}
	if c.Risk.MinNotional <= 0 {
		return fmt.Errorf("min_notional должен быть положительным: %f", c.Risk.MinNotional)
	}
	if c.Risk.TrailingStopPct <= 0 || c.Risk.TrailingStopPct >= 1 {
		return fmt.Errorf("trailing_stop_pct должен быть в диапазоне (0, 1): %f", c.Risk.TrailingStopPct)
	}
	if c.Risk.TakeProfitPct <= 0 || c.Risk.TakeProfitPct >= 1 {
		return fmt.Errorf("take_profit_pct должен быть в диапазоне (0, 1): %f", c.Risk.TakeProfitPct)
	}
	if c.Risk.FeeBufferPct < 0 || c.Risk.FeeBufferPct >= 1 {
		return fmt.Errorf("fee_buffer_pct должен быть в диапазоне [0, 1): %f", c.Risk.FeeBufferPct)
	}
	return nil
}
