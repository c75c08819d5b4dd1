package indicators

import (
	"errors"
	"fmt"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/bstb/internal/config"
	"github.com/skalibog/bstb/pkg/models"
)

// ErrInsufficientHistory возвращается, когда свечей нет совсем
var ErrInsufficientHistory = errors.New("недостаточно истории для расчета индикаторов")

// Engine рассчитывает технические индикаторы по окну свечей
type Engine struct {
	config config.AnalysisConfig
}

// NewEngine создает новый расчетчик индикаторов
func NewEngine(cfg config.AnalysisConfig) *Engine {
	return &Engine{
		config: cfg,
	}
}

// Compute аннотирует окно свечей значениями индикаторов.
// Последовательность должна быть строго упорядочена по времени и без пропусков.
// Индикатор, для которого истории еще не хватает, остается nil.
func (e *Engine) Compute(candles []*models.Candle) ([]*models.IndicatorSnapshot, error) {
	if len(candles) == 0 {
		return nil, ErrInsufficientHistory
	}

	if err := validateSequence(candles); err != nil {
		return nil, err
	}

	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	snapshots := make([]*models.IndicatorSnapshot, len(candles))
	for i, c := range candles {
		snapshots[i] = &models.IndicatorSnapshot{
			OpenTime: c.OpenTime,
			Close:    c.Close,
		}
	}

	e.computeRSI(closes, snapshots)
	e.computeEMA(closes, snapshots)
	e.computeOBV(closes, volumes, snapshots)
	e.computeVWAP(closes, volumes, snapshots)
	e.computeBollinger(closes, snapshots)

	return snapshots, nil
}

// validateSequence проверяет хронологический порядок и равный шаг свечей
func validateSequence(candles []*models.Candle) error {
	step := intervalDuration(candles[0].Interval)
	for i := 1; i < len(candles); i++ {
		gap := candles[i].OpenTime.Sub(candles[i-1].OpenTime)
		if gap <= 0 {
			return fmt.Errorf("свечи не упорядочены по времени: %s после %s",
				candles[i].OpenTime, candles[i-1].OpenTime)
		}
		if gap != step {
			return fmt.Errorf("пропуск в последовательности свечей: шаг %s вместо %s на позиции %d",
				gap, step, i)
		}
	}
	return nil
}

// computeRSI рассчитывает RSI по Уайлдеру.
// Первые period значений не определены.
func (e *Engine) computeRSI(closes []float64, snapshots []*models.IndicatorSnapshot) {
	period := e.config.RSIPeriod
	if len(closes) < period+1 {
		return
	}

	rsi := talib.Rsi(closes, period)
	for i := period; i < len(rsi); i++ {
		snapshots[i].RSI = fptr(rsi[i])
	}
}

// computeEMA рассчитывает экспоненциальную скользящую среднюю.
// Затравкой служит первое закрытие, поэтому значение определено с первой свечи.
func (e *Engine) computeEMA(closes []float64, snapshots []*models.IndicatorSnapshot) {
	alpha := 2.0 / (float64(e.config.EMASpan) + 1.0)

	ema := closes[0]
	snapshots[0].EMA = fptr(ema)
	for i := 1; i < len(closes); i++ {
		ema = alpha*closes[i] + (1-alpha)*ema
		snapshots[i].EMA = fptr(ema)
	}
}

// computeOBV рассчитывает кумулятивный On-Balance Volume с начала окна
func (e *Engine) computeOBV(closes, volumes []float64, snapshots []*models.IndicatorSnapshot) {
	obv := talib.Obv(closes, volumes)
	for i := range obv {
		snapshots[i].OBV = fptr(obv[i])
	}
}

// computeVWAP рассчитывает кумулятивный VWAP с начала окна
func (e *Engine) computeVWAP(closes, volumes []float64, snapshots []*models.IndicatorSnapshot) {
	var cumulativeVolume float64
	var cumulativeVP float64

	for i := range closes {
		cumulativeVolume += volumes[i]
		cumulativeVP += closes[i] * volumes[i]
		if cumulativeVolume == 0 {
			continue
		}
		snapshots[i].VWAP = fptr(cumulativeVP / cumulativeVolume)
	}
}

// computeBollinger рассчитывает полосы Боллинджера (SMA ± 2σ).
// Первые period-1 значений не определены.
func (e *Engine) computeBollinger(closes []float64, snapshots []*models.IndicatorSnapshot) {
	period := e.config.BBPeriod
	if len(closes) < period {
		return
	}

	upper, _, lower := talib.BBands(closes, period, 2.0, 2.0, 0)
	for i := period - 1; i < len(upper); i++ {
		snapshots[i].BBUpper = fptr(upper[i])
		snapshots[i].BBLower = fptr(lower[i])
	}
}

func fptr(v float64) *float64 {
	return &v
}

// intervalDuration конвертирует строковый интервал в duration
func intervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "2h":
		return 2 * time.Hour
	case "4h":
		return 4 * time.Hour
	case "6h":
		return 6 * time.Hour
	case "8h":
		return 8 * time.Hour
	case "12h":
		return 12 * time.Hour
	case "1d":
		return 24 * time.Hour
	case "3d":
		return 72 * time.Hour
	case "1w":
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}
