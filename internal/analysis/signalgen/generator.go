package signalgen

import (
	"github.com/skalibog/bstb/internal/config"
	"github.com/skalibog/bstb/pkg/models"
)

// Generator превращает пару снимков индикаторов в торговое решение.
// Чистая функция: никакого состояния между вызовами, никакого I/O.
type Generator struct {
	config config.AnalysisConfig
}

// NewGenerator создает новый генератор сигналов
func NewGenerator(cfg config.AnalysisConfig) *Generator {
	return &Generator{
		config: cfg,
	}
}

// Evaluate классифицирует текущий снимок относительно предыдущего.
// Если какой-либо нужный индикатор еще не определен, решение всегда HOLD.
func (g *Generator) Evaluate(current, previous *models.IndicatorSnapshot) models.Signal {
	if current == nil || previous == nil {
		return models.SignalHold
	}

	if g.config.Strategy == config.StrategyRSI {
		return g.evaluateRSI(current)
	}

	return g.evaluateOBVVWAP(current, previous)
}

// evaluateRSI простая стратегия: пороговые значения RSI
func (g *Generator) evaluateRSI(current *models.IndicatorSnapshot) models.Signal {
	if current.RSI == nil {
		return models.SignalHold
	}

	if *current.RSI < g.config.RSIOversold {
		return models.SignalBuy
	}
	if *current.RSI > g.config.RSIOverbought {
		return models.SignalSell
	}
	return models.SignalHold
}

// evaluateOBVVWAP основная стратегия: OBV и VWAP задают направление,
// RSI и полосы Боллинджера работают как вето-фильтры.
// Фильтры никогда не переворачивают сигнал, только отменяют его.
func (g *Generator) evaluateOBVVWAP(current, previous *models.IndicatorSnapshot) models.Signal {
	if current.OBV == nil || previous.OBV == nil || current.VWAP == nil ||
		current.RSI == nil || current.BBUpper == nil || current.BBLower == nil {
		return models.SignalHold
	}

	var signal models.Signal
	switch {
	case *current.OBV > *previous.OBV && current.Close > *current.VWAP:
		signal = models.SignalBuy
	case *current.OBV < *previous.OBV && current.Close < *current.VWAP:
		signal = models.SignalSell
	default:
		return models.SignalHold
	}

	// RSI-фильтр: перекупленность отменяет покупку, перепроданность — продажу.
	// Сравнение строгое: ровно 70 еще не перекупленность.
	if signal == models.SignalBuy && *current.RSI > g.config.RSIOverbought {
		return models.SignalHold
	}
	if signal == models.SignalSell && *current.RSI < g.config.RSIOversold {
		return models.SignalHold
	}

	// Фильтр полос Боллинджера: касание границы уже отменяет сигнал
	if signal == models.SignalBuy && current.Close >= *current.BBUpper {
		return models.SignalHold
	}
	if signal == models.SignalSell && current.Close <= *current.BBLower {
		return models.SignalHold
	}

	return signal
}
