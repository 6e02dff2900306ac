// Package indicators — чистые функции над рядами цен, без состояния между вызовами.
package indicators

import (
	"fmt"

	"github.com/markcheno/go-talib"
)

// SMA — среднее последних period цен закрытия. 0, если истории не хватает.
func SMA(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return 0
	}
	if period == 1 {
		return closes[len(closes)-1]
	}
	window := closes[len(closes)-period:]
	out := talib.Sma(window, period)
	return out[len(out)-1]
}

type emaState struct {
	alpha  float64
	value  float64
	warmup bool
}

func newEMA(period int) emaState {
	if period <= 1 {
		period = 1
	}
	return emaState{alpha: 2.0 / (float64(period) + 1)}
}

func (e *emaState) Update(price float64) {
	if !e.warmup {
		e.value = price
		e.warmup = true
		return
	}
	e.value = e.alpha*price + (1-e.alpha)*e.value
}

// EMA считается по всему ряду, первое значение — первая цена закрытия.
// 0, если истории меньше period.
func EMA(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return 0
	}
	e := newEMA(period)
	for _, c := range closes {
		e.Update(c)
	}
	return e.value
}

// AllMAs — sma_<p> и ema_<p> для каждого периода.
func AllMAs(closes []float64, smaPeriods, emaPeriods []int) map[string]float64 {
	out := make(map[string]float64, len(smaPeriods)+len(emaPeriods))
	for _, p := range smaPeriods {
		out[fmt.Sprintf("sma_%d", p)] = SMA(closes, p)
	}
	for _, p := range emaPeriods {
		out[fmt.Sprintf("ema_%d", p)] = EMA(closes, p)
	}
	return out
}

// Positive отбрасывает нерассчитанные (нулевые) значения.
func Positive(values map[string]float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if v > 0 {
			out = append(out, v)
		}
	}
	return out
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
