package indicators

import "aster_bot/internal/models"

// Convergent: все положительные MA лежат в полосе threshold% от максимума.
func Convergent(values []float64, thresholdPercent float64) bool {
	var lo, hi float64
	n := 0
	for _, v := range values {
		if v <= 0 {
			continue
		}
		if n == 0 || v < lo {
			lo = v
		}
		if n == 0 || v > hi {
			hi = v
		}
		n++
	}
	if n < 2 || hi == 0 {
		return false
	}
	return (hi-lo)/hi*100 <= thresholdPercent
}

// Position — цена относительно среднего MA с полосой ±1%.
func Position(price float64, values []float64) models.PricePosition {
	var pos []float64
	for _, v := range values {
		if v > 0 {
			pos = append(pos, v)
		}
	}
	if len(pos) == 0 {
		return models.PriceUnknown
	}
	avg := Mean(pos)
	switch {
	case price > avg*1.01:
		return models.PriceAbove
	case price < avg*0.99:
		return models.PriceBelow
	default:
		return models.PriceCross
	}
}

// Breakout: предыдущее закрытие по другую сторону от avg, текущее — по нужную.
func Breakout(closes []float64, avg float64, dir models.Direction) bool {
	if len(closes) < 2 {
		return false
	}
	prev, cur := closes[len(closes)-2], closes[len(closes)-1]
	if dir == models.DirectionUp {
		return prev < avg && cur > avg
	}
	return prev > avg && cur < avg
}

// Stable: последние bars закрытий строго по одну сторону от avg.
func Stable(closes []float64, avg float64, side models.PricePosition, bars int) bool {
	if bars < 0 || len(closes) < bars {
		return false
	}
	for _, c := range closes[len(closes)-bars:] {
		if side == models.PriceAbove && c <= avg {
			return false
		}
		if side != models.PriceAbove && c >= avg {
			return false
		}
	}
	return true
}
