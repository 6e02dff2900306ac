package indicators

import "github.com/markcheno/go-talib"

// ATR — простое скользящее среднее true range за period свечей.
func ATR(high, low, closes []float64, period int) float64 {
	n := len(high)
	if period <= 0 || n < period+1 || len(low) != n || len(closes) != n {
		return 0
	}
	tr := talib.TRange(high, low, closes)
	return Mean(tr[n-period:])
}
