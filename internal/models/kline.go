package models

import "time"

// Kline — одна свеча fapi: [openTime, o, h, l, c, volume, closeTime, quoteVolume, ...].
type Kline struct {
	OpenTime    time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	CloseTime   time.Time
	QuoteVolume float64
}

// Closes возвращает ряд цен закрытия от старых к новым.
func Closes(ks []Kline) []float64 {
	out := make([]float64, len(ks))
	for i, k := range ks {
		out[i] = k.Close
	}
	return out
}
