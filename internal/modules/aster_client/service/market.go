package service

import (
	"context"
	"fmt"
	"time"

	"aster_bot/internal/models"

	"github.com/spf13/cast"
)

const (
	defaultKlinesLimit = 500
	maxKlinesLimit     = 1500
)

func (c *Client) Ping(ctx context.Context) error {
	return c.public(ctx, "/fapi/v1/ping", nil, nil)
}

// ServerTime — время биржи в миллисекундах.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	var r struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := c.public(ctx, "/fapi/v1/time", nil, &r); err != nil {
		return 0, err
	}
	return r.ServerTime, nil
}

func (c *Client) ExchangeInfo(ctx context.Context) (models.ExchangeInfo, error) {
	var w exchangeInfoWire
	if err := c.public(ctx, "/fapi/v1/exchangeInfo", nil, &w); err != nil {
		return models.ExchangeInfo{}, err
	}
	info := models.ExchangeInfo{
		ServerTime: w.ServerTime,
		Symbols:    make(map[string]models.SymbolInfo, len(w.Symbols)),
	}
	for _, s := range w.Symbols {
		info.Symbols[s.Symbol] = s.toModel()
	}
	return info, nil
}

type KlinesQuery struct {
	Symbol    string
	Interval  string
	StartTime int64 // ms, 0 — не задано
	EndTime   int64
	Limit     int
}

// Klines возвращает свечи от старых к новым.
func (c *Client) Klines(ctx context.Context, q KlinesQuery) ([]models.Kline, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultKlinesLimit
	}
	if limit > maxKlinesLimit {
		limit = maxKlinesLimit
	}
	params := Params{
		"symbol":   q.Symbol,
		"interval": q.Interval,
		"limit":    limit,
	}
	if q.StartTime > 0 {
		params["startTime"] = q.StartTime
	}
	if q.EndTime > 0 {
		params["endTime"] = q.EndTime
	}

	var rows [][]any
	if err := c.public(ctx, "/fapi/v1/klines", params, &rows); err != nil {
		return nil, err
	}
	return ParseKlines(rows)
}

// ParseKlines разбирает строки [openTime, o, h, l, c, volume, closeTime, quoteVolume, ...].
func ParseKlines(rows [][]any) ([]models.Kline, error) {
	out := make([]models.Kline, 0, len(rows))
	for i, row := range rows {
		if len(row) < 7 {
			return nil, fmt.Errorf("kline %d: %d fields", i, len(row))
		}
		openMs, err := cast.ToInt64E(row[0])
		if err != nil {
			return nil, fmt.Errorf("kline %d open time: %w", i, err)
		}
		closeMs, err := cast.ToInt64E(row[6])
		if err != nil {
			return nil, fmt.Errorf("kline %d close time: %w", i, err)
		}
		var ohlcv [5]float64
		for j := range ohlcv {
			v, err := cast.ToFloat64E(row[j+1])
			if err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, j+1, err)
			}
			ohlcv[j] = v
		}
		k := models.Kline{
			OpenTime:  time.UnixMilli(openMs),
			Open:      ohlcv[0],
			High:      ohlcv[1],
			Low:       ohlcv[2],
			Close:     ohlcv[3],
			Volume:    ohlcv[4],
			CloseTime: time.UnixMilli(closeMs),
		}
		if len(row) > 7 {
			k.QuoteVolume, _ = cast.ToFloat64E(row[7])
		}
		out = append(out, k)
	}
	return out, nil
}

// TickerPrice — последняя цена символа.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	var r struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := c.public(ctx, "/fapi/v1/ticker/price", Params{"symbol": symbol}, &r); err != nil {
		return 0, err
	}
	px := num(r.Price)
	if px <= 0 {
		return 0, fmt.Errorf("ticker %s: bad price %q", symbol, r.Price)
	}
	return px, nil
}

func (c *Client) MarkPrice(ctx context.Context, symbol string) (MarkPrice, error) {
	var w markPriceWire
	if err := c.public(ctx, "/fapi/v1/premiumIndex", Params{"symbol": symbol}, &w); err != nil {
		return MarkPrice{}, err
	}
	return MarkPrice{
		Symbol:          w.Symbol,
		MarkPrice:       num(w.MarkPrice),
		IndexPrice:      num(w.IndexPrice),
		LastFundingRate: num(w.LastFundingRate),
		NextFundingTime: w.NextFundingTime,
	}, nil
}
