package models

import "time"

type ManualSide string

const (
	ManualLong  ManualSide = "LONG"
	ManualShort ManualSide = "SHORT"
)

func (s ManualSide) Valid() bool { return s == ManualLong || s == ManualShort }

// OrderSide — сторона открывающего ордера.
func (s ManualSide) OrderSide() Side {
	if s == ManualShort {
		return SideSell
	}
	return SideBuy
}

type OrderSource string

const (
	SourceAPI  OrderSource = "API"
	SourceFile OrderSource = "FILE"
	SourceWS   OrderSource = "WS"
	SourceCLI  OrderSource = "CLI"
)

func (s OrderSource) Valid() bool {
	switch s {
	case SourceAPI, SourceFile, SourceWS, SourceCLI:
		return true
	}
	return false
}

// ManualOrder — внешняя инструкция. Необязательные поля — nil.
type ManualOrder struct {
	Symbol            string
	Side              ManualSide
	Quantity          *float64
	Leverage          *int
	StopLossPercent   *float64
	TakeProfitPercent *float64
	Note              string
	Source            OrderSource
	Timestamp         time.Time
}

// ManualPosition — открытая по ManualOrder позиция под мониторингом.
type ManualPosition struct {
	OrderID         string     `json:"order_id"`
	Symbol          string     `json:"symbol"`
	Side            ManualSide `json:"side"`
	EntryPrice      float64    `json:"entry_price"`
	Quantity        float64    `json:"quantity"`
	Leverage        int        `json:"leverage"`
	StopLossPrice   *float64   `json:"stop_loss_price"`
	TakeProfitPrice *float64   `json:"take_profit_price"`
	OpenTime        time.Time  `json:"open_time"`
	Note            string     `json:"note,omitempty"`
}

// PnLPercent — нереализованный результат в процентах от цены входа (без плеча).
func (p ManualPosition) PnLPercent(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	if p.Side == ManualShort {
		return (p.EntryPrice - price) / p.EntryPrice * 100
	}
	return (price - p.EntryPrice) / p.EntryPrice * 100
}

// ShouldClose — цена пересекла стоп или тейк.
func (p ManualPosition) ShouldClose(price float64) bool {
	if p.StopLossPrice != nil && *p.StopLossPrice > 0 {
		sl := *p.StopLossPrice
		if p.Side == ManualLong && price <= sl {
			return true
		}
		if p.Side == ManualShort && price >= sl {
			return true
		}
	}
	if p.TakeProfitPrice != nil && *p.TakeProfitPrice > 0 {
		tp := *p.TakeProfitPrice
		if p.Side == ManualLong && price >= tp {
			return true
		}
		if p.Side == ManualShort && price <= tp {
			return true
		}
	}
	return false
}
