package service

import (
	"strconv"

	"aster_bot/internal/models"
)

// wire-структуры fapi: числа приходят строками.

type filterWire struct {
	FilterType  string `json:"filterType"`
	MinQty      string `json:"minQty"`
	MaxQty      string `json:"maxQty"`
	StepSize    string `json:"stepSize"`
	MinPrice    string `json:"minPrice"`
	MaxPrice    string `json:"maxPrice"`
	TickSize    string `json:"tickSize"`
	Notional    string `json:"notional"`
	MinNotional string `json:"minNotional"`
}

type symbolWire struct {
	Symbol            string       `json:"symbol"`
	Status            string       `json:"status"`
	QuantityPrecision int          `json:"quantityPrecision"`
	PricePrecision    int          `json:"pricePrecision"`
	Filters           []filterWire `json:"filters"`
}

type exchangeInfoWire struct {
	ServerTime int64        `json:"serverTime"`
	Symbols    []symbolWire `json:"symbols"`
}

type balanceWire struct {
	Asset            string `json:"asset"`
	Balance          string `json:"balance"`
	AvailableBalance string `json:"availableBalance"`
}

type positionWire struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	UnRealizedProfit string `json:"unRealizedProfit"`
	Leverage         string `json:"leverage"`
	Notional         string `json:"notional"`
	PositionSide     string `json:"positionSide"`
}

type orderWire struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	AvgPrice      string `json:"avgPrice"`
	ReduceOnly    bool   `json:"reduceOnly"`
}

type accountWire struct {
	TotalWalletBalance    string        `json:"totalWalletBalance"`
	TotalUnrealizedProfit string        `json:"totalUnrealizedProfit"`
	TotalMarginBalance    string        `json:"totalMarginBalance"`
	AvailableBalance      string        `json:"availableBalance"`
	CanTrade              bool          `json:"canTrade"`
	Assets                []balanceWire `json:"assets"`
}

// Account — сводка по фьючерсному счёту.
type Account struct {
	TotalWalletBalance    float64
	TotalUnrealizedProfit float64
	TotalMarginBalance    float64
	AvailableBalance      float64
	CanTrade              bool
}

// MarkPrice — ответ premiumIndex.
type MarkPrice struct {
	Symbol          string
	MarkPrice       float64
	IndexPrice      float64
	LastFundingRate float64
	NextFundingTime int64
}

type markPriceWire struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	IndexPrice      string `json:"indexPrice"`
	LastFundingRate string `json:"lastFundingRate"`
	NextFundingTime int64  `json:"nextFundingTime"`
}

func num(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func (w symbolWire) toModel() models.SymbolInfo {
	info := models.SymbolInfo{
		Symbol:            w.Symbol,
		Status:            w.Status,
		QuantityPrecision: w.QuantityPrecision,
		PricePrecision:    w.PricePrecision,
	}
	for _, f := range w.Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			info.LotSize = &models.LotSize{
				MinQty:   num(f.MinQty),
				MaxQty:   num(f.MaxQty),
				StepSize: num(f.StepSize),
			}
		case "PRICE_FILTER":
			info.PriceFilter = &models.PriceFilter{
				MinPrice: num(f.MinPrice),
				MaxPrice: num(f.MaxPrice),
				TickSize: num(f.TickSize),
			}
		case "MIN_NOTIONAL":
			n := f.Notional
			if n == "" {
				n = f.MinNotional
			}
			info.MinNotional = &models.MinNotional{Notional: num(n)}
		}
	}
	return info
}

func (w positionWire) toModel() models.PositionRisk {
	return models.PositionRisk{
		Symbol:           w.Symbol,
		PositionAmt:      num(w.PositionAmt),
		EntryPrice:       num(w.EntryPrice),
		MarkPrice:        num(w.MarkPrice),
		UnrealizedProfit: num(w.UnRealizedProfit),
		Leverage:         num(w.Leverage),
		Notional:         num(w.Notional),
		PositionSide:     w.PositionSide,
	}
}

func (w orderWire) toModel() models.OrderResult {
	return models.OrderResult{
		OrderID:       w.OrderID,
		ClientOrderID: w.ClientOrderID,
		Symbol:        w.Symbol,
		Status:        w.Status,
		Side:          models.Side(w.Side),
		Type:          w.Type,
		OrigQty:       num(w.OrigQty),
		ExecutedQty:   num(w.ExecutedQty),
		AvgPrice:      num(w.AvgPrice),
		ReduceOnly:    w.ReduceOnly,
	}
}
