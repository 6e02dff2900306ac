package models

type LotSize struct {
	MinQty   float64
	MaxQty   float64
	StepSize float64
}

type PriceFilter struct {
	MinPrice float64
	MaxPrice float64
	TickSize float64
}

type MinNotional struct {
	Notional float64
}

// SymbolInfo — метаданные символа из exchangeInfo. Фильтр nil, если биржа его не прислала.
type SymbolInfo struct {
	Symbol            string
	Status            string
	QuantityPrecision int
	PricePrecision    int
	LotSize           *LotSize
	PriceFilter       *PriceFilter
	MinNotional       *MinNotional
}

type ExchangeInfo struct {
	ServerTime int64
	Symbols    map[string]SymbolInfo
}

type Balance struct {
	Asset            string
	Balance          float64
	AvailableBalance float64
}

// PositionRisk — строка /positionRisk.
type PositionRisk struct {
	Symbol           string
	PositionAmt      float64
	EntryPrice       float64
	MarkPrice        float64
	UnrealizedProfit float64
	Leverage         float64
	Notional         float64
	PositionSide     string
}

func (p PositionRisk) Open() bool { return p.PositionAmt != 0 }

type OrderResult struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Status        string
	Side          Side
	Type          string
	OrigQty       float64
	ExecutedQty   float64
	AvgPrice      float64
	ReduceOnly    bool
}
