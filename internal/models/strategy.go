package models

import "time"

// Action — решение стратегии по символу.
type Action string

const (
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
	ActionHold  Action = "HOLD"
	ActionClose Action = "CLOSE"
)

func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold, ActionClose:
		return true
	}
	return false
}

// Side — сторона ордера на бирже.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite — сторона закрывающего ордера.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// PricePosition — где цена относительно среднего всех MA.
type PricePosition string

const (
	PriceAbove   PricePosition = "ABOVE"
	PriceBelow   PricePosition = "BELOW"
	PriceCross   PricePosition = "CROSS"
	PriceUnknown PricePosition = "UNKNOWN"
)

// Direction — направление пробоя.
type Direction string

const (
	DirectionNone Direction = ""
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// Holding — позиция, которую стратегия считает открытой.
type Holding string

const (
	HoldingNone  Holding = ""
	HoldingLong  Holding = "LONG"
	HoldingShort Holding = "SHORT"
)

// SymbolState — изменяемое состояние стратегии по одному символу.
type SymbolState struct {
	LastConvergenceTime *time.Time `json:"last_convergence_time"`
	BreakoutDirection   Direction  `json:"breakout_direction"`
	BreakoutTime        *time.Time `json:"breakout_time"`
	Position            Holding    `json:"position"`
}

// Signal — результат одной оценки стратегии. Не мутируется после создания.
type Signal struct {
	Symbol        string             `json:"symbol"`
	Action        Action             `json:"action"`
	Confidence    int                `json:"confidence"`
	Reason        string             `json:"reason"`
	Time          time.Time          `json:"timestamp"`
	MAData        map[string]float64 `json:"ma_data,omitempty"`
	CurrentPrice  float64            `json:"current_price,omitempty"`
	Convergent    bool               `json:"is_convergent"`
	PricePosition PricePosition      `json:"price_position,omitempty"`
}
