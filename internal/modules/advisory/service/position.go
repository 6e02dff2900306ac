package service

import (
	"context"
	"fmt"

	"aster_bot/pkg/logger"

	"github.com/spf13/cast"
)

type PositionAction string

const (
	PositionHold         PositionAction = "HOLD"
	PositionPartialClose PositionAction = "PARTIAL_CLOSE"
	PositionFullClose    PositionAction = "FULL_CLOSE"
	PositionAdd          PositionAction = "ADD"
)

func (a PositionAction) Valid() bool {
	switch a {
	case PositionHold, PositionPartialClose, PositionFullClose, PositionAdd:
		return true
	}
	return false
}

// PositionAdvice — рекомендация по открытой позиции. Percentage задан только
// для PARTIAL_CLOSE и ADD.
type PositionAdvice struct {
	Action     PositionAction `json:"action"`
	Percentage int            `json:"percentage"`
	Reason     string         `json:"reason"`
	Fallback   bool           `json:"fallback"`
}

// PositionView — то, что советнику нужно знать о позиции.
type PositionView struct {
	Symbol     string
	Side       string
	EntryPrice float64
	Quantity   float64
	Leverage   int
}

func defaultAdvice(reason string) PositionAdvice {
	return PositionAdvice{Action: PositionHold, Reason: reason, Fallback: true}
}

// RecommendPosition при любой ошибке возвращает HOLD.
func (a *Advisor) RecommendPosition(ctx context.Context, p PositionView, price float64) PositionAdvice {
	pnl := 0.0
	if p.EntryPrice > 0 {
		pnl = (price - p.EntryPrice) / p.EntryPrice * 100
		if p.Side == "SHORT" {
			pnl = -pnl
		}
	}
	prompt := fmt.Sprintf(`Evaluate this open position.
Symbol: %s
Side: %s
Entry price: %v
Current price: %v
Quantity: %v
Leverage: %dx
Unrealised PnL: %.2f%%

Return JSON: {"action": "HOLD/PARTIAL_CLOSE/FULL_CLOSE/ADD", "percentage": 0-100, "reason": "..."}`,
		p.Symbol, p.Side, p.EntryPrice, price, p.Quantity, p.Leverage, pnl)

	raw, err := a.client.ChatJSON(ctx, []Message{
		{Role: "system", Content: "You manage open futures positions. Protect profits, cut losers early."},
		{Role: "user", Content: prompt},
	}, 0.3, 800)
	if err != nil {
		logger.Error("[ADVISORY] position %s: %v", p.Symbol, err)
		return defaultAdvice("advisory unavailable")
	}

	out := PositionAdvice{Action: PositionHold, Reason: cast.ToString(raw["reason"])}
	if act := PositionAction(cast.ToString(raw["action"])); act.Valid() {
		out.Action = act
	}
	if out.Action == PositionPartialClose || out.Action == PositionAdd {
		out.Percentage = 50
		if v, err := cast.ToFloat64E(raw["percentage"]); err == nil && raw["percentage"] != nil {
			out.Percentage = clampInt(int(v), 10, 100)
		}
	}
	logger.Info("[ADVISORY] position %s: %s %d%%", p.Symbol, out.Action, out.Percentage)
	return out
}
