package service

import (
	"fmt"

	"aster_bot/internal/models"

	"github.com/shopspring/decimal"
)

// Rejection — ордер не проходит фильтр биржи. На биржу такой ордер не уходит.
type Rejection struct {
	Symbol string
	Filter string
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("order %s rejected by %s: %s", r.Symbol, r.Filter, r.Reason)
}

func reject(symbol, filter, format string, args ...any) *Rejection {
	return &Rejection{Symbol: symbol, Filter: filter, Reason: fmt.Sprintf(format, args...)}
}

// ValidateOrder проверяет PRICE_FILTER, LOT_SIZE и MIN_NOTIONAL. Возвращает *Rejection или nil.
// Отсутствующий фильтр не проверяется; нулевой maxPrice/maxQty — без верхней границы.
func (m *Manager) ValidateOrder(symbol string, side models.Side, qty, price float64, info models.SymbolInfo) error {
	if qty <= 0 {
		return reject(symbol, "QUANTITY", "%s quantity %v must be positive", side, qty)
	}
	if pf := info.PriceFilter; pf != nil {
		if price < pf.MinPrice {
			return reject(symbol, "PRICE_FILTER", "price %v below min %v", price, pf.MinPrice)
		}
		if pf.MaxPrice > 0 && price > pf.MaxPrice {
			return reject(symbol, "PRICE_FILTER", "price %v above max %v", price, pf.MaxPrice)
		}
		if !multipleOf(price, pf.TickSize) {
			return reject(symbol, "PRICE_FILTER", "price %v not a multiple of tick %v", price, pf.TickSize)
		}
	}
	if lot := info.LotSize; lot != nil {
		if qty < lot.MinQty {
			return reject(symbol, "LOT_SIZE", "quantity %v below min %v", qty, lot.MinQty)
		}
		if lot.MaxQty > 0 && qty > lot.MaxQty {
			return reject(symbol, "LOT_SIZE", "quantity %v above max %v", qty, lot.MaxQty)
		}
		if !multipleOf(qty, lot.StepSize) {
			return reject(symbol, "LOT_SIZE", "quantity %v not a multiple of step %v", qty, lot.StepSize)
		}
	}
	if mn := info.MinNotional; mn != nil {
		notional := price * qty
		if notional < mn.Notional {
			return reject(symbol, "MIN_NOTIONAL", "notional %v below min %v", notional, mn.Notional)
		}
	}
	return nil
}

func multipleOf(v, step float64) bool {
	if step <= 0 {
		return true
	}
	return decimal.NewFromFloat(v).Mod(decimal.NewFromFloat(step)).IsZero()
}
