package service

import (
	"fmt"
	"math"
	"math/big"

	"aster_bot/internal/models"
	"aster_bot/internal/modules/config"

	"github.com/shopspring/decimal"
)

const (
	defaultStopLossPercent   = 3.0
	defaultTakeProfitPercent = 10.0
)

// Limits — потолки риска из секции trading.
type Limits struct {
	MaxLeverage        int
	MaxPositionPercent float64
	MarginType         string
	StopLossPercent    float64
	TakeProfitPercent  float64
}

type Manager struct {
	limits Limits
}

func NewManager(cfg *config.Config) *Manager {
	return New(Limits{
		MaxLeverage:        cfg.Trading.MaxLeverage,
		MaxPositionPercent: cfg.Trading.MaxPositionPercent,
		MarginType:         cfg.Trading.MarginType,
		StopLossPercent:    cfg.Trading.StopLossPercent,
		TakeProfitPercent:  cfg.Trading.TakeProfitPercent,
	})
}

func New(l Limits) *Manager {
	if l.MaxLeverage < 1 {
		l.MaxLeverage = 1
	}
	if l.StopLossPercent <= 0 {
		l.StopLossPercent = defaultStopLossPercent
	}
	if l.TakeProfitPercent <= 0 {
		l.TakeProfitPercent = defaultTakeProfitPercent
	}
	return &Manager{limits: l}
}

func (m *Manager) Limits() Limits { return m.limits }

// Leverage — запрошенное плечо, зажатое в [1, MaxLeverage].
func (m *Manager) Leverage(requested int) int {
	if requested < 1 {
		return 1
	}
	if requested > m.limits.MaxLeverage {
		return m.limits.MaxLeverage
	}
	return requested
}

// CalculateSize: маржа не больше MaxPositionPercent от свободного баланса,
// количество округляется вниз до шага LOT_SIZE.
func (m *Manager) CalculateSize(available, price float64, leverage int, info models.SymbolInfo) (models.SizingResult, error) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return models.SizingResult{}, fmt.Errorf("calculate size %s: bad price %v", info.Symbol, price)
	}
	lev := m.Leverage(leverage)

	maxMargin := available * m.limits.MaxPositionPercent / 100
	if maxMargin < 0 {
		maxMargin = 0
	}
	notional := maxMargin * float64(lev)
	qty := ApplyLotSize(notional/price, info.LotSize)

	actual := qty * price
	return models.SizingResult{
		Quantity: qty,
		Notional: actual,
		Margin:   actual / float64(lev),
		Leverage: lev,
	}, nil
}

// ApplyLotSize зажимает количество в [minQty, maxQty] и округляет вниз до stepSize.
// Если minQty не кратен шагу, результат поднимается до ближайшего кратного не ниже minQty.
func ApplyLotSize(qty float64, lot *models.LotSize) float64 {
	if lot == nil {
		return qty
	}
	q := decimal.NewFromFloat(qty)
	lo := decimal.NewFromFloat(lot.MinQty)
	if q.LessThan(lo) {
		q = lo
	}
	if lot.MaxQty > 0 {
		hi := decimal.NewFromFloat(lot.MaxQty)
		if q.GreaterThan(hi) {
			q = hi
		}
	}
	if lot.StepSize > 0 {
		step := decimal.NewFromFloat(lot.StepSize)
		q = q.Div(step).Floor().Mul(step)
		if q.LessThan(lo) {
			q = lo.Div(step).Ceil().Mul(step)
		}
	}
	f, _ := q.Float64()
	return f
}

// RoundQuantity округляет до precision знаков точное двоичное значение qty:
// 0.0125 хранится как 0.01250000000000000069… и даёт 0.013, к чётному
// округляются только точные середины (0.125 -> 0.12).
func RoundQuantity(qty float64, precision int) float64 {
	f, _ := exactDecimal(qty).RoundBank(int32(precision)).Float64()
	return f
}

// exactDecimal — десятичная запись float64 без потерь: mant·2^-k = mant·5^k·10^-k.
func exactDecimal(f float64) decimal.Decimal {
	if f == 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	frac, exp := math.Frexp(f)
	mant := big.NewInt(int64(frac * (1 << 53)))
	exp -= 53
	if exp >= 0 {
		return decimal.NewFromBigInt(mant.Lsh(mant, uint(exp)), 0)
	}
	k := big.NewInt(int64(-exp))
	mant.Mul(mant, new(big.Int).Exp(big.NewInt(5), k, nil))
	return decimal.NewFromBigInt(mant, int32(exp))
}

// FormatQuantity — кратчайшая десятичная запись без экспоненты.
func FormatQuantity(qty float64) string {
	return decimal.NewFromFloat(qty).String()
}

// StopLoss: long — ниже входа, short — выше. pct<=0 — процент из настроек.
func (m *Manager) StopLoss(entry float64, side models.Side, pct float64) float64 {
	if pct <= 0 {
		pct = m.limits.StopLossPercent
	}
	if side == models.SideBuy {
		return entry * (1 - pct/100)
	}
	return entry * (1 + pct/100)
}

// TakeProfit: long — выше входа, short — ниже.
func (m *Manager) TakeProfit(entry float64, side models.Side, pct float64) float64 {
	if pct <= 0 {
		pct = m.limits.TakeProfitPercent
	}
	if side == models.SideBuy {
		return entry * (1 + pct/100)
	}
	return entry * (1 - pct/100)
}
