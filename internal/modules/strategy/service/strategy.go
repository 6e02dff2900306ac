package service

import (
	"fmt"
	"sync"
	"time"

	"aster_bot/internal/indicators"
	"aster_bot/internal/models"
	"aster_bot/pkg/logger"
)

// Params — настройки двойной MA-стратегии одного частотного режима.
type Params struct {
	SMAPeriods           []int
	EMAPeriods           []int
	ConvergenceThreshold float64 // %
	ConfirmationMinutes  int
}

// Engine — стратегия двойных скользящих средних с автоматом состояний на символ.
// Оценки разных символов идут параллельно, одного символа — последовательно.
type Engine struct {
	name   string
	params Params
	now    func() time.Time

	mu     sync.Mutex
	states map[string]*symbolSlot
}

type symbolSlot struct {
	mu    sync.Mutex
	state models.SymbolState
}

func NewEngine(name string, p Params, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		name:   name,
		params: p,
		now:    now,
		states: map[string]*symbolSlot{},
	}
}

func (e *Engine) Name() string { return e.name }

func (e *Engine) slot(symbol string) *symbolSlot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.states[symbol]
	if !ok {
		s = &symbolSlot{}
		e.states[symbol] = s
	}
	return s
}

// Analyze оценивает свечи символа (от старых к новым) и двигает его состояние.
func (e *Engine) Analyze(symbol string, klines []models.Kline, interval string) models.Signal {
	closes := models.Closes(klines)
	if len(closes) == 0 {
		logger.Warn("[STRATEGY] %s %s: no klines", e.name, symbol)
		return e.signal(symbol, models.ActionHold, 0, "no kline data")
	}

	maData := indicators.AllMAs(closes, e.params.SMAPeriods, e.params.EMAPeriods)
	values := indicators.Positive(maData)
	if len(values) == 0 {
		logger.Warn("[STRATEGY] %s %s: moving averages not computable (%d closes)", e.name, symbol, len(closes))
		return e.signal(symbol, models.ActionHold, 0, "moving averages not computable")
	}

	price := closes[len(closes)-1]
	convergent := indicators.Convergent(values, e.params.ConvergenceThreshold)
	avg := indicators.Mean(values)
	position := indicators.Position(price, values)

	s := e.slot(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := e.now()
	st := &s.state
	if convergent && st.LastConvergenceTime == nil {
		t := now
		st.LastConvergenceTime = &t
		logger.Info("[STRATEGY] %s %s converged, avg=%.6f", e.name, symbol, avg)
	}
	if !convergent {
		if st.LastConvergenceTime != nil {
			logger.Info("[STRATEGY] %s %s diverged", e.name, symbol)
		}
		st.LastConvergenceTime = nil
	}

	sig := e.decide(symbol, st, now, closes, avg, convergent, position, interval)
	sig.MAData = maData
	sig.CurrentPrice = price
	sig.Convergent = convergent
	sig.PricePosition = position
	return sig
}

func (e *Engine) decide(
	symbol string,
	st *models.SymbolState,
	now time.Time,
	closes []float64,
	avg float64,
	convergent bool,
	position models.PricePosition,
	interval string,
) models.Signal {
	if st.Position != models.HoldingNone {
		if !convergent {
			return e.signal(symbol, models.ActionHold, 50, "holding, waiting for re-convergence")
		}
		held := st.Position
		st.Position = models.HoldingNone
		st.BreakoutDirection = models.DirectionNone
		st.BreakoutTime = nil
		logger.Info("[STRATEGY] %s %s re-converged, closing %s", e.name, symbol, held)
		return e.signal(symbol, models.ActionClose, 80, fmt.Sprintf("averages re-converged, close %s", held))
	}

	if !convergent || st.LastConvergenceTime == nil {
		return e.signal(symbol, models.ActionHold, 50, "waiting for signal")
	}

	var (
		dir     models.Direction
		holding models.Holding
		action  models.Action
	)
	switch position {
	case models.PriceAbove:
		dir, holding, action = models.DirectionUp, models.HoldingLong, models.ActionBuy
	case models.PriceBelow:
		dir, holding, action = models.DirectionDown, models.HoldingShort, models.ActionSell
	default:
		return e.signal(symbol, models.ActionHold, 50, "waiting for signal")
	}

	if st.BreakoutDirection != dir && indicators.Breakout(closes, avg, dir) {
		t := now
		st.BreakoutDirection = dir
		st.BreakoutTime = &t
		logger.Info("[STRATEGY] %s %s breakout %s, price=%.6f avg=%.6f", e.name, symbol, dir, closes[len(closes)-1], avg)
	}

	if st.BreakoutDirection == dir && st.BreakoutTime != nil {
		elapsed := now.Sub(*st.BreakoutTime).Minutes()
		bars := indicators.ConfirmationBars(interval, e.params.ConfirmationMinutes)
		stable := indicators.Stable(closes, avg, position, bars)
		if stable && elapsed >= float64(e.params.ConfirmationMinutes) {
			st.Position = holding
			logger.Info("[STRATEGY] %s %s breakout %s confirmed, open %s", e.name, symbol, dir, holding)
			return e.signal(symbol, action, 90, fmt.Sprintf("breakout %s held for %.1f min", dir, elapsed))
		}
	}

	return e.signal(symbol, models.ActionHold, 50, "waiting for signal")
}

func (e *Engine) signal(symbol string, action models.Action, confidence int, reason string) models.Signal {
	return models.Signal{
		Symbol:     symbol,
		Action:     action,
		Confidence: confidence,
		Reason:     reason,
		Time:       e.now(),
	}
}

// ResetSymbolState очищает состояние символа, если оно уже было создано.
func (e *Engine) ResetSymbolState(symbol string) {
	e.mu.Lock()
	s, ok := e.states[symbol]
	e.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	s.state = models.SymbolState{}
	s.mu.Unlock()
	logger.Info("[STRATEGY] %s %s state reset", e.name, symbol)
}

// SymbolState — копия состояния; ok=false, если символ ещё не анализировался.
func (e *Engine) SymbolState(symbol string) (models.SymbolState, bool) {
	e.mu.Lock()
	s, ok := e.states[symbol]
	e.mu.Unlock()
	if !ok {
		return models.SymbolState{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, true
}
