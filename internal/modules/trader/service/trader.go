package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"aster_bot/internal/models"
	advisory "aster_bot/internal/modules/advisory/service"
	aster "aster_bot/internal/modules/aster_client/service"
	"aster_bot/internal/modules/config"
	risk "aster_bot/internal/modules/risk/service"
	"aster_bot/internal/notify"
	"aster_bot/pkg/logger"
)

const (
	quoteAsset              = "USDT"
	defaultConfirmThreshold = 90
)

var ErrNotInitialized = errors.New("trader: exchange info not loaded")

// Exchange — то, что оркестратору нужно от клиента биржи.
type Exchange interface {
	Ping(ctx context.Context) error
	ExchangeInfo(ctx context.Context) (models.ExchangeInfo, error)
	AvailableBalance(ctx context.Context, asset string) (float64, error)
	Positions(ctx context.Context, symbol string) ([]models.PositionRisk, error)
	TickerPrice(ctx context.Context, symbol string) (float64, error)
	PlaceOrder(ctx context.Context, r aster.OrderRequest) (models.OrderResult, error)
	ChangeLeverage(ctx context.Context, symbol string, leverage int) error
	ChangeMarginType(ctx context.Context, symbol, marginType string) error
}

// Advisor — второе мнение. nil — советник выключен.
type Advisor interface {
	ConfirmSignal(ctx context.Context, sig models.Signal) (advisory.Opinion, error)
	AssessTradeRisk(ctx context.Context, sig models.Signal) advisory.Assessment
}

type Options struct {
	Leverage         int
	MarginType       string
	ConfirmThreshold int
}

// Trader исполняет сигналы стратегии: одна автоматическая позиция на символ,
// ошибка по символу не влияет на остальные.
type Trader struct {
	ex       Exchange
	risk     *risk.Manager
	advisor  Advisor
	notifier notify.Notifier
	opts     Options

	mu    sync.RWMutex
	info  *models.ExchangeInfo
	cache map[string]models.SymbolInfo
}

func NewTrader(
	cfg *config.Config,
	client *aster.Client,
	rm *risk.Manager,
	adv *advisory.Advisor,
	notifier notify.Notifier,
) *Trader {
	var a Advisor
	if adv != nil {
		a = adv
	}
	return New(client, rm, a, notifier, Options{
		Leverage:         cfg.Trading.MaxLeverage,
		MarginType:       cfg.Trading.MarginType,
		ConfirmThreshold: cfg.Advisory.ConfirmThreshold,
	})
}

func New(ex Exchange, rm *risk.Manager, adv Advisor, notifier notify.Notifier, opts Options) *Trader {
	if opts.ConfirmThreshold <= 0 {
		opts.ConfirmThreshold = defaultConfirmThreshold
	}
	if opts.Leverage < 1 {
		opts.Leverage = 1
	}
	if notifier == nil {
		notifier = notify.NewStdout()
	}
	return &Trader{
		ex:       ex,
		risk:     rm,
		advisor:  adv,
		notifier: notifier,
		opts:     opts,
		cache:    map[string]models.SymbolInfo{},
	}
}

// Initialize загружает exchangeInfo и проверяет связь. Ошибка фатальна на старте.
func (t *Trader) Initialize(ctx context.Context) error {
	info, err := t.ex.ExchangeInfo(ctx)
	if err != nil {
		return fmt.Errorf("load exchange info: %w", err)
	}
	t.mu.Lock()
	t.info = &info
	t.cache = map[string]models.SymbolInfo{}
	t.mu.Unlock()
	logger.Info("[TRADER] exchange info loaded: %d symbols", len(info.Symbols))

	if err := t.ex.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	logger.Info("[TRADER] exchange reachable")
	return nil
}

// SymbolInfo — метаданные символа из закэшированного exchangeInfo.
func (t *Trader) SymbolInfo(symbol string) (models.SymbolInfo, error) {
	t.mu.RLock()
	si, ok := t.cache[symbol]
	info := t.info
	t.mu.RUnlock()
	if ok {
		return si, nil
	}
	if info == nil {
		return models.SymbolInfo{}, ErrNotInitialized
	}
	si, ok = info.Symbols[symbol]
	if !ok {
		return models.SymbolInfo{}, fmt.Errorf("symbol %s not found in exchange info", symbol)
	}
	t.mu.Lock()
	t.cache[symbol] = si
	t.mu.Unlock()
	return si, nil
}

// SetupSymbol выставляет плечо и режим маржи. Ошибку смены режима считаем "уже выставлен".
func (t *Trader) SetupSymbol(ctx context.Context, symbol string) error {
	logger.Info("[TRADER] %s leverage %dx", symbol, t.opts.Leverage)
	if err := t.ex.ChangeLeverage(ctx, symbol, t.opts.Leverage); err != nil {
		return fmt.Errorf("setup %s leverage: %w", symbol, err)
	}
	logger.Info("[TRADER] %s margin type %s", symbol, t.opts.MarginType)
	if err := t.ex.ChangeMarginType(ctx, symbol, t.opts.MarginType); err != nil {
		logger.Warn("[TRADER] %s margin type not changed (probably already set): %v", symbol, err)
	}
	return nil
}

// RiskSnapshot — свежая оценка риска счёта, не кэшируется.
func (t *Trader) RiskSnapshot(ctx context.Context, symbol string) (models.RiskSnapshot, []models.PositionRisk, error) {
	available, err := t.ex.AvailableBalance(ctx, quoteAsset)
	if err != nil {
		return models.RiskSnapshot{}, nil, fmt.Errorf("balance: %w", err)
	}
	positions, err := t.ex.Positions(ctx, symbol)
	if err != nil {
		return models.RiskSnapshot{}, nil, fmt.Errorf("positions %s: %w", symbol, err)
	}
	return t.risk.AssessRisk(positions, available), positions, nil
}

func currentPosition(positions []models.PositionRisk, symbol string) (models.PositionRisk, bool) {
	for _, p := range positions {
		if p.Symbol == symbol && p.Open() {
			return p, true
		}
	}
	return models.PositionRisk{}, false
}

// ExecuteSignal исполняет не-HOLD сигнал. (nil, nil) — сигнал пропущен по правилам.
func (t *Trader) ExecuteSignal(ctx context.Context, sig models.Signal) (*models.OrderResult, error) {
	if sig.Action == models.ActionHold {
		return nil, nil
	}
	symbol := sig.Symbol

	snap, positions, err := t.RiskSnapshot(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("execute %s %s: %w", sig.Action, symbol, err)
	}
	logger.Info("[TRADER] %s available=%.2f USDT positions=%d margin=%.2f usage=%.1f%% risk=%s",
		symbol, snap.AvailableBalance, snap.PositionCount, snap.TotalMargin, snap.MarginUsagePercent, snap.Level)

	pos, hasPos := currentPosition(positions, symbol)

	switch sig.Action {
	case models.ActionClose:
		if !hasPos {
			logger.Info("[TRADER] %s no position, nothing to close", symbol)
			return nil, nil
		}
		return t.closePosition(ctx, pos)

	case models.ActionBuy, models.ActionSell:
		if hasPos {
			logger.Warn("[TRADER] %s already has a position (%v), skip %s", symbol, pos.PositionAmt, sig.Action)
			return nil, nil
		}
		if snap.Level == models.RiskHigh {
			logger.Warn("[TRADER] risk level HIGH, skip %s %s", sig.Action, symbol)
			return nil, nil
		}
		if !t.confirm(ctx, sig) {
			return nil, nil
		}
		return t.openPosition(ctx, sig, snap.AvailableBalance)
	}
	return nil, fmt.Errorf("execute %s: unknown action %q", symbol, sig.Action)
}

// confirm спрашивает советника, если сигнал недостаточно уверенный.
// Ошибка советника — торгуем по локальному сигналу; ответ HOLD или оценка риска SKIP — пропуск.
func (t *Trader) confirm(ctx context.Context, sig models.Signal) bool {
	if t.advisor == nil || sig.Confidence >= t.opts.ConfirmThreshold {
		return true
	}
	op, err := t.advisor.ConfirmSignal(ctx, sig)
	if err != nil {
		logger.Warn("[TRADER] advisory unavailable for %s, using local signal: %v", sig.Symbol, err)
		return true
	}
	logger.Info("[TRADER] advisory %s: %s (%d) %s", sig.Symbol, op.Action, op.Confidence, op.Reason)
	if op.Action == models.ActionHold {
		logger.Info("[TRADER] advisory says HOLD, skip %s %s", sig.Action, sig.Symbol)
		return false
	}

	a := t.advisor.AssessTradeRisk(ctx, sig)
	logger.Info("[TRADER] advisory risk %s: %d/10 %s size×%.2f lev=%d",
		sig.Symbol, a.OverallRisk, a.Action, a.Adjustment.SizeMultiplier, a.Adjustment.LeverageSuggestion)
	if a.Action == advisory.Skip {
		logger.Info("[TRADER] advisory risk says SKIP, skip %s %s: %s", sig.Action, sig.Symbol, a.Reason)
		return false
	}
	return true
}

func (t *Trader) openPosition(ctx context.Context, sig models.Signal, available float64) (*models.OrderResult, error) {
	symbol := sig.Symbol
	side := models.SideBuy
	if sig.Action == models.ActionSell {
		side = models.SideSell
	}

	price, err := t.ex.TickerPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("open %s: ticker: %w", symbol, err)
	}
	info, err := t.SymbolInfo(symbol)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", symbol, err)
	}
	size, err := t.risk.CalculateSize(available, price, t.opts.Leverage, info)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", symbol, err)
	}
	logger.Info("[TRADER] open %s %s price=%.6f qty=%v notional=%.2f margin=%.2f lev=%d",
		symbol, side, price, size.Quantity, size.Notional, size.Margin, size.Leverage)

	if err := t.risk.ValidateOrder(symbol, side, size.Quantity, price, info); err != nil {
		return nil, fmt.Errorf("open %s: %w", symbol, err)
	}

	res, err := t.ex.PlaceOrder(ctx, aster.OrderRequest{
		Symbol:       symbol,
		Side:         side,
		Type:         aster.OrderTypeMarket,
		Quantity:     risk.FormatQuantity(size.Quantity),
		PositionSide: aster.PositionSideBoth,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: place order: %w", symbol, err)
	}
	logger.Info("[TRADER] opened %s %s order=%d status=%s", symbol, side, res.OrderID, res.Status)
	t.notifier.Sendf("🟢 %s %s qty=%s @ %.4f (lev %dx)\n%s",
		side, symbol, risk.FormatQuantity(size.Quantity), price, size.Leverage, sig.Reason)
	return &res, nil
}

// closePosition — reduce-only MARKET в противоположную сторону на весь объём.
func (t *Trader) closePosition(ctx context.Context, pos models.PositionRisk) (*models.OrderResult, error) {
	side := models.SideSell
	if pos.PositionAmt < 0 {
		side = models.SideBuy
	}
	qty := math.Abs(pos.PositionAmt)
	logger.Info("[TRADER] close %s %s qty=%v upnl=%.2f", pos.Symbol, side, qty, pos.UnrealizedProfit)

	res, err := t.ex.PlaceOrder(ctx, aster.OrderRequest{
		Symbol:       pos.Symbol,
		Side:         side,
		Type:         aster.OrderTypeMarket,
		Quantity:     risk.FormatQuantity(qty),
		PositionSide: aster.PositionSideBoth,
		ReduceOnly:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("close %s: place order: %w", pos.Symbol, err)
	}
	logger.Info("[TRADER] closed %s order=%d", pos.Symbol, res.OrderID)
	t.notifier.Sendf("🔴 CLOSE %s qty=%s upnl=%.2f USDT", pos.Symbol, risk.FormatQuantity(qty), pos.UnrealizedProfit)
	return &res, nil
}
