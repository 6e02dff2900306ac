package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"aster_bot/internal/models"
	advisory "aster_bot/internal/modules/advisory/service"
	aster "aster_bot/internal/modules/aster_client/service"
	"aster_bot/internal/modules/config"
	risk "aster_bot/internal/modules/risk/service"
	trader "aster_bot/internal/modules/trader/service"
	"aster_bot/internal/notify"
	"aster_bot/pkg/logger"
)

const (
	quoteAsset               = "USDT"
	defaultQuantityPrecision = 3
)

var (
	ErrPositionNotFound = errors.New("manual position not found")
	ErrAdvisoryDisabled = errors.New("advisory is not configured")
)

type Exchange interface {
	TickerPrice(ctx context.Context, symbol string) (float64, error)
	AvailableBalance(ctx context.Context, asset string) (float64, error)
	ChangeLeverage(ctx context.Context, symbol string, leverage int) error
	ChangeMarginType(ctx context.Context, symbol, marginType string) error
	PlaceOrder(ctx context.Context, r aster.OrderRequest) (models.OrderResult, error)
}

// SymbolInfoSource — закэшированные метаданные символов (trader).
type SymbolInfoSource interface {
	SymbolInfo(symbol string) (models.SymbolInfo, error)
}

type Advisor interface {
	RecommendPosition(ctx context.Context, p advisory.PositionView, price float64) advisory.PositionAdvice
}

type Options struct {
	DefaultLeverage        int
	DefaultPositionPercent float64
	CheckInterval          time.Duration
	MarginType             string
}

// PositionStatus — позиция с живой ценой для /positions.
type PositionStatus struct {
	models.ManualPosition
	CurrentPrice *float64 `json:"current_price"`
	PnLPercent   *float64 `json:"pnl_percent"`
}

// Handler владеет ручными позициями. Карту трогают монитор, HTTP и watcher,
// поэтому любое чтение-изменение идёт под mu.
type Handler struct {
	ex       Exchange
	symbols  SymbolInfoSource
	risk     *risk.Manager
	advisor  Advisor
	notifier notify.Notifier
	opts     Options
	now      func() time.Time

	mu        sync.Mutex
	positions map[string]models.ManualPosition
	closing   map[string]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHandler — fx-провайдер. symbols — trader с кэшем exchangeInfo.
func NewHandler(
	cfg *config.Config,
	client *aster.Client,
	symbols *trader.Trader,
	rm *risk.Manager,
	adv *advisory.Advisor,
	notifier notify.Notifier,
) *Handler {
	var a Advisor
	if adv != nil {
		a = adv
	}
	return New(client, symbols, rm, a, notifier, Options{
		DefaultLeverage:        cfg.Manual.DefaultLeverage,
		DefaultPositionPercent: cfg.Manual.DefaultPositionPercent,
		CheckInterval:          cfg.Manual.CheckInterval,
		MarginType:             cfg.Trading.MarginType,
	})
}

func New(ex Exchange, symbols SymbolInfoSource, rm *risk.Manager, adv Advisor, notifier notify.Notifier, opts Options) *Handler {
	if opts.DefaultLeverage < 1 {
		opts.DefaultLeverage = 3
	}
	if opts.DefaultPositionPercent <= 0 {
		opts.DefaultPositionPercent = 20
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 10 * time.Second
	}
	if notifier == nil {
		notifier = notify.NewStdout()
	}
	return &Handler{
		ex:        ex,
		symbols:   symbols,
		risk:      rm,
		advisor:   adv,
		notifier:  notifier,
		opts:      opts,
		now:       time.Now,
		positions: map[string]models.ManualPosition{},
		closing:   map[string]bool{},
	}
}

// Execute открывает позицию по ручному ордеру и ставит её под мониторинг.
func (h *Handler) Execute(ctx context.Context, o models.ManualOrder) (models.ManualPosition, error) {
	if o.Symbol == "" || !o.Side.Valid() {
		return models.ManualPosition{}, fmt.Errorf("manual order: bad symbol/side %q/%q", o.Symbol, o.Side)
	}
	logger.Info("[MANUAL] 📨 order %s %s from %s %s", o.Symbol, o.Side, o.Source, o.Note)

	price, err := h.ex.TickerPrice(ctx, o.Symbol)
	if err != nil {
		return models.ManualPosition{}, fmt.Errorf("manual %s: ticker: %w", o.Symbol, err)
	}

	leverage := h.opts.DefaultLeverage
	if o.Leverage != nil && *o.Leverage > 0 {
		leverage = *o.Leverage
	}
	if err := h.ex.ChangeLeverage(ctx, o.Symbol, leverage); err != nil {
		return models.ManualPosition{}, fmt.Errorf("manual %s: leverage %d: %w", o.Symbol, leverage, err)
	}
	if h.opts.MarginType != "" {
		if err := h.ex.ChangeMarginType(ctx, o.Symbol, h.opts.MarginType); err != nil {
			logger.Warn("[MANUAL] %s margin type not changed (probably already set): %v", o.Symbol, err)
		}
	}

	var qty float64
	if o.Quantity != nil && *o.Quantity > 0 {
		qty = *o.Quantity
	} else {
		available, err := h.ex.AvailableBalance(ctx, quoteAsset)
		if err != nil {
			return models.ManualPosition{}, fmt.Errorf("manual %s: balance: %w", o.Symbol, err)
		}
		qty = available * h.opts.DefaultPositionPercent / 100 * float64(leverage) / price
	}
	precision := defaultQuantityPrecision
	if h.symbols != nil {
		if info, err := h.symbols.SymbolInfo(o.Symbol); err == nil {
			precision = info.QuantityPrecision
		} else {
			logger.Warn("[MANUAL] %s: no symbol info, precision %d: %v", o.Symbol, precision, err)
		}
	}
	qty = risk.RoundQuantity(qty, precision)
	if qty <= 0 {
		return models.ManualPosition{}, fmt.Errorf("manual %s: quantity rounds to zero", o.Symbol)
	}
	logger.Info("[MANUAL] %s price=%.4f lev=%dx qty=%v", o.Symbol, price, leverage, qty)

	res, err := h.ex.PlaceOrder(ctx, aster.OrderRequest{
		Symbol:       o.Symbol,
		Side:         o.Side.OrderSide(),
		Type:         aster.OrderTypeMarket,
		Quantity:     risk.FormatQuantity(qty),
		PositionSide: aster.PositionSideBoth,
	})
	if err != nil {
		return models.ManualPosition{}, fmt.Errorf("manual %s: place order: %w", o.Symbol, err)
	}
	if res.OrderID == 0 {
		return models.ManualPosition{}, fmt.Errorf("manual %s: exchange returned no order id", o.Symbol)
	}

	pos := models.ManualPosition{
		OrderID:    strconv.FormatInt(res.OrderID, 10),
		Symbol:     o.Symbol,
		Side:       o.Side,
		EntryPrice: price,
		Quantity:   qty,
		Leverage:   leverage,
		OpenTime:   h.now(),
		Note:       o.Note,
	}
	if o.StopLossPercent != nil && *o.StopLossPercent > 0 {
		sl := h.risk.StopLoss(price, o.Side.OrderSide(), *o.StopLossPercent)
		pos.StopLossPrice = &sl
	}
	if o.TakeProfitPercent != nil && *o.TakeProfitPercent > 0 {
		tp := h.risk.TakeProfit(price, o.Side.OrderSide(), *o.TakeProfitPercent)
		pos.TakeProfitPrice = &tp
	}

	h.mu.Lock()
	h.positions[pos.OrderID] = pos
	h.mu.Unlock()

	logger.Info("[MANUAL] ✅ opened %s %s id=%s sl=%s tp=%s", pos.Symbol, pos.Side, pos.OrderID, fmtPrice(pos.StopLossPrice), fmtPrice(pos.TakeProfitPrice))
	h.notifier.Sendf("✋ MANUAL %s %s qty=%s @ %.4f (lev %dx)\nSL %s / TP %s",
		pos.Side, pos.Symbol, risk.FormatQuantity(qty), price, leverage, fmtPrice(pos.StopLossPrice), fmtPrice(pos.TakeProfitPrice))
	return pos, nil
}

func fmtPrice(p *float64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

// Positions — снимок отслеживаемых позиций, по времени открытия.
func (h *Handler) Positions() []models.ManualPosition {
	h.mu.Lock()
	out := make([]models.ManualPosition, 0, len(h.positions))
	for _, p := range h.positions {
		out = append(out, p)
	}
	h.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenTime.Equal(out[j].OpenTime) {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].OpenTime.Before(out[j].OpenTime)
	})
	return out
}

func (h *Handler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.positions)
}

func (h *Handler) Get(id string) (models.ManualPosition, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.positions[id]
	return p, ok
}

// Statuses — позиции с текущей ценой. Если цену получить не удалось,
// позиция всё равно отдаётся, current_price и pnl_percent — null.
func (h *Handler) Statuses(ctx context.Context) []PositionStatus {
	positions := h.Positions()
	out := make([]PositionStatus, 0, len(positions))
	for _, p := range positions {
		st := PositionStatus{ManualPosition: p}
		price, err := h.ex.TickerPrice(ctx, p.Symbol)
		if err != nil {
			logger.Error("[MANUAL] price for %s (%s): %v", p.OrderID, p.Symbol, err)
		} else {
			pnl := p.PnLPercent(price)
			st.CurrentPrice, st.PnLPercent = &price, &pnl
		}
		out = append(out, st)
	}
	return out
}

// Close закрывает позицию по id по текущей цене.
func (h *Handler) Close(ctx context.Context, id string) error {
	p, ok := h.Get(id)
	if !ok {
		logger.Warn("[MANUAL] close: unknown id %s", id)
		return ErrPositionNotFound
	}
	price, err := h.ex.TickerPrice(ctx, p.Symbol)
	if err != nil {
		return fmt.Errorf("close %s: ticker: %w", id, err)
	}
	return h.closePosition(ctx, id, price)
}

// closePosition: reduce-only MARKET в обратную сторону. Позиция, которую уже
// закрывает другой поток, не трогается.
func (h *Handler) closePosition(ctx context.Context, id string, price float64) error {
	h.mu.Lock()
	p, ok := h.positions[id]
	if !ok || h.closing[id] {
		h.mu.Unlock()
		return ErrPositionNotFound
	}
	h.closing[id] = true
	h.mu.Unlock()

	res, err := h.ex.PlaceOrder(ctx, aster.OrderRequest{
		Symbol:       p.Symbol,
		Side:         p.Side.OrderSide().Opposite(),
		Type:         aster.OrderTypeMarket,
		Quantity:     risk.FormatQuantity(p.Quantity),
		PositionSide: aster.PositionSideBoth,
		ReduceOnly:   true,
	})

	h.mu.Lock()
	delete(h.closing, id)
	if err == nil {
		delete(h.positions, id)
	}
	h.mu.Unlock()

	if err != nil {
		logger.Error("[MANUAL] ❌ close %s %s: %v", id, p.Symbol, err)
		return fmt.Errorf("close %s: %w", id, err)
	}

	pnl := p.PnLPercent(price)
	logger.Info("[MANUAL] ✅ closed %s %s order=%d entry=%.4f exit=%.4f pnl=%+.2f%% held=%s",
		id, p.Symbol, res.OrderID, p.EntryPrice, price, pnl, h.now().Sub(p.OpenTime).Round(time.Second))
	h.notifier.Sendf("✋ MANUAL CLOSE %s %s @ %.4f pnl %+.2f%%", p.Symbol, p.Side, price, pnl)
	return nil
}

// CheckPositions — одна итерация монитора: закрыть всё, что пересекло SL/TP.
func (h *Handler) CheckPositions(ctx context.Context) int {
	closed := 0
	for _, p := range h.Positions() {
		price, err := h.ex.TickerPrice(ctx, p.Symbol)
		if err != nil {
			logger.Error("[MANUAL] monitor %s: %v", p.Symbol, err)
			continue
		}
		if !p.ShouldClose(price) {
			continue
		}
		logger.Info("[MANUAL] 🎯 %s %s %s hit: entry=%.4f now=%.4f pnl=%+.2f%%",
			p.OrderID, p.Symbol, p.Side, p.EntryPrice, price, p.PnLPercent(price))
		if err := h.closePosition(ctx, p.OrderID, price); err == nil {
			closed++
		}
	}
	return closed
}

// Advise — рекомендация советника по открытой позиции.
func (h *Handler) Advise(ctx context.Context, id string) (advisory.PositionAdvice, error) {
	if h.advisor == nil {
		return advisory.PositionAdvice{}, ErrAdvisoryDisabled
	}
	p, ok := h.Get(id)
	if !ok {
		return advisory.PositionAdvice{}, ErrPositionNotFound
	}
	price, err := h.ex.TickerPrice(ctx, p.Symbol)
	if err != nil {
		return advisory.PositionAdvice{}, fmt.Errorf("advise %s: ticker: %w", id, err)
	}
	return h.advisor.RecommendPosition(ctx, advisory.PositionView{
		Symbol:     p.Symbol,
		Side:       string(p.Side),
		EntryPrice: p.EntryPrice,
		Quantity:   p.Quantity,
		Leverage:   p.Leverage,
	}, price), nil
}

// Start запускает монитор позиций.
func (h *Handler) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	h.cancel = cancel
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.monitor(ctx)
	}()
	logger.Info("[MANUAL] 👀 monitor every %s", h.opts.CheckInterval)
}

func (h *Handler) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
	logger.Info("[MANUAL] 🛑 monitor stopped")
}

func (h *Handler) monitor(ctx context.Context) {
	ticker := time.NewTicker(h.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.CheckPositions(ctx)
		}
	}
}
