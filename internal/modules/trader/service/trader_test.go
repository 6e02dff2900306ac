package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"aster_bot/internal/models"
	advisory "aster_bot/internal/modules/advisory/service"
	aster "aster_bot/internal/modules/aster_client/service"
	risk "aster_bot/internal/modules/risk/service"
	"aster_bot/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.UseNop()
	os.Exit(m.Run())
}

type fakeExchange struct {
	mu          sync.Mutex
	available   float64
	positions   []models.PositionRisk
	price       float64
	orders      []aster.OrderRequest
	leverage    map[string]int
	marginErr   error
	placeErr    error
	pingErr     error
	marginCalls int
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{available: 1000, price: 50000, leverage: map[string]int{}}
}

func (f *fakeExchange) Ping(context.Context) error { return f.pingErr }

func (f *fakeExchange) ExchangeInfo(context.Context) (models.ExchangeInfo, error) {
	return models.ExchangeInfo{Symbols: map[string]models.SymbolInfo{
		"BTCUSDT": {
			Symbol:            "BTCUSDT",
			QuantityPrecision: 3,
			LotSize:           &models.LotSize{MinQty: 0.001, MaxQty: 100, StepSize: 0.001},
			PriceFilter:       &models.PriceFilter{MinPrice: 0.1, MaxPrice: 1000000, TickSize: 0.1},
			MinNotional:       &models.MinNotional{Notional: 5},
		},
	}}, nil
}

func (f *fakeExchange) AvailableBalance(context.Context, string) (float64, error) {
	return f.available, nil
}

func (f *fakeExchange) Positions(context.Context, string) ([]models.PositionRisk, error) {
	return f.positions, nil
}

func (f *fakeExchange) TickerPrice(context.Context, string) (float64, error) { return f.price, nil }

func (f *fakeExchange) PlaceOrder(_ context.Context, r aster.OrderRequest) (models.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return models.OrderResult{}, f.placeErr
	}
	f.orders = append(f.orders, r)
	return models.OrderResult{OrderID: int64(len(f.orders)), Symbol: r.Symbol, Side: r.Side, Status: "NEW"}, nil
}

func (f *fakeExchange) ChangeLeverage(_ context.Context, symbol string, lev int) error {
	f.leverage[symbol] = lev
	return nil
}

func (f *fakeExchange) ChangeMarginType(context.Context, string, string) error {
	f.marginCalls++
	return f.marginErr
}

type fakeAdvisor struct {
	opinion     advisory.Opinion
	err         error
	assessment  *advisory.Assessment
	calls       int
	assessCalls int
}

func (a *fakeAdvisor) ConfirmSignal(context.Context, models.Signal) (advisory.Opinion, error) {
	a.calls++
	return a.opinion, a.err
}

func (a *fakeAdvisor) AssessTradeRisk(context.Context, models.Signal) advisory.Assessment {
	a.assessCalls++
	if a.assessment != nil {
		return *a.assessment
	}
	return advisory.ConservativeAssessment()
}

type recordingNotifier struct{ msgs []string }

func (n *recordingNotifier) Send(msg string)               { n.msgs = append(n.msgs, msg) }
func (n *recordingNotifier) Sendf(format string, _ ...any) { n.msgs = append(n.msgs, format) }

func newTestTrader(t *testing.T, ex *fakeExchange, adv Advisor) (*Trader, *recordingNotifier) {
	t.Helper()
	n := &recordingNotifier{}
	rm := risk.New(risk.Limits{MaxLeverage: 5, MaxPositionPercent: 30, MarginType: "ISOLATED"})
	tr := New(ex, rm, adv, n, Options{Leverage: 5, MarginType: "ISOLATED"})
	if err := tr.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return tr, n
}

func buy(conf int) models.Signal {
	return models.Signal{Symbol: "BTCUSDT", Action: models.ActionBuy, Confidence: conf, Reason: "breakout"}
}

func TestExecuteBuyPlacesMarketOrder(t *testing.T) {
	ex := newFakeExchange()
	tr, n := newTestTrader(t, ex, nil)

	res, err := tr.ExecuteSignal(context.Background(), buy(85))
	if err != nil {
		t.Fatalf("ExecuteSignal: %v", err)
	}
	if res == nil || len(ex.orders) != 1 {
		t.Fatalf("expected one order, got %d", len(ex.orders))
	}
	o := ex.orders[0]
	if o.Side != models.SideBuy || o.Type != aster.OrderTypeMarket || o.PositionSide != aster.PositionSideBoth || o.ReduceOnly {
		t.Fatalf("order = %+v", o)
	}
	// 1000 * 30% * 5 / 50000
	if o.Quantity != "0.03" {
		t.Fatalf("quantity = %q", o.Quantity)
	}
	if len(n.msgs) != 1 {
		t.Fatalf("notifications = %v", n.msgs)
	}
}

func TestAdvisorFailureFallsBackToLocalSignal(t *testing.T) {
	ex := newFakeExchange()
	adv := &fakeAdvisor{opinion: advisory.Opinion{Action: models.ActionHold}, err: context.DeadlineExceeded}
	tr, _ := newTestTrader(t, ex, adv)

	res, err := tr.ExecuteSignal(context.Background(), buy(75))
	if err != nil {
		t.Fatalf("ExecuteSignal: %v", err)
	}
	if adv.calls != 1 {
		t.Fatalf("advisor calls = %d", adv.calls)
	}
	if res == nil || len(ex.orders) != 1 {
		t.Fatal("order must be placed on advisory failure")
	}
}

func TestHighConfidenceSkipsAdvisor(t *testing.T) {
	ex := newFakeExchange()
	adv := &fakeAdvisor{opinion: advisory.Opinion{Action: models.ActionHold}}
	tr, _ := newTestTrader(t, ex, adv)

	if _, err := tr.ExecuteSignal(context.Background(), buy(95)); err != nil {
		t.Fatalf("ExecuteSignal: %v", err)
	}
	if adv.calls != 0 {
		t.Fatalf("advisor must not be called, calls = %d", adv.calls)
	}
	if len(ex.orders) != 1 {
		t.Fatalf("orders = %d", len(ex.orders))
	}
}

func TestAdvisorHoldAborts(t *testing.T) {
	ex := newFakeExchange()
	adv := &fakeAdvisor{opinion: advisory.Opinion{Action: models.ActionHold, Confidence: 70}}
	tr, _ := newTestTrader(t, ex, adv)

	res, err := tr.ExecuteSignal(context.Background(), buy(80))
	if err != nil || res != nil {
		t.Fatalf("res = %v err = %v", res, err)
	}
	if len(ex.orders) != 0 || adv.assessCalls != 0 {
		t.Fatalf("orders = %d assess = %d", len(ex.orders), adv.assessCalls)
	}
}

func TestAdvisorAgreementAssessesRisk(t *testing.T) {
	ex := newFakeExchange()
	adv := &fakeAdvisor{opinion: advisory.Opinion{Action: models.ActionBuy, Confidence: 80}}
	tr, _ := newTestTrader(t, ex, adv)

	if _, err := tr.ExecuteSignal(context.Background(), buy(80)); err != nil {
		t.Fatalf("ExecuteSignal: %v", err)
	}
	if adv.assessCalls != 1 || len(ex.orders) != 1 {
		t.Fatalf("assess = %d orders = %d", adv.assessCalls, len(ex.orders))
	}
}

func TestRiskAssessmentSkipAbortsTrade(t *testing.T) {
	ex := newFakeExchange()
	adv := &fakeAdvisor{
		opinion:    advisory.Opinion{Action: models.ActionBuy, Confidence: 80},
		assessment: &advisory.Assessment{OverallRisk: 9, Action: advisory.Skip, Reason: "event risk"},
	}
	tr, n := newTestTrader(t, ex, adv)

	res, err := tr.ExecuteSignal(context.Background(), buy(80))
	if err != nil || res != nil {
		t.Fatalf("res = %v err = %v", res, err)
	}
	if adv.assessCalls != 1 || len(ex.orders) != 0 || len(n.msgs) != 0 {
		t.Fatalf("assess = %d orders = %d msgs = %v", adv.assessCalls, len(ex.orders), n.msgs)
	}
}

func TestCloseWithoutPositionDoesNothing(t *testing.T) {
	ex := newFakeExchange()
	tr, _ := newTestTrader(t, ex, nil)

	res, err := tr.ExecuteSignal(context.Background(), models.Signal{Symbol: "BTCUSDT", Action: models.ActionClose})
	if err != nil || res != nil {
		t.Fatalf("res = %v err = %v", res, err)
	}
	if len(ex.orders) != 0 {
		t.Fatalf("orders = %d", len(ex.orders))
	}
}

func TestCloseShortBuysBackReduceOnly(t *testing.T) {
	ex := newFakeExchange()
	ex.positions = []models.PositionRisk{{Symbol: "BTCUSDT", PositionAmt: -0.02, EntryPrice: 50000, Leverage: 5}}
	tr, _ := newTestTrader(t, ex, nil)

	if _, err := tr.ExecuteSignal(context.Background(), models.Signal{Symbol: "BTCUSDT", Action: models.ActionClose}); err != nil {
		t.Fatalf("ExecuteSignal: %v", err)
	}
	if len(ex.orders) != 1 {
		t.Fatalf("orders = %d", len(ex.orders))
	}
	o := ex.orders[0]
	if o.Side != models.SideBuy || !o.ReduceOnly || o.Quantity != "0.02" {
		t.Fatalf("close order = %+v", o)
	}
}

func TestExistingPositionSkipsEntry(t *testing.T) {
	ex := newFakeExchange()
	ex.positions = []models.PositionRisk{{Symbol: "BTCUSDT", PositionAmt: 0.01, EntryPrice: 50000, Leverage: 5}}
	tr, _ := newTestTrader(t, ex, nil)

	res, err := tr.ExecuteSignal(context.Background(), buy(95))
	if err != nil || res != nil {
		t.Fatalf("res = %v err = %v", res, err)
	}
	if len(ex.orders) != 0 {
		t.Fatalf("orders = %d", len(ex.orders))
	}
}

func TestHighRiskSkipsEntry(t *testing.T) {
	ex := newFakeExchange()
	ex.available = 100
	// маржа 900 из 1000 — 90%
	ex.positions = []models.PositionRisk{{Symbol: "ETHUSDT", PositionAmt: 2, EntryPrice: 2000, Leverage: 5, Notional: 4500}}
	tr, _ := newTestTrader(t, ex, nil)

	res, err := tr.ExecuteSignal(context.Background(), buy(95))
	if err != nil || res != nil {
		t.Fatalf("res = %v err = %v", res, err)
	}
	if len(ex.orders) != 0 {
		t.Fatalf("orders = %d", len(ex.orders))
	}
}

func TestHoldIsNoop(t *testing.T) {
	ex := newFakeExchange()
	tr, _ := newTestTrader(t, ex, nil)

	res, err := tr.ExecuteSignal(context.Background(), models.Signal{Symbol: "BTCUSDT", Action: models.ActionHold})
	if err != nil || res != nil || len(ex.orders) != 0 {
		t.Fatalf("res = %v err = %v orders = %d", res, err, len(ex.orders))
	}
}

func TestPlaceOrderErrorIsReturned(t *testing.T) {
	ex := newFakeExchange()
	ex.placeErr = &aster.APIError{Status: 400, Code: -2019, Msg: "Margin is insufficient."}
	tr, n := newTestTrader(t, ex, nil)

	_, err := tr.ExecuteSignal(context.Background(), buy(95))
	var apiErr *aster.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != -2019 {
		t.Fatalf("err = %v", err)
	}
	if len(n.msgs) != 0 {
		t.Fatalf("no notification on failure, got %v", n.msgs)
	}
}

func TestUnknownSymbolFails(t *testing.T) {
	ex := newFakeExchange()
	tr, _ := newTestTrader(t, ex, nil)

	sig := buy(95)
	sig.Symbol = "DOGEUSDT"
	if _, err := tr.ExecuteSignal(context.Background(), sig); err == nil {
		t.Fatal("expected error for unknown symbol")
	}
}

func TestSetupSymbolToleratesMarginTypeError(t *testing.T) {
	ex := newFakeExchange()
	ex.marginErr = &aster.APIError{Status: 400, Code: -4046, Msg: "No need to change margin type."}
	tr, _ := newTestTrader(t, ex, nil)

	if err := tr.SetupSymbol(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("SetupSymbol: %v", err)
	}
	if ex.leverage["BTCUSDT"] != 5 || ex.marginCalls != 1 {
		t.Fatalf("leverage = %v margin calls = %d", ex.leverage, ex.marginCalls)
	}
}

func TestInitializeFailsOnPing(t *testing.T) {
	ex := newFakeExchange()
	ex.pingErr = errors.New("connection refused")
	tr := New(ex, risk.New(risk.Limits{MaxLeverage: 5, MaxPositionPercent: 30}), nil, nil, Options{Leverage: 5})
	if err := tr.Initialize(context.Background()); err == nil {
		t.Fatal("expected ping error")
	}
}
