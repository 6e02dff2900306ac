package service

import (
	"os"
	"sync"
	"testing"
	"time"

	"aster_bot/internal/models"
	"aster_bot/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.UseNop()
	os.Exit(m.Run())
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func klines(closes ...float64) []models.Kline {
	out := make([]models.Kline, len(closes))
	for i, c := range closes {
		out[i] = models.Kline{Close: c, High: c, Low: c, Open: c}
	}
	return out
}

func flat(n int, v float64, tail ...float64) []float64 {
	out := make([]float64, 0, n+len(tail))
	for i := 0; i < n; i++ {
		out = append(out, v)
	}
	return append(out, tail...)
}

func newTestEngine(clock *fakeClock) *Engine {
	return NewEngine("test", Params{
		SMAPeriods:           []int{3},
		EMAPeriods:           []int{3},
		ConvergenceThreshold: 2.0,
		ConfirmationMinutes:  30,
	}, clock.Now)
}

func TestAnalyzeNoData(t *testing.T) {
	e := newTestEngine(newClock())
	sig := e.Analyze("BTCUSDT", nil, "15m")
	if sig.Action != models.ActionHold || sig.Confidence != 0 {
		t.Fatalf("empty klines: %+v", sig)
	}

	long := NewEngine("long", Params{SMAPeriods: []int{120}, EMAPeriods: []int{120}, ConvergenceThreshold: 2}, nil)
	sig = long.Analyze("BTCUSDT", klines(1, 2, 3), "15m")
	if sig.Action != models.ActionHold || sig.Confidence != 0 {
		t.Fatalf("short history: %+v", sig)
	}
	if _, ok := long.SymbolState("BTCUSDT"); ok {
		t.Fatal("state must not be created before averages are computable")
	}
}

func TestLongLifecycle(t *testing.T) {
	clock := newClock()
	e := newTestEngine(clock)
	base := flat(10, 100, 99, 103)

	// пробой вверх фиксируется, но ещё не подтверждён
	sig := e.Analyze("BTCUSDT", klines(base...), "15m")
	if sig.Action != models.ActionHold || !sig.Convergent || sig.PricePosition != models.PriceAbove {
		t.Fatalf("step1: %+v", sig)
	}
	st, _ := e.SymbolState("BTCUSDT")
	if st.BreakoutDirection != models.DirectionUp || st.BreakoutTime == nil || st.LastConvergenceTime == nil {
		t.Fatalf("step1 state: %+v", st)
	}

	held := append(append([]float64{}, base...), 103)

	// две свечи выше, но времени прошло мало
	clock.Advance(10 * time.Minute)
	if sig = e.Analyze("BTCUSDT", klines(held...), "15m"); sig.Action != models.ActionHold {
		t.Fatalf("step2 must wait for the time gate: %+v", sig)
	}

	clock.Advance(21 * time.Minute)
	sig = e.Analyze("BTCUSDT", klines(held...), "15m")
	if sig.Action != models.ActionBuy || sig.Confidence != 90 {
		t.Fatalf("step3: %+v", sig)
	}
	if sig.CurrentPrice != 103 || len(sig.MAData) != 2 {
		t.Fatalf("step3 echo: %+v", sig)
	}
	st, _ = e.SymbolState("BTCUSDT")
	if st.Position != models.HoldingLong {
		t.Fatalf("position = %q", st.Position)
	}

	// расхождение: держим, метка сходимости сбрасывается
	clock.Advance(time.Minute)
	diverged := append(append([]float64{}, held...), 120)
	sig = e.Analyze("BTCUSDT", klines(diverged...), "15m")
	if sig.Action != models.ActionHold || sig.Convergent {
		t.Fatalf("step4: %+v", sig)
	}
	st, _ = e.SymbolState("BTCUSDT")
	if st.LastConvergenceTime != nil {
		t.Fatal("divergence must clear the convergence time")
	}

	// повторная сходимость закрывает позицию
	clock.Advance(time.Minute)
	sig = e.Analyze("BTCUSDT", klines(held...), "15m")
	if sig.Action != models.ActionClose || sig.Confidence != 80 {
		t.Fatalf("step5: %+v", sig)
	}
	st, _ = e.SymbolState("BTCUSDT")
	if st.Position != models.HoldingNone || st.BreakoutDirection != models.DirectionNone || st.BreakoutTime != nil {
		t.Fatalf("step5 state: %+v", st)
	}

	// без нового пробоя повторного входа нет
	clock.Advance(time.Hour)
	if sig = e.Analyze("BTCUSDT", klines(held...), "15m"); sig.Action != models.ActionHold {
		t.Fatalf("step6: %+v", sig)
	}
}

func TestNoDoubleBuy(t *testing.T) {
	clock := newClock()
	e := newTestEngine(clock)
	base := flat(10, 100, 99, 103)
	held := append(append([]float64{}, base...), 103)

	e.Analyze("ETHUSDT", klines(base...), "15m")
	clock.Advance(31 * time.Minute)

	buys := 0
	for i := 0; i < 5; i++ {
		sig := e.Analyze("ETHUSDT", klines(held...), "15m")
		if sig.Action == models.ActionBuy {
			buys++
		}
		clock.Advance(time.Minute)
	}
	if buys != 1 {
		t.Fatalf("buys = %d, want 1", buys)
	}
}

func TestShortEntry(t *testing.T) {
	clock := newClock()
	e := newTestEngine(clock)
	base := flat(10, 100, 101, 97)

	sig := e.Analyze("SOLUSDT", klines(base...), "15m")
	if sig.Action != models.ActionHold || sig.PricePosition != models.PriceBelow {
		t.Fatalf("step1: %+v", sig)
	}
	clock.Advance(31 * time.Minute)
	sig = e.Analyze("SOLUSDT", klines(append(base, 97)...), "15m")
	if sig.Action != models.ActionSell || sig.Confidence != 90 {
		t.Fatalf("step2: %+v", sig)
	}
	st, _ := e.SymbolState("SOLUSDT")
	if st.Position != models.HoldingShort {
		t.Fatalf("position = %q", st.Position)
	}
}

func TestResetSymbolState(t *testing.T) {
	clock := newClock()
	e := newTestEngine(clock)
	e.Analyze("BTCUSDT", klines(flat(10, 100, 99, 103)...), "15m")
	e.ResetSymbolState("BTCUSDT")
	e.ResetSymbolState("UNKNOWN")

	st, ok := e.SymbolState("BTCUSDT")
	if !ok {
		t.Fatal("reset must keep the record")
	}
	if st != (models.SymbolState{}) {
		t.Fatalf("state after reset: %+v", st)
	}
}

func TestAnalyzeConcurrentSymbols(t *testing.T) {
	e := newTestEngine(newClock())
	symbols := []string{"A", "B", "C", "D"}
	var wg sync.WaitGroup
	for _, s := range symbols {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(sym string) {
				defer wg.Done()
				e.Analyze(sym, klines(flat(10, 100, 99, 103)...), "15m")
			}(s)
		}
	}
	wg.Wait()
	for _, s := range symbols {
		if _, ok := e.SymbolState(s); !ok {
			t.Fatalf("missing state for %s", s)
		}
	}
}
