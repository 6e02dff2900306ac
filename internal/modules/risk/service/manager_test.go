package service

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"aster_bot/internal/models"

	"github.com/shopspring/decimal"
)

func btcInfo() models.SymbolInfo {
	return models.SymbolInfo{
		Symbol:            "BTCUSDT",
		QuantityPrecision: 3,
		LotSize:           &models.LotSize{MinQty: 0.001, MaxQty: 100, StepSize: 0.001},
		PriceFilter:       &models.PriceFilter{MinPrice: 0.1, MaxPrice: 1000000, TickSize: 0.1},
		MinNotional:       &models.MinNotional{Notional: 5},
	}
}

func testManager() *Manager {
	return New(Limits{MaxLeverage: 5, MaxPositionPercent: 30, MarginType: "ISOLATED"})
}

func TestCalculateSizeClampsLeverage(t *testing.T) {
	m := testManager()
	res, err := m.CalculateSize(1000, 50000, 10, btcInfo())
	if err != nil {
		t.Fatal(err)
	}
	if res.Leverage != 5 {
		t.Fatalf("leverage = %d, want 5", res.Leverage)
	}
	if res.Quantity != 0.03 {
		t.Fatalf("quantity = %v, want 0.03", res.Quantity)
	}
	if math.Abs(res.Notional-1500) > 1e-6 || math.Abs(res.Margin-300) > 1e-6 {
		t.Fatalf("notional/margin = %v/%v", res.Notional, res.Margin)
	}
}

func TestCalculateSizeRoundsDown(t *testing.T) {
	m := testManager()
	// 1000*0.3*3/70000 = 0.0128571... -> 0.012
	res, err := m.CalculateSize(1000, 70000, 3, btcInfo())
	if err != nil {
		t.Fatal(err)
	}
	if res.Quantity != 0.012 {
		t.Fatalf("quantity = %v, want 0.012", res.Quantity)
	}
	if _, err := m.CalculateSize(1000, 0, 3, btcInfo()); err == nil {
		t.Fatal("expected error for zero price")
	}
}

func TestCalculateSizeProperty(t *testing.T) {
	m := testManager()
	r := rand.New(rand.NewSource(42))
	steps := []float64{0.001, 0.01, 0.1, 1}

	for i := 0; i < 2000; i++ {
		step := steps[r.Intn(len(steps))]
		minQty, _ := decimal.NewFromFloat(step).Mul(decimal.NewFromInt(int64(1 + r.Intn(5)))).Float64()
		maxQty, _ := decimal.NewFromFloat(minQty).Mul(decimal.NewFromInt(1000)).Float64()
		info := models.SymbolInfo{
			Symbol:  "X",
			LotSize: &models.LotSize{MinQty: minQty, MaxQty: maxQty, StepSize: step},
		}
		balance := r.Float64() * 1e6
		price := 0.01 + r.Float64()*1e5
		lev := r.Intn(50)

		res, err := m.CalculateSize(balance, price, lev, info)
		if err != nil {
			t.Fatal(err)
		}
		if res.Quantity < minQty || res.Quantity > maxQty {
			t.Fatalf("case %d: quantity %v outside [%v,%v]", i, res.Quantity, minQty, maxQty)
		}
		if !multipleOf(res.Quantity, step) {
			t.Fatalf("case %d: quantity %v not a multiple of %v", i, res.Quantity, step)
		}
		if res.Leverage > 5 || res.Leverage < 1 {
			t.Fatalf("case %d: leverage %d", i, res.Leverage)
		}
	}
}

func TestApplyLotSizeMinNotOnStep(t *testing.T) {
	got := ApplyLotSize(0.0001, &models.LotSize{MinQty: 0.0015, MaxQty: 10, StepSize: 0.001})
	if got != 0.002 {
		t.Fatalf("got %v, want 0.002", got)
	}
	if got := ApplyLotSize(1.23456, nil); got != 1.23456 {
		t.Fatalf("nil filter must pass through, got %v", got)
	}
}

func TestValidateOrderMinQty(t *testing.T) {
	m := testManager()
	info := btcInfo()

	err := m.ValidateOrder("BTCUSDT", models.SideBuy, 0.0009, 50000, info)
	var rej *Rejection
	if !errors.As(err, &rej) || rej.Filter != "LOT_SIZE" {
		t.Fatalf("0.0009: expected LOT_SIZE rejection, got %v", err)
	}
	if err := m.ValidateOrder("BTCUSDT", models.SideBuy, 0.001, 50000, info); err != nil {
		t.Fatalf("0.001: %v", err)
	}
}

func TestValidateOrderFilters(t *testing.T) {
	m := testManager()
	info := btcInfo()
	cases := []struct {
		name   string
		qty    float64
		price  float64
		filter string
	}{
		{"tick", 0.01, 50000.05, "PRICE_FILTER"},
		{"min price", 0.01, 0.05, "PRICE_FILTER"},
		{"max price", 0.01, 2000000, "PRICE_FILTER"},
		{"step", 0.0015, 50000, "LOT_SIZE"},
		{"max qty", 101, 50000, "LOT_SIZE"},
		{"notional", 0.001, 4000, "MIN_NOTIONAL"},
		{"zero", 0, 50000, "QUANTITY"},
	}
	for _, c := range cases {
		err := m.ValidateOrder("BTCUSDT", models.SideSell, c.qty, c.price, info)
		var rej *Rejection
		if !errors.As(err, &rej) {
			t.Errorf("%s: expected rejection, got %v", c.name, err)
			continue
		}
		if rej.Filter != c.filter {
			t.Errorf("%s: filter = %s, want %s", c.name, rej.Filter, c.filter)
		}
	}
}

func TestAssessRisk(t *testing.T) {
	m := testManager()
	positions := []models.PositionRisk{
		{Symbol: "BTCUSDT", PositionAmt: 1, Notional: 1000, Leverage: 5},
		{Symbol: "ETHUSDT", PositionAmt: -2, Notional: -3000, Leverage: 10},
		{Symbol: "SOLUSDT", PositionAmt: 0, Notional: 0, Leverage: 5},
	}
	snap := m.AssessRisk(positions, 500)
	if snap.PositionCount != 2 || snap.TotalMargin != 500 || snap.TotalBalance != 1000 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.MarginUsagePercent != 50 || snap.Level != models.RiskLow {
		t.Fatalf("usage/level = %v/%s", snap.MarginUsagePercent, snap.Level)
	}

	if snap := m.AssessRisk(positions, 300); snap.Level != models.RiskMedium {
		t.Fatalf("62.5%% usage: %s", snap.Level)
	}
	if snap := m.AssessRisk(positions, 100); snap.Level != models.RiskHigh {
		t.Fatalf("83%% usage: %s", snap.Level)
	}
	if snap := m.AssessRisk(nil, 0); snap.Level != models.RiskLow || snap.MarginUsagePercent != 0 {
		t.Fatalf("empty: %+v", snap)
	}
}

func TestRiskLevelByCount(t *testing.T) {
	if got := RiskLevel(0, 4); got != models.RiskHigh {
		t.Errorf("4 positions: %s", got)
	}
	if got := RiskLevel(0, 3); got != models.RiskMedium {
		t.Errorf("3 positions: %s", got)
	}
	if got := RiskLevel(70, 0); got != models.RiskMedium {
		t.Errorf("70%%: %s", got)
	}
}

func TestStopLossTakeProfit(t *testing.T) {
	m := testManager()
	if got := m.StopLoss(50000, models.SideBuy, 2); math.Abs(got-49000) > 1e-9 {
		t.Errorf("long SL = %v", got)
	}
	if got := m.TakeProfit(50000, models.SideBuy, 5); math.Abs(got-52500) > 1e-9 {
		t.Errorf("long TP = %v", got)
	}
	if got := m.StopLoss(100, models.SideSell, 0); math.Abs(got-103) > 1e-9 {
		t.Errorf("short default SL = %v", got)
	}
	if got := m.TakeProfit(100, models.SideSell, 0); math.Abs(got-90) > 1e-9 {
		t.Errorf("short default TP = %v", got)
	}
}

func TestRoundAndFormatQuantity(t *testing.T) {
	cases := []struct {
		qty       float64
		precision int
		want      float64
	}{
		{0.0125, 3, 0.013}, // двоичное значение чуть выше середины
		{0.0135, 3, 0.013}, // и чуть ниже
		{0.0045, 3, 0.004},
		{2.675, 2, 2.67},
		{0.125, 2, 0.12}, // точная середина -> к чётному
		{2.5, 0, 2},
		{1.5, 0, 2},
		{0.0105, 2, 0.01},
		{1.23456, 2, 1.23},
		{0.012, 3, 0.012},
		{1536, 0, 1536},
	}
	for _, tc := range cases {
		if got := RoundQuantity(tc.qty, tc.precision); got != tc.want {
			t.Errorf("RoundQuantity(%v, %d) = %v, want %v", tc.qty, tc.precision, got, tc.want)
		}
	}
	if got := FormatQuantity(0.00001); got != "0.00001" {
		t.Errorf("format = %q", got)
	}
}
