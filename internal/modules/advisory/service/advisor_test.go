package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"aster_bot/internal/models"
	"aster_bot/pkg/logger"

	"github.com/bytedance/sonic"
)

func TestMain(m *testing.M) {
	logger.UseNop()
	os.Exit(m.Run())
}

// chatServer отвечает content в формате chat completions; jsonContent — для запросов с response_format.
func chatServer(t *testing.T, textContent, jsonContent string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		b, _ := io.ReadAll(r.Body)
		var req chatRequest
		_ = sonic.Unmarshal(b, &req)

		content := textContent
		if req.ResponseFormat != nil {
			if jsonContent == "" {
				http.Error(w, `{"error":"response_format unsupported"}`, http.StatusBadRequest)
				return
			}
			content = jsonContent
		}
		resp, _ := sonic.Marshal(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
		})
		_, _ = w.Write(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestAdvisor(t *testing.T, baseURL string, timeout time.Duration) *Advisor {
	t.Helper()
	c, err := NewClient(ClientOptions{Provider: ProviderGrok, BaseURL: baseURL, APIKey: "test-key", Timeout: timeout})
	if err != nil {
		t.Fatal(err)
	}
	return New(c)
}

func testSignal() models.Signal {
	return models.Signal{
		Symbol:       "BTCUSDT",
		Action:       models.ActionBuy,
		Confidence:   75,
		Reason:       "breakout",
		CurrentPrice: 50000,
		MAData:       map[string]float64{"sma_20": 49500},
	}
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient(ClientOptions{Provider: ProviderDeepSeek, APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	if c.baseURL != "https://api.deepseek.com" || c.model != "deepseek-chat" {
		t.Fatalf("deepseek defaults: %s %s", c.baseURL, c.model)
	}
	c, _ = NewClient(ClientOptions{Provider: ProviderGrok, APIKey: "k"})
	if c.baseURL != "https://api.x.ai/v1" || c.model != "grok-beta" {
		t.Fatalf("grok defaults: %s %s", c.baseURL, c.model)
	}
	if _, err := NewClient(ClientOptions{Provider: "other", APIKey: "k"}); err == nil {
		t.Fatal("unknown provider must fail")
	}
	if _, err := NewClient(ClientOptions{}); err == nil {
		t.Fatal("empty key must fail")
	}
}

func TestConfirmSignalJSON(t *testing.T) {
	srv := chatServer(t, "Market looks bullish and positive.", `{"action":"buy","confidence":87.6,"reason":"trend"}`)
	a := newTestAdvisor(t, srv.URL, time.Second)

	op, err := a.ConfirmSignal(context.Background(), testSignal())
	if err != nil {
		t.Fatal(err)
	}
	if op.Action != models.ActionBuy || op.Confidence != 87 || op.Reason != "trend" {
		t.Fatalf("opinion = %+v", op)
	}
}

func TestConfirmSignalTextHeuristic(t *testing.T) {
	srv := chatServer(t, "neutral", "I would SELL here, weak structure")
	a := newTestAdvisor(t, srv.URL, time.Second)

	op, err := a.ConfirmSignal(context.Background(), testSignal())
	if err != nil {
		t.Fatal(err)
	}
	if op.Action != models.ActionSell || op.Confidence != 30 {
		t.Fatalf("opinion = %+v", op)
	}
}

func TestConfirmSignalTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()
	a := newTestAdvisor(t, srv.URL, 20*time.Millisecond)

	op, err := a.ConfirmSignal(context.Background(), testSignal())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if op.Action != models.ActionHold || op.Confidence != 0 {
		t.Fatalf("default opinion = %+v", op)
	}
}

func TestExtractSentiment(t *testing.T) {
	cases := map[string]Sentiment{
		"Bullish momentum, upward bias": Bullish,
		"bearish and negative":          Bearish,
		"mixed":                         Neutral,
	}
	for in, want := range cases {
		if got := extractSentiment(in); got != want {
			t.Errorf("%q: %s, want %s", in, got, want)
		}
	}
}

func TestAssessTradeRiskClamps(t *testing.T) {
	srv := chatServer(t, "", `{"overall_risk": 15,
		"risk_breakdown": {"market_risk": {"score": 0, "reason": "calm"}},
		"position_adjustment": {"size_multiplier": 3, "leverage_suggestion": 0, "stop_loss_adjustment": 0.1},
		"recommendation": {"action": "YOLO", "conditions": ["a"]}}`)
	a := newTestAdvisor(t, srv.URL, time.Second)

	got := a.AssessTradeRisk(context.Background(), testSignal())
	if got.OverallRisk != 10 || got.Fallback {
		t.Fatalf("overall = %d fallback=%v", got.OverallRisk, got.Fallback)
	}
	if got.Adjustment.SizeMultiplier != 1.5 || got.Adjustment.LeverageSuggestion != 1 || got.Adjustment.StopLossAdjustment != 0.5 {
		t.Fatalf("adjustment = %+v", got.Adjustment)
	}
	if got.Action != ProceedWithCaution {
		t.Fatalf("action = %s", got.Action)
	}
	if got.Breakdown["market_risk"].Score != 1 || len(got.Conditions) != 1 {
		t.Fatalf("breakdown/conditions = %+v %v", got.Breakdown, got.Conditions)
	}
}

func TestAssessTradeRiskFallsBackToText(t *testing.T) {
	srv := chatServer(t, `Here you go: {"overall_risk": 3, "recommendation": {"action": "PROCEED", "reason": "ok"}} done`, "")
	a := newTestAdvisor(t, srv.URL, time.Second)

	got := a.AssessTradeRisk(context.Background(), testSignal())
	if got.OverallRisk != 3 || got.Action != Proceed || got.Reason != "ok" {
		t.Fatalf("assessment = %+v", got)
	}
	if got.Adjustment.SizeMultiplier != 1.0 || got.Adjustment.LeverageSuggestion != 5 {
		t.Fatalf("defaults = %+v", got.Adjustment)
	}
}

func TestAssessTradeRiskConservativeOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	a := newTestAdvisor(t, srv.URL, time.Second)

	got := a.AssessTradeRisk(context.Background(), testSignal())
	want := ConservativeAssessment()
	if got.OverallRisk != want.OverallRisk || got.Adjustment != want.Adjustment || got.Action != want.Action || !got.Fallback {
		t.Fatalf("got %+v", got)
	}
}

func TestRecommendPosition(t *testing.T) {
	srv := chatServer(t, "", `{"action":"PARTIAL_CLOSE","percentage":5,"reason":"lock profit"}`)
	a := newTestAdvisor(t, srv.URL, time.Second)

	got := a.RecommendPosition(context.Background(), PositionView{Symbol: "BTCUSDT", Side: "LONG", EntryPrice: 50000, Quantity: 0.01, Leverage: 3}, 52000)
	if got.Action != PositionPartialClose || got.Percentage != 10 || got.Reason != "lock profit" {
		t.Fatalf("advice = %+v", got)
	}

	srv2 := chatServer(t, "", `{"action":"MOON","percentage":70}`)
	got = newTestAdvisor(t, srv2.URL, time.Second).RecommendPosition(context.Background(), PositionView{Symbol: "X"}, 1)
	if got.Action != PositionHold || got.Percentage != 0 {
		t.Fatalf("invalid action: %+v", got)
	}
}

func TestExtractJSON(t *testing.T) {
	if _, err := extractJSON("no braces"); err == nil || !strings.Contains(err.Error(), "no json") {
		t.Fatalf("err = %v", err)
	}
	m, err := extractJSON("x {\"a\": 1} y")
	if err != nil || m["a"] == nil {
		t.Fatalf("m = %v err = %v", m, err)
	}
}
