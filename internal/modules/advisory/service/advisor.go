package service

import (
	"context"
	"fmt"
	"strings"

	"aster_bot/internal/models"
	"aster_bot/internal/modules/config"
	"aster_bot/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/spf13/cast"
)

// Advisor — необязательный внешний советник. Ошибки не блокируют торговлю:
// методы возвращают консервативное значение по умолчанию.
type Advisor struct {
	client *Client
}

// NewAdvisor — fx-провайдер. Без api_key возвращает nil: советник выключен.
func NewAdvisor(cfg *config.Config) (*Advisor, error) {
	if !cfg.Advisory.Enabled() {
		logger.Info("[ADVISORY] disabled: no api key")
		return nil, nil
	}
	c, err := clientFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Advisor{client: c}, nil
}

func New(c *Client) *Advisor { return &Advisor{client: c} }

// Opinion — второе мнение по сигналу стратегии.
type Opinion struct {
	Action     models.Action `json:"action"`
	Confidence int           `json:"confidence"`
	Reason     string        `json:"reason"`
}

type Sentiment string

const (
	Bullish Sentiment = "BULLISH"
	Bearish Sentiment = "BEARISH"
	Neutral Sentiment = "NEUTRAL"
)

// MarketSentiment — короткий текстовый обзор рынка и извлечённая из него метка.
func (a *Advisor) MarketSentiment(ctx context.Context, symbol string) (Sentiment, string, error) {
	prompt := fmt.Sprintf(`Analyse the current market sentiment and trend for %s.
Consider the overall crypto market trend, the coin's recent performance and factors that may move the price.
Summarise briefly: bullish, bearish or neutral, and the main reasons.`, symbol)

	content, err := a.client.Chat(ctx, []Message{
		{Role: "system", Content: "You are a professional crypto market analyst."},
		{Role: "user", Content: prompt},
	}, 0.5, 300, false)
	if err != nil {
		logger.Warn("[ADVISORY] sentiment %s: %v", symbol, err)
		return Neutral, "", err
	}
	return extractSentiment(content), content, nil
}

func extractSentiment(content string) Sentiment {
	lower := strings.ToLower(content)
	count := func(words ...string) int {
		n := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				n++
			}
		}
		return n
	}
	bull := count("bullish", "positive", "upward")
	bear := count("bearish", "negative", "downward")
	switch {
	case bull > bear:
		return Bullish
	case bear > bull:
		return Bearish
	default:
		return Neutral
	}
}

// ConfirmSignal: обзор рынка, затем анализ сигнала с MA. При ошибке вызова
// возвращает HOLD/0 вместе с ошибкой; решение о фолбэке принимает вызывающий.
func (a *Advisor) ConfirmSignal(ctx context.Context, sig models.Signal) (Opinion, error) {
	_, marketContext, _ := a.MarketSentiment(ctx, sig.Symbol)

	content, err := a.client.Chat(ctx, []Message{
		{Role: "system", Content: "You are a professional crypto trading analyst working with a dual moving-average system. " +
			"Answer in JSON with fields action (BUY/SELL/HOLD), confidence (0-100), reason."},
		{Role: "user", Content: analysisPrompt(sig, marketContext)},
	}, 0.3, 500, true)
	if err != nil {
		logger.Error("[ADVISORY] confirm %s: %v", sig.Symbol, err)
		return Opinion{Action: models.ActionHold, Confidence: 0, Reason: "advisory call failed: " + err.Error()}, err
	}
	logger.Info("[ADVISORY] confirm %s: %s", sig.Symbol, truncate(content, 300))

	var raw map[string]any
	if err := sonic.UnmarshalString(content, &raw); err != nil {
		return parseTextOpinion(content), nil
	}
	return opinionFromMap(raw), nil
}

func analysisPrompt(sig models.Signal, marketContext string) string {
	ma, _ := sonic.MarshalString(sig.MAData)
	return fmt.Sprintf(`Analyse this trading data and give a recommendation.
Symbol: %s
Current price: %.6f
Moving averages: %s
Local signal: %s (confidence %d%%): %s
Market context:
%s

Assess whether the averages are converged, where the price is relative to them, and the trend strength.
Return JSON: {"action": "BUY/SELL/HOLD", "confidence": 0-100, "reason": "..."}`,
		sig.Symbol, sig.CurrentPrice, ma, sig.Action, sig.Confidence, sig.Reason, marketContext)
}

func opinionFromMap(raw map[string]any) Opinion {
	op := Opinion{Action: models.ActionHold, Confidence: 50, Reason: "no reason given"}
	if v, ok := raw["action"]; ok {
		if a := models.Action(strings.ToUpper(cast.ToString(v))); a.Valid() {
			op.Action = a
		}
	}
	if v, ok := raw["confidence"]; ok {
		if n, err := cast.ToIntE(v); err == nil {
			op.Confidence = clampInt(n, 0, 100)
		} else if f, err := cast.ToFloat64E(v); err == nil {
			op.Confidence = clampInt(int(f), 0, 100)
		}
	}
	if v, ok := raw["reason"]; ok {
		op.Reason = cast.ToString(v)
	}
	return op
}

// parseTextOpinion — эвристика для ответа не в JSON.
func parseTextOpinion(content string) Opinion {
	lower := strings.ToLower(content)
	op := Opinion{Action: models.ActionHold, Confidence: 50, Reason: content}
	switch {
	case strings.Contains(lower, "buy"):
		op.Action = models.ActionBuy
	case strings.Contains(lower, "sell"):
		op.Action = models.ActionSell
	}
	switch {
	case strings.Contains(lower, "strong"):
		op.Confidence = 80
	case strings.Contains(lower, "weak"):
		op.Confidence = 30
	}
	return op
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
