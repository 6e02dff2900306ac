package service

import (
	"context"
	"fmt"

	"aster_bot/internal/models"
	"aster_bot/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/spf13/cast"
)

type Recommendation string

const (
	Proceed            Recommendation = "PROCEED"
	ProceedWithCaution Recommendation = "PROCEED_WITH_CAUTION"
	Skip               Recommendation = "SKIP"
)

func (r Recommendation) Valid() bool {
	switch r {
	case Proceed, ProceedWithCaution, Skip:
		return true
	}
	return false
}

type RiskScore struct {
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

type PositionAdjustment struct {
	SizeMultiplier     float64 `json:"size_multiplier"`
	LeverageSuggestion int     `json:"leverage_suggestion"`
	StopLossAdjustment float64 `json:"stop_loss_adjustment"`
}

// Assessment — оценка риска сделки. OverallRisk описательный: средним
// подоценок он не пересчитывается.
type Assessment struct {
	OverallRisk int                  `json:"overall_risk"`
	Breakdown   map[string]RiskScore `json:"risk_breakdown"`
	Adjustment  PositionAdjustment   `json:"position_adjustment"`
	Action      Recommendation       `json:"action"`
	Reason      string               `json:"reason"`
	Conditions  []string             `json:"conditions"`
	Fallback    bool                 `json:"fallback"`
}

func ConservativeAssessment() Assessment {
	return Assessment{
		OverallRisk: 7,
		Breakdown: map[string]RiskScore{
			"market_risk":    {Score: 7, Reason: "advisory unavailable, conservative score"},
			"liquidity_risk": {Score: 5, Reason: "unknown"},
			"event_risk":     {Score: 7, Reason: "unknown"},
			"technical_risk": {Score: 6, Reason: "local strategy only"},
		},
		Adjustment: PositionAdjustment{SizeMultiplier: 0.7, LeverageSuggestion: 3, StopLossAdjustment: 1.0},
		Action:     ProceedWithCaution,
		Reason:     "advisory risk assessment failed, continue conservatively",
		Conditions: []string{"monitor the position closely", "close on a fast market move"},
		Fallback:   true,
	}
}

// AssessTradeRisk никогда не возвращает ошибку: при сбое — ConservativeAssessment.
func (a *Advisor) AssessTradeRisk(ctx context.Context, sig models.Signal) Assessment {
	ma, _ := sonic.MarshalString(sig.MAData)
	prompt := fmt.Sprintf(`Assess the risk of this trade.
Symbol: %s
Local signal: %s, confidence %d%%
Indicators: %s
Reason: %s

Return JSON:
{"overall_risk": 1-10,
 "risk_breakdown": {"market_risk": {"score": 1-10, "reason": ""}, "liquidity_risk": {...}, "event_risk": {...}, "technical_risk": {...}},
 "position_adjustment": {"size_multiplier": 0.5-1.5, "leverage_suggestion": 1-10, "stop_loss_adjustment": 0.5-2.0},
 "recommendation": {"action": "PROCEED|PROCEED_WITH_CAUTION|SKIP", "reason": "", "conditions": []}}
Risk >= 8 means SKIP, 6-7 PROCEED_WITH_CAUTION, <= 5 PROCEED. Be conservative.`,
		sig.Symbol, sig.Action, sig.Confidence, ma, sig.Reason)

	raw, err := a.client.ChatJSON(ctx, []Message{
		{Role: "system", Content: "You are a conservative risk manager. Capital safety comes first."},
		{Role: "user", Content: prompt},
	}, 0.2, 1200)
	if err != nil {
		logger.Error("[ADVISORY] risk %s: %v", sig.Symbol, err)
		return ConservativeAssessment()
	}
	if _, ok := raw["overall_risk"]; !ok {
		logger.Warn("[ADVISORY] risk %s: overall_risk missing", sig.Symbol)
		return ConservativeAssessment()
	}
	out := assessmentFromMap(raw)
	logger.Info("[ADVISORY] risk %s: %d/10 %s", sig.Symbol, out.OverallRisk, out.Action)
	return out
}

func assessmentFromMap(raw map[string]any) Assessment {
	out := Assessment{
		OverallRisk: 5,
		Breakdown:   map[string]RiskScore{},
		Adjustment:  PositionAdjustment{SizeMultiplier: 1.0, LeverageSuggestion: 5, StopLossAdjustment: 1.0},
		Action:      ProceedWithCaution,
		Reason:      "incomplete assessment",
		Conditions:  []string{},
	}
	if v, err := cast.ToFloat64E(raw["overall_risk"]); err == nil {
		out.OverallRisk = clampInt(int(v), 1, 10)
	}
	if bd, ok := raw["risk_breakdown"].(map[string]any); ok {
		for name, item := range bd {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			out.Breakdown[name] = RiskScore{
				Score:  clampInt(cast.ToInt(m["score"]), 1, 10),
				Reason: cast.ToString(m["reason"]),
			}
		}
	}
	if adj, ok := raw["position_adjustment"].(map[string]any); ok {
		if v, err := cast.ToFloat64E(adj["size_multiplier"]); err == nil && adj["size_multiplier"] != nil {
			out.Adjustment.SizeMultiplier = clampFloat(v, 0.3, 1.5)
		}
		if v, err := cast.ToFloat64E(adj["leverage_suggestion"]); err == nil && adj["leverage_suggestion"] != nil {
			out.Adjustment.LeverageSuggestion = clampInt(int(v), 1, 10)
		}
		if v, err := cast.ToFloat64E(adj["stop_loss_adjustment"]); err == nil && adj["stop_loss_adjustment"] != nil {
			out.Adjustment.StopLossAdjustment = clampFloat(v, 0.5, 2.0)
		}
	}
	if rec, ok := raw["recommendation"].(map[string]any); ok {
		if a := Recommendation(cast.ToString(rec["action"])); a.Valid() {
			out.Action = a
		}
		if r, ok := rec["reason"]; ok {
			out.Reason = cast.ToString(r)
		} else {
			out.Reason = "no reason given"
		}
		out.Conditions = cast.ToStringSlice(rec["conditions"])
	}
	return out
}
