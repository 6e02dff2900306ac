package service

import (
	"math"

	"aster_bot/internal/models"
)

// AssessRisk: маржа позиции = |notional| / leverage, общий капитал = свободный + занятая маржа.
func (m *Manager) AssessRisk(positions []models.PositionRisk, available float64) models.RiskSnapshot {
	snap := models.RiskSnapshot{AvailableBalance: available}
	for _, p := range positions {
		if !p.Open() {
			continue
		}
		snap.PositionCount++
		if p.Leverage > 0 {
			snap.TotalMargin += math.Abs(p.Notional) / p.Leverage
		}
	}
	snap.TotalBalance = available + snap.TotalMargin
	if snap.TotalBalance > 0 {
		snap.MarginUsagePercent = snap.TotalMargin / snap.TotalBalance * 100
	}
	snap.Level = RiskLevel(snap.MarginUsagePercent, snap.PositionCount)
	return snap
}

func RiskLevel(usagePercent float64, count int) models.RiskLevel {
	switch {
	case usagePercent > 70 || count > 3:
		return models.RiskHigh
	case usagePercent > 50 || count > 2:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}
