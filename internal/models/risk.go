package models

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// SizingResult — вычисленный размер ордера.
type SizingResult struct {
	Quantity float64
	Notional float64
	Margin   float64
	Leverage int
}

// RiskSnapshot пересчитывается на каждую попытку исполнения.
type RiskSnapshot struct {
	PositionCount      int
	TotalMargin        float64
	AvailableBalance   float64
	TotalBalance       float64
	MarginUsagePercent float64
	Level              RiskLevel
}
