package indicators

var intervalMinutes = map[string]int{
	"1m": 1, "3m": 3, "5m": 5, "15m": 15, "30m": 30,
	"1h": 60, "2h": 120, "4h": 240, "6h": 360, "8h": 480,
	"12h": 720, "1d": 1440,
}

// IntervalMinutes — длина свечи в минутах; неизвестный интервал считается 15m.
func IntervalMinutes(interval string) int {
	if m, ok := intervalMinutes[interval]; ok {
		return m
	}
	return 15
}

// ConfirmationBars — сколько свечей должно подтвердить пробой, минимум одна.
func ConfirmationBars(interval string, minutes int) int {
	bars := minutes / IntervalMinutes(interval)
	if bars < 1 {
		return 1
	}
	return bars
}
