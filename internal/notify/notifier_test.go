package notify

import (
	"context"
	"os"
	"strings"
	"testing"

	"aster_bot/internal/models"
	"aster_bot/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.UseNop()
	os.Exit(m.Run())
}

func TestFormatPositionsEmpty(t *testing.T) {
	if got := FormatPositions(nil); got != "📭 No open manual positions" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatPositions(t *testing.T) {
	sl := 49000.0
	got := FormatPositions([]models.ManualPosition{
		{OrderID: "42", Symbol: "BTCUSDT", Side: models.ManualLong, EntryPrice: 50000, Quantity: 0.012, Leverage: 3, StopLossPrice: &sl},
	})
	for _, want := range []string{"BTCUSDT LONG", "qty=0.012", "lev=3x", "sl=49000.0000", "id=42"} {
		if !strings.Contains(got, want) {
			t.Errorf("%q not in %q", want, got)
		}
	}
	if strings.Contains(got, "tp=") {
		t.Errorf("tp must be omitted: %q", got)
	}
}

func TestNilTelegramIsSilent(t *testing.T) {
	var tg *Telegram
	tg.Send("x")
	tg.Stop()
	if err := tg.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
}
