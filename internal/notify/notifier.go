package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"aster_bot/internal/models"
	"aster_bot/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// PositionSource отдаёт отслеживаемые ручные позиции для команды /positions.
type PositionSource interface {
	Positions() []models.ManualPosition
}

// Telegram — пассивный нотифайер + команды /positions и /status.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64

	mu        sync.Mutex
	positions PositionSource
	status    func() string
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

// Attach подключает источники для команд. Вызывается после сборки зависимостей.
func (t *Telegram) Attach(positions PositionSource, status func() string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions = positions
	t.status = status
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		logger.Warn("[NOTIFY] telegram send: %v", err)
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

func (t *Telegram) handlePositions() {
	t.mu.Lock()
	src := t.positions
	t.mu.Unlock()
	if src == nil {
		t.Send("❗️ Manual orders are disabled")
		return
	}
	t.Send(FormatPositions(src.Positions()))
}

func (t *Telegram) handleStatus() {
	t.mu.Lock()
	status := t.status
	t.mu.Unlock()
	if status == nil {
		t.Send("running")
		return
	}
	t.Send(status())
}

// FormatPositions — текст для /positions.
func FormatPositions(positions []models.ManualPosition) string {
	if len(positions) == 0 {
		return "📭 No open manual positions"
	}
	var b strings.Builder
	b.WriteString("📊 Manual positions:\n")
	for _, p := range positions {
		fmt.Fprintf(&b, "- %s %s qty=%v @ %.4f lev=%dx", p.Symbol, p.Side, p.Quantity, p.EntryPrice, p.Leverage)
		if p.StopLossPrice != nil {
			fmt.Fprintf(&b, " sl=%.4f", *p.StopLossPrice)
		}
		if p.TakeProfitPrice != nil {
			fmt.Fprintf(&b, " tp=%.4f", *p.TakeProfitPrice)
		}
		fmt.Fprintf(&b, " id=%s\n", p.OrderID)
	}
	return b.String()
}

// Start: long-polling сообщений своего чата.
func (t *Telegram) Start(ctx context.Context) error {
	if t == nil || t.bot == nil {
		return nil
	}

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := t.bot.GetUpdatesChan(u)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				msg := upd.Message
				if msg == nil || msg.Chat == nil || msg.Chat.ID != t.chatID || !msg.IsCommand() {
					continue
				}
				switch msg.Command() {
				case "positions":
					go t.handlePositions()
				case "status":
					go t.handleStatus()
				}
			}
		}
	}()
	return nil
}

func (t *Telegram) Stop() {
	if t == nil || t.bot == nil {
		return
	}
	t.bot.StopReceivingUpdates()
}

// Stdout — всё пишет в лог.
type Stdout struct{}

func NewStdout() *Stdout                           { return &Stdout{} }
func (s *Stdout) Send(msg string)                  { logger.Info("[NOTIFY] %s", msg) }
func (s *Stdout) Sendf(format string, args ...any) { s.Send(fmt.Sprintf(format, args...)) }
