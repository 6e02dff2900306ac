package telegram

import (
	"context"

	"go.uber.org/fx"

	"aster_bot/internal/modules/config"
	"aster_bot/internal/notify"
	"aster_bot/pkg/logger"
)

// newTelegram — nil, если токен или chat_id не заданы.
func newTelegram(cfg *config.Config) (*notify.Telegram, error) {
	if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
		logger.Info("[NOTIFY] telegram is not configured, using stdout")
		return nil, nil
	}
	return notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
}

func newNotifier(t *notify.Telegram) notify.Notifier {
	if t == nil {
		return notify.NewStdout()
	}
	return t
}

func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(
			newTelegram, // *notify.Telegram
			newNotifier, // notify.Notifier
		),
		fx.Invoke(
			func(lc fx.Lifecycle, t *notify.Telegram) {
				if t == nil {
					return
				}
				var cancel context.CancelFunc
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						var ctx context.Context
						ctx, cancel = context.WithCancel(context.Background())
						return t.Start(ctx)
					},
					OnStop: func(context.Context) error {
						cancel()
						t.Stop()
						return nil
					},
				})
			},
		),
	)
}
