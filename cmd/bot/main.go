package main

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"aster_bot/internal/modules/advisory"
	"aster_bot/internal/modules/aster_client"
	"aster_bot/internal/modules/config"
	"aster_bot/internal/modules/health"
	"aster_bot/internal/modules/manual"
	manualsvc "aster_bot/internal/modules/manual/service"
	"aster_bot/internal/modules/risk"
	"aster_bot/internal/modules/scheduler"
	schedsvc "aster_bot/internal/modules/scheduler/service"
	"aster_bot/internal/modules/strategy"
	telegram "aster_bot/internal/modules/telegram_bot"
	"aster_bot/internal/modules/trader"
	"aster_bot/internal/notify"
	"aster_bot/pkg/logger"
	"aster_bot/pkg/tracing"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		logger.UseNop()
		panic(err)
	}

	logger.SetServiceName("aster_bot")
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		panic(err)
	}
	defer logger.Sync()

	_, closeTracer, err := tracing.InitTracer(tracing.Config{
		Enabled: cfg.Tracing.Enabled,
		Host:    cfg.Tracing.Host,
		Port:    cfg.Tracing.Port,
	})
	if err != nil {
		logger.Fatal("init tracer: %v", err)
	}
	defer closeTracer()

	logger.Info("🚀 aster_bot starting: symbols=%v leverage=%dx margin=%s",
		cfg.Trading.Symbols, cfg.Trading.MaxLeverage, cfg.Trading.MarginType)

	app := fx.New(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.InfoLogger}
		}),
		fx.StartTimeout(2*time.Minute),
		config.Module(cfg),
		health.Module(),
		aster_client.Module(),
		strategy.Module(),
		risk.Module(),
		advisory.Module(),
		telegram.Module(),
		trader.Module(),
		scheduler.Module(),
		manual.Module(),
		fx.Invoke(
			// команды бота видят ручные позиции и сводку планировщика
			func(t *notify.Telegram, h *manualsvc.Handler, s *schedsvc.Scheduler) {
				if t != nil {
					t.Attach(h, s.Status)
				}
			},
			func(lc fx.Lifecycle, n notify.Notifier) {
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						n.Send("🤖 aster_bot started")
						return nil
					},
					OnStop: func(context.Context) error {
						n.Send("🛑 aster_bot stopped")
						return nil
					},
				})
			},
		),
	)
	app.Run()
}
