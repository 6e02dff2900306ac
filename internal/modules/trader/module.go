package trader

import (
	"context"

	"go.uber.org/fx"

	"aster_bot/internal/modules/config"
	health "aster_bot/internal/modules/health/service"
	"aster_bot/internal/modules/trader/service"
	"aster_bot/pkg/logger"
)

func Module() fx.Option {
	return fx.Module("trader",
		fx.Provide(
			service.NewTrader, // *service.Trader
		),
		fx.Invoke(initialize),
	)
}

// initialize: без exchangeInfo торговать нельзя, поэтому ошибка валит старт.
func initialize(lc fx.Lifecycle, cfg *config.Config, t *service.Trader, state *health.State) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := t.Initialize(ctx); err != nil {
				return err
			}
			for _, symbol := range cfg.Trading.Symbols {
				if err := t.SetupSymbol(ctx, symbol); err != nil {
					logger.Error("[TRADER] setup %s: %v", symbol, err)
				}
			}
			state.SetReady(true)
			return nil
		},
	})
}
