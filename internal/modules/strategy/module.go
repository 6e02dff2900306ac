package strategy

import (
	"go.uber.org/fx"

	"aster_bot/internal/modules/strategy/service"
)

func Module() fx.Option {
	return fx.Module("strategy",
		fx.Provide(
			service.NewEngines, // service.Engines: по движку на включённый режим
		),
	)
}
