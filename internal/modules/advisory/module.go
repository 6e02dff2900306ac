package advisory

import (
	"go.uber.org/fx"

	"aster_bot/internal/modules/advisory/service"
)

func Module() fx.Option {
	return fx.Module("advisory",
		fx.Provide(
			service.NewAdvisor, // *service.Advisor, nil без api_key
		),
	)
}
