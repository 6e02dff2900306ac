package aster_client

import (
	"aster_bot/internal/modules/aster_client/service"

	"go.uber.org/fx"
)

// Module отдаёт подписывающий REST-клиент AsterDEX.
func Module() fx.Option {
	return fx.Module("aster_client",
		fx.Provide(
			service.NewClient,
		),
	)
}
