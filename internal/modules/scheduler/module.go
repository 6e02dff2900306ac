package scheduler

import (
	"context"

	"go.uber.org/fx"

	"aster_bot/internal/modules/scheduler/service"
)

func Module() fx.Option {
	return fx.Module("scheduler",
		fx.Provide(
			service.NewScheduler, // *service.Scheduler
		),
		fx.Invoke(run),
	)
}

// run стартует циклы после того, как trader проинициализирован (см. cmd/bot).
func run(lc fx.Lifecycle, s *service.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start(context.Background())
			return nil
		},
		OnStop: func(context.Context) error {
			s.Stop()
			return nil
		},
	})
}
