package manual

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"aster_bot/internal/modules/config"
	health "aster_bot/internal/modules/health/service"
	"aster_bot/internal/modules/manual/service"
	"aster_bot/pkg/logger"
)

func Module() fx.Option {
	return fx.Module("manual",
		fx.Provide(
			service.NewHandler, // *service.Handler
			newQueue,
			newWatcher,
			newAPI,
		),
		fx.Invoke(run),
	)
}

func newQueue(cfg *config.Config) *service.Queue {
	return service.NewQueue(cfg.Manual.OrderFile)
}

func newWatcher(cfg *config.Config, q *service.Queue, h *service.Handler) *service.Watcher {
	return service.NewWatcher(q, h, cfg.Manual.FilePollInterval)
}

func newAPI(h *service.Handler, state *health.State) *service.API {
	return service.NewAPI(h, state)
}

// run поднимает монитор, watcher и HTTP API, если ручная торговля включена.
func run(lc fx.Lifecycle, cfg *config.Config, h *service.Handler, w *service.Watcher, api *service.API) {
	if !cfg.Manual.Enabled {
		logger.Info("[MANUAL] disabled")
		return
	}
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.Manual.Addr(),
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			h.Start(context.Background())
			if cfg.Manual.EnableFileWatch {
				w.Start(context.Background())
			}
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("[MANUAL] api: %v", err)
				}
			}()
			logger.Info("[MANUAL] 🌐 api on http://%s", srv.Addr)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			err := srv.Shutdown(ctx)
			w.Stop()
			h.Stop()
			return err
		},
	})
}
