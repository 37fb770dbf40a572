package navigator

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("navigator.service",
	fx.Provide(
		New,
		NewHandler,
	),
	fx.Invoke(
		registerRoutes,
		runNavigator,
	),
)

func registerRoutes(r *gin.Engine, h *Handler) {
	h.Register(r)
}

func runNavigator(lc fx.Lifecycle, nav *Navigator) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := nav.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					zap.L().Error("navigator stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
