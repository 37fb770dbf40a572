package session

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("session.service",
	fx.Provide(
		NewStore,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *gin.Engine, h *Handler) {
	h.Register(r)
}
