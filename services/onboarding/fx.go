package onboarding

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("onboarding.service",
	fx.Provide(
		NewPatientStore,
		NewDoctorStore,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *gin.Engine, h *Handler) {
	h.Register(r)
}
