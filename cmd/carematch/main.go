package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"carematch/pkg/clock"
	"carematch/pkg/config"
	"carematch/pkg/db"
	"carematch/pkg/gen"
	"carematch/pkg/health"
	"carematch/pkg/httpapi"
	"carematch/pkg/logger"
	"carematch/pkg/redis"
	"carematch/pkg/server"
	"carematch/services/entitlement"
	"carematch/services/navigator"
	"carematch/services/onboarding"
	"carematch/services/session"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		clock.Module,
		gen.Module,
		db.Module,
		redis.Module,
		health.Module,
		server.ProvideHTTPServer,
		httpapi.Module,
		entitlement.Module,
		onboarding.Module,
		session.Module,
		navigator.Module,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger.Named("fx")}
})
