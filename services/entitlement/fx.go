package entitlement

import (
	"context"

	"carematch/pkg/clock"
	"carematch/pkg/config"
	"carematch/pkg/gen"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("entitlement.service",
	fx.Provide(
		NewCatalog,
		CheckoutOptionsFromConfig,
		fx.Annotate(NewMockGateway, fx.As(new(PaymentGateway))),
		fx.Annotate(provideStore(KindSubscription), fx.ResultTags(`name:"subscription"`)),
		fx.Annotate(provideStore(KindBoost), fx.ResultTags(`name:"boost"`)),
		fx.Annotate(NewCheckout,
			fx.ParamTags(`name:"subscription"`),
			fx.ResultTags(`name:"subscription"`),
		),
		fx.Annotate(NewCheckout,
			fx.ParamTags(`name:"boost"`),
			fx.ResultTags(`name:"boost"`),
		),
		provideHandler,
	),
	fx.Invoke(
		migrate,
		registerRoutes,
		runSweeper,
	),
)

type storeParams struct {
	fx.In
	Clock clock.Clock
	IDs   gen.IDGenerator
	DB    *gorm.DB      `optional:"true"`
	Redis *redis.Client `optional:"true"`
}

func provideStore(kind Kind) func(storeParams) *Store {
	return func(p storeParams) *Store {
		var repo Repository = NewMemoryRepository()
		if p.DB != nil {
			repo = NewGormRepository(p.DB, kind)
		}

		var notifier Notifier = NewChannelNotifier()
		if p.Redis != nil {
			notifier = NewRedisNotifier(notifier, p.Redis, kind)
		}

		return NewStore(StoreParams{
			Kind:     kind,
			Clock:    p.Clock,
			IDs:      p.IDs,
			Repo:     repo,
			Notifier: notifier,
		})
	}
}

type handlerParams struct {
	fx.In
	Catalog              *Catalog
	Subscription         *Store    `name:"subscription"`
	Boost                *Store    `name:"boost"`
	SubscriptionCheckout *Checkout `name:"subscription"`
	BoostCheckout        *Checkout `name:"boost"`
}

func provideHandler(p handlerParams) *Handler {
	return NewHandler(p.Catalog,
		[]*Store{p.Subscription, p.Boost},
		[]*Checkout{p.SubscriptionCheckout, p.BoostCheckout},
	)
}

type migrateParams struct {
	fx.In
	DB *gorm.DB `optional:"true"`
}

func migrate(p migrateParams) error {
	if p.DB == nil {
		return nil
	}
	return Migrate(p.DB)
}

func registerRoutes(r *gin.Engine, h *Handler) {
	h.Register(r)
}

type sweeperParams struct {
	fx.In
	Lifecycle    fx.Lifecycle
	Config       *config.Config
	Subscription *Store `name:"subscription"`
	Boost        *Store `name:"boost"`
}

func runSweeper(p sweeperParams) error {
	if !p.Config.Sweeper.Enable {
		zap.L().Info("entitlement sweeper disabled")
		return nil
	}

	sweeper, err := NewSweeper(p.Config.Sweeper.Schedule, p.Subscription, p.Boost)
	if err != nil {
		return err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			zap.L().Info("starting entitlement sweeper", zap.String("schedule", p.Config.Sweeper.Schedule))
			sweeper.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return sweeper.Stop(ctx)
		},
	})
	return nil
}
