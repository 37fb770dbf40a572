package db

import (
	"context"
	"fmt"
	"time"

	"carematch/pkg/config"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormprometheus "gorm.io/plugin/prometheus"
)

const TypeMemory = "memory"

var Module = fx.Module("database",
	fx.Provide(
		Dialect,
		New,
	),
)

// Dialect returns nil for the memory backend.
func Dialect(cfg *config.Config) (gorm.Dialector, error) {
	d := cfg.Database
	switch d.Type {
	case "", TypeMemory:
		return nil, nil
	case "sqlite":
		return sqlite.Open(d.Path), nil
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
			d.Host, d.Port, d.User, d.Password, d.DBNAME, d.SSLMode, d.Timezone)
		return postgres.Open(dsn), nil
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.User, d.Password, d.Host, d.Port, d.DBNAME)
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", d.Type)
	}
}

type Params struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Dialector gorm.Dialector `optional:"true"`
}

// New opens the database. It returns a nil *gorm.DB for the memory backend.
func New(p Params) (*gorm.DB, error) {
	if p.Dialector == nil {
		zap.L().Info("[DB] using in-memory entitlement storage")
		return nil, nil
	}

	db, err := Open(p.Config, p.Dialector)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB from gorm: %w", err)
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			zap.L().Info("[DB] Closing connection pool...")
			return sqlDB.Close()
		},
	})

	return db, nil
}

func Open(cfg *config.Config, dialector gorm.Dialector) (*gorm.DB, error) {
	logLevel := logger.Info
	showSQL := true
	if cfg.AppEnv == "production" {
		logLevel = logger.Warn
		showSQL = false
	}

	gormLogger := NewZapGormLogger(zap.L(), logLevel, showSQL)

	var db *gorm.DB
	var err error
	for i := 0; i < 5; i++ {
		db, err = gorm.Open(dialector, &gorm.Config{
			Logger: gormLogger,
		})
		if err == nil {
			break
		}
		zap.L().Warn("[DB] Database not ready, retrying in 3 seconds... ", zap.Int("retry", i+1), zap.Error(err))
		time.Sleep(3 * time.Second)
	}
	if err != nil {
		zap.L().Error("[DB] Failed to connect to database", zap.Error(err))
		return nil, err
	}

	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		zap.L().Error("[DB] Failed to register db telemetry", zap.Error(err))
		return nil, err
	}

	if err := Metric(db, metricsName(cfg)); err != nil {
		return nil, err
	}

	zap.L().Info("[DB] Database connection successfully configured.", zap.String("dialect", dialector.Name()))

	return db, nil
}

const metricsRefreshSeconds = 15

// Metric registers connection pool gauges on the default prometheus registry,
// served by the /metrics route.
func Metric(db *gorm.DB, name string) error {
	if err := db.Use(gormprometheus.New(gormprometheus.Config{
		DBName:          name,
		RefreshInterval: metricsRefreshSeconds,
	})); err != nil {
		zap.L().Error("[DB] Failed to register db metrics", zap.Error(err))
		return err
	}
	return nil
}

func metricsName(cfg *config.Config) string {
	if cfg.Database.Type == "sqlite" {
		return "sqlite"
	}
	return cfg.Database.DBNAME
}
