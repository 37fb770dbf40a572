package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
)

const (
	configName = "config"
	configType = "yaml"
)

type PlanConfig struct {
	ID                  string `mapstructure:"ID"`
	Name                string `mapstructure:"NAME"`
	PriceMinorUnits     int64  `mapstructure:"PRICE_MINOR_UNITS"`
	BillingPeriodMonths int    `mapstructure:"BILLING_PERIOD_MONTHS"`
}

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	NodeID     int64  `mapstructure:"NODE_ID"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		// memory keeps entitlement records in process; sqlite, postgres and mysql use gorm.
		Type     string `mapstructure:"TYPE"`
		Host     string `mapstructure:"HOST"`
		Port     string `mapstructure:"PORT"`
		DBNAME   string `mapstructure:"DBNAME"`
		User     string `mapstructure:"USER"`
		Password string `mapstructure:"PASSWORD"`
		SSLMode  string `mapstructure:"SSLMODE"`
		Timezone string `mapstructure:"TIMEZONE"`
		Path     string `mapstructure:"PATH"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Checkout struct {
		ProcessingDelay time.Duration `mapstructure:"PROCESSING_DELAY"`
		PaymentTimeout  time.Duration `mapstructure:"PAYMENT_TIMEOUT"`
		MaxRetries      uint64        `mapstructure:"MAX_RETRIES"`
		RetryBase       time.Duration `mapstructure:"RETRY_BASE"`
	} `mapstructure:"CHECKOUT"`
	Sweeper struct {
		Enable   bool   `mapstructure:"ENABLE"`
		Schedule string `mapstructure:"SCHEDULE"`
	} `mapstructure:"SWEEPER"`
	Plans struct {
		Subscription []PlanConfig `mapstructure:"SUBSCRIPTION"`
		Boost        []PlanConfig `mapstructure:"BOOST"`
	} `mapstructure:"PLANS"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

// LoadConfig reads config.yaml from CONFIG_PATH (or the working directory)
// and applies environment overrides.
func LoadConfig() (*Config, error) {
	return Load(os.Getenv("CONFIG_PATH"))
}

// Load reads the given file, or searches for config.yaml in "." when path is
// empty. A missing file is not an error: defaults and environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if len(cfg.Plans.Subscription) == 0 {
		cfg.Plans.Subscription = DefaultSubscriptionPlans()
	}
	if len(cfg.Plans.Boost) == 0 {
		cfg.Plans.Boost = DefaultBoostPlans()
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "carematch")
	v.SetDefault("APP_VERSION", "dev")
	v.SetDefault("NODE_ID", 1)

	v.SetDefault("TLS.ENABLE", false)
	v.SetDefault("TLS.CERT_PATH", "")
	v.SetDefault("TLS.KEY_PATH", "")

	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 10*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 10*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)

	v.SetDefault("DATABASE.TYPE", "memory")
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", "5432")
	v.SetDefault("DATABASE.DBNAME", "carematch")
	v.SetDefault("DATABASE.USER", "")
	v.SetDefault("DATABASE.PASSWORD", "")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.PATH", "carematch.db")

	v.SetDefault("REDIS.ADDR", "")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 4*time.Second)

	v.SetDefault("CHECKOUT.PROCESSING_DELAY", 1500*time.Millisecond)
	v.SetDefault("CHECKOUT.PAYMENT_TIMEOUT", 5*time.Second)
	v.SetDefault("CHECKOUT.MAX_RETRIES", 3)
	v.SetDefault("CHECKOUT.RETRY_BASE", 200*time.Millisecond)

	v.SetDefault("SWEEPER.ENABLE", true)
	v.SetDefault("SWEEPER.SCHEDULE", "@every 1m")
}

func DefaultSubscriptionPlans() []PlanConfig {
	return []PlanConfig{
		{ID: "patient-monthly", Name: "Monthly", PriceMinorUnits: 999, BillingPeriodMonths: 1},
		{ID: "patient-quarterly", Name: "Quarterly", PriceMinorUnits: 2499, BillingPeriodMonths: 3},
		{ID: "patient-yearly", Name: "Yearly", PriceMinorUnits: 8999, BillingPeriodMonths: 12},
	}
}

func DefaultBoostPlans() []PlanConfig {
	return []PlanConfig{
		{ID: "boost-monthly", Name: "Boost 1 month", PriceMinorUnits: 1999, BillingPeriodMonths: 1},
		{ID: "boost-quarterly", Name: "Boost 3 months", PriceMinorUnits: 4999, BillingPeriodMonths: 3},
	}
}
