package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	RedisAuctionsHost string `env:"REDIS_AUCTIONS_HOST" envDefault:"localhost"`
	RedisAuctionsPort uint16 `env:"REDIS_AUCTIONS_PORT" envDefault:"6379"   validate:"min=1000,max=65535"`

	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"auction_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"auction_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"auction_db"`

	// Minimum amount a new bid must exceed the current high bid by.
	BidMinIncrement float64 `env:"BID_MIN_INCREMENT" envDefault:"500" validate:"gt=0"`

	// Cadence of the deadline sweep. Anything small relative to auction
	// duration works; overdue auctions missed by one cycle are caught by
	// the next.
	ClockPollInterval time.Duration `env:"CLOCK_POLL_INTERVAL" envDefault:"1m" validate:"gt=0"`

	// Cadence of the high-bid mirror into Postgres.
	SyncInterval time.Duration `env:"SYNC_INTERVAL" envDefault:"10s" validate:"gt=0"`

	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8085" validate:"min=1000,max=65535"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
