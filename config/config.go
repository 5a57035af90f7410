package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	HTTPAddr    string `yaml:"http_addr" env:"HTTP_ADDR" env-default:":8080" validate:"required"`
	PostgresURL string `yaml:"postgres_url" env:"POSTGRES_URL" validate:"required"`
	RedisAddr   string `yaml:"redis_addr" env:"REDIS_ADDR" validate:"required"`
	GatewayAddr string `yaml:"gateway_addr" env:"GATEWAY_ADDR" validate:"required"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=trace debug info warn error"`
	Diagnostics bool   `yaml:"diagnostics" env:"DIAGNOSTICS" env-default:"false"`

	Payment  Payment  `yaml:"payment"`
	Purchase Purchase `yaml:"purchase"`
	Breaker  Breaker  `yaml:"breaker"`
}

type Payment struct {
	StripeSecretKey string        `yaml:"stripe_secret_key" env:"STRIPE_SECRET_KEY" validate:"required"`
	StripeAPIURL    string        `yaml:"stripe_api_url" env:"STRIPE_API_URL" validate:"omitempty,url"`
	Currency        string        `yaml:"currency" env:"PAYMENT_CURRENCY" env-default:"usd" validate:"len=3"`
	ReturnURL       string        `yaml:"return_url" env:"PAYMENT_RETURN_URL" env-default:"http://localhost:3000/payment/complete" validate:"url"`
	Timeout         time.Duration `yaml:"timeout" env:"GATEWAY_TIMEOUT" env-default:"20s" validate:"gt=0"`
}

type Purchase struct {
	MaxTicketsPerPurchase int    `yaml:"max_tickets_per_purchase" env:"MAX_TICKETS_PER_PURCHASE" env-default:"10" validate:"gte=1"`
	TxIsolation           string `yaml:"tx_isolation" env:"TX_ISOLATION" env-default:"read_committed" validate:"oneof=read_committed repeatable_read serializable"`
	TxRetryAttempts       int    `yaml:"tx_retry_attempts" env:"TX_RETRY_ATTEMPTS" env-default:"3" validate:"gte=1"`
}

type Breaker struct {
	MaxRequests         uint32        `yaml:"max_requests" env:"BREAKER_MAX_REQUESTS" env-default:"1"`
	Interval            time.Duration `yaml:"interval" env:"BREAKER_INTERVAL" env-default:"60s"`
	Timeout             time.Duration `yaml:"timeout" env:"BREAKER_TIMEOUT" env-default:"30s"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" env:"BREAKER_CONSECUTIVE_FAILURES" env-default:"5" validate:"gte=1"`
}

// Load reads the YAML file at path when given, then lets the environment
// override it.
func Load(path string) (Config, error) {
	var cfg Config

	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}
