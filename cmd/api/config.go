package main

import (
	"log/slog"
	"time"

	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/payment"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/rates"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/round"
	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/services/market"
)

type apiConfig struct {
	Port            uint16        `env:"API_PORT" envDefault:"8080"`
	DSN             string        `env:"PG_DSN"`
	LogLevel        slog.Level    `env:"APP_LOG_LEVEL" envDefault:"INFO"`
	ShutdownTimeout time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// PlatformAccount collects marketplace fees and casino revenue.
	// Zero disables fee collection.
	PlatformAccount int64 `env:"PLATFORM_ACCOUNT_ID" envDefault:"0"`

	Round  round.Config
	Market market.Config
	Rates  rates.Config
	PayPal payment.PayPalConfig
}
