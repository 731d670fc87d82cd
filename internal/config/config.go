package config

import (
	"github.com/caarlos0/env/v11"
)

type Config struct {
	BaseURL  string `env:"TETHER_BASE_URL" envDefault:"https://agent.example.com"`
	APIKey   string `env:"TETHER_API_KEY"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Reconnection controller.
	BackoffCapSec        int `env:"BACKOFF_CAP_SEC" envDefault:"30"`
	ReadTimeoutSec       int `env:"READ_TIMEOUT_SEC" envDefault:"30"`
	DecodeErrorThreshold int `env:"DECODE_ERROR_THRESHOLD" envDefault:"3"`

	// Catch-up poller budgets.
	PollShortIntervalSec int `env:"POLL_SHORT_INTERVAL_SEC" envDefault:"3"`
	PollShortCount       int `env:"POLL_SHORT_COUNT" envDefault:"5"`
	PollLongIntervalSec  int `env:"POLL_LONG_INTERVAL_SEC" envDefault:"5"`
	PollBudgetSec        int `env:"POLL_BUDGET_SEC" envDefault:"30"`
	FreshnessWindowSec   int `env:"FRESHNESS_WINDOW_SEC" envDefault:"300"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
