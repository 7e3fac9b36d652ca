package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
)

// Config configures the timing server.
type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/timekeeper.db"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SeedDemo bool       `env:"SEED_DEMO" envDefault:"false"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}

// MarshalConfig configures the marshal device CLI.
type MarshalConfig struct {
	ServerURL string     `env:"TIMEKEEPER_URL" envDefault:"http://localhost:8080"`
	RaceID    int64      `env:"TIMEKEEPER_RACE" envDefault:"0"`
	DataDir   string     `env:"TIMEKEEPER_DATA_DIR" envDefault:".timekeeper"`
	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"WARN"`
}

func LoadMarshal() (*MarshalConfig, error) {
	cfg, err := env.ParseAs[MarshalConfig]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}
