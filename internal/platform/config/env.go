// Package config loads process configuration from the environment and the
// shift tuning from a YAML rules file.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
)

// Journal drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the process configuration. Every field can be set from the
// environment.
type Config struct {
	ListenAddr string `env:"BUGSHIFT_LISTEN_ADDR" envDefault:":8080"`
	DataDir    string `env:"BUGSHIFT_DATA_DIR" envDefault:"data"`
	RulesFile  string `env:"BUGSHIFT_RULES_FILE"`
	SessionID  string `env:"BUGSHIFT_SESSION_ID" envDefault:"local"`

	JournalDriver  string `env:"BUGSHIFT_JOURNAL_DRIVER" envDefault:"sqlite"`
	JournalDSN     string `env:"BUGSHIFT_JOURNAL_DSN" envDefault:"bugshift.db"`
	DBMaxOpenConns int    `env:"BUGSHIFT_DB_MAX_OPEN_CONNS" envDefault:"8"`
	DBMaxIdleConns int    `env:"BUGSHIFT_DB_MAX_IDLE_CONNS" envDefault:"4"`

	RedisAddr     string `env:"BUGSHIFT_REDIS_ADDR"`
	RedisPassword string `env:"BUGSHIFT_REDIS_PASSWORD"`
	RedisDB       int    `env:"BUGSHIFT_REDIS_DB" envDefault:"0"`
	RedisPoolSize int    `env:"BUGSHIFT_REDIS_POOL_SIZE" envDefault:"10"`

	FrameRate          int     `env:"BUGSHIFT_FRAME_RATE" envDefault:"20"`
	CommandBuffer      int     `env:"BUGSHIFT_COMMAND_BUFFER" envDefault:"64"`
	ClientSendBuffer   int     `env:"BUGSHIFT_CLIENT_SEND_BUFFER" envDefault:"256"`
	BroadcastBuffer    int     `env:"BUGSHIFT_BROADCAST_BUFFER" envDefault:"1024"`
	ClientCommandRate  float64 `env:"BUGSHIFT_CLIENT_COMMAND_RATE" envDefault:"10"`
	ClientCommandBurst int     `env:"BUGSHIFT_CLIENT_COMMAND_BURST" envDefault:"20"`
	BroadcastTicks     bool    `env:"BUGSHIFT_BROADCAST_TICKS" envDefault:"true"`

	LogFormat string `env:"BUGSHIFT_LOG_FORMAT" envDefault:"text"`
	LogLevel  string `env:"BUGSHIFT_LOG_LEVEL" envDefault:"info"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses Config from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.JournalDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("journal driver %q: want %q or %q", c.JournalDriver, DriverSQLite, DriverPostgres)
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("frame rate must be positive, got %d", c.FrameRate)
	}
	if c.CommandBuffer <= 0 || c.ClientSendBuffer <= 0 || c.BroadcastBuffer <= 0 {
		return fmt.Errorf("buffer sizes must be positive")
	}
	if c.ClientCommandRate <= 0 || c.ClientCommandBurst <= 0 {
		return fmt.Errorf("client command rate and burst must be positive")
	}
	return nil
}

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
