package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Economy   EconomyConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Port int `env:"SERVER_PORT" envDefault:"8080"`
}

// DatabaseConfig holds the database configuration
type DatabaseConfig struct {
	Driver     string `env:"DB_DRIVER" envDefault:"postgres"`
	Host       string `env:"DB_HOST" envDefault:"localhost"`
	Port       int    `env:"DB_PORT" envDefault:"5432"`
	Username   string `env:"DB_USERNAME" envDefault:"postgres"`
	Password   string `env:"DB_PASSWORD" envDefault:"password"`
	DBName     string `env:"DB_NAME" envDefault:"shinobu"`
	SSLMode    string `env:"DB_SSLMODE" envDefault:"disable"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"data/shinobu.db"`
}

// AuthConfig holds the authentication configuration
type AuthConfig struct {
	JWTSecret     string        `env:"JWT_SECRET" envDefault:"your-secret-key-here"`
	TokenDuration time.Duration `env:"TOKEN_DURATION" envDefault:"24h"`
}

// EconomyConfig holds the tunables of the waifu economy
type EconomyConfig struct {
	StartingBalance int64         `env:"STARTING_BALANCE" envDefault:"100"`
	ApprovalTimeout time.Duration `env:"APPROVAL_TIMEOUT" envDefault:"300s"`
	IncomeInterval  time.Duration `env:"INCOME_INTERVAL" envDefault:"5h"`
	IncomeCap       int64         `env:"INCOME_CAP" envDefault:"10"`
	BirthdayGift    int64         `env:"BIRTHDAY_GIFT" envDefault:"100"`
	BirthdayCheck   time.Duration `env:"BIRTHDAY_CHECK_INTERVAL" envDefault:"1h"`
}

// TelemetryConfig holds the tracing configuration. Tracing is off when Endpoint is empty.
type TelemetryConfig struct {
	Endpoint    string `env:"OTEL_ENDPOINT"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"shinobu-server"`
}

// GetDSN returns the database connection string for the configured driver
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == DriverSQLite {
		return c.SQLitePath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.DBName, c.SSLMode,
	)
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	switch cfg.Database.Driver {
	case DriverPostgres, DriverPgx, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}
	if cfg.Economy.IncomeInterval <= 0 {
		return nil, fmt.Errorf("INCOME_INTERVAL must be positive")
	}
	if cfg.Economy.BirthdayCheck <= 0 {
		return nil, fmt.Errorf("BIRTHDAY_CHECK_INTERVAL must be positive")
	}

	return cfg, nil
}
