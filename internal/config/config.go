package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	EnvDev   = "dev"
	EnvProd  = "prod"
	EnvLocal = "local"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type Config struct {
	Env      string `env:"ENV" env-default:"local"`
	LogLevel string `env:"LOG_LEVEL"`
	HTTP     HTTPConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
}

type HTTPConfig struct {
	Port              string        `env:"SERVER_PORT" env-default:"8080"`
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" env-default:"5s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

type DatabaseConfig struct {
	Driver       string        `env:"DB_DRIVER" env-default:"postgres"`
	Host         string        `env:"POSTGRES_HOST"`
	Port         int           `env:"POSTGRES_PORT" env-default:"5432"`
	User         string        `env:"POSTGRES_USER"`
	Password     string        `env:"POSTGRES_PASSWORD"`
	Name         string        `env:"POSTGRES_DB"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" env-default:"disable"`
	SQLitePath   string        `env:"SQLITE_PATH" env-default:"taskapi.db"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" env-default:"10"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	QueryTimeout time.Duration `env:"DB_QUERY_TIMEOUT" env-default:"5s"`
}

type RedisConfig struct {
	URL string `env:"REDIS_URL"`
}

type AuthConfig struct {
	SessionTTL           time.Duration `env:"SESSION_TTL" env-default:"24h"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" env-default:"10m"`
}

// DSN builds the connection string for the configured driver.
func (c DatabaseConfig) DSN() string {
	if c.Driver == DriverSQLite {
		return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate", c.SQLitePath)
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode)
}

func (c *Config) Validate() error {
	switch c.Env {
	case EnvDev, EnvProd, EnvLocal:
	default:
		return fmt.Errorf("unknown env: %q", c.Env)
	}

	switch c.Database.Driver {
	case DriverPostgres:
		var missing []error
		for name, v := range map[string]string{
			"POSTGRES_HOST":     c.Database.Host,
			"POSTGRES_USER":     c.Database.User,
			"POSTGRES_PASSWORD": c.Database.Password,
			"POSTGRES_DB":       c.Database.Name,
		} {
			if v == "" {
				missing = append(missing, fmt.Errorf("environment variable %s must be set", name))
			}
		}
		if err := errors.Join(missing...); err != nil {
			return err
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return errors.New("environment variable SQLITE_PATH must be set")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %q", c.Database.Driver)
	}

	if c.Database.QueryTimeout <= 0 {
		return errors.New("DB_QUERY_TIMEOUT must be positive")
	}
	if c.Auth.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.Auth.SessionSweepInterval <= 0 {
		return errors.New("SESSION_SWEEP_INTERVAL must be positive")
	}
	return nil
}
