// Package config reads the service settings from the environment, after loading
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port string

	StoreDriver     string
	DatabaseURL     string
	DBMaxOpenConns  int
	DBMaxIdleConns  int
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SecretKey string

	Location             *time.Location
	SeedPolicy           string
	InvestmentPercentage float64
	ProfitPercentage     float64

	LogLevel  string
	LogFormat string
}

// Load reads .env if present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (*Config, error) {
	r := &reader{}
	cfg := &Config{
		Port:                 env("SERVER_PORT", "8080"),
		StoreDriver:          strings.ToLower(env("STORE_DRIVER", DriverPostgres)),
		DatabaseURL:          os.Getenv("DB_URL"),
		DBMaxOpenConns:       r.integer("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:       r.integer("DB_MAX_IDLE_CONNS", 25),
		ShutdownTimeout:      r.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              r.integer("REDIS_DB", 0),
		SecretKey:            os.Getenv("SECRET_KEY"),
		Location:             r.location("LEDGER_TIMEZONE"),
		SeedPolicy:           env("SEED_POLICY", "schedule"),
		InvestmentPercentage: r.number("INVESTMENT_PERCENTAGE", 0.01),
		ProfitPercentage:     r.number("PROFIT_PERCENTAGE", 0.88),
		LogLevel:             env("LOG_LEVEL", "info"),
		LogFormat:            env("LOG_FORMAT", "json"),
	}
	if r.err != nil {
		return nil, r.err
	}

	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DB_URL is required when STORE_DRIVER is postgres")
		}
	case DriverMemory:
	default:
		return nil, fmt.Errorf("STORE_DRIVER: unknown driver %q", cfg.StoreDriver)
	}
	return cfg, nil
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// reader keeps the first parse failure so Load can report it once.
type reader struct {
	err error
}

func (r *reader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%s: %w", key, err)
	}
}

func (r *reader) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return n
}

func (r *reader) number(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return f
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return d
}

func (r *reader) location(key string) *time.Location {
	v := os.Getenv(key)
	if v == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(v)
	if err != nil {
		r.fail(key, err)
		return time.Local
	}
	return loc
}
