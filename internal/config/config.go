// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Slot backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	SlotBackend string
	Redis       RedisConfig
	DeviceTTL   time.Duration
	SweepEvery  time.Duration
	LoginRate   LoginRateConfig
	GRPCPort    string // empty disables the health probe
	ProbeEvery  time.Duration
	LogLevel    slog.Level
}

// RedisConfig is used when SlotBackend is "redis".
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoginRateConfig throttles credential submissions per device and address,
// and per address alone so dropping the device cookie does not reset it.
type LoginRateConfig struct {
	PerMinute   int
	Burst       int
	IPPerMinute int
	IPBurst     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/vetcare.db"),
		SlotBackend: strings.ToLower(getEnv("SLOT_BACKEND", BackendSQLite)),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		DeviceTTL:  getEnvDuration("DEVICE_TTL", 720*time.Hour),
		SweepEvery: getEnvDuration("SWEEP_INTERVAL", time.Hour),
		LoginRate: LoginRateConfig{
			PerMinute:   getEnvInt("LOGIN_RATE_PER_MINUTE", 10),
			Burst:       getEnvInt("LOGIN_BURST", 5),
			IPPerMinute: getEnvInt("LOGIN_IP_RATE_PER_MINUTE", 60),
			IPBurst:     getEnvInt("LOGIN_IP_BURST", 20),
		},
		GRPCPort:   getEnv("GRPC_PORT", ""),
		ProbeEvery: getEnvDuration("PROBE_INTERVAL", 15*time.Second),
		LogLevel:   level,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	switch c.SlotBackend {
	case BackendSQLite, BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR cannot be empty when SLOT_BACKEND=redis")
		}
	default:
		return fmt.Errorf("SLOT_BACKEND must be one of sqlite, redis, memory (got %q)", c.SlotBackend)
	}
	if c.DeviceTTL <= 0 {
		return fmt.Errorf("DEVICE_TTL must be > 0")
	}
	if c.SweepEvery <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	if c.LoginRate.PerMinute <= 0 {
		return fmt.Errorf("LOGIN_RATE_PER_MINUTE must be > 0")
	}
	if c.LoginRate.Burst <= 0 {
		return fmt.Errorf("LOGIN_BURST must be > 0")
	}
	if c.LoginRate.IPPerMinute <= 0 {
		return fmt.Errorf("LOGIN_IP_RATE_PER_MINUTE must be > 0")
	}
	if c.LoginRate.IPBurst <= 0 {
		return fmt.Errorf("LOGIN_IP_BURST must be > 0")
	}
	if c.GRPCPort != "" && c.ProbeEvery <= 0 {
		return fmt.Errorf("PROBE_INTERVAL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
