package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// t.Setenv cannot unset, so pin the defaults explicitly.
	t.Setenv("SLOT_BACKEND", "sqlite")
	t.Setenv("DEVICE_TTL", "720h")
	t.Setenv("SWEEP_INTERVAL", "1h")
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("GRPC_PORT", "")
	t.Setenv("LOGIN_RATE_PER_MINUTE", "10")
	t.Setenv("LOGIN_BURST", "5")
	t.Setenv("LOGIN_IP_RATE_PER_MINUTE", "60")
	t.Setenv("LOGIN_IP_BURST", "20")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.SlotBackend)
	assert.Equal(t, 720*time.Hour, cfg.DeviceTTL)
	assert.Equal(t, time.Hour, cfg.SweepEvery)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Empty(t, cfg.GRPCPort)
	assert.Equal(t, LoginRateConfig{PerMinute: 10, Burst: 5, IPPerMinute: 60, IPBurst: 20}, cfg.LoginRate)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SLOT_BACKEND", "REDIS")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("DEVICE_TTL", "2h")
	t.Setenv("SWEEP_INTERVAL", "bogus")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, cfg.SlotBackend)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 2*time.Hour, cfg.DeviceTTL)
	assert.Equal(t, time.Hour, cfg.SweepEvery, "unparseable durations fall back")
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")
	_, err := Load()
	assert.ErrorContains(t, err, "LOG_LEVEL")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:        "8080",
			DBPath:      "db",
			SlotBackend: BackendSQLite,
			Redis:       RedisConfig{Addr: "localhost:6379"},
			DeviceTTL:   time.Hour,
			SweepEvery:  time.Minute,
			LoginRate:   LoginRateConfig{PerMinute: 10, Burst: 5, IPPerMinute: 60, IPBurst: 20},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty port", func(c *Config) { c.Port = "" }, "PORT"},
		{"unknown backend", func(c *Config) { c.SlotBackend = "etcd" }, "SLOT_BACKEND"},
		{"redis without addr", func(c *Config) { c.SlotBackend = BackendRedis; c.Redis.Addr = "" }, "REDIS_ADDR"},
		{"zero ttl", func(c *Config) { c.DeviceTTL = 0 }, "DEVICE_TTL"},
		{"zero burst", func(c *Config) { c.LoginRate.Burst = 0 }, "LOGIN_BURST"},
		{"zero ip burst", func(c *Config) { c.LoginRate.IPBurst = 0 }, "LOGIN_IP_BURST"},
		{"probe without interval", func(c *Config) { c.GRPCPort = "9090" }, "PROBE_INTERVAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	assert.True(t, (&Config{}).IsDevelopment())
	assert.True(t, (&Config{FrontendURL: "http://localhost:5173"}).IsDevelopment())
	assert.False(t, (&Config{FrontendURL: "https://vetcare.example"}).IsDevelopment())
}
