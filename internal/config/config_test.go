package config_test

import (
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"

	terrain "github.com/twpayne/go-terrain"
	"github.com/twpayne/go-terrain/internal/config"
)

func TestDefault(t *testing.T) {
	cfg, err := config.Default()
	assert.NoError(t, err)
	assert.Equal(t, terrain.DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, 16, cfg.CacheSize)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 24*time.Hour, cfg.RedisTTL)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "", cfg.RedisAddr)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 3, len(cfg.TileSetOptions()))
	assert.Equal(t, 3, len(cfg.HTTPSourceOptions()))
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name          string
		modify        func(*config.Config)
		expectedError string
	}{
		{
			name:   "redis",
			modify: func(cfg *config.Config) { cfg.RedisAddr = "localhost:6379" },
		},
		{
			name:   "tile_dir",
			modify: func(cfg *config.Config) { cfg.TileDir = t.TempDir() },
		},
		{
			name:          "base_url",
			modify:        func(cfg *config.Config) { cfg.BaseURL = "not a url" },
			expectedError: "BaseURL: failed url",
		},
		{
			name:          "concurrency",
			modify:        func(cfg *config.Config) { cfg.Concurrency = 0 },
			expectedError: "Concurrency: failed gte=1",
		},
		{
			name:          "log_level",
			modify:        func(cfg *config.Config) { cfg.LogLevel = "verbose" },
			expectedError: "LogLevel: failed oneof",
		},
		{
			name:          "redis_addr",
			modify:        func(cfg *config.Config) { cfg.RedisAddr = "localhost" },
			expectedError: "RedisAddr: failed hostname_port",
		},
		{
			name:          "missing_tile_dir",
			modify:        func(cfg *config.Config) { cfg.TileDir = "/nonexistent/tiles" },
			expectedError: "TileDir: failed dir",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := config.Default()
			assert.NoError(t, err)
			tc.modify(cfg)
			err = cfg.Validate()
			if tc.expectedError == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tc.expectedError)
			}
		})
	}
}
