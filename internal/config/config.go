// Package config holds the configuration of the terrain binaries.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	terrain "github.com/twpayne/go-terrain"
)

type Config struct {
	// BaseURL is the base URL of the elevation tile service.
	BaseURL string `default:"https://elevation-tiles-prod.s3.amazonaws.com/skadi" validate:"required,url"`
	// TileDir, if set, is a local directory of tiles used instead of BaseURL.
	TileDir     string        `validate:"omitempty,dir"`
	UserAgent   string        `default:"go-terrain"`
	CacheSize   int           `default:"16" validate:"gte=1"`
	Concurrency int           `default:"4" validate:"gte=1,lte=64"`
	HTTPTimeout time.Duration `default:"30s" validate:"gt=0"`

	// RedisAddr, if set, enables the shared Redis tile cache.
	RedisAddr string        `validate:"omitempty,hostname_port"`
	RedisTTL  time.Duration `default:"24h" validate:"gte=0"`

	ListenAddr      string        `default:":8080" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `default:"10s" validate:"gt=0"`
	MaxDatasets     int           `default:"64" validate:"gte=1"`

	LogLevel   string `default:"info" validate:"oneof=debug info warn error"`
	LogConsole bool
}

// Default returns a Config with every field set to its default.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate returns an error describing every invalid field of cfg.
func (cfg *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	err := validate.Struct(cfg)
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	messages := make([]string, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		if fieldError.Param() != "" {
			messages = append(messages, fmt.Sprintf("%s: failed %s=%s (got %v)", fieldError.Field(), fieldError.Tag(), fieldError.Param(), fieldError.Value()))
		} else {
			messages = append(messages, fmt.Sprintf("%s: failed %s (got %v)", fieldError.Field(), fieldError.Tag(), fieldError.Value()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(messages, "; "))
}

// TileSetOptions returns the TileSet options selected by cfg, excluding the
// source.
func (cfg *Config) TileSetOptions() []terrain.TileSetOption {
	return []terrain.TileSetOption{
		terrain.WithCacheSize(cfg.CacheSize),
		terrain.WithConcurrency(cfg.Concurrency),
		terrain.WithFetchTimeout(cfg.HTTPTimeout),
	}
}

// HTTPSourceOptions returns the HTTPSource options selected by cfg.
func (cfg *Config) HTTPSourceOptions() []terrain.HTTPSourceOption {
	return []terrain.HTTPSourceOption{
		terrain.WithBaseURL(cfg.BaseURL),
		terrain.WithHTTPClient(terrain.NewHTTPClient(cfg.HTTPTimeout)),
		terrain.WithUserAgent(cfg.UserAgent),
	}
}
