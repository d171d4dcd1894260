// Package config loads runtime settings from flags and PULSE_* environment
// variables via viper.
package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/opswatch/pulse/internal/embed"
)

// Config is the full runtime configuration.
type Config struct {
	Addr string
	Port int

	// StoreDriver selects the event store backend: "postgres" or "memory".
	StoreDriver string
	PostgresDSN string

	RedisAddr string
	CacheTTL  time.Duration

	Embedding embed.Config
	// EmbeddingProvider selects the embedder: "openai" (any
	// OpenAI-compatible endpoint) or "static" (local, deterministic).
	EmbeddingProvider string

	FutureTolerance time.Duration
	ClampRelevancy  bool
}

// SetDefaults registers every default with viper. Call once before Load.
func SetDefaults() {
	viper.SetDefault("addr", "")
	viper.SetDefault("port", 8080)
	viper.SetDefault("store.driver", "memory")
	viper.SetDefault("store.dsn", "")
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("cache.ttl", "30s")
	viper.SetDefault("embedding.provider", "static")
	viper.SetDefault("embedding.api-key", "")
	viper.SetDefault("embedding.base-url", "")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dimensions", 1536)
	viper.SetDefault("ingest.future-tolerance", "24h")
	viper.SetDefault("scoring.clamp-relevancy", false)
}

// Load materializes the configuration from viper's current state.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:        viper.GetString("addr"),
		Port:        viper.GetInt("port"),
		StoreDriver: viper.GetString("store.driver"),
		PostgresDSN: viper.GetString("store.dsn"),
		RedisAddr:   viper.GetString("redis.addr"),
		CacheTTL:    viper.GetDuration("cache.ttl"),
		Embedding: embed.Config{
			APIKey:     viper.GetString("embedding.api-key"),
			BaseURL:    viper.GetString("embedding.base-url"),
			Model:      viper.GetString("embedding.model"),
			Dimensions: viper.GetInt("embedding.dimensions"),
		},
		EmbeddingProvider: viper.GetString("embedding.provider"),
		FutureTolerance:   viper.GetDuration("ingest.future-tolerance"),
		ClampRelevancy:    viper.GetBool("scoring.clamp-relevancy"),
	}

	switch cfg.StoreDriver {
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, errors.New("store.dsn is required for the postgres driver")
		}
	case "memory":
	default:
		return nil, errors.Errorf("unknown store driver: %s", cfg.StoreDriver)
	}

	switch cfg.EmbeddingProvider {
	case "openai", "static":
	default:
		return nil, errors.Errorf("unknown embedding provider: %s", cfg.EmbeddingProvider)
	}

	return cfg, nil
}
