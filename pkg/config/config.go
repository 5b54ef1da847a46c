package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/northfin/recon_backend/internal/matching"
)

// EngineConfig holds the matching engine tunables. Defaults mirror
// matching.DefaultConfig so a bare environment behaves like the documented
// engine.
type EngineConfig struct {
	AutoMatchThreshold     float64
	SuggestionThreshold    float64
	LookbackDays           int
	MaxCandidates          int
	MaxSuggestions         int
	AmountTolerancePercent float64
	BatchWorkers           int
}

// Config holds application configuration.
type Config struct {
	DatabaseURL    string
	Port           string
	IsProduction   bool
	JWTSecret      string
	RateLimit      string
	AllowedOrigins []string

	// DispatchInterval paces the notification outbox dispatcher.
	DispatchInterval time.Duration
	// SweepInterval paces the background time-based escalation sweep.
	SweepInterval time.Duration

	Engine EngineConfig
}

// LoadConfig loads configuration from environment variables. A .env file is
// honored when present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("IS_PRODUCTION", false)
	v.SetDefault("RATE_LIMIT", "300-M")
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("DISPATCH_INTERVAL", "10s")
	v.SetDefault("SWEEP_INTERVAL", "1h")

	defaults := matching.DefaultConfig()
	v.SetDefault("ENGINE_AUTO_MATCH_THRESHOLD", defaults.AutoMatchThreshold)
	v.SetDefault("ENGINE_SUGGESTION_THRESHOLD", defaults.SuggestionThreshold)
	v.SetDefault("ENGINE_LOOKBACK_DAYS", defaults.LookbackDays)
	v.SetDefault("ENGINE_MAX_CANDIDATES", defaults.MaxCandidates)
	v.SetDefault("ENGINE_MAX_SUGGESTIONS", defaults.MaxSuggestions)
	v.SetDefault("ENGINE_AMOUNT_TOLERANCE_PERCENT", defaults.AmountTolerancePercent)
	v.SetDefault("ENGINE_BATCH_WORKERS", 5)

	cfg := &Config{
		DatabaseURL:      v.GetString("PGSQL_URL"),
		Port:             v.GetString("PORT"),
		IsProduction:     v.GetBool("IS_PRODUCTION"),
		JWTSecret:        v.GetString("JWT_SECRET"),
		RateLimit:        v.GetString("RATE_LIMIT"),
		AllowedOrigins:   strings.Split(v.GetString("ALLOWED_ORIGINS"), ","),
		DispatchInterval: v.GetDuration("DISPATCH_INTERVAL"),
		SweepInterval:    v.GetDuration("SWEEP_INTERVAL"),
		Engine: EngineConfig{
			AutoMatchThreshold:     v.GetFloat64("ENGINE_AUTO_MATCH_THRESHOLD"),
			SuggestionThreshold:    v.GetFloat64("ENGINE_SUGGESTION_THRESHOLD"),
			LookbackDays:           v.GetInt("ENGINE_LOOKBACK_DAYS"),
			MaxCandidates:          v.GetInt("ENGINE_MAX_CANDIDATES"),
			MaxSuggestions:         v.GetInt("ENGINE_MAX_SUGGESTIONS"),
			AmountTolerancePercent: v.GetFloat64("ENGINE_AMOUNT_TOLERANCE_PERCENT"),
			BatchWorkers:           v.GetInt("ENGINE_BATCH_WORKERS"),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("PGSQL_URL environment variable is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	return cfg, nil
}

// MatchingConfig converts the engine section into the matching package's
// config, keeping the documented signal weights.
func (c *Config) MatchingConfig() matching.Config {
	cfg := matching.DefaultConfig()
	cfg.AutoMatchThreshold = c.Engine.AutoMatchThreshold
	cfg.SuggestionThreshold = c.Engine.SuggestionThreshold
	cfg.LookbackDays = c.Engine.LookbackDays
	cfg.MaxCandidates = c.Engine.MaxCandidates
	cfg.MaxSuggestions = c.Engine.MaxSuggestions
	cfg.AmountTolerancePercent = c.Engine.AmountTolerancePercent
	return cfg
}
