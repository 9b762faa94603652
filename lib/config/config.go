// Package config loads runtime configuration from environment variables
// and an optional config file via viper. All keys are also reachable as
// WATCHLOG_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	DatabasePath string        `mapstructure:"database_path"`
	ListenAddr   string        `mapstructure:"listen_addr"`
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
	BcryptCost   int           `mapstructure:"bcrypt_cost"`

	PlexURL   string `mapstructure:"plex_url"`
	PlexToken string `mapstructure:"plex_token"`

	OpenAIKey string `mapstructure:"openai_key"`
}

// Load reads configuration, applying defaults, then an optional config
// file at the given path, then WATCHLOG_* environment variables.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database_path", "watchlog.db")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("session_ttl", 7*24*time.Hour)
	v.SetDefault("bcrypt_cost", bcrypt.DefaultCost)

	v.SetEnvPrefix("WATCHLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	return &cfg, nil
}
