// Package config loads bot configuration from the environment and an
// optional config file.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Resolver struct {
	ConnectTimeoutSec    int   `mapstructure:"connect_timeout_seconds"`
	NegotiateTimeoutSec  int   `mapstructure:"negotiate_timeout_seconds"`
	ReceiveTimeoutSec    int   `mapstructure:"receive_timeout_seconds"`
	MaxConcurrent        int64 `mapstructure:"max_concurrent"`
	PreferredBitrateKbps int   `mapstructure:"preferred_bitrate_kbps"`
}

type Config struct {
	Bot struct {
		Token        string `mapstructure:"token"`
		AdminID      int64  `mapstructure:"admin_id"`
		DefaultToken string `mapstructure:"default_ym_token"`
	} `mapstructure:"bot"`
	DB struct {
		Path string `mapstructure:"path"`
		// Hex-encoded 32-byte key for token encryption at rest.
		// Empty stores tokens in plaintext.
		TokenKey string `mapstructure:"token_key"`
	} `mapstructure:"db"`
	Admin struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"admin"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	Resolver Resolver `mapstructure:"resolver"`
}

// Load reads configuration from NOWBOT_* environment variables and, when
// path is non-empty, a config file. Environment wins over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NOWBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range []string{
		"bot.token",
		"bot.admin_id",
		"bot.default_ym_token",
		"db.path",
		"db.token_key",
		"admin.addr",
		"log.level",
		"resolver.connect_timeout_seconds",
		"resolver.negotiate_timeout_seconds",
		"resolver.receive_timeout_seconds",
		"resolver.max_concurrent",
		"resolver.preferred_bitrate_kbps",
	} {
		v.BindEnv(key)
	}

	v.SetDefault("db.path", "nowbot.db")
	v.SetDefault("admin.addr", ":8091")
	v.SetDefault("log.level", "info")
	v.SetDefault("resolver.connect_timeout_seconds", 10)
	v.SetDefault("resolver.negotiate_timeout_seconds", 15)
	v.SetDefault("resolver.receive_timeout_seconds", 10)
	v.SetDefault("resolver.max_concurrent", 32)
	v.SetDefault("resolver.preferred_bitrate_kbps", 320)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Bot.Token == "" {
		return nil, fmt.Errorf("bot.token (NOWBOT_BOT_TOKEN) is required")
	}
	if _, err := cfg.TokenKey(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// TokenKey decodes the at-rest encryption key, nil when unset.
func (c *Config) TokenKey() ([]byte, error) {
	if c.DB.TokenKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.DB.TokenKey)
	if err != nil {
		return nil, fmt.Errorf("db.token_key is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("db.token_key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
