package config

import (
	"strings"
	"testing"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("NOWBOT_BOT_TOKEN", "tg-token")
	t.Setenv("NOWBOT_BOT_ADMIN_ID", "99")
	t.Setenv("NOWBOT_RESOLVER_MAX_CONCURRENT", "5")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bot.Token != "tg-token" || cfg.Bot.AdminID != 99 {
		t.Errorf("bot config = %+v", cfg.Bot)
	}
	if cfg.Resolver.MaxConcurrent != 5 {
		t.Errorf("max concurrent = %d", cfg.Resolver.MaxConcurrent)
	}
	// Defaults fill the rest.
	if cfg.Resolver.ConnectTimeoutSec != 10 || cfg.Resolver.NegotiateTimeoutSec != 15 {
		t.Errorf("resolver defaults = %+v", cfg.Resolver)
	}
	if cfg.DB.Path == "" || cfg.Admin.Addr == "" {
		t.Errorf("defaults missing: %+v", cfg)
	}
}

func TestLoadRequiresBotToken(t *testing.T) {
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "bot.token") {
		t.Fatalf("err = %v, want missing bot.token", err)
	}
}

func TestTokenKey(t *testing.T) {
	t.Setenv("NOWBOT_BOT_TOKEN", "tg-token")

	t.Run("valid", func(t *testing.T) {
		t.Setenv("NOWBOT_DB_TOKEN_KEY", strings.Repeat("ab", 32))
		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		key, err := cfg.TokenKey()
		if err != nil {
			t.Fatal(err)
		}
		if len(key) != 32 {
			t.Errorf("key length = %d", len(key))
		}
	})

	t.Run("wrong length", func(t *testing.T) {
		t.Setenv("NOWBOT_DB_TOKEN_KEY", "abcd")
		if _, err := Load(""); err == nil {
			t.Fatal("expected error for short key")
		}
	})

	t.Run("not hex", func(t *testing.T) {
		t.Setenv("NOWBOT_DB_TOKEN_KEY", strings.Repeat("zz", 32))
		if _, err := Load(""); err == nil {
			t.Fatal("expected error for non-hex key")
		}
	})
}
