package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Setenv("AMQP_HOSTS", "localhost:5672")
	t.Setenv("REDIS_ADDR", "localhost:6379")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.BotLeaseTTL != 30*time.Second {
		t.Errorf("BotLeaseTTL = %v, want 30s", cfg.BotLeaseTTL)
	}
	if cfg.PendingOrderExpiry != 10*time.Minute {
		t.Errorf("PendingOrderExpiry = %v, want 10m", cfg.PendingOrderExpiry)
	}
	if cfg.ReplayDeadLetters {
		t.Error("ReplayDeadLetters should default to false")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("BOT_LEASE_TTL", "45s")
	t.Setenv("BOT_LEASE_RENEW", "15s")
	t.Setenv("PENDING_ORDER_EXPIRY", "30m")
	t.Setenv("REPLAY_DEAD_LETTERS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.BotLeaseTTL != 45*time.Second {
		t.Errorf("BotLeaseTTL = %v, want 45s", cfg.BotLeaseTTL)
	}
	if cfg.PendingOrderExpiry != 30*time.Minute {
		t.Errorf("PendingOrderExpiry = %v, want 30m", cfg.PendingOrderExpiry)
	}
	if !cfg.ReplayDeadLetters {
		t.Error("ReplayDeadLetters should be true")
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	cases := []struct {
		key string
		val string
	}{
		{"BOT_LEASE_TTL", "300"},
		{"BOT_LEASE_RENEW", "soon"},
		{"BOT_STEP_INTERVAL", "5 seconds"},
		{"RECONCILE_INTERVAL", "often"},
		{"SWEEP_INTERVAL", "1"},
		{"PENDING_ORDER_EXPIRY", "ten-minutes"},
		{"CACHE_TTL", "short"},
		{"REPLAY_DEAD_LETTERS", "nope"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tc.key, tc.val)

			_, err := Load()
			if err == nil {
				t.Fatalf("Load() accepted %s=%q", tc.key, tc.val)
			}
			if !strings.Contains(err.Error(), tc.key) {
				t.Errorf("error %q does not name %s", err, tc.key)
			}
		})
	}
}

func TestLoadRequiresBrokerAndCache(t *testing.T) {
	t.Setenv("AMQP_HOSTS", "")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted empty AMQP_HOSTS")
	}

	t.Setenv("AMQP_HOSTS", "localhost:5672")
	t.Setenv("REDIS_ADDR", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted empty REDIS_ADDR")
	}
}

func TestLoadRejectsRenewNotShorterThanTTL(t *testing.T) {
	setRequired(t)
	t.Setenv("BOT_LEASE_TTL", "10s")
	t.Setenv("BOT_LEASE_RENEW", "10s")

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted renew interval equal to TTL")
	}
}
