package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds worker configuration.
type Config struct {
	DatabaseURL   string
	MigrationsDir string
	ServerAddr    string

	AMQPHosts    string
	AMQPUser     string
	AMQPPassword string
	AMQPVHost    string
	Exchange     string

	RailURL  string
	VenueURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LeasePrefix   string
	CachePrefix   string
	CacheTTL      time.Duration

	BotLeaseKey        string
	BotLeaseTTL        time.Duration
	BotLeaseRenew      time.Duration
	BotStepInterval    time.Duration
	ReconcileInterval  time.Duration
	SweepInterval      time.Duration
	PendingOrderExpiry time.Duration

	ReplayDeadLetters bool
}

// Load reads configuration from environment. Broker and cache settings
// have no safe defaults and fail the boot when missing; a malformed
// duration or boolean is fatal rather than silently replaced by its
// default.
func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "settleflow")
		pass := getenv("POSTGRES_PASSWORD", "settleflow_pass")
		db := getenv("POSTGRES_DB", "settleflow")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	amqpHosts := os.Getenv("AMQP_HOSTS")
	if amqpHosts == "" {
		return nil, fmt.Errorf("AMQP_HOSTS is required")
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}

	var parseErr error
	duration := func(key string, def time.Duration) time.Duration {
		val := os.Getenv(key)
		if val == "" {
			return def
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			if parseErr == nil {
				parseErr = fmt.Errorf("invalid %s: %q is not a duration", key, val)
			}
			return def
		}
		return d
	}
	boolean := func(key string, def bool) bool {
		val := os.Getenv(key)
		if val == "" {
			return def
		}
		b, err := strconv.ParseBool(val)
		if err != nil {
			if parseErr == nil {
				parseErr = fmt.Errorf("invalid %s: %q is not a boolean", key, val)
			}
			return def
		}
		return b
	}

	cfg := &Config{
		DatabaseURL:   dsn,
		MigrationsDir: getenv("MIGRATIONS_DIR", "internal/migrations"),
		ServerAddr:    getenv("SERVER_ADDR", "0.0.0.0:8080"),

		AMQPHosts:    amqpHosts,
		AMQPUser:     getenv("AMQP_USER", "guest"),
		AMQPPassword: getenv("AMQP_PASSWORD", "guest"),
		AMQPVHost:    getenv("AMQP_VHOST", "/"),
		Exchange:     getenv("AMQP_EXCHANGE", "settlement"),

		RailURL:  getenv("RAIL_URL", "http://localhost:9090"),
		VenueURL: getenv("VENUE_URL", "http://localhost:9091"),

		RedisAddr:     redisAddr,
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       0,
		LeasePrefix:   getenv("LEASE_PREFIX", "settleflow:lease"),
		CachePrefix:   getenv("CACHE_PREFIX", "settleflow:operation"),
		CacheTTL:      duration("CACHE_TTL", 30*time.Second),

		BotLeaseKey:        getenv("BOT_LEASE_KEY", "bots"),
		BotLeaseTTL:        duration("BOT_LEASE_TTL", 30*time.Second),
		BotLeaseRenew:      duration("BOT_LEASE_RENEW", 10*time.Second),
		BotStepInterval:    duration("BOT_STEP_INTERVAL", 5*time.Second),
		ReconcileInterval:  duration("RECONCILE_INTERVAL", 15*time.Second),
		SweepInterval:      duration("SWEEP_INTERVAL", time.Minute),
		PendingOrderExpiry: duration("PENDING_ORDER_EXPIRY", 10*time.Minute),

		ReplayDeadLetters: boolean("REPLAY_DEAD_LETTERS", false),
	}
	if parseErr != nil {
		return nil, parseErr
	}

	if cfg.BotLeaseRenew >= cfg.BotLeaseTTL {
		return nil, fmt.Errorf("BOT_LEASE_RENEW must be shorter than BOT_LEASE_TTL")
	}
	return cfg, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}
