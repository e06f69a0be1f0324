// Package config defines the top-level configuration for the auction service
// and provides validation helpers.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by AUCTIOND_* environment
// variables.
type Config struct {
	Auction  AuctionConfig  `toml:"auction"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	LogLevel string         `toml:"log_level"`
}

// AuctionConfig holds the bid-acceptance engine parameters.
type AuctionConfig struct {
	// MinIncrement is the smallest amount, in currency minor units, by which
	// a new bid must exceed the current highest bid.
	MinIncrement int64 `toml:"min_increment"`

	// LockTTLSeconds bounds how long a per-lot lock may be held before it
	// expires on its own.
	LockTTLSeconds int `toml:"lock_ttl_seconds"`

	// LockAttempts is how many times PlaceBid retries acquiring a contended
	// per-lot lock before giving up.
	LockAttempts int `toml:"lock_attempts"`

	// AppendAttempts is how many times PlaceBid re-reads and re-validates
	// after a conditional-append conflict before giving up.
	AppendAttempts int `toml:"append_attempts"`

	// TeamBidLimit/TeamBidWindowSeconds throttle bid submissions per team.
	// A zero limit disables the throttle.
	TeamBidLimit         int `toml:"team_bid_limit"`
	TeamBidWindowSeconds int `toml:"team_bid_window_seconds"`

	// HistoryLimit and HistoryMaxLimit bound the bid history endpoint.
	HistoryLimit    int `toml:"history_limit"`
	HistoryMaxLimit int `toml:"history_max_limit"`

	// LiveLimit and LiveMaxLimit bound the live lots endpoint.
	LiveLimit    int `toml:"live_limit"`
	LiveMaxLimit int `toml:"live_max_limit"`
}

// LockTTL returns the per-lot lock TTL as a duration.
func (c AuctionConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// TeamBidWindow returns the per-team throttle window as a duration.
func (c AuctionConfig) TeamBidWindow() time.Duration {
	return time.Duration(c.TeamBidWindowSeconds) * time.Second
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ArchiveConfig holds the S3-compatible object storage parameters for
// closed-lot ledger snapshots. Archiving is skipped when Enabled is false.
type ArchiveConfig struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"` // empty disables authentication

	// RateLimit/RateWindowSeconds throttle API requests per client IP.
	// A zero limit disables the middleware.
	RateLimit         int `toml:"rate_limit"`
	RateWindowSeconds int `toml:"rate_window_seconds"`
}

// RateWindow returns the API throttle window as a duration.
func (c ServerConfig) RateWindow() time.Duration {
	return time.Duration(c.RateWindowSeconds) * time.Second
}

// Defaults returns a Config populated with documented default values.
func Defaults() Config {
	return Config{
		Auction: AuctionConfig{
			MinIncrement:         100,
			LockTTLSeconds:       5,
			LockAttempts:         20,
			AppendAttempts:       3,
			TeamBidLimit:         10,
			TeamBidWindowSeconds: 1,
			HistoryLimit:         20,
			HistoryMaxLimit:      50,
			LiveLimit:            10,
			LiveMaxLimit:         20,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "hitnscore",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Server: ServerConfig{
			Port:              8080,
			RateLimit:         100,
			RateWindowSeconds: 1,
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Auction.MinIncrement <= 0 {
		return fmt.Errorf("config: auction.min_increment must be positive, got %d", c.Auction.MinIncrement)
	}
	if c.Auction.LockTTLSeconds <= 0 {
		return fmt.Errorf("config: auction.lock_ttl_seconds must be positive, got %d", c.Auction.LockTTLSeconds)
	}
	if c.Auction.LockAttempts <= 0 {
		return fmt.Errorf("config: auction.lock_attempts must be positive, got %d", c.Auction.LockAttempts)
	}
	if c.Auction.AppendAttempts <= 0 {
		return fmt.Errorf("config: auction.append_attempts must be positive, got %d", c.Auction.AppendAttempts)
	}
	if c.Auction.HistoryMaxLimit < c.Auction.HistoryLimit {
		return fmt.Errorf("config: auction.history_max_limit %d below history_limit %d",
			c.Auction.HistoryMaxLimit, c.Auction.HistoryLimit)
	}
	if c.Postgres.DSN == "" && (c.Postgres.Host == "" || c.Postgres.Database == "" || c.Postgres.User == "") {
		return fmt.Errorf("config: postgres requires either dsn or host/database/user")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Archive.Enabled {
		if c.Archive.Bucket == "" || c.Archive.Region == "" {
			return fmt.Errorf("config: archive requires bucket and region when enabled")
		}
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}
