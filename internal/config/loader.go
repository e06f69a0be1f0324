package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AUCTIOND_* environment variable overrides, and
// returns the final Config. A missing file is not an error: the defaults plus
// environment overrides are used instead. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	// Load .env if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known AUCTIOND_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Auction ──
	setInt64(&cfg.Auction.MinIncrement, "AUCTIOND_AUCTION_MIN_INCREMENT")
	setInt(&cfg.Auction.LockTTLSeconds, "AUCTIOND_AUCTION_LOCK_TTL_SECONDS")
	setInt(&cfg.Auction.LockAttempts, "AUCTIOND_AUCTION_LOCK_ATTEMPTS")
	setInt(&cfg.Auction.AppendAttempts, "AUCTIOND_AUCTION_APPEND_ATTEMPTS")
	setInt(&cfg.Auction.TeamBidLimit, "AUCTIOND_AUCTION_TEAM_BID_LIMIT")
	setInt(&cfg.Auction.TeamBidWindowSeconds, "AUCTIOND_AUCTION_TEAM_BID_WINDOW_SECONDS")
	setInt(&cfg.Auction.HistoryLimit, "AUCTIOND_AUCTION_HISTORY_LIMIT")
	setInt(&cfg.Auction.HistoryMaxLimit, "AUCTIOND_AUCTION_HISTORY_MAX_LIMIT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "AUCTIOND_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "AUCTIOND_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AUCTIOND_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AUCTIOND_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AUCTIOND_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "AUCTIOND_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AUCTIOND_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AUCTIOND_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AUCTIOND_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AUCTIOND_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "AUCTIOND_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AUCTIOND_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AUCTIOND_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AUCTIOND_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AUCTIOND_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AUCTIOND_REDIS_TLS_ENABLED")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "AUCTIOND_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "AUCTIOND_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "AUCTIOND_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "AUCTIOND_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "AUCTIOND_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "AUCTIOND_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.UseSSL, "AUCTIOND_ARCHIVE_USE_SSL")
	setBool(&cfg.Archive.ForcePathStyle, "AUCTIOND_ARCHIVE_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "AUCTIOND_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "AUCTIOND_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "AUCTIOND_SERVER_RATE_LIMIT")
	setInt(&cfg.Server.RateWindowSeconds, "AUCTIOND_SERVER_RATE_WINDOW_SECONDS")

	setStr(&cfg.LogLevel, "AUCTIOND_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
