package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, int64(100), cfg.Auction.MinIncrement)
	assert.Equal(t, 5*time.Second, cfg.Auction.LockTTL())
	assert.Equal(t, time.Second, cfg.Auction.TeamBidWindow())
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Auction.MinIncrement, cfg.Auction.MinIncrement)
}

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
log_level = "debug"

[auction]
min_increment = 500
history_limit = 5
history_max_limit = 25

[server]
port = 9090
api_key = "sekrit"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, int64(500), cfg.Auction.MinIncrement)
	assert.Equal(t, 5, cfg.Auction.HistoryLimit)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sekrit", cfg.Server.APIKey)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestEnvOverridesWinOverTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[auction]\nmin_increment = 500\n"), 0o600))

	t.Setenv("AUCTIOND_AUCTION_MIN_INCREMENT", "250")
	t.Setenv("AUCTIOND_POSTGRES_PASSWORD", "hunter2")
	t.Setenv("AUCTIOND_SERVER_PORT", "7070")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(250), cfg.Auction.MinIncrement)
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero min increment", func(c *Config) { c.Auction.MinIncrement = 0 }},
		{"negative lock ttl", func(c *Config) { c.Auction.LockTTLSeconds = -1 }},
		{"zero append attempts", func(c *Config) { c.Auction.AppendAttempts = 0 }},
		{"history max below default", func(c *Config) { c.Auction.HistoryMaxLimit = 1 }},
		{"no postgres target", func(c *Config) { c.Postgres = PostgresConfig{} }},
		{"no redis addr", func(c *Config) { c.Redis.Addr = "" }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"archive enabled without bucket", func(c *Config) { c.Archive.Enabled = true; c.Archive.Region = "auto" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
