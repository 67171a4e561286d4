package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10.0, cfg.Consensus.OfflineWeight)
	assert.Equal(t, 0.95, cfg.Consensus.TopTierFloor)
	assert.Equal(t, 2*time.Second, cfg.GetCorpusRateLimit())
	assert.Equal(t, 45*time.Second, cfg.GetTier2Timeout())
	assert.Equal(t, 1500*time.Millisecond, cfg.Dictionaries.Almaany.GetRateLimit())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Addr, cfg.Server.Addr)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jidhr.yaml")
	body := `
database:
  path: /tmp/other.db
corpus:
  rate_limit: 5s
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", cfg.Database.Path)
	assert.Equal(t, 5*time.Second, cfg.GetCorpusRateLimit())
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched sections keep their defaults.
	assert.Equal(t, ":8091", cfg.Server.Addr)
	assert.True(t, cfg.Offline.Enabled)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("corpus: ["), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("JIDHR_DB", "/tmp/env.db")
	t.Setenv("JIDHR_ADDR", ":9999")
	t.Setenv("JIDHR_LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.db", cfg.Database.Path)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "jidhr.yaml")
	cfg := DefaultConfig()
	cfg.Server.Addr = ":7777"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7777", loaded.Server.Addr)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"inverted thresholds", func(c *Config) { c.Resolution.ReviewThreshold = 0.9 }},
		{"floor out of range", func(c *Config) { c.Consensus.TopTierFloor = 1.5 }},
		{"zero weight", func(c *Config) { c.Consensus.DictionaryWeight = 0 }},
		{"no workers", func(c *Config) { c.Extraction.Workers = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurationFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Corpus.RateLimit = "not-a-duration"
	assert.Equal(t, 2*time.Second, cfg.GetCorpusRateLimit())

	cfg.Extraction.Tier2Timeout = ""
	assert.Equal(t, 45*time.Second, cfg.GetTier2Timeout())
}
