// Package config holds the jidhr configuration: defaults, YAML file
// loading, and environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all jidhr configuration.
type Config struct {
	// SQLite storage
	Database DatabaseConfig `yaml:"database"`

	// Source adapters
	Offline      OfflineConfig    `yaml:"offline"`
	Corpus       CorpusConfig     `yaml:"corpus"`
	Dictionaries DictionaryConfig `yaml:"dictionaries"`
	Heuristics   HeuristicsConfig `yaml:"heuristics"`

	// Pipeline stages
	Consensus  ConsensusConfig  `yaml:"consensus"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Resolution ResolutionConfig `yaml:"resolution"`
	Indexing   IndexingConfig   `yaml:"indexing"`

	// HTTP surface
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// OfflineConfig configures the offline snapshot adapter.
type OfflineConfig struct {
	Enabled      bool   `yaml:"enabled"`
	SnapshotPath string `yaml:"snapshot_path"`

	// Watch reloads the table when the snapshot file changes on disk.
	Watch bool `yaml:"watch"`
}

// CorpusConfig configures the live corpus reference adapter.
type CorpusConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BaseURL   string `yaml:"base_url"`
	RateLimit string `yaml:"rate_limit"`
	Timeout   string `yaml:"timeout"`
}

// ScraperConfig configures one dictionary scraper.
type ScraperConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BaseURL   string `yaml:"base_url"`
	RateLimit string `yaml:"rate_limit"`
	Timeout   string `yaml:"timeout"`
}

// DictionaryConfig configures the dictionary scrapers.
type DictionaryConfig struct {
	Almaany ScraperConfig `yaml:"almaany"`
	Baheth  ScraperConfig `yaml:"baheth"`
}

// HeuristicsConfig configures the algorithmic extractors.
type HeuristicsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ConsensusConfig configures the trust-weighted vote.
type ConsensusConfig struct {
	OfflineWeight     float64 `yaml:"offline_weight"`
	ReferenceWeight   float64 `yaml:"reference_weight"`
	DictionaryWeight  float64 `yaml:"dictionary_weight"`
	AlgorithmicWeight float64 `yaml:"algorithmic_weight"`

	TopTierFloor float64 `yaml:"top_tier_floor"`
	PairBoost    float64 `yaml:"pair_boost"`
	CrowdBoost   float64 `yaml:"crowd_boost"`
}

// ExtractionConfig configures the orchestrator and batch runner.
type ExtractionConfig struct {
	// Tier2Timeout bounds the whole network fan-out for one word.
	Tier2Timeout string `yaml:"tier2_timeout"`

	Retries      int    `yaml:"retries"`
	RetryBackoff string `yaml:"retry_backoff"`

	Workers   int `yaml:"workers"`
	ChunkSize int `yaml:"chunk_size"`
}

// ResolutionConfig configures the discrepancy resolver.
type ResolutionConfig struct {
	VerifyThreshold    float64 `yaml:"verify_threshold"`
	ReviewThreshold    float64 `yaml:"review_threshold"`
	MinAgreeingSources int     `yaml:"min_agreeing_sources"`
}

// IndexingConfig configures the reference indexer.
type IndexingConfig struct {
	CompressThreshold int `yaml:"compress_threshold"`
	MaxRefs           int `yaml:"max_refs"`
	RelatedDistance   int `yaml:"related_distance"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "data/jidhr.db",
		},

		Offline: OfflineConfig{
			Enabled:      true,
			SnapshotPath: "data/roots_snapshot.json",
			Watch:        false,
		},

		Corpus: CorpusConfig{
			Enabled:   true,
			BaseURL:   "https://corpus.quran.com",
			RateLimit: "2s",
			Timeout:   "30s",
		},

		Dictionaries: DictionaryConfig{
			Almaany: ScraperConfig{
				Enabled:   true,
				BaseURL:   "https://www.almaany.com/ar/dict/ar-ar",
				RateLimit: "1500ms",
				Timeout:   "30s",
			},
			Baheth: ScraperConfig{
				Enabled:   true,
				BaseURL:   "https://www.baheth.info",
				RateLimit: "1500ms",
				Timeout:   "30s",
			},
		},

		Heuristics: HeuristicsConfig{
			Enabled: true,
		},

		Consensus: ConsensusConfig{
			OfflineWeight:     10,
			ReferenceWeight:   10,
			DictionaryWeight:  5,
			AlgorithmicWeight: 3,
			TopTierFloor:      0.95,
		},

		Extraction: ExtractionConfig{
			Tier2Timeout: "45s",
			Retries:      3,
			RetryBackoff: "1s",
			Workers:      4,
			ChunkSize:    50,
		},

		Resolution: ResolutionConfig{
			VerifyThreshold:    0.8,
			ReviewThreshold:    0.5,
			MinAgreeingSources: 2,
		},

		Indexing: IndexingConfig{
			CompressThreshold: 400,
			MaxRefs:           100,
			RelatedDistance:   1,
		},

		Server: ServerConfig{
			Addr:            ":8091",
			ReadTimeout:     "15s",
			WriteTimeout:    "60s",
			ShutdownTimeout: "10s",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file, merging it over the defaults.
// A missing file is not an error; the defaults apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("JIDHR_DB"); path != "" {
		c.Database.Path = path
	}
	if path := os.Getenv("JIDHR_SNAPSHOT"); path != "" {
		c.Offline.SnapshotPath = path
	}
	if url := os.Getenv("JIDHR_CORPUS_URL"); url != "" {
		c.Corpus.BaseURL = url
	}
	if addr := os.Getenv("JIDHR_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if level := os.Getenv("JIDHR_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

func duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// GetCorpusRateLimit returns the corpus request interval as a duration.
func (c *Config) GetCorpusRateLimit() time.Duration {
	return duration(c.Corpus.RateLimit, 2*time.Second)
}

// GetCorpusTimeout returns the corpus request timeout as a duration.
func (c *Config) GetCorpusTimeout() time.Duration {
	return duration(c.Corpus.Timeout, 30*time.Second)
}

// GetTier2Timeout returns the network fan-out timeout as a duration.
func (c *Config) GetTier2Timeout() time.Duration {
	return duration(c.Extraction.Tier2Timeout, 45*time.Second)
}

// GetRetryBackoff returns the base retry backoff as a duration.
func (c *Config) GetRetryBackoff() time.Duration {
	return duration(c.Extraction.RetryBackoff, time.Second)
}

// GetReadTimeout returns the server read timeout as a duration.
func (c *Config) GetReadTimeout() time.Duration {
	return duration(c.Server.ReadTimeout, 15*time.Second)
}

// GetWriteTimeout returns the server write timeout as a duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return duration(c.Server.WriteTimeout, 60*time.Second)
}

// GetShutdownTimeout returns the graceful shutdown timeout as a duration.
func (c *Config) GetShutdownTimeout() time.Duration {
	return duration(c.Server.ShutdownTimeout, 10*time.Second)
}

// GetRateLimit returns a scraper's request interval as a duration.
func (s ScraperConfig) GetRateLimit() time.Duration {
	return duration(s.RateLimit, 1500*time.Millisecond)
}

// GetTimeout returns a scraper's request timeout as a duration.
func (s ScraperConfig) GetTimeout() time.Duration {
	return duration(s.Timeout, 30*time.Second)
}

// ValidLogLevels lists the accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path not configured")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server address not configured")
	}

	if c.Resolution.ReviewThreshold >= c.Resolution.VerifyThreshold {
		return fmt.Errorf("review threshold %.2f must be below verify threshold %.2f",
			c.Resolution.ReviewThreshold, c.Resolution.VerifyThreshold)
	}
	if c.Consensus.TopTierFloor < 0 || c.Consensus.TopTierFloor > 1 {
		return fmt.Errorf("top tier floor %.2f must be within [0, 1]", c.Consensus.TopTierFloor)
	}
	for name, w := range map[string]float64{
		"offline":     c.Consensus.OfflineWeight,
		"reference":   c.Consensus.ReferenceWeight,
		"dictionary":  c.Consensus.DictionaryWeight,
		"algorithmic": c.Consensus.AlgorithmicWeight,
	} {
		if w <= 0 {
			return fmt.Errorf("%s weight must be positive", name)
		}
	}

	if c.Extraction.Workers <= 0 {
		return fmt.Errorf("extraction workers must be positive")
	}

	valid := false
	for _, l := range ValidLogLevels {
		if c.Logging.Level == l {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}
	return nil
}
