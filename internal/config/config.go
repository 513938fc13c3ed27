// Package config defines the bookkeeper configuration: a TOML file merged
// over built-in defaults, with CBK_* environment variable overrides for
// secrets and deploy-time tuning.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration.
type Config struct {
	LogLevel string `toml:"log_level"`

	// StartTS is the global lower bound for first-run fetches, RFC 3339.
	StartTS string `toml:"start_ts"`

	Storage   StorageConfig    `toml:"storage"`
	Sync      SyncConfig       `toml:"sync"`
	Exchanges []ExchangeConfig `toml:"exchanges"`
	Onchain   OnchainConfig    `toml:"onchain"`
	S3        S3Config         `toml:"s3"`
}

// StorageConfig locates the embedded database and the curated artifacts.
type StorageConfig struct {
	DuckDBPath string `toml:"duckdb_path"`
	CuratedDir string `toml:"curated_dir"`
}

// SyncConfig tunes the incremental-sync engine.
type SyncConfig struct {
	// Overlap is re-fetched before each watermark to absorb records that
	// finalize late.
	Overlap      duration `toml:"overlap"`
	PageSize     int      `toml:"page_size"`
	PageLimit    int      `toml:"page_limit"`
	Parallelism  int      `toml:"parallelism"`
	MaxRetries   int      `toml:"max_retries"`
	RetryBackoff duration `toml:"retry_backoff"`
}

// ExchangeConfig configures one centralized exchange source.
type ExchangeConfig struct {
	Name      string `toml:"name"`
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
	Account   string `toml:"account"`

	// ProbeCurrencies is the allow-list iterated for deposit/withdrawal
	// history on exchanges that require per-currency queries.
	ProbeCurrencies []string `toml:"probe_currencies"`
}

// OnchainConfig configures the on-chain activity source.
type OnchainConfig struct {
	Provider   string            `toml:"provider"`
	BaseURL    string            `toml:"base_url"`
	APIKey     string            `toml:"api_key"`
	Chains     []string          `toml:"chains"`
	Addresses  []string          `toml:"addresses"`
	ScamFilter bool              `toml:"scam_filter"`
	RPCURLs    map[string]string `toml:"rpc_urls"`
}

// S3Config configures the optional artifact archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding ("1h", "30s").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration the TOML file is merged over.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		StartTS:  "2021-01-01T00:00:00Z",
		Storage: StorageConfig{
			DuckDBPath: "data/cryptobookkeeper.duckdb",
			CuratedDir: "data/curated",
		},
		Sync: SyncConfig{
			Overlap:      duration{time.Hour},
			PageSize:     100,
			PageLimit:    50,
			Parallelism:  1,
			MaxRetries:   3,
			RetryBackoff: duration{2 * time.Second},
		},
		Onchain: OnchainConfig{
			Provider:   "debank",
			Chains:     []string{"eth"},
			ScamFilter: true,
		},
	}
}

// Start parses the configured global start timestamp.
func (c *Config) Start() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, c.StartTS)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: parse start_ts %q: %w", c.StartTS, err)
	}
	return t.UTC(), nil
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if _, err := c.Start(); err != nil {
		return err
	}
	if c.Storage.DuckDBPath == "" {
		return fmt.Errorf("config: storage.duckdb_path is required")
	}
	if c.Storage.CuratedDir == "" {
		return fmt.Errorf("config: storage.curated_dir is required")
	}
	if c.Sync.Overlap.Duration < 0 {
		return fmt.Errorf("config: sync.overlap must not be negative")
	}

	seen := make(map[string]bool, len(c.Exchanges))
	for _, ex := range c.Exchanges {
		if ex.Name == "" {
			return fmt.Errorf("config: exchange with empty name")
		}
		if seen[ex.Name] {
			return fmt.Errorf("config: duplicate exchange %q", ex.Name)
		}
		seen[ex.Name] = true
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" || c.S3.Region == "" {
			return fmt.Errorf("config: s3.bucket and s3.region are required when s3 is enabled")
		}
	}
	return nil
}
