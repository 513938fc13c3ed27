package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CBK_* environment variable overrides, and
// returns the final Config. The caller should invoke Config.Validate()
// after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CBK_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file. Per-exchange credentials follow CBK_<EXCHANGE>_API_KEY naming.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.LogLevel, "CBK_LOG_LEVEL")
	setStr(&cfg.StartTS, "CBK_START_TS")

	setStr(&cfg.Storage.DuckDBPath, "CBK_DUCKDB_PATH")
	setStr(&cfg.Storage.CuratedDir, "CBK_CURATED_DIR")

	setDuration(&cfg.Sync.Overlap, "CBK_SYNC_OVERLAP")
	setInt(&cfg.Sync.PageSize, "CBK_SYNC_PAGE_SIZE")
	setInt(&cfg.Sync.PageLimit, "CBK_SYNC_PAGE_LIMIT")
	setInt(&cfg.Sync.Parallelism, "CBK_SYNC_PARALLELISM")
	setInt(&cfg.Sync.MaxRetries, "CBK_SYNC_MAX_RETRIES")
	setDuration(&cfg.Sync.RetryBackoff, "CBK_SYNC_RETRY_BACKOFF")

	for i := range cfg.Exchanges {
		prefix := "CBK_" + strings.ToUpper(cfg.Exchanges[i].Name)
		setStr(&cfg.Exchanges[i].APIKey, prefix+"_API_KEY")
		setStr(&cfg.Exchanges[i].APISecret, prefix+"_API_SECRET")
		setStr(&cfg.Exchanges[i].BaseURL, prefix+"_BASE_URL")
	}

	setStr(&cfg.Onchain.APIKey, "CBK_DEBANK_API_KEY")
	setStr(&cfg.Onchain.BaseURL, "CBK_DEBANK_BASE_URL")
	setStringSlice(&cfg.Onchain.Chains, "CBK_CHAINS")
	setStringSlice(&cfg.Onchain.Addresses, "CBK_EVM_ADDRESSES")
	setBool(&cfg.Onchain.ScamFilter, "CBK_SCAM_FILTER")

	setBool(&cfg.S3.Enabled, "CBK_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CBK_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CBK_S3_REGION")
	setStr(&cfg.S3.Bucket, "CBK_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CBK_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CBK_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CBK_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CBK_S3_FORCE_PATH_STYLE")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
