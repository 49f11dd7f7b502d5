package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Components map[string]string `mapstructure:"components"`
}

// CacheConfig configures the metadata cache.
type CacheConfig struct {
	FileCapacity     int `mapstructure:"file_capacity"`
	ListingCapacity  int `mapstructure:"listing_capacity"`
	FileTTLSeconds   int `mapstructure:"file_ttl_seconds"`
	FreshnessSeconds int `mapstructure:"freshness_seconds"`
}

// VerifyConfig configures post-copy verification.
type VerifyConfig struct {
	// HashThreshold is the size below which full content hashing is
	// performed; size equality suffices above it. 0 hashes everything.
	HashThreshold string `mapstructure:"hash_threshold"`
}

// ConflictConfig configures automatic conflict resolution.
type ConflictConfig struct {
	OverwriteNewer    bool `mapstructure:"overwrite_newer"`
	OverwriteLarger   bool `mapstructure:"overwrite_larger"`
	BackupOnOverwrite bool `mapstructure:"backup_on_overwrite"`
	MaxRenameAttempts int  `mapstructure:"max_rename_attempts"`
}

// BatchConfig configures batch execution strategy selection.
type BatchConfig struct {
	Workers           int `mapstructure:"workers"`
	SequentialLimit   int `mapstructure:"sequential_limit"`
	ParallelThreshold int `mapstructure:"parallel_threshold"`
	ProbeItems        int `mapstructure:"probe_items"`
	ProbeFastMillis   int `mapstructure:"probe_fast_millis"`
}

// TrashConfig configures recoverable deletion.
type TrashConfig struct {
	// Dir is the fallback trash directory. Empty uses the XDG data dir.
	Dir string `mapstructure:"dir"`

	// UseSystem tries the platform trash facility before the fallback dir.
	UseSystem bool `mapstructure:"use_system"`
}

// Config represents the application configuration.
type Config struct {
	ChunkSize string         `mapstructure:"chunk_size"`
	Verify    VerifyConfig   `mapstructure:"verify"`
	Cache     CacheConfig    `mapstructure:"cache"`
	Conflict  ConflictConfig `mapstructure:"conflict"`
	Batch     BatchConfig    `mapstructure:"batch"`
	Trash     TrashConfig    `mapstructure:"trash"`
	Logging   LoggingConfig  `mapstructure:"logging"`
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/haul/config.yaml
//   - $HOME/.config/haul/config.yaml
//
// Environment variables are prefixed with HAUL_ (e.g., HAUL_CHUNK_SIZE).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		v.AddConfigPath(filepath.Join(xdgConfigHome, "haul"))
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	v.AddConfigPath(filepath.Join(homeDir, ".config", "haul"))

	v.SetEnvPrefix("HAUL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is acceptable; we use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.HasPrefix(cfg.Trash.Dir, "~") {
		cfg.Trash.Dir = filepath.Join(homeDir, cfg.Trash.Dir[1:])
	}

	return &cfg, nil
}

// Default returns the built-in configuration without consulting any
// config file or environment variables.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Unmarshal of pure defaults cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("chunk_size", DefaultChunkSize)

	v.SetDefault("verify.hash_threshold", DefaultHashThreshold)

	v.SetDefault("cache.file_capacity", DefaultFileCacheCapacity)
	v.SetDefault("cache.listing_capacity", DefaultListingCacheCapacity)
	v.SetDefault("cache.file_ttl_seconds", DefaultFileTTLSeconds)
	v.SetDefault("cache.freshness_seconds", DefaultListingFreshnessSeconds)

	v.SetDefault("conflict.overwrite_newer", true)
	v.SetDefault("conflict.overwrite_larger", true)
	v.SetDefault("conflict.backup_on_overwrite", true)
	v.SetDefault("conflict.max_rename_attempts", DefaultMaxRenameAttempts)

	v.SetDefault("batch.workers", DefaultWorkers)
	v.SetDefault("batch.sequential_limit", DefaultSequentialLimit)
	v.SetDefault("batch.parallel_threshold", DefaultParallelThreshold)
	v.SetDefault("batch.probe_items", DefaultProbeItems)
	v.SetDefault("batch.probe_fast_millis", DefaultProbeFastMillis)

	v.SetDefault("trash.dir", "")
	v.SetDefault("trash.use_system", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.components", map[string]string{
		"fileops": "info",
		"batch":   "info",
		"archive": "info",
		"cache":   "warn",
		"watcher": "warn",
	})
}

// DataDir returns the haul data directory under XDG data home.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "haul")
}

// DefaultTrashDir returns the fallback trash directory used when the
// system trash is unavailable or disabled.
func DefaultTrashDir() string {
	return filepath.Join(DataDir(), "trash", "files")
}
