// Package config holds the engine's runtime configuration: one typed struct
// loaded from YAML, with defaults applied by Default() so a zero-config
// start always works.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level engine configuration.
type Config struct {
	// DataDir is where the embedded store keeps its database file.
	DataDir string `yaml:"data_dir"`

	MVCC  MVCCConfig  `yaml:"mvcc"`
	Lock  LockConfig  `yaml:"lock"`
	Index IndexConfig `yaml:"index"`
	BFS   BFSConfig   `yaml:"bfs"`
}

// MVCCConfig controls version-chain garbage collection.
type MVCCConfig struct {
	MinVersions       int           `yaml:"min_versions"`
	RetentionDuration time.Duration `yaml:"retention_duration"`
	GCInterval        time.Duration `yaml:"gc_interval"`
}

// LockConfig controls the lock manager's wait and deadlock behavior.
type LockConfig struct {
	DefaultTimeout          time.Duration `yaml:"default_timeout"`
	DeadlockCheckInterval   time.Duration `yaml:"deadlock_check_interval"`
	EnableDeadlockDetection bool          `yaml:"enable_deadlock_detection"`
	MaxWaitQueueLength      int           `yaml:"max_wait_queue_length"`
}

// IndexConfig controls the index query cache. TTL and the entry bound are
// independently toggleable: a zero TTL disables time-based expiry, a zero
// MaxEntries disables the LRU size bound.
type IndexConfig struct {
	CacheEnabled    bool          `yaml:"cache_enabled"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	CacheMaxEntries int           `yaml:"cache_max_entries"`
}

// BFSConfig caps traversal work: the default step/result bounds applied when
// a caller leaves them unset.
type BFSConfig struct {
	DefaultMaxSteps int `yaml:"default_max_steps"`
	DefaultLimit    int `yaml:"default_limit"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		DataDir: "./data",
		MVCC: MVCCConfig{
			MinVersions:       1,
			RetentionDuration: 5 * time.Minute,
			GCInterval:        30 * time.Second,
		},
		Lock: LockConfig{
			DefaultTimeout:          30 * time.Second,
			DeadlockCheckInterval:   5 * time.Second,
			EnableDeadlockDetection: true,
			MaxWaitQueueLength:      1000,
		},
		Index: IndexConfig{
			CacheEnabled:    true,
			CacheTTL:        time.Minute,
			CacheMaxEntries: 10000,
		},
		BFS: BFSConfig{
			DefaultMaxSteps: 5,
			DefaultLimit:    10000,
		},
	}
}

// Load reads a YAML config file and overlays it on the defaults, so a file
// only needs to name the settings it changes.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
