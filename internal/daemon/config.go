// Package daemon holds the process configuration: a TOML file with
// nested sections, with built-in defaults for every field so a missing
// or partial file still yields a runnable process.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/waveline-app/waveline/internal/domain"
)

// Config is the full daemon configuration.
type Config struct {
	API         APIConfig         `toml:"api"`
	Remote      RemoteConfig      `toml:"remote"`
	Storage     StorageConfig     `toml:"storage"`
	Sync        SyncConfig        `toml:"sync"`
	Cache       CacheConfig       `toml:"cache"`
	Progression ProgressionConfig `toml:"progression"`
}

// APIConfig configures the local HTTP API.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
}

// RemoteConfig configures the remote document service.
type RemoteConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// StorageConfig configures the durable local store.
type StorageConfig struct {
	Path string `toml:"path"` // SQLite file; empty means in-memory
}

// SyncConfig configures the sync engine and reachability debounce.
type SyncConfig struct {
	ActionTimeout string `toml:"action_timeout"` // per-action remote budget
	MaxAttempts   int    `toml:"max_attempts"`   // before dead-lettering
	Debounce      string `toml:"debounce"`       // reconnect debounce
	RetryInterval string `toml:"retry_interval"` // periodic drain while pending
}

// CacheConfig configures cache TTLs.
type CacheConfig struct {
	FeedTTL     string `toml:"feed_ttl"`
	ProfileTTL  string `toml:"profile_ttl"`
	MessagesTTL string `toml:"messages_ttl"`
}

// ProgressionConfig points at the level-table and achievement-catalog
// files. Empty paths use the built-in defaults.
type ProgressionConfig struct {
	LevelTableFile  string `toml:"level_table_file"`
	AchievementFile string `toml:"achievement_file"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    8710,
			Metrics: true,
		},
		Storage: StorageConfig{
			Path: defaultStorePath(),
		},
		Sync: SyncConfig{
			ActionTimeout: "15s",
			MaxAttempts:   8,
			Debounce:      "750ms",
			RetryInterval: "1m",
		},
		Cache: CacheConfig{
			FeedTTL:     "5m",
			ProfileTTL:  "10m",
			MessagesTTL: "2m",
		},
	}
}

// LoadConfig reads the TOML file at path, overlaying the defaults. A
// missing file is not an error; the defaults apply.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Duration parses a config duration string, falling back when it is
// empty or malformed.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Addr returns the host:port the API listens on.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "waveline.db"
	}
	return filepath.Join(home, ".waveline", "waveline.db")
}

// ─── Progression Files ──────────────────────────────────────────────────────

type levelTableFile struct {
	Levels []domain.LevelThreshold `toml:"levels"`
}

type achievementFile struct {
	Achievements []domain.Achievement `toml:"achievements"`
}

// LoadLevelTable reads a level table from TOML, or returns the built-in
// curve when path is empty. Invalid tables are an error, never silently
// replaced: a wrong curve visibly corrupts every user's level.
func LoadLevelTable(path string) (domain.LevelTable, error) {
	if path == "" {
		return domain.DefaultLevelTable(), nil
	}

	var f levelTableFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("parse level table %s: %w", path, err)
	}
	table := domain.LevelTable(f.Levels)
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("level table %s: %w", path, err)
	}
	return table, nil
}

// LoadAchievementCatalog reads an achievement catalog from TOML, or
// returns the built-in catalog when path is empty.
func LoadAchievementCatalog(path string) (domain.AchievementCatalog, error) {
	if path == "" {
		return domain.DefaultAchievementCatalog(), nil
	}

	var f achievementFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("parse achievement catalog %s: %w", path, err)
	}
	catalog := domain.AchievementCatalog(f.Achievements)
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("achievement catalog %s: %w", path, err)
	}
	return catalog, nil
}
