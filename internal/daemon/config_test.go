package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8710 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8710)
	}
	if !cfg.API.Metrics {
		t.Error("API.Metrics should be true by default")
	}
	if cfg.Sync.MaxAttempts != 8 {
		t.Errorf("Sync.MaxAttempts = %d, want 8", cfg.Sync.MaxAttempts)
	}
	if cfg.Sync.ActionTimeout != "15s" {
		t.Errorf("Sync.ActionTimeout = %q, want %q", cfg.Sync.ActionTimeout, "15s")
	}
	if cfg.Cache.FeedTTL != "5m" {
		t.Errorf("Cache.FeedTTL = %q, want %q", cfg.Cache.FeedTTL, "5m")
	}
	if cfg.Progression.LevelTableFile != "" {
		t.Errorf("Progression.LevelTableFile = %q, want built-in default", cfg.Progression.LevelTableFile)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Port != DefaultConfig().API.Port {
		t.Errorf("port = %d, want default", cfg.API.Port)
	}
}

func TestLoadConfig_PartialOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[api]
port = 9000

[sync]
max_attempts = 3
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.API.Port)
	}
	if cfg.Sync.MaxAttempts != 3 {
		t.Errorf("max attempts = %d, want 3", cfg.Sync.MaxAttempts)
	}
	// Untouched sections keep their defaults.
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("host = %q, want default", cfg.API.Host)
	}
	if cfg.Cache.FeedTTL != "5m" {
		t.Errorf("feed ttl = %q, want default", cfg.Cache.FeedTTL)
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"15s", 15 * time.Second},
		{"750ms", 750 * time.Millisecond},
		{"", time.Minute},        // empty falls back
		{"garbage", time.Minute}, // malformed falls back
		{"-5s", time.Minute},     // non-positive falls back
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Duration(tt.input, time.Minute); got != tt.want {
				t.Errorf("Duration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadLevelTable(t *testing.T) {
	t.Run("empty path uses built-in", func(t *testing.T) {
		table, err := LoadLevelTable("")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if table.MaxLevel() != 10 {
			t.Errorf("max level = %d, want 10", table.MaxLevel())
		}
	})

	t.Run("custom table", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "levels.toml")
		data := `
[[levels]]
level = 1
xp_required = 0

[[levels]]
level = 2
xp_required = 100
`
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}

		table, err := LoadLevelTable(path)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if table.LevelFor(100) != 2 {
			t.Errorf("LevelFor(100) = %d, want 2", table.LevelFor(100))
		}
	})

	t.Run("invalid table rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "levels.toml")
		data := `
[[levels]]
level = 1
xp_required = 50
`
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := LoadLevelTable(path); err == nil {
			t.Error("table not starting at 0 XP must be rejected")
		}
	})
}

func TestLoadAchievementCatalog(t *testing.T) {
	t.Run("empty path uses built-in", func(t *testing.T) {
		catalog, err := LoadAchievementCatalog("")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if _, ok := catalog.ByID("first_post"); !ok {
			t.Error("built-in catalog missing first_post")
		}
	})

	t.Run("duplicate ids rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "achievements.toml")
		data := `
[[achievements]]
id = "dup"
name = "One"
metric = "posts"
threshold = 1
reward_xp = 10

[[achievements]]
id = "dup"
name = "Two"
metric = "posts"
threshold = 2
reward_xp = 20
`
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := LoadAchievementCatalog(path); err == nil {
			t.Error("duplicate achievement ids must be rejected")
		}
	})
}
