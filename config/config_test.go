package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPAddr != ":8000" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.MaxIterations != 10 || cfg.ToolWorkers != 5 {
		t.Errorf("MaxIterations=%d ToolWorkers=%d", cfg.MaxIterations, cfg.ToolWorkers)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("MAX_ITERATIONS", "3")
	t.Setenv("TAVILY_API_KEY", "primary")
	t.Setenv("TAVILY_BACKUP_KEYS", "backup1, backup2,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPAddr != ":9000" || cfg.MaxIterations != 3 {
		t.Errorf("overrides not applied: %+v", cfg)
	}

	keys := cfg.TavilyKeys()
	want := []string{"primary", "backup1", "backup2"}
	if len(keys) != len(want) {
		t.Fatalf("TavilyKeys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("TavilyKeys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestTavilyKeysEmpty(t *testing.T) {
	cfg := &Config{}
	if keys := cfg.TavilyKeys(); len(keys) != 0 {
		t.Errorf("TavilyKeys = %v, want empty", keys)
	}
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{LogLevel: "debug"}
	logger, err := cfg.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.Sync()

	cfg.LogLevel = "not-a-level"
	if _, err := cfg.NewLogger(); err == nil {
		t.Error("expected error for bad level")
	}
}

func TestNewRedisClientBadURL(t *testing.T) {
	cfg := &Config{RedisURL: "://bad"}
	if _, err := cfg.NewRedisClient(); err == nil {
		t.Error("expected error for bad redis url")
	}
}
