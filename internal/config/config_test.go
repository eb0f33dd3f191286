package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// TestConfigMergePrecedence checks the merge precedence rule for every
// field: override beats global beats defaults, and unset (zero) values
// never clobber a lower layer.
func TestConfigMergePrecedence(t *testing.T) {
	configGen := rapid.Custom(func(t *rapid.T) *Config {
		cfg := &Config{}
		if rapid.Bool().Draw(t, "hasChunkDuration") {
			cfg.ChunkDurationSeconds = rapid.IntRange(1, 600).Draw(t, "chunkDuration")
		}
		if rapid.Bool().Draw(t, "hasMaxSession") {
			cfg.MaxSessionDurationSeconds = rapid.IntRange(1, 86400).Draw(t, "maxSession")
		}
		if rapid.Bool().Draw(t, "hasAutoSave") {
			cfg.AutoSaveIntervalSeconds = rapid.IntRange(1, 3600).Draw(t, "autoSave")
		}
		if rapid.Bool().Draw(t, "hasPoll") {
			cfg.EarlyStopPollIntervalMs = rapid.IntRange(1, 1000).Draw(t, "poll")
		}
		if rapid.Bool().Draw(t, "hasBackend") {
			cfg.CaptureBackend = rapid.SampledFrom([]string{"sox", "portaudio"}).Draw(t, "backend")
		}
		if rapid.Bool().Draw(t, "hasRecordingsDir") {
			cfg.RecordingsDir = rapid.StringMatching(`/[a-z0-9/_.-]{1,20}`).Draw(t, "recordingsDir")
		}
		return cfg
	})

	rapid.Check(t, func(t *rapid.T) {
		global := configGen.Draw(t, "global")
		override := configGen.Draw(t, "override")

		merged := Merge(global, override)
		defaults := Defaults()

		checkIntField(t, "ChunkDurationSeconds",
			global.ChunkDurationSeconds, override.ChunkDurationSeconds,
			defaults.ChunkDurationSeconds, merged.ChunkDurationSeconds)
		checkIntField(t, "MaxSessionDurationSeconds",
			global.MaxSessionDurationSeconds, override.MaxSessionDurationSeconds,
			defaults.MaxSessionDurationSeconds, merged.MaxSessionDurationSeconds)
		checkIntField(t, "AutoSaveIntervalSeconds",
			global.AutoSaveIntervalSeconds, override.AutoSaveIntervalSeconds,
			defaults.AutoSaveIntervalSeconds, merged.AutoSaveIntervalSeconds)
		checkIntField(t, "EarlyStopPollIntervalMs",
			global.EarlyStopPollIntervalMs, override.EarlyStopPollIntervalMs,
			defaults.EarlyStopPollIntervalMs, merged.EarlyStopPollIntervalMs)
		checkStringField(t, "CaptureBackend",
			global.CaptureBackend, override.CaptureBackend,
			defaults.CaptureBackend, merged.CaptureBackend)
		checkStringField(t, "RecordingsDir",
			global.RecordingsDir, override.RecordingsDir,
			defaults.RecordingsDir, merged.RecordingsDir)
	})
}

// checkIntField asserts the merge precedence rule for a single int field:
//   - override set (>0)  → merged == override
//   - override unset, global set → merged == global
//   - both unset → merged == defaultVal
func checkIntField(t *rapid.T, name string, globalVal, overrideVal, defaultVal, mergedVal int) {
	t.Helper()
	switch {
	case overrideVal > 0:
		if mergedVal != overrideVal {
			t.Fatalf("%s: both set — expected override value %d, got %d", name, overrideVal, mergedVal)
		}
	case globalVal > 0:
		if mergedVal != globalVal {
			t.Fatalf("%s: only global set — expected global value %d, got %d", name, globalVal, mergedVal)
		}
	default:
		if mergedVal != defaultVal {
			t.Fatalf("%s: neither set — expected default %d, got %d", name, defaultVal, mergedVal)
		}
	}
}

func checkStringField(t *rapid.T, name, globalVal, overrideVal, defaultVal, mergedVal string) {
	t.Helper()
	switch {
	case overrideVal != "":
		if mergedVal != overrideVal {
			t.Fatalf("%s: both set — expected override value %q, got %q", name, overrideVal, mergedVal)
		}
	case globalVal != "":
		if mergedVal != globalVal {
			t.Fatalf("%s: only global set — expected global value %q, got %q", name, globalVal, mergedVal)
		}
	default:
		if mergedVal != defaultVal {
			t.Fatalf("%s: neither set — expected default %q, got %q", name, defaultVal, mergedVal)
		}
	}
}

// --- Unit tests for defaults and file loading ---

func TestDefaultsValues(t *testing.T) {
	d := Defaults()
	if d.ChunkDurationSeconds != 30 {
		t.Errorf("ChunkDurationSeconds: want 30, got %d", d.ChunkDurationSeconds)
	}
	if d.MaxSessionDurationSeconds != 3600 {
		t.Errorf("MaxSessionDurationSeconds: want 3600, got %d", d.MaxSessionDurationSeconds)
	}
	if d.AutoSaveIntervalSeconds != 300 {
		t.Errorf("AutoSaveIntervalSeconds: want 300, got %d", d.AutoSaveIntervalSeconds)
	}
	if d.EarlyStopPollIntervalMs != 100 {
		t.Errorf("EarlyStopPollIntervalMs: want 100, got %d", d.EarlyStopPollIntervalMs)
	}
	if d.CaptureBackend != "sox" {
		t.Errorf("CaptureBackend: want %q, got %q", "sox", d.CaptureBackend)
	}
	if !d.HistoryOn() {
		t.Error("HistoryOn: want true by default")
	}
	if d.EarlyStopPoll() != 100*time.Millisecond {
		t.Errorf("EarlyStopPoll: want 100ms, got %v", d.EarlyStopPoll())
	}
	if d.ChunkDuration() != 30*time.Second {
		t.Errorf("ChunkDuration: want 30s, got %v", d.ChunkDuration())
	}
}

func TestLoadGlobalMissingFileReturnsDefaults(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)

	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config, got nil")
	}
	defaults := Defaults()
	if cfg.ChunkDurationSeconds != defaults.ChunkDurationSeconds {
		t.Errorf("ChunkDurationSeconds: want %d, got %d", defaults.ChunkDurationSeconds, cfg.ChunkDurationSeconds)
	}
	if cfg.CaptureBackend != defaults.CaptureBackend {
		t.Errorf("CaptureBackend: want %q, got %q", defaults.CaptureBackend, cfg.CaptureBackend)
	}
}

func TestLoadFileMissingFileIsError(t *testing.T) {
	tmp := t.TempDir()
	_, err := LoadFile(filepath.Join(tmp, "absent.json"))
	if err == nil {
		t.Fatal("expected an error for a missing explicit config file, got nil")
	}
}

func TestLoadGlobalParseError(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)

	cfgDir := filepath.Join(tmp, "keytape")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte("{invalid json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadGlobal()
	if err == nil {
		t.Fatal("expected an error for invalid JSON, got nil")
	}
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("expected *ParseError, got %T: %v", err, err)
	}
}

func TestLoadGlobalReadsValues(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)

	cfgDir := filepath.Join(tmp, "keytape")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	body := `{"chunkDurationSeconds": 5, "captureBackend": "portaudio", "historyEnabled": false}`
	if err := os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatalf("LoadGlobal: %v", err)
	}
	if cfg.ChunkDurationSeconds != 5 {
		t.Errorf("ChunkDurationSeconds: want 5, got %d", cfg.ChunkDurationSeconds)
	}
	if cfg.CaptureBackend != "portaudio" {
		t.Errorf("CaptureBackend: want %q, got %q", "portaudio", cfg.CaptureBackend)
	}
	merged := Merge(cfg, nil)
	if merged.HistoryOn() {
		t.Error("HistoryOn: want false after explicit historyEnabled=false")
	}
}
