package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// Config holds all configurable keytape settings.
type Config struct {
	ChunkDurationSeconds      int `json:"chunkDurationSeconds"`
	MaxSessionDurationSeconds int `json:"maxSessionDurationSeconds"`
	AutoSaveIntervalSeconds   int `json:"autoSaveIntervalSeconds"`
	EarlyStopPollIntervalMs   int `json:"earlyStopPollIntervalMs"`

	CaptureBackend string `json:"captureBackend"` // "sox" | "portaudio"
	SoxBin         string `json:"soxBin"`         // override sox binary lookup
	SampleRate     int    `json:"sampleRate"`
	Channels       int    `json:"channels"`
	BitDepth       int    `json:"bitDepth"`

	RecordingsDir      string `json:"recordingsDir"` // empty → <data dir>/recordings
	KeepChunks         bool   `json:"keepChunks"`    // keep chunk files after assembly
	HistoryEnabled     *bool  `json:"historyEnabled"`
	CleanupMaxAgeHours int    `json:"cleanupMaxAgeHours"`
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		ChunkDurationSeconds:      30,
		MaxSessionDurationSeconds: 3600,
		AutoSaveIntervalSeconds:   300,
		EarlyStopPollIntervalMs:   100,
		CaptureBackend:            "sox",
		SoxBin:                    "sox",
		SampleRate:                16000,
		Channels:                  1,
		BitDepth:                  16,
		CleanupMaxAgeHours:        24,
	}
}

// ChunkDuration returns the chunk duration as a time.Duration.
func (c Config) ChunkDuration() time.Duration {
	return time.Duration(c.ChunkDurationSeconds) * time.Second
}

// MaxSessionDuration returns the session cap as a time.Duration.
func (c Config) MaxSessionDuration() time.Duration {
	return time.Duration(c.MaxSessionDurationSeconds) * time.Second
}

// AutoSaveInterval returns the auto-save interval as a time.Duration.
func (c Config) AutoSaveInterval() time.Duration {
	return time.Duration(c.AutoSaveIntervalSeconds) * time.Second
}

// EarlyStopPoll returns the early-stop polling interval as a time.Duration.
func (c Config) EarlyStopPoll() time.Duration {
	return time.Duration(c.EarlyStopPollIntervalMs) * time.Millisecond
}

// HistoryOn reports whether session history recording is enabled.
// Unset means enabled.
func (c Config) HistoryOn() bool {
	return c.HistoryEnabled == nil || *c.HistoryEnabled
}

// LoadGlobal reads the global config file at
// $XDG_CONFIG_HOME/keytape/config.json (or ~/.config/keytape/config.json).
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".config")
	}
	path := filepath.Join(base, "keytape", "config.json")
	return loadFile(path, true)
}

// LoadFile reads an explicitly named config file (the --config flag).
// Unlike LoadGlobal, a missing file is an error.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// loadFile reads and parses a JSON config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines the global config and an override config, with the override
// taking precedence. Missing keys fall back to global, then defaults.
// Numeric fields are only adopted when positive, so malformed values degrade
// to the defaults instead of breaking the recording loop.
func Merge(global, override *Config) Config {
	result := Defaults()
	for _, src := range []*Config{global, override} {
		if src == nil {
			continue
		}
		if src.ChunkDurationSeconds > 0 {
			result.ChunkDurationSeconds = src.ChunkDurationSeconds
		}
		if src.MaxSessionDurationSeconds > 0 {
			result.MaxSessionDurationSeconds = src.MaxSessionDurationSeconds
		}
		if src.AutoSaveIntervalSeconds > 0 {
			result.AutoSaveIntervalSeconds = src.AutoSaveIntervalSeconds
		}
		if src.EarlyStopPollIntervalMs > 0 {
			result.EarlyStopPollIntervalMs = src.EarlyStopPollIntervalMs
		}
		if src.CaptureBackend != "" {
			result.CaptureBackend = src.CaptureBackend
		}
		if src.SoxBin != "" {
			result.SoxBin = src.SoxBin
		}
		if src.SampleRate > 0 {
			result.SampleRate = src.SampleRate
		}
		if src.Channels > 0 {
			result.Channels = src.Channels
		}
		if src.BitDepth > 0 {
			result.BitDepth = src.BitDepth
		}
		if src.RecordingsDir != "" {
			result.RecordingsDir = src.RecordingsDir
		}
		if src.KeepChunks {
			result.KeepChunks = true
		}
		if src.HistoryEnabled != nil {
			result.HistoryEnabled = src.HistoryEnabled
		}
		if src.CleanupMaxAgeHours > 0 {
			result.CleanupMaxAgeHours = src.CleanupMaxAgeHours
		}
	}
	return result
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
