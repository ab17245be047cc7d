// Package config loads the display's YAML configuration file.
//
// The file is created with defaults on first use. Keys missing from an
// existing file are filled in from the defaults, so older files keep working
// when new sections are added. API keys may be overridden from the
// environment (optionally loaded from a .env file).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file used when none is given.
const DefaultPath = "config.yaml"

// Store holds the decoded configuration tree.
type Store struct {
	path   string
	logger *zap.Logger

	mu   sync.RWMutex
	data map[string]any
}

// Load reads the config file at path. A missing file is created with the
// defaults.
func Load(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		path:   path,
		logger: logger.Named("config"),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewFromMap builds a store that is not backed by a file. Defaults are
// merged in the same way as for a loaded file.
func NewFromMap(data map[string]any, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if data == nil {
		data = map[string]any{}
	}
	mergeDefaults(data, Defaults())
	return &Store{logger: logger.Named("config"), data: data}
}

// Path returns the backing file, or "" for an in-memory store.
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the backing file. On error the previous configuration is
// kept.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}

	s.logger.Debug("Loading config", zap.String("path", s.path))

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info("Config file not found, creating with defaults", zap.String("path", s.path))
		s.mu.Lock()
		s.data = Defaults()
		s.mu.Unlock()
		return s.Save()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	data := map[string]any{}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", s.path, err)
	}
	if data == nil {
		data = map[string]any{}
	}
	mergeDefaults(data, Defaults())

	candidate := &Store{data: data}
	if err := candidate.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.data = data
	s.mu.Unlock()

	s.logger.Info("Config loaded",
		zap.String("path", s.path),
		zap.Strings("enabled", s.EnabledPlugins()))
	return nil
}

// Save writes the current configuration back to the backing file.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()
	out, err := yaml.Marshal(s.data)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, out, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// LoadEnv loads variables from a .env file into the process environment.
// Variables that are already set win. A missing file is not an error; the
// returned bool reports whether a file was read.
func LoadEnv(path string) (bool, error) {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		return false, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return true, nil
}

// Defaults returns a fresh copy of the default configuration tree.
func Defaults() map[string]any {
	return map[string]any{
		"display": map[string]any{
			"type":       "file",
			"width":      800,
			"height":     480,
			"rotation":   0,
			"output_dir": "output",
		},
		"api_keys": map[string]any{
			"openweathermap": "",
			"finnhub":        "",
		},
		"plugins": map[string]any{
			"enabled": []any{"clock", "weather", "prayer", "stock"},
			"default": "clock",
			"settings": map[string]any{
				"clock": map[string]any{
					"show_seconds": false,
					"format_24h":   true,
					"timezone":     "UTC",
				},
				"weather": map[string]any{
					"city_id":         4791160,
					"units":           "imperial",
					"update_interval": 1800,
				},
				"prayer": map[string]any{
					"latitude":        38.903481,
					"longitude":       -77.262817,
					"method":          1,
					"update_interval": 3600,
				},
				"stock": map[string]any{
					"symbols":         []any{"AAPL", "GOOGL", "MSFT"},
					"api_key":         "",
					"update_interval": 1800,
				},
			},
		},
		"daemon": map[string]any{
			"poll_tick":       30,
			"update_interval": 300,
			"render_timeout":  120,
		},
		"web": map[string]any{
			"enabled": false,
			"host":    "0.0.0.0",
			"port":    8080,
		},
		"history": map[string]any{
			"path": "",
		},
	}
}

// mergeDefaults copies keys from defaults that dst lacks, descending into
// nested sections present on both sides.
func mergeDefaults(dst, defaults map[string]any) {
	for key, def := range defaults {
		cur, ok := dst[key]
		if !ok || cur == nil {
			dst[key] = def
			continue
		}
		curMap, curIsMap := cur.(map[string]any)
		defMap, defIsMap := def.(map[string]any)
		if curIsMap && defIsMap {
			mergeDefaults(curMap, defMap)
		}
	}
}
