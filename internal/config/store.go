package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"infodisplay/pkg/plugin"

	"go.uber.org/multierr"
)

// DisplayConfig is the "display" section.
type DisplayConfig struct {
	Type      string
	Width     int
	Height    int
	Rotation  int
	OutputDir string
}

// DaemonConfig is the "daemon" section. Values in the file are seconds.
type DaemonConfig struct {
	PollTick       time.Duration
	UpdateInterval time.Duration
	// RenderTimeout of zero disables the per-render bound.
	RenderTimeout time.Duration
}

// WebConfig is the "web" section.
type WebConfig struct {
	Enabled bool
	Host    string
	Port    int
}

// Addr returns host:port for the admin listener.
func (w WebConfig) Addr() string {
	return net.JoinHostPort(w.Host, strconv.Itoa(w.Port))
}

// Get walks nested sections and returns the value at the path.
func (s *Store) Get(keys ...string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cur any = s.data
	for _, key := range keys {
		section, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = section[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Section returns a shallow copy of the section at the path, or an empty map.
func (s *Store) Section(keys ...string) plugin.Settings {
	v, ok := s.Get(keys...)
	if !ok {
		return plugin.Settings{}
	}
	section, ok := v.(map[string]any)
	if !ok {
		return plugin.Settings{}
	}
	return plugin.Settings(section).Clone()
}

// Set stores value at the path, creating intermediate sections.
func (s *Store) Set(value any, keys ...string) {
	if len(keys) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.data
	for _, key := range keys[:len(keys)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
	cur[keys[len(keys)-1]] = value
}

// EnabledPlugins returns plugins.enabled in configured order.
func (s *Store) EnabledPlugins() []string {
	return s.Section("plugins").Strings("enabled", nil)
}

// DefaultPlugin returns plugins.default.
func (s *Store) DefaultPlugin() string {
	return s.Section("plugins").String("default", "")
}

// PluginSettings returns the settings sub-tree for a plugin.
func (s *Store) PluginSettings(name string) plugin.Settings {
	return s.Section("plugins", "settings", name)
}

// APIKey returns the key for an upstream service. The environment variable
// <SERVICE>_API_KEY takes precedence over api_keys.<service>.
func (s *Store) APIKey(service string) string {
	if v := os.Getenv(strings.ToUpper(service) + "_API_KEY"); v != "" {
		return v
	}
	return s.Section("api_keys").String(service, "")
}

// Display returns the typed display section.
func (s *Store) Display() DisplayConfig {
	d := s.Section("display")
	return DisplayConfig{
		Type:      d.String("type", "file"),
		Width:     d.Int("width", 800),
		Height:    d.Int("height", 480),
		Rotation:  d.Int("rotation", 0),
		OutputDir: d.String("output_dir", "output"),
	}
}

// Daemon returns the typed daemon section.
func (s *Store) Daemon() DaemonConfig {
	d := s.Section("daemon")
	cfg := DaemonConfig{
		PollTick:       d.Seconds("poll_tick", 30*time.Second),
		UpdateInterval: d.Seconds("update_interval", 300*time.Second),
	}
	if d.Float("render_timeout", 0) > 0 {
		cfg.RenderTimeout = d.Seconds("render_timeout", 0)
	}
	return cfg
}

// Web returns the typed web section.
func (s *Store) Web() WebConfig {
	w := s.Section("web")
	return WebConfig{
		Enabled: w.Bool("enabled", false),
		Host:    w.String("host", "0.0.0.0"),
		Port:    w.Int("port", 8080),
	}
}

// HistoryPath returns the run journal database path, or "" when disabled.
func (s *Store) HistoryPath() string {
	return s.Section("history").String("path", "")
}

// Validate checks the structural parts of the configuration. All problems
// are reported together.
func (s *Store) Validate() error {
	var err error

	d := s.Section("display")
	if d.Int("width", 0) <= 0 || d.Int("height", 0) <= 0 {
		err = multierr.Append(err, fmt.Errorf("display: width and height must be positive"))
	}
	switch r := d.Int("rotation", 0); r {
	case 0, 90, 180, 270:
	default:
		err = multierr.Append(err, fmt.Errorf("display: unsupported rotation %d", r))
	}

	seen := map[string]bool{}
	for _, name := range s.EnabledPlugins() {
		if name == "" {
			err = multierr.Append(err, fmt.Errorf("plugins.enabled: empty plugin name"))
			continue
		}
		if seen[name] {
			err = multierr.Append(err, fmt.Errorf("plugins.enabled: %q listed twice", name))
		}
		seen[name] = true
	}

	daemon := s.Section("daemon")
	if daemon.Float("poll_tick", 0) <= 0 {
		err = multierr.Append(err, fmt.Errorf("daemon: poll_tick must be positive"))
	}
	if daemon.Float("update_interval", 0) <= 0 {
		err = multierr.Append(err, fmt.Errorf("daemon: update_interval must be positive"))
	}
	if daemon.Float("render_timeout", 0) < 0 {
		err = multierr.Append(err, fmt.Errorf("daemon: render_timeout must not be negative"))
	}

	if port := s.Section("web").Int("port", 0); port <= 0 || port > 65535 {
		err = multierr.Append(err, fmt.Errorf("web: invalid port %d", port))
	}

	return err
}
