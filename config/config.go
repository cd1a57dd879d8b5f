// Package config loads the YAML configuration. A path may name a single file
// or a directory; every *.yaml file in a directory is merged in name order,
// later files overriding earlier ones key by key.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when INVENTORYVIEW_CONFIG is unset.
const DefaultPath = "data/config/inventoryview.yaml"

// EnvPath names the environment variable that overrides DefaultPath.
const EnvPath = "INVENTORYVIEW_CONFIG"

// Config is the complete program configuration.
type Config struct {
	Session SessionConfig `yaml:"session"`
	Storage StorageConfig `yaml:"storage"`
	Notify  NotifyConfig  `yaml:"notify"`
	Logging LoggingConfig `yaml:"logging"`
	UI      UIConfig      `yaml:"ui"`

	LoadedFrom string `yaml:"-"`
}

// SessionConfig describes the game connection and the character on it.
type SessionConfig struct {
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	Transport          string   `yaml:"transport"` // native or ziutek
	CharacterName      string   `yaml:"character_name"`
	Guild              string   `yaml:"guild"`
	Login              []string `yaml:"login"`
	LoginDelayMS       int      `yaml:"login_delay_ms"`
	DialTimeoutSeconds int      `yaml:"dial_timeout_seconds"`
	ReadTimeoutSeconds int      `yaml:"read_timeout_seconds"`
	DisableReconnect   bool     `yaml:"disable_reconnect"`
}

// StorageConfig selects where scans are saved.
type StorageConfig struct {
	Backend string `yaml:"backend"` // yaml, plist, sqlite or pebble
	Path    string `yaml:"path"`
}

// NotifyConfig holds optional scan-complete notifications.
type NotifyConfig struct {
	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig configures the MQTT publisher.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      int    `yaml:"qos"`
	Retain   bool   `yaml:"retain"`
}

// LoggingConfig controls the daily log files written next to the console.
type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// UIConfig picks how "open" presents the store.
type UIConfig struct {
	Mode        string `yaml:"mode"` // tview or text
	EnableMouse bool   `yaml:"enable_mouse"`
}

var defaultStoragePaths = map[string]string{
	"yaml":   "data/inventoryview.yaml",
	"plist":  "data/InventoryView.plist",
	"sqlite": "data/inventoryview.db",
	"pebble": "data/inventoryview.pebble",
}

// Load reads path (file or directory), applies defaults and validates.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var merged map[string]any
	if info.IsDir() {
		merged, err = loadDir(path)
	} else {
		merged, err = loadFile(path)
	}
	if err != nil {
		return nil, err
	}

	// Round-trip the merged tree through YAML so struct decoding applies.
	data, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode merged config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.LoadedFrom = path
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return out, nil
}

func loadDir(dir string) (map[string]any, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no YAML files in config directory %s", dir)
	}
	sort.Strings(names)
	merged := map[string]any{}
	for _, name := range names {
		next, err := loadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		mergeMaps(merged, next)
	}
	return merged, nil
}

// mergeMaps copies src into dst, descending into nested mappings.
func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]any)
		dstMap, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			mergeMaps(dstMap, srcMap)
			continue
		}
		dst[k] = v
	}
}

func (c *Config) normalize() error {
	s := &c.Session
	s.Host = strings.TrimSpace(s.Host)
	s.Transport = strings.ToLower(strings.TrimSpace(s.Transport))
	switch s.Transport {
	case "":
		s.Transport = "native"
	case "native", "ziutek":
	default:
		return fmt.Errorf("unsupported session.transport %q (want native or ziutek)", s.Transport)
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("session.port %d out of range", s.Port)
	}
	if s.DialTimeoutSeconds <= 0 {
		s.DialTimeoutSeconds = 30
	}
	if s.ReadTimeoutSeconds <= 0 {
		s.ReadTimeoutSeconds = 1800
	}
	if s.LoginDelayMS < 0 {
		s.LoginDelayMS = 0
	}

	st := &c.Storage
	st.Backend = strings.ToLower(strings.TrimSpace(st.Backend))
	if st.Backend == "" {
		st.Backend = "yaml"
	}
	def, ok := defaultStoragePaths[st.Backend]
	if !ok {
		return fmt.Errorf("unsupported storage.backend %q", st.Backend)
	}
	if strings.TrimSpace(st.Path) == "" {
		st.Path = def
	}

	m := &c.Notify.MQTT
	if m.Enabled {
		if strings.TrimSpace(m.Broker) == "" || strings.TrimSpace(m.Topic) == "" {
			return errors.New("notify.mqtt requires broker and topic when enabled")
		}
		if m.Port == 0 {
			m.Port = 1883
		}
		if m.QoS < 0 || m.QoS > 2 {
			return fmt.Errorf("notify.mqtt.qos %d out of range", m.QoS)
		}
	}

	if c.Logging.Dir == "" {
		c.Logging.Dir = "data/logs"
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = 7
	}

	c.UI.Mode = strings.ToLower(strings.TrimSpace(c.UI.Mode))
	switch c.UI.Mode {
	case "":
		c.UI.Mode = "tview"
	case "tview", "text":
	default:
		return fmt.Errorf("unsupported ui.mode %q (want tview or text)", c.UI.Mode)
	}
	return nil
}

// Print displays the configuration summary at startup.
func (c *Config) Print() {
	s := c.Session
	if s.Host != "" {
		fmt.Printf("Session: %s:%d (%s transport, reconnect=%t)\n", s.Host, s.Port, s.Transport, !s.DisableReconnect)
	} else {
		fmt.Printf("Session: offline (no session.host)\n")
	}
	if s.CharacterName != "" {
		guild := s.Guild
		if guild == "" {
			guild = "none"
		}
		fmt.Printf("Character: %s (guild: %s)\n", s.CharacterName, guild)
	}
	fmt.Printf("Storage: %s at %s\n", c.Storage.Backend, c.Storage.Path)
	if c.Notify.MQTT.Enabled {
		fmt.Printf("MQTT notify: %s:%d (topic: %s)\n", c.Notify.MQTT.Broker, c.Notify.MQTT.Port, c.Notify.MQTT.Topic)
	}
	if c.Logging.Enabled {
		fmt.Printf("Logging: %s (keep %d days)\n", c.Logging.Dir, c.Logging.RetentionDays)
	}
	fmt.Printf("UI: %s\n", c.UI.Mode)
}
