package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventoryview.yaml")
	writeFile(t, path, `session:
  host: "game.example.net"
  port: 4000
  character_name: "Alice"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Session.Transport != "native" {
		t.Fatalf("expected native transport by default, got %q", cfg.Session.Transport)
	}
	if cfg.Storage.Backend != "yaml" || cfg.Storage.Path != "data/inventoryview.yaml" {
		t.Fatalf("unexpected storage defaults %+v", cfg.Storage)
	}
	if cfg.UI.Mode != "tview" {
		t.Fatalf("expected tview ui by default, got %q", cfg.UI.Mode)
	}
	if cfg.Session.DialTimeoutSeconds != 30 || cfg.Logging.RetentionDays != 7 {
		t.Fatalf("expected timeout and retention defaults, got %d and %d",
			cfg.Session.DialTimeoutSeconds, cfg.Logging.RetentionDays)
	}
	if cfg.LoadedFrom != path {
		t.Fatalf("expected LoadedFrom=%s, got %s", path, cfg.LoadedFrom)
	}
}

func TestStoragePathFollowsBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	writeFile(t, path, "storage:\n  backend: \"PLIST\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Storage.Backend != "plist" || cfg.Storage.Path != "data/InventoryView.plist" {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
}

func TestLoadDirectoryMergesFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app.yaml"), `session:
  host: "game.example.net"
  character_name: "Alice"
storage:
  backend: sqlite
`)
	writeFile(t, filepath.Join(dir, "local.yaml"), `session:
  guild: "Trader"
storage:
  path: "/tmp/inv.db"
`)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Session.Host != "game.example.net" || cfg.Session.CharacterName != "Alice" {
		t.Fatalf("expected session keys from app.yaml, got %+v", cfg.Session)
	}
	if cfg.Session.Guild != "Trader" {
		t.Fatalf("expected guild merged from local.yaml, got %q", cfg.Session.Guild)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.Path != "/tmp/inv.db" {
		t.Fatalf("expected merged storage, got %+v", cfg.Storage)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"transport": "session:\n  transport: \"ssh\"\n",
		"backend":   "storage:\n  backend: \"xml\"\n",
		"ui":        "ui:\n  mode: \"gtk\"\n",
		"mqtt":      "notify:\n  mqtt:\n    enabled: true\n",
		"qos":       "notify:\n  mqtt:\n    enabled: true\n    broker: b\n    topic: t\n    qos: 3\n",
		"yaml":      "session: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.yaml")
			writeFile(t, path, body)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing config")
	}
}

func TestMQTTPortDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	writeFile(t, path, "notify:\n  mqtt:\n    enabled: true\n    broker: localhost\n    topic: inventoryview/scans\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Notify.MQTT.Port != 1883 {
		t.Fatalf("expected default MQTT port 1883, got %d", cfg.Notify.MQTT.Port)
	}
}
