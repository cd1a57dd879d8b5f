package sqliteutil

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPreflightFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "inventory.db")
	res, err := Preflight(path, time.Second)
	if err != nil {
		t.Fatalf("preflight failed: %v", err)
	}
	if !res.Fresh || !res.Healthy {
		t.Fatalf("expected fresh healthy result, got %+v", res)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("expected parent directory to be created: %v", err)
	}
}

func TestPreflightHealthy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, err := db.Exec("create table t (id integer)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	db.Close()

	res, err := Preflight(path, time.Second)
	if err != nil {
		t.Fatalf("preflight failed: %v", err)
	}
	if !res.Healthy || res.QuarantinePath != "" {
		t.Fatalf("expected healthy preflight, got %+v", res)
	}
}

func TestPreflightQuarantinesCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.db")
	if err := os.WriteFile(path, []byte("not a sqlite database"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	if err := os.WriteFile(path+"-journal", []byte("sidecar"), 0o644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}

	res, err := Preflight(path, time.Second)
	if err != nil {
		t.Fatalf("expected quarantine, got error: %v", err)
	}
	if res.Healthy || res.CheckError == nil {
		t.Fatalf("expected failed check, got %+v", res)
	}
	if !strings.Contains(res.QuarantinePath, ".bad-") {
		t.Fatalf("quarantine path not suffixed as expected: %s", res.QuarantinePath)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected original db to be renamed, stat err=%v", err)
	}
	if _, err := os.Stat(path + "-journal"); !os.IsNotExist(err) {
		t.Fatalf("expected sidecar to move with the database, stat err=%v", err)
	}
}
