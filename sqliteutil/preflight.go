// Package sqliteutil checks an inventory database before it is opened for
// real, moving an unreadable file aside so a scan can still be saved.
package sqliteutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var errEmptyPath = errors.New("sqliteutil: empty database path")

// Result reports what Preflight found.
type Result struct {
	Fresh          bool   // No database existed yet.
	Healthy        bool   // quick_check passed.
	QuarantinePath string // Where a broken database was moved, if it was.
	Elapsed        time.Duration
	CheckError     error
}

// Preflight runs a bounded quick_check against path. A database that fails the
// check is renamed, sidecars included, to <path>.bad-<timestamp> and the
// result reports the new location. Only failures to move the file are errors.
func Preflight(path string, timeout time.Duration) (Result, error) {
	var res Result
	if strings.TrimSpace(path) == "" {
		return res, errEmptyPath
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	start := time.Now()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		res.Fresh = true
		res.Healthy = true
		return res, os.MkdirAll(filepath.Dir(path), 0o755)
	}

	res.CheckError = quickCheck(path, timeout)
	res.Elapsed = time.Since(start)
	if res.CheckError == nil {
		res.Healthy = true
		return res, nil
	}

	dest, err := quarantine(path, time.Now().UTC())
	if err != nil {
		return res, fmt.Errorf("sqliteutil: quarantine %s: %w (quick_check: %v)", path, err, res.CheckError)
	}
	res.QuarantinePath = dest
	log.Printf("Persist: database %s failed quick_check (%v); moved to %s", path, res.CheckError, dest)
	return res, nil
}

func quickCheck(path string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	rows, err := db.QueryContext(ctx, "pragma quick_check")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return err
		}
		if strings.TrimSpace(status) != "ok" {
			return fmt.Errorf("quick_check reported %q", status)
		}
	}
	return rows.Err()
}

func quarantine(path string, now time.Time) (string, error) {
	suffix := ".bad-" + now.Format("20060102T150405Z")
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return "", err
		}
		if err := os.Rename(p, p+suffix); err != nil {
			return "", err
		}
	}
	return path + suffix, nil
}
