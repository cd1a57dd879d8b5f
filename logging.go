package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"inventoryview/config"
)

const (
	logTimestampLayout = "2006/01/02 15:04:05"
	logFileDateLayout  = "02-Jan-2006"
	maxPartialLogBytes = 16 * 1024
)

type lineSink interface {
	WriteLine(line string, now time.Time)
	Close() error
}

// writerSink prints log lines to the console.
type writerSink struct {
	w             io.Writer
	withTimestamp bool
}

func (s *writerSink) WriteLine(line string, now time.Time) {
	if s.withTimestamp {
		line = formatLogTimestamp(now) + " " + line
	}
	_, _ = io.WriteString(s.w, line+"\n")
}

func (s *writerSink) Close() error { return nil }

// dailyLogFile appends to <dir>/<DD-Mon-YYYY>.log, switching files at UTC
// midnight and deleting files older than the retention window.
type dailyLogFile struct {
	mu            sync.Mutex
	dir           string
	retentionDays int
	date          string
	file          *os.File
	lastErrorAt   time.Time
}

func newDailyLogFile(dir string, retentionDays int) (*dailyLogFile, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("log directory is empty")
	}
	if retentionDays <= 0 {
		retentionDays = 7
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %q: %w", dir, err)
	}
	if err := cleanupOldLogs(dir, time.Now().UTC(), retentionDays); err != nil {
		fmt.Fprintf(os.Stderr, "Logging: cleanup failed for %s: %v\n", dir, err)
	}
	return &dailyLogFile{dir: dir, retentionDays: retentionDays}, nil
}

func (d *dailyLogFile) WriteLine(line string, now time.Time) {
	now = now.UTC()
	d.mu.Lock()
	defer d.mu.Unlock()
	if date := now.Format(logFileDateLayout); d.file == nil || d.date != date {
		d.openLocked(date, now)
	}
	if d.file == nil {
		return
	}
	if _, err := d.file.WriteString(formatLogTimestamp(now) + " " + line + "\n"); err != nil {
		d.reportLocked(now, fmt.Errorf("write failed: %w", err))
	}
}

// Path is the file currently written to, empty before the first line.
func (d *dailyLogFile) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return ""
	}
	return d.file.Name()
}

func (d *dailyLogFile) openLocked(date string, now time.Time) {
	if d.file != nil {
		_ = d.file.Close()
		d.file = nil
	}
	path := filepath.Join(d.dir, logFileNameForDate(now))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		d.reportLocked(now, fmt.Errorf("open failed for %s: %w", path, err))
		return
	}
	d.file = f
	d.date = date
	if err := cleanupOldLogs(d.dir, now, d.retentionDays); err != nil {
		d.reportLocked(now, fmt.Errorf("cleanup failed: %w", err))
	}
}

// reportLocked prints file errors to stderr at most once a minute.
func (d *dailyLogFile) reportLocked(now time.Time, err error) {
	if !d.lastErrorAt.IsZero() && now.Sub(d.lastErrorAt) < time.Minute {
		return
	}
	d.lastErrorAt = now
	fmt.Fprintf(os.Stderr, "Logging: %v\n", err)
}

func (d *dailyLogFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	d.date = ""
	return err
}

// logFanout is the log.Logger output: it splits writes into lines and hands
// each to the console and file sinks. The console sink can be muted while a
// full-screen view owns the terminal.
type logFanout struct {
	mu      sync.Mutex
	partial []byte
	console lineSink
	muted   bool
	file    lineSink
}

func newLogFanout(console, file lineSink) *logFanout {
	return &logFanout{console: console, file: file}
}

func setupLogging(cfg config.LoggingConfig, console io.Writer) (*logFanout, error) {
	fanout := newLogFanout(&writerSink{w: console, withTimestamp: true}, nil)
	if !cfg.Enabled {
		return fanout, nil
	}
	file, err := newDailyLogFile(cfg.Dir, cfg.RetentionDays)
	if err != nil {
		return fanout, err
	}
	fanout.mu.Lock()
	fanout.file = file
	fanout.mu.Unlock()
	return fanout, nil
}

// MuteConsole stops or resumes console output; the file sink keeps writing.
func (f *logFanout) MuteConsole(muted bool) {
	f.mu.Lock()
	f.muted = muted
	f.mu.Unlock()
}

func (f *logFanout) Write(p []byte) (int, error) {
	f.mu.Lock()
	f.partial = append(f.partial, p...)
	var lines []string
	for {
		idx := bytes.IndexByte(f.partial, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, string(bytes.TrimRight(f.partial[:idx], "\r")))
		f.partial = f.partial[idx+1:]
	}
	if len(f.partial) > maxPartialLogBytes {
		lines = append(lines, string(f.partial))
		f.partial = nil
	}
	console, file := f.console, f.file
	if f.muted {
		console = nil
	}
	f.mu.Unlock()

	now := time.Now().UTC()
	for _, line := range lines {
		if console != nil {
			console.WriteLine(line, now)
		}
		if file != nil {
			file.WriteLine(line, now)
		}
	}
	return len(p), nil
}

func (f *logFanout) Close() error {
	f.mu.Lock()
	file := f.file
	f.file = nil
	f.mu.Unlock()
	if file != nil {
		return file.Close()
	}
	return nil
}

func formatLogTimestamp(now time.Time) string {
	return now.UTC().Format(logTimestampLayout)
}

func logFileNameForDate(now time.Time) string {
	return now.UTC().Format(logFileDateLayout) + ".log"
}

func parseLogFileDate(name string) (time.Time, bool) {
	if filepath.Ext(name) != ".log" {
		return time.Time{}, false
	}
	parsed, err := time.ParseInLocation(logFileDateLayout, strings.TrimSuffix(name, ".log"), time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

func cleanupOldLogs(dir string, now time.Time, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	y, m, d := now.UTC().Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(retentionDays - 1))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if date, ok := parseLogFileDate(entry.Name()); ok && date.Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
	return nil
}
