package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotationConfig controls size-based rotation of the devboxctl log file.
type RotationConfig struct {
	// MaxSizeMB rotates the file once it would exceed this many megabytes.
	// 0 disables rotation.
	MaxSizeMB int
	// MaxBackups is how many rotated files to retain. 0 keeps none.
	MaxBackups int
	// Compress gzips rotated files.
	Compress bool
}

// DefaultRotationConfig returns the rotation settings used when the config
// file does not override them.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSizeMB:  10,
		MaxBackups: 3,
		Compress:   false,
	}
}

// backupStamp is the suffix format for rotated files. Lexicographic order
// of the suffix matches chronological order, so pruning can sort names.
// Nanosecond precision keeps back-to-back rotations from colliding.
const backupStamp = "20060102T150405.000000000"

// RotatingWriter is an io.Writer that moves the log file aside once it grows
// past the configured size. Rotated files carry a timestamp suffix
// (devboxctl.log.20260829T101530.012345678, plus .gz when compressing).
// Safe for concurrent use.
type RotatingWriter struct {
	mu    sync.Mutex
	path  string
	limit int64
	keep  int
	zip   bool
	f     *os.File
	size  int64
}

// NewRotatingWriter opens (or creates) the log file at path. Writes append;
// an existing file keeps its contents and counts toward the size limit.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	rw := &RotatingWriter{
		path:  path,
		limit: int64(cfg.MaxSizeMB) << 20,
		keep:  cfg.MaxBackups,
		zip:   cfg.Compress,
	}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

// open creates the parent directory if needed and opens the live file for
// appending. Caller holds the mutex.
func (rw *RotatingWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(rw.path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(rw.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	rw.f = f
	rw.size = info.Size()
	return nil
}

func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.f == nil {
		return 0, fmt.Errorf("log file is closed")
	}
	if rw.limit > 0 && rw.size+int64(len(p)) > rw.limit {
		if err := rw.rotate(); err != nil {
			// The live file stays writable on rotation failure so no
			// entries are dropped; surface the problem on stderr.
			fmt.Fprintf(os.Stderr, "Warning: log rotation failed: %v\n", err)
		}
	}
	n, err := rw.f.Write(p)
	rw.size += int64(n)
	return n, err
}

// rotate moves the live file to a timestamped backup and reopens a fresh
// one. Caller holds the mutex.
func (rw *RotatingWriter) rotate() error {
	if err := rw.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	if err := rw.f.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	rw.f = nil

	backup := rw.path + "." + time.Now().UTC().Format(backupStamp)
	if err := os.Rename(rw.path, backup); err != nil {
		if openErr := rw.open(); openErr != nil {
			return fmt.Errorf("failed to rename log file and reopen: %w", openErr)
		}
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	rw.prune()
	if rw.zip {
		go compressBackup(backup)
	}
	return rw.open()
}

// prune deletes the oldest backups beyond the retention count. A .gz and its
// uncompressed twin count as one backup.
func (rw *RotatingWriter) prune() {
	matches, err := filepath.Glob(rw.path + ".*")
	if err != nil {
		return
	}
	seen := make(map[string]bool)
	var backups []string
	for _, m := range matches {
		name := strings.TrimSuffix(m, ".gz")
		if name == rw.path || seen[name] {
			continue
		}
		seen[name] = true
		backups = append(backups, name)
	}
	// Timestamp suffixes sort chronologically, newest last.
	sort.Strings(backups)
	drop := len(backups) - rw.keep
	for i := 0; i < drop; i++ {
		os.Remove(backups[i])
		os.Remove(backups[i] + ".gz")
	}
}

// compressBackup gzips a rotated file and removes the original. It runs off
// the write path; failures leave the uncompressed backup in place.
func compressBackup(path string) {
	src, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to open rotated log %s: %v\n", path, err)
		return
	}
	defer src.Close()

	gzPath := path + ".gz"
	dst, err := os.Create(gzPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create %s: %v\n", gzPath, err)
		return
	}

	zw := gzip.NewWriter(dst)
	_, copyErr := io.Copy(zw, src)
	closeErr := zw.Close()
	if err := dst.Close(); copyErr == nil && closeErr == nil && err == nil {
		os.Remove(path)
		return
	}
	os.Remove(gzPath)
	fmt.Fprintf(os.Stderr, "Warning: failed to compress rotated log %s\n", path)
}

// Sync flushes buffered data to disk.
func (rw *RotatingWriter) Sync() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.f == nil {
		return nil
	}
	return rw.f.Sync()
}

// Close syncs and closes the live file. Further writes fail.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.f == nil {
		return nil
	}
	if err := rw.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	if err := rw.f.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	rw.f = nil
	return nil
}

// CurrentSize reports the size of the live file in bytes.
func (rw *RotatingWriter) CurrentSize() int64 {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.size
}

// FilePath returns the path of the live log file.
func (rw *RotatingWriter) FilePath() string {
	return rw.path
}

// NewLoggerWithRotation creates a Logger writing JSON entries to
// {logDir}/devboxctl.log with size-based rotation. Level semantics match
// NewLogger. An empty logDir falls back to stderr without rotation.
func NewLoggerWithRotation(logDir string, level string, cfg RotationConfig) (*Logger, error) {
	if logDir == "" {
		return NewLogger("", level)
	}
	rw, err := NewRotatingWriter(filepath.Join(logDir, "devboxctl.log"), cfg)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	return &Logger{
		logger:   slog.New(slog.NewJSONHandler(rw, opts)),
		rotation: rw,
		attrs:    make([]slog.Attr, 0),
	}, nil
}

var _ io.Writer = (*RotatingWriter)(nil)
