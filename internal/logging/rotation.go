package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// RotationConfig bounds the size of the log file on disk.
type RotationConfig struct {
	// MaxSizeMB is the file size in megabytes that triggers a rotation.
	// Zero disables rotation.
	MaxSizeMB int

	// MaxBackups is how many rotated files to keep. Zero keeps none.
	MaxBackups int

	// Compress gzips rotated files.
	Compress bool
}

// DefaultRotationConfig keeps up to three 10 MB backups, uncompressed.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{MaxSizeMB: 10, MaxBackups: 3}
}

// RotatingWriter is an io.Writer over a log file that renames the file aside
// and starts a fresh one whenever the configured size limit would be
// crossed. Backups are numbered suffixes, newest first: starweaver.log.1 is
// the most recent rotation, starweaver.log.N the oldest kept. Safe for
// concurrent use.
type RotatingWriter struct {
	mu sync.Mutex

	path    string
	limit   int64
	backups int
	gz      bool

	f    *os.File
	size int64
}

// NewRotatingWriter opens (or creates) the log file at path. The parent
// directory is created if needed.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	w := &RotatingWriter{
		path:    path,
		limit:   int64(cfg.MaxSizeMB) * 1024 * 1024,
		backups: cfg.MaxBackups,
		gz:      cfg.Compress,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// open creates the file and records its size. Caller holds the mutex.
func (w *RotatingWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.f = f
	w.size = info.Size()
	return nil
}

// Write appends to the log file, rotating first if the write would push the
// file past the limit. A failed rotation is reported on stderr and the write
// proceeds against the current file, so log data is never dropped for a
// rotation problem.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return 0, fmt.Errorf("log file is closed")
	}
	if w.limit > 0 && w.size+int64(len(p)) > w.limit {
		if err := w.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "starweaver: log rotation failed: %v\n", err)
		}
	}
	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

// rotate moves the current file to .1 and opens a fresh one. Caller holds
// the mutex.
func (w *RotatingWriter) rotate() error {
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	w.f = nil

	w.shiftBackups()

	first := w.backupName(1)
	if err := os.Rename(w.path, first); err != nil {
		// The active file could not be moved aside. Reopen it and keep
		// appending rather than losing the stream.
		if openErr := w.open(); openErr != nil {
			return fmt.Errorf("failed to rename log file, reopen also failed: %w", openErr)
		}
		return fmt.Errorf("failed to rename log file: %w", err)
	}
	if w.gz {
		if err := gzipFile(first); err != nil {
			fmt.Fprintf(os.Stderr, "starweaver: log compression failed: %v\n", err)
		}
	}
	return w.open()
}

// shiftBackups renumbers existing backups up by one, dropping the one that
// falls off the end. With backups disabled it clears any stale .1 file so
// the upcoming rename cannot collide.
func (w *RotatingWriter) shiftBackups() {
	if w.backups <= 0 {
		removeWithVariants(w.backupName(1))
		return
	}
	removeWithVariants(w.backupName(w.backups))
	for i := w.backups - 1; i >= 1; i-- {
		renameWithVariants(w.backupName(i), w.backupName(i+1))
	}
}

func (w *RotatingWriter) backupName(n int) string {
	return fmt.Sprintf("%s.%d", w.path, n)
}

// removeWithVariants deletes a backup in whichever form it exists.
func removeWithVariants(path string) {
	_ = os.Remove(path)
	_ = os.Remove(path + ".gz")
}

// renameWithVariants moves a backup, preferring the compressed form.
func renameWithVariants(oldPath, newPath string) {
	if _, err := os.Stat(oldPath + ".gz"); err == nil {
		_ = os.Rename(oldPath+".gz", newPath+".gz")
		return
	}
	if _, err := os.Stat(oldPath); err == nil {
		_ = os.Rename(oldPath, newPath)
	}
}

// gzipFile replaces path with path.gz. The original is removed only after
// the compressed copy is fully written.
func gzipFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open backup for compression: %w", err)
	}
	defer func() { _ = src.Close() }()

	gzPath := path + ".gz"
	dst, err := os.Create(gzPath)
	if err != nil {
		return fmt.Errorf("failed to create compressed backup: %w", err)
	}

	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		_ = zw.Close()
		_ = dst.Close()
		_ = os.Remove(gzPath)
		return fmt.Errorf("failed to compress backup: %w", err)
	}
	if err := zw.Close(); err != nil {
		_ = dst.Close()
		_ = os.Remove(gzPath)
		return fmt.Errorf("failed to finalize compressed backup: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(gzPath)
		return fmt.Errorf("failed to close compressed backup: %w", err)
	}
	return os.Remove(path)
}

// Sync flushes the current file to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	return w.f.Sync()
}

// Close syncs and closes the current file. Further writes fail.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	w.f = nil
	return nil
}

// CurrentSize reports the size of the active log file in bytes.
func (w *RotatingWriter) CurrentSize() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}
