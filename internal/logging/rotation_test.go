package logging

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// newTinyWriter builds a writer whose limit is a handful of bytes so tests
// can force rotations with short writes.
func newTinyWriter(t *testing.T, path string, limitBytes int64, backups int, compress bool) *RotatingWriter {
	t.Helper()
	w, err := NewRotatingWriter(path, RotationConfig{MaxBackups: backups, Compress: compress})
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	w.limit = limitBytes
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestRotatingWriterCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "deep", "starweaver.log")

	w, err := NewRotatingWriter(path, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer func() { _ = w.Close() }()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("log file missing after create: %v", err)
	}
}

func TestRotatingWriterAppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "starweaver.log")
	if err := os.WriteFile(path, []byte("earlier run\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w, err := NewRotatingWriter(path, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	if _, err := w.Write([]byte("this run\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got, want := w.CurrentSize(), int64(len("earlier run\nthis run\n")); got != want {
		t.Errorf("CurrentSize = %d, want %d (existing content counts)", got, want)
	}
	_ = w.Close()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(content), "earlier run") || !strings.Contains(string(content), "this run") {
		t.Errorf("log content = %q, want both runs preserved", content)
	}
}

func TestRotatingWriterRotatesAtLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "starweaver.log")
	w := newTinyWriter(t, path, 64, 3, false)

	line := []byte("a log line long enough to cross a 64 byte limit quickly\n")
	for n := 0; n < 4; n++ {
		if _, err := w.Write(line); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("first backup missing: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("active log missing after rotation: %v", err)
	}
	if w.CurrentSize() >= 64+int64(len(line)) {
		t.Errorf("active file grew past the limit: %d bytes", w.CurrentSize())
	}
}

func TestRotatingWriterBackupCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "starweaver.log")
	w := newTinyWriter(t, path, 16, 2, false)

	// Each write crosses the limit, so each write past the first rotates.
	for i := 0; i < 6; i++ {
		if _, err := w.Write([]byte(fmt.Sprintf("rotation fodder %d\n", i))); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	for _, n := range []int{1, 2} {
		if _, err := os.Stat(fmt.Sprintf("%s.%d", path, n)); err != nil {
			t.Errorf("backup .%d missing: %v", n, err)
		}
	}
	if _, err := os.Stat(path + ".3"); err == nil {
		t.Error("backup .3 exists past the MaxBackups cap")
	}
}

func TestRotatingWriterZeroLimitNeverRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "starweaver.log")
	w, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 0, MaxBackups: 3})
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer func() { _ = w.Close() }()

	for n := 0; n < 50; n++ {
		if _, err := w.Write([]byte("unbounded log stream contents\n")); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	if _, err := os.Stat(path + ".1"); err == nil {
		t.Error("rotation happened with the limit disabled")
	}
}

func TestRotatingWriterZeroBackupsDiscards(t *testing.T) {
	path := filepath.Join(t.TempDir(), "starweaver.log")
	w := newTinyWriter(t, path, 16, 0, false)

	for i := 0; i < 4; i++ {
		if _, err := w.Write([]byte(fmt.Sprintf("line %d padded out\n", i))); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	// One .1 may exist transiently between rotations; with zero backups
	// configured the shift removes it before each rename, so at most the
	// newest survives and nothing numbered higher ever appears.
	if _, err := os.Stat(path + ".2"); err == nil {
		t.Error("backup .2 exists with MaxBackups=0")
	}
}

func TestRotatingWriterCompressesBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "starweaver.log")
	w := newTinyWriter(t, path, 32, 3, true)

	marker := "compressible payload payload payload\n"
	if _, err := w.Write([]byte(marker)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := w.Write([]byte("second write forces the rotation\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	gzPath := path + ".1.gz"
	f, err := os.Open(gzPath)
	if err != nil {
		t.Fatalf("compressed backup missing: %v", err)
	}
	defer func() { _ = f.Close() }()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer func() { _ = zr.Close() }()
	content, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(content) != marker {
		t.Errorf("decompressed backup = %q, want %q", content, marker)
	}

	if _, err := os.Stat(path + ".1"); err == nil {
		t.Error("uncompressed original left behind after compression")
	}
}

func TestRotatingWriterConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "starweaver.log")
	w := newTinyWriter(t, path, 2048, 64, false)

	const goroutines, writes = 8, 40
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				if _, err := w.Write([]byte(fmt.Sprintf("g%d write %d\n", g, i))); err != nil {
					t.Errorf("goroutine %d write %d: %v", g, i, err)
				}
			}
		}(g)
	}
	wg.Wait()
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Every line must land somewhere: the active file or a backup.
	total := countLines(t, path)
	for i := 1; i <= 64; i++ {
		total += countLines(t, fmt.Sprintf("%s.%d", path, i))
	}
	if want := goroutines * writes; total != want {
		t.Errorf("total lines across files = %d, want %d", total, want)
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	return strings.Count(string(content), "\n")
}

func TestRotatingWriterCloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "starweaver.log")
	w, err := NewRotatingWriter(path, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}

	if _, err := w.Write([]byte("before close\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := w.Write([]byte("after close\n")); err == nil {
		t.Error("Write after Close succeeded")
	}
}

func TestRotatingWriterSyncFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "starweaver.log")
	w, err := NewRotatingWriter(path, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer func() { _ = w.Close() }()

	if _, err := w.Write([]byte("flush me\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(content), "flush me") {
		t.Error("synced content not on disk")
	}
}

func TestNewLoggerWithRotationWritesJSON(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLoggerWithRotation(dir, LevelDebug, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewLoggerWithRotation: %v", err)
	}

	logger.Info("dispatching task", "task_id", "task_007")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "starweaver.log"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "dispatching task" || entry["task_id"] != "task_007" {
		t.Errorf("entry = %v, want msg and task_id preserved", entry)
	}
}

func TestNewLoggerWithRotationRotates(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLoggerWithRotation(dir, LevelDebug, RotationConfig{MaxBackups: 3})
	if err != nil {
		t.Fatalf("NewLoggerWithRotation: %v", err)
	}
	logger.rotation.limit = 256

	for i := 0; i < 12; i++ {
		logger.Info("a run event long enough to fill the file in a few writes", "seq", i)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "starweaver.log.1")); err != nil {
		t.Errorf("rotated backup missing: %v", err)
	}
}

func TestNewLoggerWithRotationEmptyDir(t *testing.T) {
	logger, err := NewLoggerWithRotation("", LevelInfo, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewLoggerWithRotation: %v", err)
	}
	defer func() { _ = logger.Close() }()

	if logger.rotation != nil {
		t.Error("stderr logger should not carry a rotation writer")
	}
}

func TestChildLoggersShareRotationWriter(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLoggerWithRotation(dir, LevelDebug, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewLoggerWithRotation: %v", err)
	}
	defer func() { _ = logger.Close() }()

	child := logger.WithConstellation("constellation_abcd1234_20260825_100000").WithTask("task_001")
	if child.rotation != logger.rotation {
		t.Error("child logger does not share the parent's rotation writer")
	}
}
