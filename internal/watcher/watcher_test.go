package watcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitForCount(t *testing.T, c *atomic.Int32, want int32, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.Load() >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("reload count = %d after %v, want %d", c.Load(), timeout, want)
}

func TestWatcherValidation(t *testing.T) {
	if _, err := New("", time.Second, func() error { return nil }, testLogger()); err == nil {
		t.Error("New accepted an empty path")
	}
	if _, err := New("x.yaml", time.Second, nil, testLogger()); err == nil {
		t.Error("New accepted a nil handler")
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minehold.yaml")
	if err := os.WriteFile(path, []byte("global: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var reloads atomic.Int32
	w, err := New(path, 10*time.Millisecond, func() error {
		reloads.Add(1)
		return nil
	}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := os.WriteFile(path, []byte("global: {log_level: debug}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitForCount(t, &reloads, 1, 3*time.Second)
}

func TestWatcherSurvivesRenameReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minehold.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var reloads atomic.Int32
	w, err := New(path, 10*time.Millisecond, func() error {
		reloads.Add(1)
		return nil
	}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The write-temp-then-rename dance editors do.
	tmp := filepath.Join(dir, ".minehold.yaml.tmp")
	if err := os.WriteFile(tmp, []byte("a: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	waitForCount(t, &reloads, 1, 3*time.Second)

	// And the watch is still alive for the next change.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("a: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitForCount(t, &reloads, 2, 3*time.Second)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minehold.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var reloads atomic.Int32
	w, err := New(path, 10*time.Millisecond, func() error {
		reloads.Add(1)
		return nil
	}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if reloads.Load() != 0 {
		t.Errorf("reloaded %d times on an unrelated file", reloads.Load())
	}
}

func TestWatcherRetriesAfterFailedReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minehold.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	w, err := New(path, time.Hour, func() error {
		if calls.Add(1) == 1 {
			return errors.New("bad yaml")
		}
		return nil
	}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// First change fails; a failed reload does not start the debounce
	// window, so the follow-up change is retried despite the huge debounce.
	if err := os.WriteFile(path, []byte("a: broken\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitForCount(t, &calls, 1, 3*time.Second)

	if err := os.WriteFile(path, []byte("a: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitForCount(t, &calls, 2, 3*time.Second)
}
