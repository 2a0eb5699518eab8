package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDirInvokesHandlerForNewFile(t *testing.T) {
	dir := t.TempDir()

	seen := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = Dir(ctx, dir, func(path string) error {
			seen <- path
			return nil
		}, nil)
	}()

	// give the watcher a moment to register dir before the write lands.
	time.Sleep(100 * time.Millisecond)

	target := filepath.Join(dir, "track.flac")
	if err := os.WriteFile(target, []byte("fLaC"), 0o644); err != nil {
		t.Fatalf("write fixture file: %v", err)
	}

	select {
	case got := <-seen:
		if filepath.Clean(got) != filepath.Clean(target) {
			t.Fatalf("handler called with %q, want %q", got, target)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("handler was not called within timeout")
	}
}

func TestDirStopsWhenContextCancelled(t *testing.T) {
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Dir(ctx, dir, func(string) error { return nil }, nil)
	}()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Dir returned error on cancellation: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Dir did not return after context cancellation")
	}
}

func TestDirCreatesMissingDirectory(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "not-yet-created")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = Dir(ctx, dir, func(string) error { return nil }, nil) }()
	time.Sleep(100 * time.Millisecond)

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected %q to be created as a directory, stat err=%v", dir, err)
	}
}
