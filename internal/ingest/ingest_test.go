package ingest

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/mayi-music/core/internal/catalog"
)

func buildMinimalFLAC(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("fLaC")
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(0x80)<<24|34)
	buf.Write(header)
	buf.Write(make([]byte, 34))
	buf.Write([]byte{0xFF, 0xF8, 0x00, 0x00})
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write fixture flac: %v", err)
	}
}

func newTestRouter(t *testing.T) (*Router, string) {
	t.Helper()
	root := t.TempDir()
	cat := catalog.New(filepath.Join(root, "catalog.json"), zap.NewNop())
	if err := cat.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	r := NewRouter(
		filepath.Join(root, "Library"),
		filepath.Join(root, "Duplicate"),
		filepath.Join(root, "Trash"),
		filepath.Join(root, "thumbnails"),
		cat,
		zap.NewNop(),
	)
	return r, root
}

// writeNewFile writes a minimal untagged FLAC container into New/.
// metadata.Extract succeeds on it, but the file carries no title tag.
func writeNewFile(t *testing.T, newDir, name string) string {
	t.Helper()
	if err := os.MkdirAll(newDir, 0o755); err != nil {
		t.Fatalf("mkdir New/: %v", err)
	}
	path := filepath.Join(newDir, name)
	buildMinimalFLAC(t, path)
	return path
}

func TestAddMusicFileWithNoTitleGoesToTrash(t *testing.T) {
	r, root := newTestRouter(t)
	newDir := filepath.Join(root, "New")
	path := writeNewFile(t, newDir, "untitled.flac")

	res := r.AddMusicFile(path)
	if res.Status != StatusTrash {
		t.Fatalf("status = %v, want trash", res.Status)
	}
	if _, err := os.Stat(filepath.Join(root, "Trash", "untitled.flac")); err != nil {
		t.Errorf("expected the file in Trash/: %v", err)
	}
}

func TestMoveWithCollisionHandlingAppendsIncrementingSuffix(t *testing.T) {
	r, root := newTestRouter(t)
	destDir := filepath.Join(root, "Library")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(destDir, "song.mp3"), []byte("existing"), 0o644); err != nil {
		t.Fatalf("seed existing file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(destDir, "song(1).mp3"), []byte("existing"), 0o644); err != nil {
		t.Fatalf("seed existing collision file: %v", err)
	}

	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "song.mp3")
	if err := os.WriteFile(src, []byte("incoming"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	dest, err := r.moveWithCollisionHandling(src, destDir)
	if err != nil {
		t.Fatalf("moveWithCollisionHandling: %v", err)
	}
	if filepath.Base(dest) != "song(2).mp3" {
		t.Errorf("dest = %q, want song(2).mp3", filepath.Base(dest))
	}
}

func TestCheckDuplicatesInLibraryGroupsByCaseInsensitiveStem(t *testing.T) {
	r, root := newTestRouter(t)
	libDir := filepath.Join(root, "Library")
	if err := os.MkdirAll(libDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// "Song.mp3" and "song.flac" share a case-insensitive stem but differ
	// in extension, so they form a duplicate group.
	if err := os.WriteFile(filepath.Join(libDir, "Song.mp3"), []byte("a"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(libDir, "song.flac"), []byte("b"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// "unrelated.mp3" stands alone.
	if err := os.WriteFile(filepath.Join(libDir, "unrelated.mp3"), []byte("c"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	moved, err := r.CheckDuplicatesInLibrary()
	if err != nil {
		t.Fatalf("CheckDuplicatesInLibrary: %v", err)
	}
	if len(moved) != 2 {
		t.Fatalf("moved %d files, want 2", len(moved))
	}
	if _, err := os.Stat(filepath.Join(libDir, "unrelated.mp3")); err != nil {
		t.Errorf("unrelated.mp3 should remain in Library/: %v", err)
	}
	if _, err := os.Stat(filepath.Join(libDir, "Song.mp3")); !os.IsNotExist(err) {
		t.Error("Song.mp3 should have been moved out of Library/")
	}
}

func TestIsDuplicateGroupRequiresExtensionOrCaseDivergence(t *testing.T) {
	if isDuplicateGroup([]string{"song.mp3", "song.mp3"}) {
		t.Error("identical names should not be treated as a duplicate group on their own")
	}
	if !isDuplicateGroup([]string{"song.mp3", "Song.mp3"}) {
		t.Error("case-divergent stems should be a duplicate group")
	}
	if !isDuplicateGroup([]string{"song.mp3", "song.flac"}) {
		t.Error("extension-divergent files sharing a stem should be a duplicate group")
	}
}
