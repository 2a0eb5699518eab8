// Package ingest is the sole mutator of Library/, Duplicate/, and Trash/:
// it takes a file freshly placed in New/, decides whether it belongs in
// the library or is a duplicate or unusable, and keeps the catalog in
// lockstep with the filesystem. Every mutation is serialised behind one
// lock, matching the single-writer model the catalog itself requires.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mayi-music/core/internal/catalog"
	"github.com/mayi-music/core/internal/metadata"
)

// Status is the outcome of routing one file through add_music_file.
type Status string

const (
	StatusLibrary   Status = "library"
	StatusDuplicate Status = "duplicate"
	StatusTrash     Status = "trash"
	StatusFailed    Status = "failed"
)

// Result reports what happened to one file.
type Result struct {
	Status Status
	Path   string // final resting path
	Err    error  // set for trash/failed
}

// Router moves files between New/, Library/, Duplicate/, and Trash/ and
// keeps cat in sync. All of its directories live under one root.
type Router struct {
	mu sync.Mutex

	libraryDir   string
	duplicateDir string
	trashDir     string
	thumbnailDir string

	cat    *catalog.Catalog
	logger *zap.Logger
}

func NewRouter(libraryDir, duplicateDir, trashDir, thumbnailDir string, cat *catalog.Catalog, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		libraryDir:   libraryDir,
		duplicateDir: duplicateDir,
		trashDir:     trashDir,
		thumbnailDir: thumbnailDir,
		cat:          cat,
		logger:       logger,
	}
}

// AddMusicFile routes one file out of New/, per spec.md §4.8's algorithm.
// It holds the router's lock for its whole duration: ingestion steps 1-3
// (extract, dedupe check, move-and-append) must be atomic with respect to
// every other add_music_file and to check_duplicates_in_library/scan.
func (r *Router) AddMusicFile(path string) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	track, err := metadata.Extract(path, r.thumbnailDir)
	if err != nil {
		return r.toTrash(path, fmt.Errorf("metadata extraction failed: %w", err))
	}
	if track.Title == "" {
		return r.toTrash(path, errNoTitle)
	}

	dupes := r.duplicatesOf(track.FileHash, path)
	if len(dupes) > 0 {
		dest, err := r.moveWithCollisionHandling(path, r.duplicateDir)
		if err != nil {
			return r.toTrash(path, err)
		}
		return Result{Status: StatusDuplicate, Path: dest}
	}

	dest, err := r.moveWithCollisionHandling(path, r.libraryDir)
	if err != nil {
		return r.toTrash(path, err)
	}

	song := catalog.Song{
		FilePath:        dest,
		FileSize:        fileSize(dest),
		FileHash:        track.FileHash,
		Duration:        track.Duration,
		Bitrate:         track.Bitrate,
		SampleRate:      track.SampleRate,
		Title:           track.Title,
		Artist:          track.Artist,
		Album:           track.Album,
		TrackNumber:     track.TrackNumber,
		Date:            track.Date,
		Genre:           track.Genre,
		HasThumbnail:    track.HasThumbnail,
		ThumbnailBase64: track.Base64(),
		DateAdded:       time.Now().UTC().Format(time.RFC3339),
		Status:          catalog.StatusLibrary,
	}
	if err := r.cat.Append(song); err != nil {
		// The file already landed in Library/; a catalog write failure
		// here is surfaced but the move itself is not rolled back, since
		// spec.md only defines a move-then-trash fallback for steps 1-3
		// together, and undoing a successful rename risks losing the file
		// if the reverse rename itself fails.
		r.logger.Error("catalog append failed after library move", zap.String("path", dest), zap.Error(err))
		return Result{Status: StatusFailed, Path: dest, Err: err}
	}

	return Result{Status: StatusLibrary, Path: dest}
}

var errNoTitle = fmt.Errorf("essential metadata (title) could not be derived")

func (r *Router) toTrash(path string, cause error) Result {
	dest, moveErr := r.moveWithCollisionHandling(path, r.trashDir)
	if moveErr != nil {
		return Result{Status: StatusFailed, Path: path, Err: fmt.Errorf("original error: %v; trash move also failed: %w", cause, moveErr)}
	}
	return Result{Status: StatusTrash, Path: dest, Err: cause}
}

// duplicatesOf computes the union spec.md §4.8 step 2 describes: catalog
// records sharing the incoming file's hash, plus records whose backing
// file still exists and whose stem matches case-insensitively.
func (r *Router) duplicatesOf(hash, incomingPath string) []catalog.Song {
	seen := map[string]bool{}
	var out []catalog.Song
	add := func(songs []catalog.Song) {
		for _, s := range songs {
			if !seen[s.FilePath] {
				seen[s.FilePath] = true
				out = append(out, s)
			}
		}
	}

	add(r.cat.FindByHash(hash))

	stem := stemOf(incomingPath)
	add(r.cat.FindByStem(stem))

	return out
}

func stemOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// moveWithCollisionHandling renames src into destDir, appending "(N)"
// before the extension (incrementing N until free) if a file of that name
// already exists there.
func (r *Router) moveWithCollisionHandling(src, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}

	base := filepath.Base(src)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	target := filepath.Join(destDir, base)
	for n := 1; ; n++ {
		if _, err := os.Stat(target); os.IsNotExist(err) {
			break
		}
		target = filepath.Join(destDir, fmt.Sprintf("%s(%d)%s", stem, n, ext))
	}

	if err := os.Rename(src, target); err != nil {
		return "", err
	}
	return target, nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
