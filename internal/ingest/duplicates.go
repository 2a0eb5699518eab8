package ingest

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

// CheckDuplicatesInLibrary scans Library/, groups files by their
// lowercased stem, and treats any group of more than one file as a
// duplicate set if its members don't all share both extension and
// original-case stem — i.e. "song.mp3" and "song.flac", or "song.mp3" and
// "Song.mp3", are duplicates; two byte-identical "song.mp3" entries from a
// case-preserving filesystem quirk are not. Every file in a duplicate
// group is moved to Duplicate/ and its catalog record removed.
func (r *Router) CheckDuplicatesInLibrary() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.libraryDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	groups := map[string][]string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		stem := stemOf(e.Name())
		key := strings.ToLower(stem)
		groups[key] = append(groups[key], e.Name())
	}

	var moved []string
	toRemove := map[string]bool{}

	for _, names := range groups {
		if len(names) < 2 || !isDuplicateGroup(names) {
			continue
		}
		// sorted so the move order, and therefore any collision-handling
		// suffix, is deterministic across runs instead of depending on
		// os.ReadDir's unspecified order within a group.
		slices.Sort(names)
		for _, name := range names {
			src := filepath.Join(r.libraryDir, name)
			dest, err := r.moveWithCollisionHandling(src, r.duplicateDir)
			if err != nil {
				r.logger.Warn("failed to move duplicate-group member", zap.String("path", src), zap.Error(err))
				continue
			}
			moved = append(moved, dest)
			toRemove[src] = true
		}
	}

	if len(toRemove) > 0 {
		if err := r.cat.RemoveByPaths(toRemove); err != nil {
			return moved, err
		}
	}
	return moved, nil
}

// isDuplicateGroup reports whether names (which already share a
// lowercased stem) differ in extension or in the original-case stem.
func isDuplicateGroup(names []string) bool {
	exts := map[string]bool{}
	stems := map[string]bool{}
	for _, name := range names {
		exts[strings.ToLower(filepath.Ext(name))] = true
		stems[stemOf(name)] = true
	}
	return len(exts) > 1 || len(stems) > 1
}
