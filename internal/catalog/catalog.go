// Package catalog is the single persistent record of everything the
// library owns: an ordered list of song records backed by a JSON file on
// disk, with every write serialised through one mutex the way the
// ingestion router's single-writer model requires.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Status is the lifecycle state of a song record.
type Status string

const (
	StatusLibrary   Status = "library"
	StatusDuplicate Status = "duplicate"
)

// Song is one catalog entry, the persisted counterpart of a file under
// Library/.
type Song struct {
	FilePath        string  `json:"file_path"`
	FileSize        int64   `json:"file_size"`
	FileHash        string  `json:"file_hash"`
	Duration        float64 `json:"duration"`
	Bitrate         int     `json:"bitrate"`
	SampleRate      int     `json:"sample_rate"`
	Title           string  `json:"title"`
	Artist          string  `json:"artist"`
	Album           string  `json:"album"`
	TrackNumber     int     `json:"track_number,omitempty"`
	Date            string  `json:"date,omitempty"`
	Genre           string  `json:"genre,omitempty"`
	HasThumbnail    bool    `json:"has_thumbnail"`
	ThumbnailBase64 string  `json:"thumbnail_base64,omitempty"`
	DateAdded       string  `json:"date_added"`
	Status          Status  `json:"status"`
}

type document struct {
	Songs       []Song  `json:"songs"`
	LastUpdated *string `json:"last_updated"`
}

// Catalog is the process-wide, lock-guarded catalog manager. Callers never
// get a pointer into the live slice: Songs() hands back a snapshot copy so
// readers can't observe a save in progress.
type Catalog struct {
	mu          sync.RWMutex
	path        string
	songs       []Song
	lastUpdated *time.Time
	logger      *zap.Logger
}

func New(path string, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{path: path, logger: logger}
}

// Load reads the catalog file. A missing file or a parse error both
// initialise an empty catalog rather than failing the caller — there is no
// catalog state worth protecting on first run or after corruption.
func (c *Catalog) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := os.ReadFile(c.path)
	if err != nil {
		c.songs = nil
		c.lastUpdated = nil
		return nil
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.logger.Warn("catalog file is not valid JSON, starting empty", zap.String("path", c.path), zap.Error(err))
		c.songs = nil
		c.lastUpdated = nil
		return nil
	}

	c.songs = doc.Songs
	if doc.LastUpdated != nil {
		if t, err := time.Parse(time.RFC3339, *doc.LastUpdated); err == nil {
			c.lastUpdated = &t
		}
	}
	return nil
}

// Save stamps last_updated to now and writes the catalog as pretty-printed
// UTF-8 JSON. encoding/json writes non-ASCII artist/title text verbatim;
// json.Marshal HTML-escapes <, > and & by default, so an Encoder with
// SetEscapeHTML(false) is used to keep those characters as they are too.
func (c *Catalog) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

func (c *Catalog) saveLocked() error {
	now := time.Now().UTC()
	c.lastUpdated = &now
	stamp := now.Format(time.RFC3339)

	doc := document{Songs: c.songs, LastUpdated: &stamp}
	if doc.Songs == nil {
		doc.Songs = []Song{}
	}

	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}

	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(c.path, []byte(buf.String()), 0o644)
}

// ExportBackup writes a timestamped snapshot of the current in-memory
// catalog to dir, independent of whether Save has been called since the
// last mutation.
func (c *Catalog) ExportBackup(dir string) (string, error) {
	c.mu.RLock()
	songs := append([]Song(nil), c.songs...)
	c.mu.RUnlock()

	now := time.Now().UTC()
	stamp := now.Format(time.RFC3339)
	doc := document{Songs: songs, LastUpdated: &stamp}
	if doc.Songs == nil {
		doc.Songs = []Song{}
	}

	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", err
	}

	name := fmt.Sprintf("mayi-music-list-backup-%s.json", now.Format("20060102_150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(buf.String()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Songs returns a snapshot copy of every record, in catalog order.
func (c *Catalog) Songs() []Song {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Song(nil), c.songs...)
}

// Append adds a new record and persists the catalog, atomically from the
// caller's point of view: the record is visible to subsequent reads only
// once the write to disk has succeeded.
func (c *Catalog) Append(s Song) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.songs = append(c.songs, s)
	if err := c.saveLocked(); err != nil {
		c.songs = c.songs[:len(c.songs)-1]
		return err
	}
	return nil
}

// RemoveByPaths deletes every record whose FilePath is in paths and
// persists the result. Used by the duplicate sweep, which evicts whole
// groups of records at once.
func (c *Catalog) RemoveByPaths(paths map[string]bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.songs[:0:0]
	for _, s := range c.songs {
		if !paths[s.FilePath] {
			kept = append(kept, s)
		}
	}
	c.songs = kept
	return c.saveLocked()
}

// Search returns every record whose title, artist, or album contains query,
// case-insensitively, in catalog order.
func (c *Catalog) Search(query string) []Song {
	c.mu.RLock()
	defer c.mu.RUnlock()

	query = strings.ToLower(query)
	return lo.Filter(c.songs, func(s Song, _ int) bool {
		haystack := strings.ToLower(s.Title + " " + s.Artist + " " + s.Album)
		return strings.Contains(haystack, query)
	})
}

// Statistics summarizes the catalog: total count and byte size, plus
// histograms by file extension and by artist. Songs with no artist are
// counted under "Unknown Artist".
type Statistics struct {
	Count          int            `json:"count"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
	ByExtension    map[string]int `json:"by_extension"`
	ByArtist       map[string]int `json:"by_artist"`
}

const unknownArtist = "Unknown Artist"

func (c *Catalog) Statistics() Statistics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Statistics{
		ByExtension: lo.CountValuesBy(c.songs, func(s Song) string {
			ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(s.FilePath), "."))
			if ext == "" {
				ext = "unknown"
			}
			return ext
		}),
		ByArtist: lo.CountValuesBy(c.songs, func(s Song) string {
			if s.Artist == "" {
				return unknownArtist
			}
			return s.Artist
		}),
	}
	stats.Count = len(c.songs)
	for _, s := range c.songs {
		stats.TotalSizeBytes += s.FileSize
	}
	return stats
}

// FindByHash returns every record sharing the given file hash.
func (c *Catalog) FindByHash(hash string) []Song {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return lo.Filter(c.songs, func(s Song, _ int) bool {
		return s.FileHash == hash
	})
}

// FindByStem returns every record whose backing file exists and whose
// filename stem matches stem case-insensitively.
func (c *Catalog) FindByStem(stem string) []Song {
	c.mu.RLock()
	songs := append([]Song(nil), c.songs...)
	c.mu.RUnlock()

	lower := strings.ToLower(stem)
	return lo.Filter(songs, func(s Song, _ int) bool {
		if _, err := os.Stat(s.FilePath); err != nil {
			return false
		}
		base := filepath.Base(s.FilePath)
		candidate := strings.TrimSuffix(base, filepath.Ext(base))
		return strings.ToLower(candidate) == lower
	})
}
