package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mayi-music/core/algo/common"
	"github.com/mayi-music/core/internal/catalog"
	"github.com/mayi-music/core/internal/ingest"
	"github.com/mayi-music/core/internal/unlock"
)

func randomRequestID() string {
	return fmt.Sprintf("req_%d", time.Now().UnixNano())
}

// displaySong adds the couple of fields the UI wants pre-formatted rather
// than recomputing client-side: a mm:ss duration and a human file size.
type displaySong struct {
	catalog.Song
	DurationDisplay string `json:"duration_display"`
	FileSizeDisplay string `json:"file_size_display"`
	Filename        string `json:"filename"`
}

func toDisplaySong(s catalog.Song) displaySong {
	return displaySong{
		Song:            s,
		DurationDisplay: formatDuration(s.Duration),
		FileSizeDisplay: formatBytes(s.FileSize),
		Filename:        filepath.Base(s.FilePath),
	}
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "0:00"
	}
	total := int(seconds + 0.5)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// handleLibrary returns every song as a display-ready record.
func (s *Server) handleLibrary(c *gin.Context) {
	songs := s.cat.Songs()
	out := make([]displaySong, 0, len(songs))
	for _, song := range songs {
		out = append(out, toDisplaySong(song))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "songs": out, "count": len(out)})
}

// handleLibraryStats reports totals, a formatted size, and the export
// timestamp the UI shows alongside it.
func (s *Server) handleLibraryStats(c *gin.Context) {
	stats := s.cat.Statistics()
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"count":              stats.Count,
		"total_size_bytes":   stats.TotalSizeBytes,
		"total_size_display": formatBytes(stats.TotalSizeBytes),
		"by_extension":       stats.ByExtension,
		"by_artist":          stats.ByArtist,
		"exported_at":        time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSongs returns a page of raw catalog records, optionally filtered
// by a substring search across title/artist/album.
func (s *Server) handleSongs(c *gin.Context) {
	page := queryInt(c, "page", 1)
	perPage := queryInt(c, "per_page", 50)
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}

	songs := s.cat.Songs()
	if q := c.Query("search"); q != "" {
		songs = s.cat.Search(q)
	}

	total := len(songs)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"songs":    songs[start:end],
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

// handleSearch runs a plain substring query over title/artist/album.
func (s *Server) handleSearch(c *gin.Context) {
	q := c.Query("q")
	results := s.cat.Search(q)
	c.JSON(http.StatusOK, gin.H{"success": true, "songs": results, "count": len(results)})
}

// handleUpload stages a multipart file into New/ and immediately routes it
// through the ingestion router, returning where it ended up.
func (s *Server) handleUpload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "missing file field"})
		return
	}
	defer file.Close()

	if err := os.MkdirAll(s.dirs.New, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	dest := filepath.Join(s.dirs.New, filepath.Base(header.Filename))
	out, err := os.Create(dest)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	out.Close()

	result := s.router.AddMusicFile(dest)
	c.JSON(http.StatusOK, gin.H{
		"success": result.Status != ingest.StatusFailed,
		"status":  result.Status,
		"path":    result.Path,
		"error":   errString(result.Err),
	})
}

// handleLibraryAdd ingests every file currently sitting in New/.
func (s *Server) handleLibraryAdd(c *gin.Context) {
	entries, err := os.ReadDir(s.dirs.New)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusOK, gin.H{"success": true, "processed": 0, "results": []ingest.Result{}})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	var results []ingest.Result
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		results = append(results, s.router.AddMusicFile(filepath.Join(s.dirs.New, e.Name())))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "processed": len(results), "results": results})
}

// handleScan re-runs the duplicate sweep over Library/, the same operation
// check-duplicates triggers; spec.md §6 lists both POST /api/scan and
// GET /api/library/scan as equivalent rescan entry points.
func (s *Server) handleScan(c *gin.Context) {
	s.handleCheckDuplicates(c)
}

func (s *Server) handleCheckDuplicates(c *gin.Context) {
	moved, err := s.router.CheckDuplicatesInLibrary()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "moved": moved, "count": len(moved)})
}

// handleUnlockMusic runs the decrypt-everything-in-Unlocked/ batch and
// reports per-file results plus the summary.
func (s *Server) handleUnlockMusic(c *gin.Context) {
	pool := unlock.NewPool(s.dirs.Unlocked, s.dirs.New, s.unlockWk, s.logger).WithMMKV(s.mmkvPath, s.mmkvKey)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Minute)
	defer cancel()

	results, summary, err := pool.Run(ctx, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	type fileOutcome struct {
		Path    string `json:"path"`
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
	}
	outcomes := make([]fileOutcome, 0, len(results))
	status := http.StatusOK
	for _, r := range results {
		fo := fileOutcome{Path: r.InputPath, Success: r.Success}
		if r.Err != nil {
			fo.Error = r.Err.Error()
			status = statusForErr(r.Err)
		}
		outcomes = append(outcomes, fo)
	}

	c.JSON(status, gin.H{"success": true, "results": outcomes, "summary": summary})
}

// handleServeThumbnail and handleServeAudio both serve a single named file
// out of a fixed directory, with byte-range support coming from
// http.ServeFile/http.ServeContent underneath net/http's own mux plumbing.
func (s *Server) handleServeThumbnail(c *gin.Context) {
	serveFromDir(c, s.dirs.Thumbnail)
}

func (s *Server) handleServeAudio(c *gin.Context) {
	serveFromDir(c, s.dirs.Library)
}

func serveFromDir(c *gin.Context, dir string) {
	name := filepath.Base(c.Param("name"))
	path := filepath.Join(dir, name)

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not found"})
		return
	}
	http.ServeFile(c.Writer, c.Request, path)
}

// handleExportBackup writes a timestamped catalog snapshot to the parent of
// Library/, the same root every other directory lives under.
func (s *Server) handleExportBackup(c *gin.Context) {
	backupDir := filepath.Dir(s.dirs.Library)
	path, err := s.cat.ExportBackup(backupDir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "path": path})
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// statusForErr maps an AppError's Kind to the HTTP status the handler
// reports it under, per spec.md §7: format errors are unsupported-media,
// crypto/metadata/keyed-mask failures are unprocessable, a missing file is
// not-found, and everything else (including an error with no Kind) is a
// server error. Artwork failures are never surfaced as an HTTP error in the first
// place, since internal/unlock already treats them as best-effort.
func statusForErr(err error) int {
	kind, ok := common.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case common.KindUnsupportedFormat, common.KindInvalidMagic:
		return http.StatusUnsupportedMediaType
	case common.KindCryptoFailure, common.KindMetadataParseFailure, common.KindUnsupportedKeyedMask:
		return http.StatusUnprocessableEntity
	case common.KindFileNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
