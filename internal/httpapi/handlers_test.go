package httpapi

import (
	"bytes"
	"crypto/aes"
	"encoding/binary"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	_ "github.com/mayi-music/core/algo/ncm"
	"github.com/mayi-music/core/internal/catalog"
	"github.com/mayi-music/core/internal/tagembed"
)

func init() {
	gin.SetMode(gin.TestMode)
}

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

func newTestServer(t *testing.T) (*Server, Dirs) {
	t.Helper()
	root := t.TempDir()
	dirs := Dirs{
		New:       filepath.Join(root, "New"),
		Library:   filepath.Join(root, "Library"),
		Duplicate: filepath.Join(root, "Duplicate"),
		Trash:     filepath.Join(root, "Trash"),
		Unlocked:  filepath.Join(root, "Unlocked"),
		Thumbnail: filepath.Join(root, "thumbnails"),
	}
	cat := catalog.New(filepath.Join(root, "catalog.json"), zap.NewNop())
	if err := cat.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return New(dirs, cat, zap.NewNop(), nil, 2), dirs
}

func TestHandleLibraryReturnsDisplayReadyRecords(t *testing.T) {
	s, _ := newTestServer(t)
	if err := s.cat.Append(catalog.Song{
		FilePath:  "/library/Track.mp3",
		FileSize:  2048,
		Title:     "Track",
		Artist:    "Someone",
		DateAdded: time.Now().UTC().Format(time.RFC3339),
		Status:    catalog.StatusLibrary,
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/library", nil)
	s.Engine().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var body struct {
		Success bool `json:"success"`
		Songs   []struct {
			Filename        string `json:"filename"`
			DurationDisplay string `json:"duration_display"`
		} `json:"songs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || len(body.Songs) != 1 {
		t.Fatalf("body = %+v", body)
	}
	if body.Songs[0].Filename != "Track.mp3" {
		t.Errorf("Filename = %q, want Track.mp3", body.Songs[0].Filename)
	}
	if body.Songs[0].DurationDisplay != "0:00" {
		t.Errorf("DurationDisplay = %q, want 0:00", body.Songs[0].DurationDisplay)
	}
}

func TestHandleUploadIngestsIntoLibrary(t *testing.T) {
	s, _ := newTestServer(t)

	tmp := t.TempDir()
	fixture := filepath.Join(tmp, "Happy Path.flac")
	buildMinimalFLAC(t, fixture)
	if err := tagembed.Embed(fixture, tagembed.Tags{Title: "Happy Path"}); err != nil {
		t.Fatalf("embed title: %v", err)
	}
	data, err := os.ReadFile(fixture)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "Happy Path.flac")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	s.Engine().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Status != "library" {
		t.Fatalf("resp = %+v", resp)
	}
	if filepath.Dir(resp.Path) != s.dirs.Library {
		t.Errorf("path %q not under Library/ %q", resp.Path, s.dirs.Library)
	}
	if songs := s.cat.Songs(); len(songs) != 1 || songs[0].Title != "Happy Path" {
		t.Errorf("catalog = %+v, want one song titled Happy Path", songs)
	}
}

func TestHandleSearchFiltersByQuery(t *testing.T) {
	s, _ := newTestServer(t)
	now := time.Now().UTC().Format(time.RFC3339)
	if err := s.cat.Append(catalog.Song{FilePath: "/a.mp3", Title: "Blue Moon", DateAdded: now}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.cat.Append(catalog.Song{FilePath: "/b.mp3", Title: "Red Sun", DateAdded: now}); err != nil {
		t.Fatalf("append: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/search?q=blue", nil)
	s.Engine().ServeHTTP(w, req)

	var body struct {
		Songs []catalog.Song `json:"songs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Songs) != 1 || body.Songs[0].Title != "Blue Moon" {
		t.Fatalf("songs = %+v", body.Songs)
	}
}

func TestHandleLibraryStatsReportsFormattedSize(t *testing.T) {
	s, _ := newTestServer(t)
	now := time.Now().UTC().Format(time.RFC3339)
	if err := s.cat.Append(catalog.Song{FilePath: "/a.mp3", FileSize: 2048, Title: "A", DateAdded: now}); err != nil {
		t.Fatalf("append: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/library/stats", nil)
	s.Engine().ServeHTTP(w, req)

	var body struct {
		Count            int    `json:"count"`
		TotalSizeDisplay string `json:"total_size_display"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 {
		t.Errorf("count = %d, want 1", body.Count)
	}
	if body.TotalSizeDisplay != "2.0 KiB" {
		t.Errorf("total_size_display = %q, want 2.0 KiB", body.TotalSizeDisplay)
	}
}

// The NCM key/metadata ciphers live in algo/ncm; this fixture is built from
// the same constants algo/ncm/ncm_test.go and internal/unlock/unlock_test.go
// use, since the cipher internals aren't exported across package boundaries.
var (
	ncmMagicHTTP  = []byte{0x43, 0x54, 0x45, 0x4E, 0x46, 0x44, 0x41, 0x4D}
	ncmCoreKeyHTTP = []byte("hzHRAmso5kInbaxW")
)

func aesECBEncryptHTTP(key, plain []byte) []byte {
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	pad := aes.BlockSize - len(plain)%aes.BlockSize
	padded := append(append([]byte(nil), plain...), bytes.Repeat([]byte{byte(pad)}, pad)...)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += aes.BlockSize {
		block.Encrypt(out[i:i+aes.BlockSize], padded[i:i+aes.BlockSize])
	}
	return out
}

func ncmKeystreamHTTP(key []byte, length int) []byte {
	box := make([]byte, 256)
	for i := range box {
		box[i] = byte(i)
	}
	j := 0
	for i := 0; i < 256; i++ {
		j = (j + int(box[i]) + int(key[i%len(key)])) & 0xFF
		box[i], box[j] = box[j], box[i]
	}
	out := make([]byte, length)
	for i := range out {
		si := (i + 1) & 0xFF
		a := box[si]
		b := box[(si+int(a))&0xFF]
		out[i] = box[(int(a)+int(b))&0xFF]
	}
	return out
}

func le32HTTP(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func buildNCMFixtureHTTP(t *testing.T) []byte {
	t.Helper()
	keyPlain := append([]byte("neteasecloudmusic"), make([]byte, 16)...)
	keyCipher := aesECBEncryptHTTP(ncmCoreKeyHTTP, keyPlain)
	for i := range keyCipher {
		keyCipher[i] ^= 0x64
	}

	audioKey := keyPlain[17:]
	ks := ncmKeystreamHTTP(audioKey, 20)
	audioPlain := append([]byte("fLaC"), bytes.Repeat([]byte{0xAB}, 16)...)
	audioCipher := make([]byte, len(audioPlain))
	for i := range audioPlain {
		audioCipher[i] = audioPlain[i] ^ ks[i]
	}

	buf := &bytes.Buffer{}
	buf.Write(ncmMagicHTTP)
	buf.Write([]byte{0, 0})
	buf.Write(le32HTTP(uint32(len(keyCipher))))
	buf.Write(keyCipher)
	buf.Write(le32HTTP(0))
	buf.Write(make([]byte, 5))
	buf.Write(le32HTTP(0))
	buf.Write(le32HTTP(0))
	buf.Write(audioCipher)
	return buf.Bytes()
}

func TestHandleUnlockMusicDecryptsIntoNewDir(t *testing.T) {
	s, dirs := newTestServer(t)
	if err := os.MkdirAll(dirs.Unlocked, 0o755); err != nil {
		t.Fatalf("mkdir Unlocked/: %v", err)
	}
	data := buildNCMFixtureHTTP(t)
	if err := os.WriteFile(filepath.Join(dirs.Unlocked, "Encrypted Song.ncm"), data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/unlock-music", nil)
	s.Engine().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var body struct {
		Success bool `json:"success"`
		Summary struct {
			Total     int `json:"Total"`
			Succeeded int `json:"Succeeded"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Summary.Total != 1 || body.Summary.Succeeded != 1 {
		t.Fatalf("body = %+v", body)
	}
	if _, err := os.Stat(filepath.Join(dirs.New, "Encrypted Song.flac")); err != nil {
		t.Errorf("expected decrypted output in New/: %v", err)
	}
}

func TestHandleServeAudioReturns404ForMissingFile(t *testing.T) {
	s, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/play/missing.mp3", nil)
	s.Engine().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
