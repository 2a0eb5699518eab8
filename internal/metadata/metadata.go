// Package metadata reads everything the catalog needs out of a plain
// (already-decrypted) audio file: stream properties, tag fields, a content
// hash, and a resized cover thumbnail.
package metadata

import (
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/frolovo22/tag"
	"github.com/go-flac/flacvorbis"
	flac "github.com/go-flac/go-flac"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/nfnt/resize"
)

const (
	hashChunkSize  = 4 * 1024
	thumbnailSide  = 300
	jpegQuality    = 85
)

// Track is everything the extractor derives from a file on disk.
type Track struct {
	FileHash     string
	Duration     float64
	Bitrate      int
	SampleRate   int
	Title        string
	Artist       string
	Album        string
	TrackNumber  int
	Date         string
	Genre        string
	HasThumbnail bool
	Thumbnail    []byte // JPEG bytes, nil if no cover was found
}

// Extract reads path's stream properties and tags, hashes its contents,
// and (if a cover image is embedded) produces and saves a 300x300 JPEG
// thumbnail under thumbDir, named after path's sanitised stem. Saving is
// idempotent: an existing thumbnail at the target path is left alone and
// still reported via HasThumbnail.
func Extract(path, thumbDir string) (*Track, error) {
	hash, err := hashFile(path)
	if err != nil {
		return nil, err
	}

	t := &Track{FileHash: hash}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))

	switch ext {
	case "mp3":
		extractID3Tags(path, t)
		extractMP3StreamInfo(path, t)
	case "flac":
		extractFLACTags(path, t)
		extractFLACStreamInfo(path, t)
	default:
		extractGenericTags(path, t)
	}

	if cover, err := extractCover(path); err == nil {
		if thumb, err := makeThumbnail(cover); err == nil {
			if err := saveThumbnail(thumbDir, path, thumb); err == nil {
				t.Thumbnail = thumb
				t.HasThumbnail = true
			}
		}
	}

	return t, nil
}

// Base64 returns the thumbnail encoded for inline catalog storage, or ""
// if there is none.
func (t *Track) Base64() string {
	if len(t.Thumbnail) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(t.Thumbnail)
}

// saveThumbnail writes thumb to thumbDir/<sanitised stem of path>.jpg,
// creating thumbDir if needed. An existing file at the target path is left
// untouched, matching the per-file idempotent-write resource rule.
func saveThumbnail(thumbDir, path string, thumb []byte) error {
	base := filepath.Base(path)
	stem := SanitizeFilename(strings.TrimSuffix(base, filepath.Ext(base)))
	target := filepath.Join(thumbDir, stem+".jpg")

	if _, err := os.Stat(target); err == nil {
		return nil
	}
	if err := os.MkdirAll(thumbDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, thumb, 0o644)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func extractID3Tags(path string, t *Track) {
	audioFile, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return
	}
	defer audioFile.Close()

	t.Title = audioFile.Title()
	t.Artist = audioFile.Artist()
	t.Album = audioFile.Album()
	t.Genre = audioFile.Genre()
	t.Date = audioFile.Year()
}

// extractMP3StreamInfo decodes the file with go-mp3, which always produces
// signed 16-bit stereo PCM regardless of the source's actual channel
// count, to derive sample rate, duration, and an average bitrate.
func extractMP3StreamInfo(path string, t *Track) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return
	}
	t.SampleRate = dec.SampleRate()

	pcmBytes := dec.Length()
	if pcmBytes <= 0 || t.SampleRate <= 0 {
		return
	}
	const bytesPerFrame = 4 // 16-bit stereo
	t.Duration = float64(pcmBytes) / float64(bytesPerFrame) / float64(t.SampleRate)

	if info, err := os.Stat(path); err == nil && t.Duration > 0 {
		t.Bitrate = int(float64(info.Size()*8) / t.Duration / 1000)
	}
}

func extractFLACTags(path string, t *Track) {
	audioFile, err := flac.ParseFile(path)
	if err != nil {
		return
	}
	for _, meta := range audioFile.Meta {
		if meta.Type != flac.VorbisComment {
			continue
		}
		comments, err := flacvorbis.ParseFromMetaDataBlock(*meta)
		if err != nil {
			continue
		}
		if v, err := comments.Get(flacvorbis.FIELD_TITLE); err == nil && len(v) > 0 {
			t.Title = v[0]
		}
		if v, err := comments.Get(flacvorbis.FIELD_ARTIST); err == nil && len(v) > 0 {
			t.Artist = v[0]
		}
		if v, err := comments.Get(flacvorbis.FIELD_ALBUM); err == nil && len(v) > 0 {
			t.Album = v[0]
		}
		if v, err := comments.Get("GENRE"); err == nil && len(v) > 0 {
			t.Genre = v[0]
		}
		if v, err := comments.Get("DATE"); err == nil && len(v) > 0 {
			t.Date = v[0]
		}
	}
}

// extractFLACStreamInfo reads FLAC's mandatory STREAMINFO block directly:
// 10 fixed bytes of block-size/frame-size bounds, then a 64-bit field
// packing a 20-bit sample rate, a 3-bit channel count minus one, a 5-bit
// bits-per-sample minus one, and a 36-bit total sample count.
func extractFLACStreamInfo(path string, t *Track) {
	audioFile, err := flac.ParseFile(path)
	if err != nil {
		return
	}
	for _, meta := range audioFile.Meta {
		if meta.Type != flac.StreamInfo || len(meta.Data) < 18 {
			continue
		}
		packed := binary.BigEndian.Uint64(meta.Data[10:18])
		sampleRate := uint32(packed >> 44)
		totalSamples := packed & 0xFFFFFFFFF

		t.SampleRate = int(sampleRate)
		if sampleRate > 0 {
			t.Duration = float64(totalSamples) / float64(sampleRate)
		}
		if info, err := os.Stat(path); err == nil && t.Duration > 0 {
			t.Bitrate = int(float64(info.Size()*8) / t.Duration / 1000)
		}
		return
	}
}

func extractGenericTags(path string, t *Track) {
	gt, err := tag.Open(path)
	if err != nil {
		return
	}
	t.Title = gt.GetTitle()
	t.Artist = gt.GetArtist()
	t.Album = gt.GetAlbum()
	if num, _ := gt.GetTrackNumber(); num > 0 {
		t.TrackNumber = num
	}
}

// makeThumbnail resizes cover to fit within 300x300 preserving aspect
// ratio, converting to RGB first if the source carries alpha or a palette,
// and re-encodes as JPEG quality 85.
func makeThumbnail(cover []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(cover))
	if err != nil {
		return nil, err
	}

	switch img.(type) {
	case *image.NRGBA, *image.RGBA, *image.Paletted:
		rgb := image.NewRGBA(img.Bounds())
		draw.Draw(rgb, rgb.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
		draw.Draw(rgb, rgb.Bounds(), img, img.Bounds().Min, draw.Over)
		img = rgb
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("metadata: zero-sized cover image")
	}
	scale := float64(thumbnailSide) / float64(w)
	if alt := float64(thumbnailSide) / float64(h); alt < scale {
		scale = alt
	}
	targetW := uint(float64(w) * scale)
	targetH := uint(float64(h) * scale)

	resized := resize.Resize(targetW, targetH, img, resize.Lanczos3)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, resized, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
