package tagembed

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2/v2"
	flac "github.com/go-flac/go-flac"
)

func solidJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{R: 200, G: 10, B: 10, A: 255})
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode fixture cover: %v", err)
	}
	return buf.Bytes()
}

// buildMinimalFLAC writes a well-formed (if musically meaningless) FLAC
// stream: the magic, a single STREAMINFO metadata block sized per spec,
// and a few bytes standing in for a frame. go-flac only parses metadata
// blocks; everything after them is carried through untouched.
func buildMinimalFLAC(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("fLaC")

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(0x80)<<24|34) // last-block flag set, type 0 = STREAMINFO, length 34
	buf.Write(header)
	buf.Write(make([]byte, 34)) // STREAMINFO payload, zeroed

	buf.Write([]byte{0xFF, 0xF8, 0x00, 0x00}) // stand-in frame bytes

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write fixture flac: %v", err)
	}
}

func TestEmbedFLACWritesCoverAndTags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "track.flac")
	buildMinimalFLAC(t, path)

	err := Embed(path, Tags{Title: "Hello", Artist: "Someone", Album: "An Album", Cover: solidJPEG(t)})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	audioFile, err := flac.ParseFile(path)
	if err != nil {
		t.Fatalf("re-parse embedded flac: %v", err)
	}

	var sawPicture, sawComment bool
	for _, meta := range audioFile.Meta {
		switch meta.Type {
		case flac.Picture:
			sawPicture = true
		case flac.VorbisComment:
			sawComment = true
		}
	}
	if !sawPicture {
		t.Error("expected a PICTURE metadata block after embedding")
	}
	if !sawComment {
		t.Error("expected a VORBIS_COMMENT metadata block after embedding")
	}
}

func TestEmbedMP3WritesCoverAndTags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "track.mp3")
	if err := os.WriteFile(path, []byte{0xFF, 0xFB, 0x90, 0x00}, 0o644); err != nil {
		t.Fatalf("write fixture mp3: %v", err)
	}

	err := Embed(path, Tags{Title: "Hello", Artist: "Someone", Album: "An Album", Cover: solidJPEG(t)})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	audioFile, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatalf("re-open embedded mp3: %v", err)
	}
	defer audioFile.Close()

	if audioFile.Title() != "Hello" {
		t.Errorf("title = %q", audioFile.Title())
	}
	if len(audioFile.GetFrames(audioFile.CommonID("Attached picture"))) == 0 {
		t.Error("expected an attached picture frame after embedding")
	}
}

func TestEmbedSkipsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "track.wav")
	if err := os.WriteFile(path, []byte("RIFF...."), 0o644); err != nil {
		t.Fatalf("write fixture wav: %v", err)
	}

	if err := Embed(path, Tags{Title: "Hello"}); err != nil {
		t.Fatalf("Embed should silently skip unknown containers, got: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "RIFF...." {
		t.Error("unknown-container file should be left untouched")
	}
}
