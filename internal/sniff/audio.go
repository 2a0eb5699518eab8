// Package sniff identifies a decrypted audio stream's container format from
// its leading bytes, independent of whatever extension the source file had.
package sniff

import "bytes"

// AudioExtension checks header against the fixed signature table (mp3,
// flac, ogg, wav, m4a, aac) and returns the matching extension, without the
// leading dot. header should be at least 16 bytes for the m4a and wav
// checks to have enough to look at.
func AudioExtension(header []byte) (string, bool) {
	switch {
	case bytes.HasPrefix(header, []byte("ID3")),
		bytes.HasPrefix(header, []byte{0xFF, 0xFB}),
		bytes.HasPrefix(header, []byte{0xFF, 0xF3}):
		return "mp3", true
	case bytes.HasPrefix(header, []byte("fLaC")):
		return "flac", true
	case bytes.HasPrefix(header, []byte("OggS")):
		return "ogg", true
	case len(header) >= 12 && bytes.HasPrefix(header, []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WAVE")):
		return "wav", true
	case len(header) >= 8 && bytes.Equal(header[4:8], []byte("ftyp")):
		return "m4a", true
	case bytes.HasPrefix(header, []byte{0xFF, 0xF1}),
		bytes.HasPrefix(header, []byte{0xFF, 0xF9}):
		return "aac", true
	default:
		return "", false
	}
}

// MIME maps a sniffed extension to the content type reported over the HTTP
// surface and stored in DecryptResult.
func MIME(ext string) string {
	switch ext {
	case "mp3":
		return "audio/mpeg"
	case "flac":
		return "audio/flac"
	case "m4a":
		return "audio/mp4"
	case "ogg":
		return "audio/ogg"
	case "wav":
		return "audio/x-wav"
	default:
		return "application/octet-stream"
	}
}

// SniffWithFallback is AudioExtension plus a caller-supplied default when no
// signature matches, used by decoders whose payload isn't guaranteed to
// carry one of the table's signatures (e.g. a keyed-mask QMC file whose true
// container the signature table doesn't cover).
func SniffWithFallback(header []byte, fallbackExt string) (ext, mime string) {
	if ext, ok := AudioExtension(header); ok {
		return ext, MIME(ext)
	}
	return fallbackExt, MIME(fallbackExt)
}
