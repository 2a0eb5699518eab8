package metadata

import (
	"testing"
	"unicode/utf8"
)

func TestSanitizeFilenameStripsDotsAndSpaces(t *testing.T) {
	if got, want := SanitizeFilename("  My Song.  "), "My Song"; got != want {
		t.Errorf("SanitizeFilename = %q, want %q", got, want)
	}
}

func TestSanitizeFilenameEmptyBecomesUnnamed(t *testing.T) {
	if got := SanitizeFilename("   ..."); got != "unnamed" {
		t.Errorf("SanitizeFilename of an all-dots-and-spaces name = %q, want unnamed", got)
	}
}

func TestSanitizeFilenameClampsLength(t *testing.T) {
	long := ""
	for i := 0; i < 300; i++ {
		long += "a"
	}
	got := SanitizeFilename(long)
	if len(got) != maxFilenameBytes {
		t.Errorf("sanitized length = %d, want %d", len(got), maxFilenameBytes)
	}
}

func TestClampBytesDoesNotSplitMultiByteRune(t *testing.T) {
	s := "中文歌曲名" // each rune is 3 bytes in UTF-8
	got := clampBytes(s, 4)
	if len(got) > 4 {
		t.Fatalf("clampBytes exceeded the limit: %d bytes", len(got))
	}
	if !utf8.ValidString(got) {
		t.Fatalf("clampBytes produced invalid UTF-8: %q", got)
	}
}
