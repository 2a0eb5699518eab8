package metadata

import (
	"runtime"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const maxFilenameBytes = 255

// windowsReserved is the set of characters Windows forbids in a filename;
// POSIX only forbids the path separator itself.
const windowsReserved = `<>:"/\|?*`

// SanitizeFilename rewrites name into something safe to create on the
// current platform: NFC-normalized first so a byte-length clamp never
// splits a multi-byte rune that decomposed differently than it composed,
// reserved characters replaced with "_", surrounding dots and spaces
// stripped, and "unnamed" substituted if nothing is left.
func SanitizeFilename(name string) string {
	name = norm.NFC.String(name)

	reserved := "/"
	if runtime.GOOS == "windows" {
		reserved = windowsReserved
	}
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(reserved, r) {
			return '_'
		}
		return r
	}, name)

	name = strings.Trim(name, ". ")
	name = clampBytes(name, maxFilenameBytes)

	if name == "" {
		return "unnamed"
	}
	return name
}

// clampBytes truncates s to at most n bytes without splitting a UTF-8
// rune in half.
func clampBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	b := s[:n]
	for len(b) > 0 {
		r, size := utf8.DecodeLastRuneInString(b)
		if r != utf8.RuneError || size != 1 {
			break
		}
		b = b[:len(b)-size]
	}
	return b
}
