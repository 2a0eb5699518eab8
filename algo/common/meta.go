package common

import (
	"path"
	"regexp"
	"strings"
)

// filenameMeta is the AudioMeta derived purely from a file's name, used as
// a last-resort fallback when a container carries no usable tags.
type filenameMeta struct {
	artists []string
	title   string
	album   string
}

func (f *filenameMeta) GetArtists() []string     { return f.artists }
func (f *filenameMeta) GetTitle() string         { return f.title }
func (f *filenameMeta) GetAlbum() string         { return f.album }
func (f *filenameMeta) GetAlbumImageURL() string { return "" }

var artistTitleSep = regexp.MustCompile(`\s+-\s+`)

// SmartParseFilenameMeta distinguishes "Artist - Title" from "Title -
// Artist" using one cheap heuristic: a segment mentioning a live/remix-style
// keyword, or one longer than four words, is taken as the title. This is a
// deliberately small subset of the richer per-language scoring an upstream
// client might ship — the ingestion pipeline only needs a plausible title,
// not an attributed artist.
func SmartParseFilenameMeta(filename string) AudioMeta {
	stem := strings.TrimSuffix(filename, path.Ext(filename))
	parts := artistTitleSep.Split(stem, 2)
	if len(parts) != 2 {
		return &filenameMeta{title: strings.TrimSpace(stem)}
	}

	a, b := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if looksLikeTitle(a) && !looksLikeTitle(b) {
		return &filenameMeta{title: a, artists: splitArtists(b)}
	}
	return &filenameMeta{title: b, artists: splitArtists(a)}
}

var titleKeywords = []string{"live", "remix", "acoustic", "cover", "版", "现场", "伴奏", "instrumental"}

func looksLikeTitle(s string) bool {
	lower := strings.ToLower(s)
	for _, kw := range titleKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return len(strings.Fields(s)) > 4
}

func splitArtists(s string) []string {
	var out []string
	for _, a := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '/' || r == '&'
	}) {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

