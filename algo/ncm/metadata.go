package ncm

import (
	"strings"

	"github.com/tidwall/gjson"
)

// meta is the parsed form of NCM's embedded metadata JSON, exposed to the
// pipeline through common.AudioMeta.
type meta struct {
	title    string
	artists  []string
	album    string
	albumPic string
}

func (m *meta) GetTitle() string         { return m.title }
func (m *meta) GetArtists() []string     { return m.artists }
func (m *meta) GetAlbum() string         { return m.album }
func (m *meta) GetAlbumImageURL() string { return m.albumPic }

// parseMetadata reads the plaintext NCM metadata string, of the form
// "music:<json>" or "dj:<json>" (the latter nests the real object under
// "mainMusic"), and rewrites the album art URL to https with the 500x500
// thumbnail hint NCM's CDN honors.
func parseMetadata(plain string) *meta {
	prefix, body, found := strings.Cut(plain, ":")
	if !found {
		body = plain
	}
	if prefix == "dj" {
		body = gjson.Get(body, "mainMusic").Raw
	}

	m := &meta{
		title: gjson.Get(body, "musicName").String(),
		album: gjson.Get(body, "album").String(),
	}

	for _, artist := range gjson.Get(body, "artist").Array() {
		pair := artist.Array()
		if len(pair) > 0 {
			m.artists = append(m.artists, pair[0].String())
		}
	}

	if url := gjson.Get(body, "albumPic").String(); url != "" {
		m.albumPic = rewriteAlbumPicURL(url)
	}
	return m
}

func rewriteAlbumPicURL(url string) string {
	url = strings.Replace(url, "http://", "https://", 1)
	if strings.Contains(url, "?") {
		return url + "&param=500y500"
	}
	return url + "?param=500y500"
}
