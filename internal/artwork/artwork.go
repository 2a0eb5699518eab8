// Package artwork resolves a cover image for a decoded track: NCM files
// carry (or point to) their own artwork, QMC files carry none and need a
// secondary lookup against Tencent's public cover API. A failure anywhere
// in this package is never fatal to decryption — callers log and move on.
package artwork

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nfnt/resize"
	"go.uber.org/zap"

	"github.com/mayi-music/core/algo/common"
)

const (
	qmcCoverQueryEndpoint = "https://um-api.ixarea.com/music/qq-cover"
	qmcCoverImageTemplate = "https://stats.ixarea.com/apis/music/qq-cover/%s/%s"

	// maxInlineBytes is the threshold above which a downloaded cover is
	// halved in height and re-encoded rather than embedded as-is.
	maxInlineBytes = 16 * 1024 * 1024

	jpegQuality = 85
)

// Fetcher downloads and normalizes cover art. It holds a single tuned HTTP
// client so every lookup reuses the same connection pool.
type Fetcher struct {
	client *http.Client
	logger *zap.Logger
}

func NewFetcher(logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 5,
			},
		},
		logger: logger,
	}
}

// FetchByURL downloads and normalizes the cover at url, the path NCM takes
// when its metadata block carries an albumPic link instead of (or in
// addition to) an embedded image.
func (f *Fetcher) FetchByURL(ctx context.Context, rawURL string) ([]byte, error) {
	if rawURL == "" {
		return nil, common.NewError(common.KindArtworkFailure, "artwork.FetchByURL", "",
			fmt.Errorf("empty cover URL"))
	}
	data, err := f.download(ctx, rawURL)
	if err != nil {
		return nil, common.NewError(common.KindArtworkFailure, "artwork.FetchByURL", rawURL, err)
	}
	return data, nil
}

// FetchByTags resolves a cover for a QMC track, which never embeds one:
// query Tencent's cover-lookup API for an (Id, Type) pair from the track's
// own tag fields, then fetch the image it names.
func (f *Fetcher) FetchByTags(ctx context.Context, title, artist, album string) ([]byte, error) {
	if title == "" {
		return nil, common.NewError(common.KindArtworkFailure, "artwork.FetchByTags", "",
			fmt.Errorf("no title to query a cover with"))
	}

	coverURL, err := f.queryCoverURL(ctx, title, artist, album)
	if err != nil {
		return nil, common.NewError(common.KindArtworkFailure, "artwork.FetchByTags", title, err)
	}

	data, err := f.download(ctx, coverURL)
	if err != nil {
		return nil, common.NewError(common.KindArtworkFailure, "artwork.FetchByTags", coverURL, err)
	}
	return data, nil
}

type coverQueryResult struct {
	Id   string `json:"Id"`
	Type string `json:"Type"`
}

func (f *Fetcher) queryCoverURL(ctx context.Context, title, artist, album string) (string, error) {
	q := url.Values{}
	q.Set("Title", title)
	q.Set("Artist", artist)
	q.Set("Album", album)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, qmcCoverQueryEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cover query: unexpected status %d", resp.StatusCode)
	}

	var result coverQueryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.Id == "" || result.Type == "" {
		return "", fmt.Errorf("cover query returned no match for %q", title)
	}
	return fmt.Sprintf(qmcCoverImageTemplate, result.Type, result.Id), nil
}

// download fetches rawURL, upgrading it to https and requesting the 500x500
// CDN-resized variant first, then verifies the response is actually an
// image and shrinks it if it came back oversized.
func (f *Fetcher) download(ctx context.Context, rawURL string) ([]byte, error) {
	rawURL = rewriteForThumbnail(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cover download: unexpected status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("cover download: response is not an image (Content-Type %q)", ct)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(data) <= maxInlineBytes {
		return data, nil
	}

	shrunk, err := shrinkToHalfHeight(data)
	if err != nil {
		f.logger.Warn("cover exceeded size threshold but could not be re-encoded, keeping original",
			zap.String("url", rawURL), zap.Int("bytes", len(data)), zap.Error(err))
		return data, nil
	}
	return shrunk, nil
}

// rewriteForThumbnail upgrades http to https and appends the query hint
// NCM's (and, harmlessly, Tencent's) CDN honors to serve a 500x500 variant.
func rewriteForThumbnail(rawURL string) string {
	rawURL = strings.Replace(rawURL, "http://", "https://", 1)
	if strings.Contains(rawURL, "?") {
		return rawURL + "&param=500y500"
	}
	return rawURL + "?param=500y500"
}

// shrinkToHalfHeight halves an oversized cover's height, preserving aspect
// ratio, and re-encodes it as JPEG at a fixed quality. Anything past the
// size threshold is assumed to be a lossless or otherwise oversized source
// that a thumbnail consumer has no use for at full resolution.
func shrinkToHalfHeight(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	halfHeight := uint(bounds.Dy() / 2)
	if halfHeight == 0 {
		halfHeight = 1
	}
	resized := resize.Resize(0, halfHeight, img, resize.Lanczos3)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, resized, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
