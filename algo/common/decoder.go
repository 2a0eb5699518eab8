// Package common defines the interfaces shared by every format decoder
// (algo/qmc, algo/ncm, algo/raw, algo/stub) and the registry the dispatcher
// uses to look one up by file extension.
package common

import (
	"context"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Decoder turns an encrypted/obfuscated container into a stream of plain
// audio bytes. Validate must be called once before Read; it identifies the
// container, locates the audio region, and positions the reader at its
// start.
type Decoder interface {
	io.Reader
	Validate() error
}

// StreamDecoder decrypts a buffer of ciphertext in place. offset is the
// position of buf[0] within the overall audio stream, so keystream-based
// ciphers can reconstruct the right keystream window for arbitrary reads.
type StreamDecoder interface {
	Decrypt(buf []byte, offset int)
}

// AudioMeta exposes the handful of tag fields the ingestion pipeline and
// metadata extractor need, regardless of which container the decoder read
// them from.
type AudioMeta interface {
	GetTitle() string
	GetArtists() []string
	GetAlbum() string
	GetAlbumImageURL() string
}

// AudioMetaGetter is implemented by decoders that can expose metadata
// embedded in their own container (NCM's encrypted JSON blob, for example)
// without a second pass over the decrypted audio.
type AudioMetaGetter interface {
	GetAudioMeta(ctx context.Context) (AudioMeta, error)
}

// CoverGetter is implemented by decoders that can retrieve cover artwork
// bytes directly, bypassing the generic artwork retriever.
type CoverGetter interface {
	GetCover(ctx context.Context) ([]byte, error)
}

// DecoderParams bundles everything a decoder factory needs to construct a
// Decoder for one input file.
type DecoderParams struct {
	Reader    io.ReadSeeker
	Extension string // lowercased, without leading dot
	FilePath  string
	Logger    *zap.Logger

	// MMKVPath and MMKVKey locate an optional Tencent MMKV key-value vault
	// used as a secondary source of QMC per-file keys (see algo/qmc).
	MMKVPath string
	MMKVKey  string
}

// DecoderFactory constructs a Decoder bound to one set of DecoderParams.
type DecoderFactory func(p *DecoderParams) Decoder

var (
	registryMu sync.RWMutex
	registry   = map[string]DecoderFactory{}
)

// RegisterDecoder binds a factory to a lowercased file extension (without
// leading dot). Called from each algo/* package's init(). The dispatcher
// looks up exactly one factory per extension, per spec's fixed dispatch
// table — unlike a multi-candidate probe, registering the same extension
// twice overwrites the previous factory.
func RegisterDecoder(ext string, _unused bool, factory DecoderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(ext)] = factory
}

// GetDecoder looks up the factory registered for ext (with or without a
// leading dot). Returns false if the extension is unknown.
func GetDecoder(ext string) (DecoderFactory, bool) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[ext]
	return f, ok
}

// RegisteredExtensions returns every extension with a registered factory.
func RegisteredExtensions() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	exts := make([]string, 0, len(registry))
	for ext := range registry {
		exts = append(exts, ext)
	}
	return exts
}
