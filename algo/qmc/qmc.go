// Package qmc implements the Tencent QQ Music container family: a default
// stateless XOR mask for qmc0/qmc3/qmcflac/qmcogg/bkc*/tkm, and a keyed
// variant for mgg/mflac whose 128-byte table is derived from a per-file
// embedded key.
package qmc

import (
	"encoding/binary"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/mayi-music/core/algo/common"
	"github.com/mayi-music/core/internal/pool"
	"github.com/mayi-music/core/internal/sniff"
)

type Decoder struct {
	raw    io.ReadSeeker
	params *common.DecoderParams

	audio    io.Reader
	audioLen int
	offset   int

	cipher common.StreamDecoder
	logger *zap.Logger
}

func NewDecoder(p *common.DecoderParams) common.Decoder {
	return &Decoder{raw: p.Reader, params: p, logger: p.Logger}
}

func (d *Decoder) Read(p []byte) (int, error) {
	n, err := d.audio.Read(p)
	if n > 0 {
		d.cipher.Decrypt(p[:n], d.offset)
		d.offset += n
	}
	return n, err
}

// NewQmcCipherDecoder picks a StreamDecoder by key shape: no key means the
// default static mask, a short key uses the map cipher, and a long
// (fully-unwrapped QMCv2) key uses the full keyed RC4-variant cipher.
func NewQmcCipherDecoder(key []byte) (common.StreamDecoder, error) {
	switch {
	case len(key) > 300:
		return newKeyedCipher(key)
	case len(key) != 0:
		return newMapCipher(key)
	default:
		return newStaticCipher(), nil
	}
}

func NewQmcCipherDecoderFromEKey(ekey []byte) (common.StreamDecoder, error) {
	key, err := deriveKey(ekey)
	if err != nil {
		return nil, err
	}
	return NewQmcCipherDecoder(key)
}

func (d *Decoder) Validate() error {
	if err := d.searchKeyAndCipher(); err != nil {
		return err
	}

	if _, err := d.raw.Seek(0, io.SeekStart); err != nil {
		return common.NewError(common.KindIO, "qmc.Validate", d.params.FilePath, err)
	}
	buf := pool.GetBuffer(256)
	defer pool.PutBuffer(buf)
	if _, err := io.ReadFull(d.raw, buf); err != nil {
		return common.NewError(common.KindInvalidMagic, "qmc.Validate", d.params.FilePath, err)
	}
	d.cipher.Decrypt(buf, 0)
	if _, ok := sniff.AudioExtension(buf); !ok {
		return common.NewError(common.KindCryptoFailure, "qmc.Validate", d.params.FilePath,
			errors.New("decrypted header does not match any known audio signature"))
	}

	if _, err := d.raw.Seek(0, io.SeekStart); err != nil {
		return common.NewError(common.KindIO, "qmc.Validate", d.params.FilePath, err)
	}
	d.audio = io.LimitReader(d.raw, int64(d.audioLen))
	return nil
}

// searchKeyAndCipher implements spec.md §4.1: extensions with an embedded
// trailing key (mgg/mflac) carry, in the last 4 bytes, a little-endian u32
// key length L; the key occupies the L bytes immediately before those 4,
// and the audio body is file[0 .. len-4-L]. Every other extension has no
// embedded key and uses the default mask over the whole file.
func (d *Decoder) searchKeyAndCipher() error {
	fileSize, err := d.raw.Seek(0, io.SeekEnd)
	if err != nil {
		return common.NewError(common.KindIO, "qmc.searchKey", d.params.FilePath, err)
	}

	if !hasEmbeddedKey(d.params.Extension) {
		d.audioLen = int(fileSize)
		d.cipher = newStaticCipher()
		return nil
	}

	if fileSize < 4 {
		return common.NewError(common.KindInvalidMagic, "qmc.searchKey", d.params.FilePath,
			errors.New("file too short to carry an embedded key"))
	}

	if _, err := d.raw.Seek(-4, io.SeekEnd); err != nil {
		return common.NewError(common.KindIO, "qmc.searchKey", d.params.FilePath, err)
	}
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(d.raw, lenBuf); err != nil {
		return common.NewError(common.KindIO, "qmc.searchKey", d.params.FilePath, err)
	}
	keyLen := int64(binary.LittleEndian.Uint32(lenBuf))

	if keyLen <= 0 || keyLen > fileSize-4 {
		key, mmkvErr := readKeyFromMMKV(d.params)
		if mmkvErr != nil {
			return common.NewError(common.KindUnsupportedKeyedMask, "qmc.searchKey", d.params.FilePath, mmkvErr)
		}
		d.audioLen = int(fileSize)
		cipher, err := NewQmcCipherDecoder(key)
		if err != nil {
			return common.NewError(common.KindUnsupportedKeyedMask, "qmc.searchKey", d.params.FilePath, err)
		}
		d.cipher = cipher
		return nil
	}

	d.audioLen = int(fileSize - 4 - keyLen)
	if _, err := d.raw.Seek(int64(d.audioLen), io.SeekStart); err != nil {
		return common.NewError(common.KindIO, "qmc.searchKey", d.params.FilePath, err)
	}
	ekey := make([]byte, keyLen)
	if _, err := io.ReadFull(d.raw, ekey); err != nil {
		return common.NewError(common.KindIO, "qmc.searchKey", d.params.FilePath, err)
	}

	cipher, err := NewQmcCipherDecoderFromEKey(ekey)
	if err != nil {
		if d.params.MMKVPath != "" {
			if key, mmkvErr := readKeyFromMMKV(d.params); mmkvErr == nil {
				if cipher, err = NewQmcCipherDecoder(key); err == nil {
					d.cipher = cipher
					return nil
				}
			}
		}
		return err
	}
	d.cipher = cipher
	return nil
}

func hasEmbeddedKey(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	return strings.HasPrefix(ext, "mgg") || strings.HasPrefix(ext, "mflac")
}

//goland:noinspection SpellCheckingInspection
func init() {
	plainExts := []string{
		"qmc0", "qmc3", // QQ Music MP3
		"qmc2", "qmc4", "qmc6", "qmc8", // QQ Music M4A
		"qmcflac", // QQ Music FLAC
		"qmcogg",  // QQ Music OGG
		"tkm",     // QQ Music accompaniment M4A
		"bkcmp3", "bkcflac", // Moo Music
		"666c6163", // hex("flac") - QQ Music Weiyun Flac
		"6d7033",   // hex("mp3")  - QQ Music Weiyun Mp3
	}
	for _, ext := range plainExts {
		common.RegisterDecoder(ext, false, NewDecoder)
	}

	extraExtsCanHaveSuffix := []string{"mgg", "mflac"}
	extraExtSuffix := []string{"0", "1", "a", "h", "l", "m"}
	for _, ext := range extraExtsCanHaveSuffix {
		common.RegisterDecoder(ext, false, NewDecoder)
		for _, suffix := range extraExtSuffix {
			common.RegisterDecoder(ext+suffix, false, NewDecoder)
		}
	}
}
