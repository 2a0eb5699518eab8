// Package ncm implements Netease Cloud Music's NCM container: an
// AES-128-ECB-wrapped RC4-variant key, AES-128-ECB-wrapped JSON metadata,
// an optional embedded cover image, and an RC4-variant-keyed audio stream.
package ncm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/mayi-music/core/algo/common"
)

var (
	ncmMagic = []byte{0x43, 0x54, 0x45, 0x4E, 0x46, 0x44, 0x41, 0x4D} // "CTENFDAM"

	// coreKey decrypts the RC4-variant key blob; modifyKey decrypts the
	// metadata blob. Both are fixed constants baked into every Netease
	// desktop client build, not per-file secrets.
	coreKey   = []byte("hzHRAmso5kInbaxW")
	modifyKey = []byte("#14ljk_!\\]&0U<'(")

	// corePreamble is discarded from the front of the decrypted key blob
	// before what remains is fed into the keystream key schedule.
	corePreamble = 17
)

type Decoder struct {
	raw    io.ReadSeeker
	params *common.DecoderParams
	logger *zap.Logger

	audio  io.Reader
	offset int

	cipher *cipher
	meta   *meta
	cover  []byte
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

func (d *Decoder) Validate() error {
	if err := d.checkMagic(); err != nil {
		return err
	}
	if _, err := d.seekRelative(2); err != nil { // version, unused
		return d.ioErr("skip version", err)
	}

	key, err := d.readKeyBlob()
	if err != nil {
		return err
	}
	d.cipher = newCipher(key)

	if err := d.readMetadataBlob(); err != nil {
		return err
	}

	if err := d.readCoverSection(); err != nil {
		return err
	}

	d.audio = d.raw
	return nil
}

func (d *Decoder) checkMagic() error {
	if _, err := d.raw.Seek(0, io.SeekStart); err != nil {
		return d.ioErr("seek start", err)
	}
	header := make([]byte, len(ncmMagic))
	if _, err := io.ReadFull(d.raw, header); err != nil {
		return common.NewError(common.KindInvalidMagic, "ncm.Validate", d.params.FilePath, err)
	}
	if !bytes.Equal(header, ncmMagic) {
		return common.NewError(common.KindInvalidMagic, "ncm.Validate", d.params.FilePath,
			errors.New("missing CTENFDAM magic"))
	}
	return nil
}

func (d *Decoder) readKeyBlob() ([]byte, error) {
	keyLen, err := d.readLE32()
	if err != nil {
		return nil, d.ioErr("read key length", err)
	}
	raw := make([]byte, keyLen)
	if _, err := io.ReadFull(d.raw, raw); err != nil {
		return nil, d.ioErr("read key blob", err)
	}
	for i := range raw {
		raw[i] ^= 0x64
	}

	plain, err := aesECBDecrypt(coreKey, raw)
	if err != nil {
		return nil, common.NewError(common.KindCryptoFailure, "ncm.readKeyBlob", d.params.FilePath, err)
	}
	if len(plain) <= corePreamble {
		return nil, common.NewError(common.KindCryptoFailure, "ncm.readKeyBlob", d.params.FilePath,
			errors.New("decrypted key blob shorter than the expected preamble"))
	}
	return plain[corePreamble:], nil
}

func (d *Decoder) readMetadataBlob() error {
	metaLen, err := d.readLE32()
	if err != nil {
		return d.ioErr("read metadata length", err)
	}
	if metaLen == 0 {
		d.meta = nil
		return nil
	}

	raw := make([]byte, metaLen)
	if _, err := io.ReadFull(d.raw, raw); err != nil {
		return d.ioErr("read metadata blob", err)
	}
	for i := range raw {
		raw[i] ^= 0x63
	}
	if len(raw) <= 22 {
		return common.NewError(common.KindMetadataParseFailure, "ncm.readMetadataBlob", d.params.FilePath,
			errors.New("metadata blob shorter than the fixed 22-byte preamble"))
	}

	// The first 22 bytes are the fixed "163 key(Don't modify):" marker; the
	// base64 payload starts right after. The "music:"/"dj:" tag is part of
	// the decrypted plaintext, not of this preamble.
	encoded := raw[22:]
	decoded, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return common.NewError(common.KindMetadataParseFailure, "ncm.readMetadataBlob", d.params.FilePath, err)
	}

	plain, err := aesECBDecrypt(modifyKey, decoded)
	if err != nil {
		return common.NewError(common.KindCryptoFailure, "ncm.readMetadataBlob", d.params.FilePath, err)
	}
	if len(plain) == 0 {
		return common.NewError(common.KindMetadataParseFailure, "ncm.readMetadataBlob", d.params.FilePath,
			errors.New("decrypted metadata is empty"))
	}

	// plain is "music:<json>" or "dj:<json>"; parseMetadata splits on the
	// first colon itself.
	d.meta = parseMetadata(string(plain))
	return nil
}

func (d *Decoder) readCoverSection() error {
	if _, err := d.seekRelative(5); err != nil { // fixed gap
		return d.ioErr("skip cover gap", err)
	}

	frameLen, err := d.readLE32()
	if err != nil {
		return d.ioErr("read cover frame length", err)
	}
	dataLen, err := d.readLE32()
	if err != nil {
		return d.ioErr("read cover data length", err)
	}

	if dataLen > 0 {
		d.cover = make([]byte, dataLen)
		if _, err := io.ReadFull(d.raw, d.cover); err != nil {
			return d.ioErr("read cover bytes", err)
		}
	}
	if remaining := int64(frameLen) - int64(dataLen); remaining > 0 {
		if _, err := d.seekRelative(remaining); err != nil {
			return d.ioErr("skip cover padding", err)
		}
	}
	return nil
}

func (d *Decoder) readLE32() (uint32, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(d.raw, buf); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func (d *Decoder) seekRelative(n int64) (int64, error) {
	return d.raw.Seek(n, io.SeekCurrent)
}

func (d *Decoder) ioErr(op string, err error) error {
	return common.NewError(common.KindIO, "ncm."+op, d.params.FilePath, err)
}

// GetAudioMeta implements common.AudioMetaGetter: NCM carries its own tag
// data encrypted inside the container, so there's no need for the generic
// metadata extractor to re-derive it from the decrypted audio stream.
func (d *Decoder) GetAudioMeta(ctx context.Context) (common.AudioMeta, error) {
	if d.meta == nil {
		return nil, common.NewError(common.KindMetadataParseFailure, "ncm.GetAudioMeta", d.params.FilePath,
			errors.New("file carried no embedded metadata block"))
	}
	return d.meta, nil
}

// GetCover implements common.CoverGetter for the rare NCM file that embeds
// its cover image directly rather than only a remote URL (pre-3.0 clients).
func (d *Decoder) GetCover(ctx context.Context) ([]byte, error) {
	if len(d.cover) == 0 {
		return nil, errors.New("ncm: no embedded cover image")
	}
	return d.cover, nil
}

// AlbumImageURL exposes the rewritten remote cover URL the metadata blob
// carried, when a caller wants the URL instead of an embedded image.
func (d *Decoder) AlbumImageURL() string {
	if d.meta == nil {
		return ""
	}
	return d.meta.albumPic
}

func init() {
	common.RegisterDecoder("ncm", false, NewDecoder)
}
