// Package raw implements the passthrough decoder for containers that were
// never encrypted to begin with (wav/mp3/flac/m4a/ogg landing in Unlocked/
// unmodified, or already-plain files re-ingested through the unlock path).
package raw

import (
	"io"

	"github.com/mayi-music/core/algo/common"
)

type Decoder struct {
	rd io.ReadSeeker
}

func NewDecoder(p *common.DecoderParams) common.Decoder {
	return &Decoder{rd: p.Reader}
}

// Validate only confirms the reader is positioned at the start; raw files
// carry no container to parse.
func (d *Decoder) Validate() error {
	_, err := d.rd.Seek(0, io.SeekStart)
	return err
}

func (d *Decoder) Read(p []byte) (int, error) {
	return d.rd.Read(p)
}

func init() {
	for _, ext := range []string{"wav", "mp3", "flac", "m4a", "ogg"} {
		common.RegisterDecoder(ext, false, NewDecoder)
	}
}
