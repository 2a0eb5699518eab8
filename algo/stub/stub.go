// Package stub registers the dispatch-table entries for container formats
// this engine recognizes but does not decode: Kugou (kgm/kgma/vpr), Kuwo
// (kwm), Xiami (xm), and the Netease cache container (uc). Registering them
// lets the dispatcher distinguish "known format, no decoder yet" from
// "never heard of this extension", the same role a Decoder whose
// Validate() fails hard for crypto versions it hasn't implemented plays
// while still occupying a real dispatch-table slot.
package stub

import (
	"fmt"
	"io"

	"github.com/mayi-music/core/algo/common"
)

type Decoder struct {
	rd     io.ReadSeeker
	format string
}

func newDecoder(format string) common.DecoderFactory {
	return func(p *common.DecoderParams) common.Decoder {
		return &Decoder{rd: p.Reader, format: format}
	}
}

func (d *Decoder) Validate() error {
	return common.NewError(common.KindUnsupportedFormat, "stub.Validate", "",
		fmt.Errorf("%s: decoder not implemented", d.format))
}

func (d *Decoder) Read(p []byte) (int, error) {
	return 0, io.EOF
}

func init() {
	common.RegisterDecoder("kgm", false, newDecoder("kgm"))
	common.RegisterDecoder("kgma", false, newDecoder("kgma"))
	common.RegisterDecoder("vpr", false, newDecoder("vpr"))
	common.RegisterDecoder("kwm", false, newDecoder("kwm"))
	common.RegisterDecoder("xm", false, newDecoder("xm"))
	common.RegisterDecoder("uc", false, newDecoder("uc"))
}
