package qmc

import (
	"errors"

	"github.com/mayi-music/core/internal/simd"
)

var errMapCipherEmptyKey = errors.New("qmc: map cipher requires a non-empty key")

// defaultMaskMatrix is the 44-byte seed vector QMC's default obfuscation
// expands into a 128-byte keystream. Every plain QMC extension that doesn't
// carry an embedded key (qmc0/qmc3/qmcflac/qmcogg/bkcmp3/bkcflac/tkm and
// their hex aliases) is XORed against this table, repeating every 128 bytes.
var defaultMaskMatrix = [44]byte{
	0x77, 0x26, 0x9D, 0x88, 0x86, 0x19, 0xE3, 0x5E, 0x4B, 0x4A, 0x2A, 0x24,
	0x14, 0x3F, 0x7A, 0xD1, 0x7C, 0x40, 0x32, 0xB5, 0x6A, 0x53, 0x4E, 0x29,
	0x94, 0x68, 0xBA, 0xA1, 0x69, 0x77, 0xB1, 0x31, 0xB7, 0x1D, 0x67, 0x5F,
	0x58, 0xAA, 0x0C, 0x18, 0xF7, 0x15, 0x0C, 0x9D,
}

func expandDefaultMask() []byte {
	table := make([]byte, 128)
	for i := range table {
		table[i] = defaultMaskMatrix[i%len(defaultMaskMatrix)]
	}
	return table
}

// staticCipher implements the default, stateless, position-periodic QMC
// mask: plain[n] = cipher[n] XOR table[n mod 128].
type staticCipher struct {
	table []byte
}

func newStaticCipher() *staticCipher {
	return &staticCipher{table: expandDefaultMask()}
}

func (c *staticCipher) Decrypt(buf []byte, offset int) {
	simd.XOROptimized(buf, c.table, offset)
}

// mapCipher handles keyed masks short enough (<=300 bytes, per
// NewQmcCipherDecoder) that the full RC4-variant keyed cipher isn't worth
// its key-scheduling cost: the same mod-128-style expansion the default
// mask uses, generalized from the fixed 44-byte seed to an arbitrary
// derived key.
type mapCipher struct {
	table []byte
}

func newMapCipher(key []byte) (*mapCipher, error) {
	if len(key) == 0 {
		return nil, errMapCipherEmptyKey
	}
	table := make([]byte, 128)
	for i := range table {
		table[i] = key[i%len(key)]
	}
	return &mapCipher{table: table}, nil
}

func (c *mapCipher) Decrypt(buf []byte, offset int) {
	simd.XOROptimized(buf, c.table, offset)
}
