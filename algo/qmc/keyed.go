package qmc

import (
	"bytes"
	"encoding/base64"
	"errors"
	"sync"

	"github.com/mayi-music/core/algo/common"
)

// encV2Marker identifies an mgg/mflac embedded key that has gone through
// QQ Music's proprietary "EncV2" TEA-based wrapping. Unwrapping it requires
// an algorithm this engine does not reproduce (see DESIGN.md, Open
// Question 1); keys carrying it are rejected with UnsupportedKeyedMask
// rather than silently producing garbage audio.
var encV2Marker = []byte("QQMusic EncV2,Key:")

// deriveKey turns an mgg/mflac file's trailing embedded key (or an MMKV
// vault lookup result) into the raw key bytes the keyed cipher below
// consumes. The embedded key is standard base64, padded or unpadded; trailing
// NUL bytes are trimmed before decoding.
func deriveKey(ekey []byte) ([]byte, error) {
	ekey = bytes.TrimRight(ekey, "\x00")
	if len(ekey) == 0 {
		return nil, common.NewError(common.KindUnsupportedKeyedMask, "qmc.deriveKey", "",
			errors.New("empty embedded key"))
	}

	decoded, err := base64.StdEncoding.DecodeString(string(ekey))
	if err != nil {
		// some clients emit unpadded base64
		decoded, err = base64.RawStdEncoding.DecodeString(string(ekey))
		if err != nil {
			return nil, common.NewError(common.KindUnsupportedKeyedMask, "qmc.deriveKey", "", err)
		}
	}

	if bytes.HasPrefix(decoded, encV2Marker) {
		return nil, common.NewError(common.KindUnsupportedKeyedMask, "qmc.deriveKey", "",
			errors.New("EncV2 key wrapping requires the proprietary TEA unwrap, not implemented"))
	}

	return decoded, nil
}

// rc4BoxPool reuses the per-segment S-box scratch array across Decrypt
// calls; box size is fixed per cipher instance (len(key)) so one pool entry
// per key length suffices for the life of a process.
type rc4BoxPool struct {
	mu    sync.RWMutex
	pools map[int]*sync.Pool
}

var globalRC4BoxPool = &rc4BoxPool{pools: make(map[int]*sync.Pool)}

func (p *rc4BoxPool) Get(size int) []byte {
	p.mu.RLock()
	pool, ok := p.pools[size]
	p.mu.RUnlock()
	if !ok {
		p.mu.Lock()
		if pool, ok = p.pools[size]; !ok {
			pool = &sync.Pool{New: func() any { return make([]byte, size) }}
			p.pools[size] = pool
		}
		p.mu.Unlock()
	}
	return pool.Get().([]byte)
}

func (p *rc4BoxPool) Put(box []byte) {
	if len(box) == 0 {
		return
	}
	p.mu.RLock()
	pool, ok := p.pools[len(box)]
	p.mu.RUnlock()
	if ok {
		clear(box)
		pool.Put(box)
	}
}

const (
	keyedSegmentSize      = 5120
	keyedFirstSegmentSize = 128
)

// keyedCipher is the RC4-variant QMCv2 "keyed mask": once a raw per-file
// key is known (see deriveKey), the first 128 bytes are XORed with key bytes
// chosen by segmentSkip, and every later 5120-byte segment runs an RC4-style
// keystream over a len(key)-byte S-box, starting after a skip derived from a
// multiplicative hash of the key and the segment index.
type keyedCipher struct {
	box  []byte
	key  []byte
	hash uint32
	n    int
}

func newKeyedCipher(key []byte) (*keyedCipher, error) {
	n := len(key)
	if n == 0 {
		return nil, errors.New("qmc: keyed cipher requires a non-empty key")
	}

	c := &keyedCipher{key: key, n: n, box: make([]byte, n)}
	for i := 0; i < n; i++ {
		c.box[i] = byte(i)
	}
	j := 0
	for i := 0; i < n; i++ {
		j = (j + int(c.box[i]) + int(key[i%n])) % n
		c.box[i], c.box[j] = c.box[j], c.box[i]
	}
	c.hash = keyHashBase(key)
	return c, nil
}

func keyHashBase(key []byte) uint32 {
	hash := uint32(1)
	for _, b := range key {
		if b == 0 {
			continue
		}
		next := hash * uint32(b)
		if next == 0 || next <= hash {
			break
		}
		hash = next
	}
	return hash
}

func (c *keyedCipher) Decrypt(src []byte, offset int) {
	toProcess := len(src)
	processed := 0
	advance := func(n int) bool {
		offset += n
		toProcess -= n
		processed += n
		return toProcess == 0
	}

	if offset < keyedFirstSegmentSize {
		n := toProcess
		if n > keyedFirstSegmentSize-offset {
			n = keyedFirstSegmentSize - offset
		}
		c.decryptFirstSegment(src[:n], offset)
		if advance(n) {
			return
		}
	}

	if offset%keyedSegmentSize != 0 {
		n := toProcess
		if n > keyedSegmentSize-offset%keyedSegmentSize {
			n = keyedSegmentSize - offset%keyedSegmentSize
		}
		c.decryptSegment(src[processed:processed+n], offset)
		if advance(n) {
			return
		}
	}

	for toProcess > keyedSegmentSize {
		c.decryptSegment(src[processed:processed+keyedSegmentSize], offset)
		advance(keyedSegmentSize)
	}
	if toProcess > 0 {
		c.decryptSegment(src[processed:], offset)
	}
}

func (c *keyedCipher) decryptFirstSegment(buf []byte, offset int) {
	for i := range buf {
		buf[i] ^= c.key[c.segmentSkip(offset+i)]
	}
}

func (c *keyedCipher) decryptSegment(buf []byte, offset int) {
	box := globalRC4BoxPool.Get(c.n)
	defer globalRC4BoxPool.Put(box)
	copy(box, c.box)

	j, k := 0, 0
	skip := (offset % keyedSegmentSize) + c.segmentSkip(offset/keyedSegmentSize)
	for i := -skip; i < len(buf); i++ {
		j = (j + 1) % c.n
		k = (int(box[j]) + k) % c.n
		box[j], box[k] = box[k], box[j]
		if i >= 0 {
			buf[i] ^= box[(int(box[j])+int(box[k]))%c.n]
		}
	}
}

func (c *keyedCipher) segmentSkip(id int) int {
	seed := int(c.key[id%c.n])
	idx := int64(float64(c.hash) / float64((id+1)*seed) * 100.0)
	return int(idx % int64(c.n))
}
