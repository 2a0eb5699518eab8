package qmc

import (
	"bytes"
	"testing"

	"github.com/mayi-music/core/algo/common"
)

func TestStaticCipherInvolution(t *testing.T) {
	c := newStaticCipher()

	plain := bytes.Repeat([]byte("fLaCarbitrarydata"), 10)
	cipherText := append([]byte(nil), plain...)
	c.Decrypt(cipherText, 0)
	if bytes.Equal(cipherText, plain) {
		t.Fatal("Decrypt did not change the buffer")
	}

	roundTrip := append([]byte(nil), cipherText...)
	c.Decrypt(roundTrip, 0)
	if !bytes.Equal(roundTrip, plain) {
		t.Fatal("applying the static cipher twice at the same offset did not recover the plaintext")
	}
}

func TestStaticCipherEmptyPayload(t *testing.T) {
	c := newStaticCipher()
	buf := []byte{}
	c.Decrypt(buf, 0)
	if len(buf) != 0 {
		t.Fatal("expected empty buffer to remain empty")
	}
}

func TestStaticCipherSingleByte(t *testing.T) {
	c := newStaticCipher()
	buf := []byte{0x01}
	c.Decrypt(buf, 0)
	want := byte(0x01) ^ expandDefaultMask()[0]
	if buf[0] != want {
		t.Fatalf("got %#x, want %#x", buf[0], want)
	}
}

func TestStaticCipherOffsetWraps128(t *testing.T) {
	c := newStaticCipher()
	a := []byte{0x42}
	b := []byte{0x42}
	c.Decrypt(a, 5)
	c.Decrypt(b, 5+128)
	if !bytes.Equal(a, b) {
		t.Fatal("mask table should repeat with period 128")
	}
}

func TestMapCipherRejectsEmptyKey(t *testing.T) {
	if _, err := newMapCipher(nil); err == nil {
		t.Fatal("expected an error constructing a map cipher with no key")
	}
}

func TestMapCipherInvolution(t *testing.T) {
	c, err := newMapCipher([]byte("a-short-per-file-key"))
	if err != nil {
		t.Fatalf("newMapCipher: %v", err)
	}

	plain := bytes.Repeat([]byte{0xAB, 0xCD, 0xEF, 0x01}, 20)
	buf := append([]byte(nil), plain...)
	c.Decrypt(buf, 0)
	c.Decrypt(buf, 0)
	if !bytes.Equal(buf, plain) {
		t.Fatal("map cipher is not involutive at a fixed offset")
	}
}

func TestKeyedCipherInvolution(t *testing.T) {
	key := bytes.Repeat([]byte{0x11, 0x22, 0x33, 0x44, 0x55}, 70) // > 300 bytes
	c, err := newKeyedCipher(key)
	if err != nil {
		t.Fatalf("newKeyedCipher: %v", err)
	}

	plain := bytes.Repeat([]byte("streamed-audio-bytes"), 400) // spans multiple segments
	buf := append([]byte(nil), plain...)
	c.Decrypt(buf, 0)
	if bytes.Equal(buf, plain) {
		t.Fatal("Decrypt did not change the buffer")
	}
	c.Decrypt(buf, 0)
	if !bytes.Equal(buf, plain) {
		t.Fatal("keyed cipher is not involutive across a multi-segment buffer")
	}
}

func TestKeyedCipherRejectsEmptyKey(t *testing.T) {
	if _, err := newKeyedCipher(nil); err == nil {
		t.Fatal("expected an error constructing a keyed cipher with no key")
	}
}

func TestDeriveKeyRejectsEncV2Marker(t *testing.T) {
	// base64("QQMusic EncV2,Key:rest-of-the-wrapped-key")
	const wrapped = "UVFNdXNpYyBFbmNWMixLZXk6cmVzdC1vZi10aGUtd3JhcHBlZC1rZXk="
	_, err := deriveKey([]byte(wrapped))
	if err == nil {
		t.Fatal("expected EncV2-wrapped keys to be rejected")
	}
	kind, ok := common.KindOf(err)
	if !ok || kind != common.KindUnsupportedKeyedMask {
		t.Fatalf("expected UnsupportedKeyedMask, got %v (ok=%v)", kind, ok)
	}
}

func TestDeriveKeyRejectsEmpty(t *testing.T) {
	if _, err := deriveKey(nil); err == nil {
		t.Fatal("expected an error deriving a key from empty input")
	}
}

func TestNewQmcCipherDecoderSelectsByKeyLength(t *testing.T) {
	if c, err := NewQmcCipherDecoder(nil); err != nil {
		t.Fatalf("static cipher selection: %v", err)
	} else if _, ok := c.(*staticCipher); !ok {
		t.Fatalf("expected *staticCipher for an empty key, got %T", c)
	}

	if c, err := NewQmcCipherDecoder(bytes.Repeat([]byte{1}, 16)); err != nil {
		t.Fatalf("map cipher selection: %v", err)
	} else if _, ok := c.(*mapCipher); !ok {
		t.Fatalf("expected *mapCipher for a short key, got %T", c)
	}

	if c, err := NewQmcCipherDecoder(bytes.Repeat([]byte{1}, 301)); err != nil {
		t.Fatalf("keyed cipher selection: %v", err)
	} else if _, ok := c.(*keyedCipher); !ok {
		t.Fatalf("expected *keyedCipher for a long key, got %T", c)
	}
}

func TestHasEmbeddedKey(t *testing.T) {
	cases := map[string]bool{
		"mgg": true, "mgg1": true, "mflac": true, "mflaca": true,
		"qmc0": false, "qmcflac": false, "tkm": false,
	}
	for ext, want := range cases {
		if got := hasEmbeddedKey(ext); got != want {
			t.Errorf("hasEmbeddedKey(%q) = %v, want %v", ext, got, want)
		}
	}
}
