package ncm

import (
	"crypto/aes"
	"errors"
)

// aesECBDecrypt decrypts src (whose length must be a multiple of the AES
// block size) with key under ECB mode and strips PKCS#7 padding from the
// final block. crypto/aes exposes only block-level Decrypt; ECB mode itself
// (ciphertext split into independent blocks, no chaining) needs nothing
// beyond that, so there's no reason to pull in a block-mode library for it.
func aesECBDecrypt(key, src []byte) ([]byte, error) {
	if len(src)%aes.BlockSize != 0 {
		return nil, errors.New("ncm: ciphertext is not a multiple of the AES block size")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	dst := make([]byte, 0, len(src))
	tmp := make([]byte, aes.BlockSize)
	for i := 0; i < len(src); i += aes.BlockSize {
		block.Decrypt(tmp, src[i:i+aes.BlockSize])
		if i == len(src)-aes.BlockSize {
			pad := int(tmp[aes.BlockSize-1])
			if pad <= 0 || pad > aes.BlockSize {
				pad = 0
			}
			dst = append(dst, tmp[:aes.BlockSize-pad]...)
		} else {
			dst = append(dst, tmp...)
		}
	}
	return dst, nil
}
