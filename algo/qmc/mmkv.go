package qmc

import (
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"unlock-music.dev/mmkv"

	"github.com/mayi-music/core/algo/common"
)

// readKeyFromMMKV looks up a per-file QMC key in a QQ Music Android MMKV
// vault. params.MMKVPath points at the vault directory (mirrored off the
// device's com.tencent.qqmusic mmkv folder); params.MMKVKey, when set,
// overrides the default "KEY:<filename>" lookup key some client versions
// use, since newer clients content-address the key by file hash instead of
// name.
func readKeyFromMMKV(params *common.DecoderParams) ([]byte, error) {
	if params.MMKVPath == "" {
		return nil, errors.New("qmc: no mmkv vault configured")
	}

	store, err := mmkv.Open(params.MMKVPath)
	if err != nil {
		return nil, fmt.Errorf("qmc: open mmkv vault: %w", err)
	}
	defer store.Close()

	lookupKey := params.MMKVKey
	if lookupKey == "" {
		lookupKey = "KEY:" + filepath.Base(params.FilePath)
	}

	raw, ok := store.Get(lookupKey)
	if !ok {
		return nil, fmt.Errorf("qmc: key %q not found in mmkv vault", lookupKey)
	}

	if params.Logger != nil {
		params.Logger.Debug("resolved qmc key from mmkv vault",
			zap.String("lookup_key", lookupKey), zap.Int("raw_len", len(raw)))
	}

	if decoded, err := hex.DecodeString(string(raw)); err == nil {
		return deriveKey(decoded)
	}
	return deriveKey(raw)
}
