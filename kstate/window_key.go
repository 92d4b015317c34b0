package kstate

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Window store keys are the raw key followed by the big-endian window start:
//
//	key bytes | windowStart (8 bytes, big-endian)
//
// Non-negative timestamps sort numerically under byte order, so one key's
// windows are contiguous and time ordered.

func windowStoreKey(key Bytes, windowStart int64) Bytes {
	buf := make([]byte, len(key.s)+timestampSize)
	copy(buf, key.s)
	binary.BigEndian.PutUint64(buf[len(key.s):], uint64(windowStart))
	return NewBytes(buf)
}

func splitWindowStoreKey(storeKey Bytes) (Bytes, int64, error) {
	if len(storeKey.s) < timestampSize {
		return Bytes{}, 0, fmt.Errorf("window store key requires at least %d bytes, got %d", timestampSize, len(storeKey.s))
	}
	n := len(storeKey.s) - timestampSize
	return Bytes{s: storeKey.s[:n]}, int64(binary.BigEndian.Uint64([]byte(storeKey.s[n:]))), nil
}

// isWindowOf reports whether storeKey is a window store key of key.
func isWindowOf(storeKey, key Bytes) bool {
	return len(storeKey.s) == len(key.s)+timestampSize && strings.HasPrefix(storeKey.s, key.s)
}
