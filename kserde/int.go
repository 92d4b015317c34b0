package kserde

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrInvalidLength is returned by fixed-width deserializers for input of the
// wrong size.
var ErrInvalidLength = errors.New("invalid encoded length")

func checkWidth(kind string, data []byte, width int) error {
	if len(data) != width {
		return fmt.Errorf("decode %s: %w: want %d bytes, got %d", kind, ErrInvalidLength, width, len(data))
	}
	return nil
}

// Integers are big-endian two's complement. Non-negative values sort in
// byte order, which keeps range scans over integer keys meaningful.

var Int64Serializer = func(v int64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), uint64(v)), nil
}

var Int64Deserializer = func(data []byte) (int64, error) {
	if err := checkWidth("int64", data, 8); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(data)), nil
}

var Int64 = Serde[int64]{Serializer: Int64Serializer, Deserializer: Int64Deserializer}

var Int32Serializer = func(v int32) ([]byte, error) {
	return binary.BigEndian.AppendUint32(make([]byte, 0, 4), uint32(v)), nil
}

var Int32Deserializer = func(data []byte) (int32, error) {
	if err := checkWidth("int32", data, 4); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(data)), nil
}

var Int32 = Serde[int32]{Serializer: Int32Serializer, Deserializer: Int32Deserializer}
