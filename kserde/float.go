package kserde

import (
	"encoding/binary"
	"math"
)

// Float64 encodes the IEEE 754 bits big-endian.
var Float64 = Serde[float64]{Serializer: Float64Serializer, Deserializer: Float64Deserializer}

var Float64Serializer = func(v float64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), math.Float64bits(v)), nil
}

var Float64Deserializer = func(data []byte) (float64, error) {
	if err := checkWidth("float64", data, 8); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(data)), nil
}
