package kstate

import (
	"encoding/binary"
	"fmt"

	"github.com/birdayz/kstreams-state/kserde"
)

const timestampSize = 8

// ValueAndTimestamp pairs a value with the epoch-millisecond time it was
// last written. Timestamped stores hold *ValueAndTimestamp[V]; nil stands
// for "no value".
type ValueAndTimestamp[V any] struct {
	Value     V
	Timestamp int64
}

// MakeValueAndTimestamp returns &ValueAndTimestamp{v, ts}.
func MakeValueAndTimestamp[V any](v V, ts int64) *ValueAndTimestamp[V] {
	return &ValueAndTimestamp[V]{Value: v, Timestamp: ts}
}

// ValueOrZero returns the wrapped value, or V's zero value for nil.
func ValueOrZero[V any](vt *ValueAndTimestamp[V]) V {
	if vt == nil {
		var zero V
		return zero
	}
	return vt.Value
}

// ValueAndTimestampSerde layers an 8-byte big-endian timestamp prefix over
// inner. A nil *ValueAndTimestamp encodes to nil (absent), as does a value
// whose inner encoding is nil; an absent payload decodes to nil.
func ValueAndTimestampSerde[V any](inner kserde.Serde[V]) kserde.Serde[*ValueAndTimestamp[V]] {
	return kserde.Serde[*ValueAndTimestamp[V]]{
		Serializer:   ValueAndTimestampSerializer(inner.Serializer),
		Deserializer: ValueAndTimestampDeserializer(inner.Deserializer),
	}
}

func ValueAndTimestampSerializer[V any](inner kserde.Serializer[V]) kserde.Serializer[*ValueAndTimestamp[V]] {
	return func(vt *ValueAndTimestamp[V]) ([]byte, error) {
		if vt == nil {
			return nil, nil
		}
		raw, err := inner(vt.Value)
		if err != nil {
			return nil, err
		}
		if raw == nil {
			return nil, nil
		}
		buf := make([]byte, timestampSize+len(raw))
		binary.BigEndian.PutUint64(buf, uint64(vt.Timestamp))
		copy(buf[timestampSize:], raw)
		return buf, nil
	}
}

func ValueAndTimestampDeserializer[V any](inner kserde.Deserializer[V]) kserde.Deserializer[*ValueAndTimestamp[V]] {
	return func(data []byte) (*ValueAndTimestamp[V], error) {
		if data == nil {
			return nil, nil
		}
		if len(data) < timestampSize {
			return nil, fmt.Errorf("value and timestamp requires at least %d bytes, got %d", timestampSize, len(data))
		}
		v, err := inner(data[timestampSize:])
		if err != nil {
			return nil, err
		}
		return &ValueAndTimestamp[V]{
			Value:     v,
			Timestamp: int64(binary.BigEndian.Uint64(data)),
		}, nil
	}
}
