package kstate

import (
	"fmt"

	"github.com/birdayz/kstreams-state/kprocessor"
	"github.com/birdayz/kstreams-state/kserde"
)

// serdes holds a typed store's codecs. Codecs left unset at construction
// are resolved from the task context on the first Init, exactly once.
type serdes[K, V any] struct {
	store        string
	key          kserde.Serde[K]
	value        kserde.Serde[V]
	defaultValue func(kprocessor.StateStoreContext) (kserde.Serde[V], error)
	resolved     bool
}

func newSerdes[K, V any](store string, key kserde.Serde[K], value kserde.Serde[V]) serdes[K, V] {
	return serdes[K, V]{
		store:        store,
		key:          key,
		value:        value,
		defaultValue: kprocessor.DefaultValueSerde[V],
	}
}

// newTimestampedSerdes wraps the value codec, explicit or default, in the
// value-and-timestamp format.
func newTimestampedSerdes[K, V any](store string, key kserde.Serde[K], value kserde.Serde[V]) serdes[K, *ValueAndTimestamp[V]] {
	s := serdes[K, *ValueAndTimestamp[V]]{
		store: store,
		key:   key,
		defaultValue: func(ctx kprocessor.StateStoreContext) (kserde.Serde[*ValueAndTimestamp[V]], error) {
			inner, err := kprocessor.DefaultValueSerde[V](ctx)
			if err != nil {
				return kserde.Serde[*ValueAndTimestamp[V]]{}, err
			}
			return ValueAndTimestampSerde(inner), nil
		},
	}
	if value.Configured() {
		s.value = ValueAndTimestampSerde(value)
	}
	return s
}

func (s *serdes[K, V]) resolve(ctx kprocessor.StateStoreContext) error {
	if s.resolved {
		return nil
	}
	if !s.key.Configured() {
		key, err := kprocessor.DefaultKeySerde[K](ctx)
		if err != nil {
			return fmt.Errorf("init store %s: %w", s.store, err)
		}
		s.key = key
	}
	if !s.value.Configured() {
		value, err := s.defaultValue(ctx)
		if err != nil {
			return fmt.Errorf("init store %s: %w", s.store, err)
		}
		s.value = value
	}
	s.resolved = true
	return nil
}

func (s *serdes[K, V]) check() error {
	if !s.resolved {
		return fmt.Errorf("store %s: %w", s.store, ErrNotInitialized)
	}
	return nil
}

func (s *serdes[K, V]) encodeKey(key K) (Bytes, error) {
	b, err := s.key.Serializer(key)
	if err != nil {
		return Bytes{}, CodecError(s.store, "encode key", err)
	}
	return NewBytes(b), nil
}

func (s *serdes[K, V]) decodeKey(b Bytes) (K, error) {
	key, err := s.key.Deserializer(b.Get())
	if err != nil {
		return key, CodecError(s.store, "decode key", err)
	}
	return key, nil
}

func (s *serdes[K, V]) encodeValue(value V) ([]byte, error) {
	b, err := s.value.Serializer(value)
	if err != nil {
		return nil, CodecError(s.store, "encode value", err)
	}
	return b, nil
}

// decodeValue maps absent (nil) to V's zero value and found=false.
func (s *serdes[K, V]) decodeValue(b []byte) (V, bool, error) {
	var zero V
	if b == nil {
		return zero, false, nil
	}
	value, err := s.value.Deserializer(b)
	if err != nil {
		return zero, false, CodecError(s.store, "decode value", err)
	}
	return value, true, nil
}
