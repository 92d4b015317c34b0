package kstate

import (
	"context"

	"github.com/birdayz/kstreams-state/kprocessor"
	"github.com/birdayz/kstreams-state/kserde"
)

// KeyValueStore is the typed view of a KeyValueBytesStore. Keys and values
// are encoded with the store's codecs; codecs passed as zero Serde values
// are taken from the task's defaults on Init.
type KeyValueStore[K, V any] struct {
	inner  KeyValueBytesStore
	serdes serdes[K, V]
}

func NewKeyValueStore[K, V any](inner KeyValueBytesStore, keySerde kserde.Serde[K], valueSerde kserde.Serde[V]) *KeyValueStore[K, V] {
	return &KeyValueStore[K, V]{
		inner:  inner,
		serdes: newSerdes(inner.Name(), keySerde, valueSerde),
	}
}

func (s *KeyValueStore[K, V]) Name() string {
	return s.inner.Name()
}

// Init resolves missing codecs, then initializes the wrapped store.
func (s *KeyValueStore[K, V]) Init(ctx kprocessor.StateStoreContext) error {
	if err := s.serdes.resolve(ctx); err != nil {
		return err
	}
	return s.inner.Init(ctx)
}

func (s *KeyValueStore[K, V]) Flush(ctx context.Context) error {
	return s.inner.Flush(ctx)
}

func (s *KeyValueStore[K, V]) Close() error {
	return s.inner.Close()
}

func (s *KeyValueStore[K, V]) Persistent() bool {
	return s.inner.Persistent()
}

func (s *KeyValueStore[K, V]) IsOpen() bool {
	return s.inner.IsOpen()
}

// Inner returns the wrapped byte store.
func (s *KeyValueStore[K, V]) Inner() KeyValueBytesStore {
	return s.inner
}

func (s *KeyValueStore[K, V]) Unwrap() StateStore {
	return s.inner
}

// Get returns the value for key. found is false, and the value V's zero
// value, when the key is absent.
func (s *KeyValueStore[K, V]) Get(key K) (V, bool, error) {
	var zero V
	if err := s.serdes.check(); err != nil {
		return zero, false, err
	}
	k, err := s.serdes.encodeKey(key)
	if err != nil {
		return zero, false, err
	}
	raw, err := s.inner.Get(k)
	if err != nil {
		return zero, false, err
	}
	return s.serdes.decodeValue(raw)
}

// Put upserts key. A value encoding to nil deletes it.
func (s *KeyValueStore[K, V]) Put(key K, value V) error {
	if err := s.serdes.check(); err != nil {
		return err
	}
	k, err := s.serdes.encodeKey(key)
	if err != nil {
		return err
	}
	v, err := s.serdes.encodeValue(value)
	if err != nil {
		return err
	}
	return s.inner.Put(k, v)
}

// PutIfAbsent stores value unless key exists, returning the value that was
// present before the call.
func (s *KeyValueStore[K, V]) PutIfAbsent(key K, value V) (V, bool, error) {
	var zero V
	if err := s.serdes.check(); err != nil {
		return zero, false, err
	}
	k, err := s.serdes.encodeKey(key)
	if err != nil {
		return zero, false, err
	}
	v, err := s.serdes.encodeValue(value)
	if err != nil {
		return zero, false, err
	}
	prev, err := s.inner.PutIfAbsent(k, v)
	if err != nil {
		return zero, false, err
	}
	return s.serdes.decodeValue(prev)
}

func (s *KeyValueStore[K, V]) PutAll(entries []KeyValue[K, V]) error {
	if err := s.serdes.check(); err != nil {
		return err
	}
	raw := make([]KeyValue[Bytes, []byte], 0, len(entries))
	for _, e := range entries {
		k, err := s.serdes.encodeKey(e.Key)
		if err != nil {
			return err
		}
		v, err := s.serdes.encodeValue(e.Value)
		if err != nil {
			return err
		}
		raw = append(raw, KeyValue[Bytes, []byte]{Key: k, Value: v})
	}
	return s.inner.PutAll(raw)
}

// Delete removes key and returns its previous value.
func (s *KeyValueStore[K, V]) Delete(key K) (V, bool, error) {
	var zero V
	if err := s.serdes.check(); err != nil {
		return zero, false, err
	}
	k, err := s.serdes.encodeKey(key)
	if err != nil {
		return zero, false, err
	}
	prev, err := s.inner.Delete(k)
	if err != nil {
		return zero, false, err
	}
	return s.serdes.decodeValue(prev)
}

// Range iterates keys whose encodings lie in [enc(from), enc(to)], in
// encoded-key order.
func (s *KeyValueStore[K, V]) Range(from, to K) (KeyValueIterator[K, V], error) {
	if err := s.serdes.check(); err != nil {
		return nil, err
	}
	f, err := s.serdes.encodeKey(from)
	if err != nil {
		return nil, err
	}
	t, err := s.serdes.encodeKey(to)
	if err != nil {
		return nil, err
	}
	it, err := s.inner.Range(f, t)
	if err != nil {
		return nil, err
	}
	return s.decode(it), nil
}

func (s *KeyValueStore[K, V]) All() (KeyValueIterator[K, V], error) {
	if err := s.serdes.check(); err != nil {
		return nil, err
	}
	it, err := s.inner.All()
	if err != nil {
		return nil, err
	}
	return s.decode(it), nil
}

func (s *KeyValueStore[K, V]) ApproximateNumEntries() (int64, error) {
	if err := s.serdes.check(); err != nil {
		return 0, err
	}
	return s.inner.ApproximateNumEntries()
}

func (s *KeyValueStore[K, V]) decode(it KeyValueIterator[Bytes, []byte]) KeyValueIterator[K, V] {
	return MapIter(it, s.serdes.store, s.serdes.key.Deserializer, s.serdes.value.Deserializer)
}

// TimestampedKeyValueStore stores each value together with the time it was
// written. Absent values are nil.
type TimestampedKeyValueStore[K, V any] struct {
	*KeyValueStore[K, *ValueAndTimestamp[V]]
}

// NewTimestampedKeyValueStore wraps inner. valueSerde is the codec of the
// plain value; the timestamp prefix is added on top of it.
func NewTimestampedKeyValueStore[K, V any](inner KeyValueBytesStore, keySerde kserde.Serde[K], valueSerde kserde.Serde[V]) *TimestampedKeyValueStore[K, V] {
	return &TimestampedKeyValueStore[K, V]{
		KeyValueStore: &KeyValueStore[K, *ValueAndTimestamp[V]]{
			inner:  inner,
			serdes: newTimestampedSerdes(inner.Name(), keySerde, valueSerde),
		},
	}
}

// PutWithTimestamp stores value written at timestamp.
func (s *TimestampedKeyValueStore[K, V]) PutWithTimestamp(key K, value V, timestamp int64) error {
	return s.Put(key, MakeValueAndTimestamp(value, timestamp))
}

var (
	_ StateStore = (*KeyValueStore[string, string])(nil)
	_ StateStore = (*TimestampedKeyValueStore[string, string])(nil)
)
