package kstate

import (
	"context"

	"github.com/birdayz/kstreams-state/kprocessor"
	"github.com/birdayz/kstreams-state/kserde"
)

// WindowStore is the typed view of a WindowBytesStore.
type WindowStore[K, V any] struct {
	inner  WindowBytesStore
	serdes serdes[K, V]
}

func NewWindowStore[K, V any](inner WindowBytesStore, keySerde kserde.Serde[K], valueSerde kserde.Serde[V]) *WindowStore[K, V] {
	return &WindowStore[K, V]{
		inner:  inner,
		serdes: newSerdes(inner.Name(), keySerde, valueSerde),
	}
}

func (s *WindowStore[K, V]) Name() string {
	return s.inner.Name()
}

func (s *WindowStore[K, V]) Init(ctx kprocessor.StateStoreContext) error {
	if err := s.serdes.resolve(ctx); err != nil {
		return err
	}
	return s.inner.Init(ctx)
}

func (s *WindowStore[K, V]) Flush(ctx context.Context) error {
	return s.inner.Flush(ctx)
}

func (s *WindowStore[K, V]) Close() error {
	return s.inner.Close()
}

func (s *WindowStore[K, V]) Persistent() bool {
	return s.inner.Persistent()
}

func (s *WindowStore[K, V]) IsOpen() bool {
	return s.inner.IsOpen()
}

func (s *WindowStore[K, V]) WindowSize() int64 {
	return s.inner.WindowSize()
}

func (s *WindowStore[K, V]) Retention() int64 {
	return s.inner.Retention()
}

// Inner returns the wrapped byte store.
func (s *WindowStore[K, V]) Inner() WindowBytesStore {
	return s.inner
}

func (s *WindowStore[K, V]) Unwrap() StateStore {
	return s.inner
}

// Put writes value for key in the window starting at windowStart. A value
// encoding to nil deletes the window.
func (s *WindowStore[K, V]) Put(key K, value V, windowStart int64) error {
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
	return s.inner.Put(k, v, windowStart)
}

func (s *WindowStore[K, V]) Get(key K, windowStart int64) (V, bool, error) {
	var zero V
	if err := s.serdes.check(); err != nil {
		return zero, false, err
	}
	k, err := s.serdes.encodeKey(key)
	if err != nil {
		return zero, false, err
	}
	raw, err := s.inner.Get(k, windowStart)
	if err != nil {
		return zero, false, err
	}
	return s.serdes.decodeValue(raw)
}

// Fetch iterates (windowStart, value) of key with windowStart in
// [timeFrom, timeTo], oldest first.
func (s *WindowStore[K, V]) Fetch(key K, timeFrom, timeTo int64) (KeyValueIterator[int64, V], error) {
	if err := s.serdes.check(); err != nil {
		return nil, err
	}
	k, err := s.serdes.encodeKey(key)
	if err != nil {
		return nil, err
	}
	it, err := s.inner.Fetch(k, timeFrom, timeTo)
	if err != nil {
		return nil, err
	}
	return Transform(it, func(kv KeyValue[int64, []byte]) (KeyValue[int64, V], bool, error) {
		value, _, err := s.serdes.decodeValue(kv.Value)
		if err != nil {
			return KeyValue[int64, V]{}, false, err
		}
		return KeyValue[int64, V]{Key: kv.Key, Value: value}, true, nil
	}), nil
}

// FetchAll iterates all keys' windows with start in [timeFrom, timeTo],
// ordered by encoded key, then time. Keys whose encoding extends another
// key's encoding with a 0x00 byte interleave; see WindowBytesStore.FetchAll.
func (s *WindowStore[K, V]) FetchAll(timeFrom, timeTo int64) (KeyValueIterator[Windowed[K], V], error) {
	if err := s.serdes.check(); err != nil {
		return nil, err
	}
	it, err := s.inner.FetchAll(timeFrom, timeTo)
	if err != nil {
		return nil, err
	}
	return s.decodeWindowed(it), nil
}

func (s *WindowStore[K, V]) All() (KeyValueIterator[Windowed[K], V], error) {
	if err := s.serdes.check(); err != nil {
		return nil, err
	}
	it, err := s.inner.All()
	if err != nil {
		return nil, err
	}
	return s.decodeWindowed(it), nil
}

func (s *WindowStore[K, V]) ApproximateNumEntries() (int64, error) {
	if err := s.serdes.check(); err != nil {
		return 0, err
	}
	return s.inner.ApproximateNumEntries()
}

func (s *WindowStore[K, V]) decodeWindowed(it KeyValueIterator[Windowed[Bytes], []byte]) KeyValueIterator[Windowed[K], V] {
	return Transform(it, func(kv KeyValue[Windowed[Bytes], []byte]) (KeyValue[Windowed[K], V], bool, error) {
		key, err := s.serdes.decodeKey(kv.Key.Key)
		if err != nil {
			return KeyValue[Windowed[K], V]{}, false, err
		}
		value, _, err := s.serdes.decodeValue(kv.Value)
		if err != nil {
			return KeyValue[Windowed[K], V]{}, false, err
		}
		return KeyValue[Windowed[K], V]{
			Key:   Windowed[K]{Key: key, Window: kv.Key.Window},
			Value: value,
		}, true, nil
	})
}

// TimestampedWindowStore stores each windowed value together with the time
// it was written.
type TimestampedWindowStore[K, V any] struct {
	*WindowStore[K, *ValueAndTimestamp[V]]
}

func NewTimestampedWindowStore[K, V any](inner WindowBytesStore, keySerde kserde.Serde[K], valueSerde kserde.Serde[V]) *TimestampedWindowStore[K, V] {
	return &TimestampedWindowStore[K, V]{
		WindowStore: &WindowStore[K, *ValueAndTimestamp[V]]{
			inner:  inner,
			serdes: newTimestampedSerdes(inner.Name(), keySerde, valueSerde),
		},
	}
}

// PutWithTimestamp stores value, written at timestamp, in the window
// starting at windowStart.
func (s *TimestampedWindowStore[K, V]) PutWithTimestamp(key K, value V, timestamp, windowStart int64) error {
	return s.Put(key, MakeValueAndTimestamp(value, timestamp), windowStart)
}

var (
	_ StateStore = (*WindowStore[string, string])(nil)
	_ StateStore = (*TimestampedWindowStore[string, string])(nil)
)
