// Package stores provides the standard store suppliers, in-memory and
// persistent, for key-value and window stores, plus shortcuts to the
// kstate builders.
// Matches Kafka Streams' org.apache.kafka.streams.state.Stores
package stores

import (
	"fmt"
	"time"

	"github.com/birdayz/kstreams-state/kserde"
	"github.com/birdayz/kstreams-state/kstate"
	"github.com/birdayz/kstreams-state/kstate/inmemory"
	"github.com/birdayz/kstreams-state/kstate/pebble"
)

// DefaultSegmentInterval is the segment width of DefaultWindowStore.
const DefaultSegmentInterval = time.Hour

// ErrInvalidParameter is kstate.ErrInvalidParameter.
var ErrInvalidParameter = kstate.ErrInvalidParameter

type keyValueSupplier struct {
	name       string
	persistent bool
}

func (s keyValueSupplier) Name() string {
	return s.name
}

func (s keyValueSupplier) Get() kstate.KeyValueBytesStore {
	if s.persistent {
		return pebble.New(s.name)
	}
	return inmemory.New(s.name)
}

func (s keyValueSupplier) MetricsScope() string {
	if s.persistent {
		return "pebble"
	}
	return "in-memory"
}

// InMemoryKeyValueStore supplies in-memory key-value stores.
func InMemoryKeyValueStore(name string) kstate.KeyValueBytesStoreSupplier {
	return keyValueSupplier{name: name}
}

// PersistentKeyValueStore supplies Pebble-backed key-value stores.
func PersistentKeyValueStore(name string) kstate.KeyValueBytesStoreSupplier {
	return keyValueSupplier{name: name, persistent: true}
}

// DefaultKeyValueStore is InMemoryKeyValueStore.
func DefaultKeyValueStore(name string) kstate.KeyValueBytesStoreSupplier {
	return InMemoryKeyValueStore(name)
}

type windowSupplier struct {
	name            string
	retention       int64
	windowSize      int64
	segmentInterval int64
	persistent      bool
}

func (s windowSupplier) Name() string {
	return s.name
}

func (s windowSupplier) Get() kstate.WindowBytesStore {
	newSegment := func(segmentName string) kstate.KeyValueBytesStore {
		return inmemory.New(segmentName)
	}
	if s.persistent {
		newSegment = func(segmentName string) kstate.KeyValueBytesStore {
			return pebble.New(segmentName)
		}
	}
	store, err := kstate.NewSegmentedBytesStore(s.name, s.retention, s.windowSize, s.segmentInterval, s.persistent, newSegment)
	if err != nil {
		// Parameters are validated by newWindowSupplier.
		return nil
	}
	return store
}

func (s windowSupplier) MetricsScope() string {
	if s.persistent {
		return "pebble-window"
	}
	return "in-memory-window"
}

func (s windowSupplier) Retention() int64       { return s.retention }
func (s windowSupplier) WindowSize() int64      { return s.windowSize }
func (s windowSupplier) SegmentInterval() int64 { return s.segmentInterval }

func newWindowSupplier(name string, retention, windowSize, segmentInterval time.Duration, persistent bool) (kstate.WindowBytesStoreSupplier, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: store name is empty", ErrInvalidParameter)
	}
	s := windowSupplier{
		name:            name,
		retention:       retention.Milliseconds(),
		windowSize:      windowSize.Milliseconds(),
		segmentInterval: segmentInterval.Milliseconds(),
		persistent:      persistent,
	}
	switch {
	case s.windowSize < 1:
		return nil, fmt.Errorf("%w: window size of store %s must be at least 1ms, got %s", ErrInvalidParameter, name, windowSize)
	case s.retention < s.windowSize:
		return nil, fmt.Errorf("%w: retention of store %s must not be smaller than its window size (%s < %s)", ErrInvalidParameter, name, retention, windowSize)
	case s.segmentInterval < 1:
		return nil, fmt.Errorf("%w: segment interval of store %s must be at least 1ms, got %s", ErrInvalidParameter, name, segmentInterval)
	}
	return s, nil
}

// InMemoryWindowStore supplies window stores whose segments live in memory.
// Durations are truncated to milliseconds.
func InMemoryWindowStore(name string, retention, windowSize, segmentInterval time.Duration) (kstate.WindowBytesStoreSupplier, error) {
	return newWindowSupplier(name, retention, windowSize, segmentInterval, false)
}

// PersistentWindowStore supplies window stores with one Pebble database per
// segment, in {stateDir}/{app}/{task}/{name}/{name}.{segmentStartMs}.
func PersistentWindowStore(name string, retention, windowSize, segmentInterval time.Duration) (kstate.WindowBytesStoreSupplier, error) {
	return newWindowSupplier(name, retention, windowSize, segmentInterval, true)
}

// DefaultWindowStore is an InMemoryWindowStore with DefaultSegmentInterval.
func DefaultWindowStore(name string, retention, windowSize time.Duration) (kstate.WindowBytesStoreSupplier, error) {
	return InMemoryWindowStore(name, retention, windowSize, DefaultSegmentInterval)
}

func KeyValueStoreBuilder[K, V any](supplier kstate.KeyValueBytesStoreSupplier, keySerde kserde.Serde[K], valueSerde kserde.Serde[V]) kstate.StoreBuilder[*kstate.KeyValueStore[K, V]] {
	return kstate.NewKeyValueStoreBuilder(supplier, keySerde, valueSerde)
}

func TimestampedKeyValueStoreBuilder[K, V any](supplier kstate.KeyValueBytesStoreSupplier, keySerde kserde.Serde[K], valueSerde kserde.Serde[V]) kstate.StoreBuilder[*kstate.TimestampedKeyValueStore[K, V]] {
	return kstate.NewTimestampedKeyValueStoreBuilder(supplier, keySerde, valueSerde)
}

func WindowStoreBuilder[K, V any](supplier kstate.WindowBytesStoreSupplier, keySerde kserde.Serde[K], valueSerde kserde.Serde[V]) kstate.StoreBuilder[*kstate.WindowStore[K, V]] {
	return kstate.NewWindowStoreBuilder(supplier, keySerde, valueSerde)
}

func TimestampedWindowStoreBuilder[K, V any](supplier kstate.WindowBytesStoreSupplier, keySerde kserde.Serde[K], valueSerde kserde.Serde[V]) kstate.StoreBuilder[*kstate.TimestampedWindowStore[K, V]] {
	return kstate.NewTimestampedWindowStoreBuilder(supplier, keySerde, valueSerde)
}
