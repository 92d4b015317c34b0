// Package kstate provides the local state stores of a stream-processing task:
// raw byte stores, the segmented window index, typed and timestamped store
// wrappers, and the builders that assemble them.
package kstate

import (
	"context"

	"github.com/birdayz/kstreams-state/kprocessor"
)

// StateStore is the base interface for all state stores
// Matches Kafka Streams' org.apache.kafka.streams.processor.StateStore
type StateStore interface {
	// Name returns the store name, fixed for the store's lifetime.
	Name() string

	// Init binds the store to its owning task and opens its resources.
	// Calling Init again on an open store is a no-op; calling it after
	// Close reopens the store.
	Init(ctx kprocessor.StateStoreContext) error

	// Flush forces durability of pending writes.
	Flush(ctx context.Context) error

	// Close releases the store's resources. Persistent data is retained.
	Close() error

	// Persistent returns true if the store persists data to disk
	Persistent() bool

	// IsOpen reports whether the store is initialized and not closed.
	IsOpen() bool
}

// KeyValueBytesStore is the byte-level key/value store every backend
// implements. A nil value means "absent": Get returns nil for a missing key,
// and Put(key, nil) deletes key.
type KeyValueBytesStore interface {
	StateStore

	Get(key Bytes) ([]byte, error)

	// Put upserts key. A nil value deletes it.
	Put(key Bytes, value []byte) error

	// PutIfAbsent stores value only if key is missing and returns the value
	// that was present before the call (nil if none).
	PutIfAbsent(key Bytes, value []byte) ([]byte, error)

	// PutAll applies entries in order; a nil value deletes the key even if
	// an earlier entry of the same batch wrote it.
	PutAll(entries []KeyValue[Bytes, []byte]) error

	// Delete removes key and returns its previous value (nil if none).
	Delete(key Bytes) ([]byte, error)

	// Range iterates over from <= key <= to in ascending order over a
	// snapshot taken at call time. The iterator must be closed.
	Range(from, to Bytes) (KeyValueIterator[Bytes, []byte], error)

	// All iterates over every entry in ascending key order.
	All() (KeyValueIterator[Bytes, []byte], error)

	ApproximateNumEntries() (int64, error)
}

// Window is the half-open interval [Start, End) in epoch milliseconds.
type Window struct {
	Start int64
	End   int64
}

// Windowed is a key qualified by the window it belongs to.
type Windowed[K any] struct {
	Key    K
	Window Window
}

// WindowBytesStore is the byte-level windowed store. Entries are keyed by
// (key, windowStart).
type WindowBytesStore interface {
	StateStore

	// Put writes value for key in the window starting at windowStart.
	// A nil value deletes the entry.
	Put(key Bytes, value []byte, windowStart int64) error

	// Get returns the value for key in the window starting at windowStart.
	Get(key Bytes, windowStart int64) ([]byte, error)

	// Fetch iterates (windowStart, value) for key over timeFrom <=
	// windowStart <= timeTo in ascending time order.
	Fetch(key Bytes, timeFrom, timeTo int64) (KeyValueIterator[int64, []byte], error)

	// FetchAll iterates every key's windows with start in [timeFrom, timeTo]
	// in window store key order (key ++ big-endian windowStart). That is key,
	// then time, unless one key extends another with a 0x00 byte: the
	// windows of "a" and "a\x00..." interleave by time.
	FetchAll(timeFrom, timeTo int64) (KeyValueIterator[Windowed[Bytes], []byte], error)

	// All iterates every live window.
	All() (KeyValueIterator[Windowed[Bytes], []byte], error)

	ApproximateNumEntries() (int64, error)

	WindowSize() int64
	Retention() int64
}

// Destroyer is implemented by persistent stores that can remove their
// physical resources. Destroy is only valid after Close.
type Destroyer interface {
	Destroy() error
}

// KeyValueBytesStoreSupplier produces a fresh KeyValueBytesStore per call.
type KeyValueBytesStoreSupplier interface {
	Name() string
	Get() KeyValueBytesStore
	MetricsScope() string
}

// WindowBytesStoreSupplier produces a fresh WindowBytesStore per call.
type WindowBytesStoreSupplier interface {
	Name() string
	Get() WindowBytesStore
	MetricsScope() string

	// Retention, WindowSize and SegmentInterval in milliseconds.
	Retention() int64
	WindowSize() int64
	SegmentInterval() int64
}
