package stores

import (
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kstreams-state/kserde"
	"github.com/birdayz/kstreams-state/kstate"
	"github.com/birdayz/kstreams-state/kstate/inmemory"
	"github.com/birdayz/kstreams-state/kstate/pebble"
)

func TestKeyValueSuppliers(t *testing.T) {
	for _, tt := range []struct {
		supplier   kstate.KeyValueBytesStoreSupplier
		persistent bool
		scope      string
	}{
		{InMemoryKeyValueStore("s"), false, "in-memory"},
		{PersistentKeyValueStore("s"), true, "pebble"},
		{DefaultKeyValueStore("s"), false, "in-memory"},
	} {
		t.Run(tt.scope, func(t *testing.T) {
			assert.Equal(t, "s", tt.supplier.Name())
			assert.Equal(t, tt.scope, tt.supplier.MetricsScope())

			first, second := tt.supplier.Get(), tt.supplier.Get()
			assert.True(t, first != second)
			assert.Equal(t, "s", first.Name())
			assert.Equal(t, tt.persistent, first.Persistent())
			assert.False(t, first.IsOpen())
		})
	}

	_, ok := PersistentKeyValueStore("s").Get().(*pebble.Store)
	assert.True(t, ok)
	_, ok = InMemoryKeyValueStore("s").Get().(*inmemory.Store)
	assert.True(t, ok)
}

func TestWindowSuppliers(t *testing.T) {
	supplier, err := PersistentWindowStore("w", time.Hour, time.Minute, 10*time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, "w", supplier.Name())
	assert.Equal(t, "pebble-window", supplier.MetricsScope())
	assert.Equal(t, int64(3_600_000), supplier.Retention())
	assert.Equal(t, int64(60_000), supplier.WindowSize())
	assert.Equal(t, int64(600_000), supplier.SegmentInterval())

	store := supplier.Get()
	assert.True(t, store.Persistent())
	assert.Equal(t, int64(60_000), store.WindowSize())
	assert.True(t, store != supplier.Get())

	supplier, err = DefaultWindowStore("w", time.Hour, time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, "in-memory-window", supplier.MetricsScope())
	assert.Equal(t, DefaultSegmentInterval.Milliseconds(), supplier.SegmentInterval())
	assert.False(t, supplier.Get().Persistent())
}

func TestWindowSupplierValidation(t *testing.T) {
	for name, tt := range map[string]struct {
		name                                   string
		retention, windowSize, segmentInterval time.Duration
	}{
		"empty name":         {"", time.Hour, time.Minute, time.Minute},
		"zero window":        {"w", time.Hour, 0, time.Minute},
		"sub-ms window":      {"w", time.Hour, time.Microsecond, time.Minute},
		"retention < window": {"w", time.Second, time.Minute, time.Minute},
		"zero segment":       {"w", time.Hour, time.Minute, 0},
		"negative retention": {"w", -time.Hour, time.Minute, time.Minute},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := InMemoryWindowStore(tt.name, tt.retention, tt.windowSize, tt.segmentInterval)
			assert.IsError(t, err, ErrInvalidParameter)
			_, err = PersistentWindowStore(tt.name, tt.retention, tt.windowSize, tt.segmentInterval)
			assert.IsError(t, err, ErrInvalidParameter)
		})
	}
}

func TestBuilderShortcuts(t *testing.T) {
	kv, err := TimestampedKeyValueStoreBuilder(DefaultKeyValueStore("kv"), kserde.String, kserde.Int64).Build()
	assert.NoError(t, err)
	assert.Equal(t, "kv", kv.Name())

	supplier, err := DefaultWindowStore("w", time.Hour, time.Minute)
	assert.NoError(t, err)
	w, err := TimestampedWindowStoreBuilder(supplier, kserde.String, kserde.Int64).Build()
	assert.NoError(t, err)
	assert.Equal(t, "w", w.Name())
	assert.Equal(t, int64(3_600_000), w.Retention())
}
