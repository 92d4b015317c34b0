package kstate_test

import (
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kstreams-state/kserde"
	"github.com/birdayz/kstreams-state/kstate"
	"github.com/birdayz/kstreams-state/stores"
)

func TestKeyValueStoreBuilderBuildsIndependentStores(t *testing.T) {
	builder := kstate.NewKeyValueStoreBuilder(stores.InMemoryKeyValueStore("s"), kserde.String, kserde.String)
	assert.Equal(t, "s", builder.Name())

	first, err := builder.Build()
	assert.NoError(t, err)
	second, err := builder.Build()
	assert.NoError(t, err)
	assert.True(t, first != second)

	assert.NoError(t, first.Init(contextWithDefaults(t, nil, nil)))
	t.Cleanup(func() { _ = first.Close() })
	assert.NoError(t, second.Init(contextWithDefaults(t, nil, nil)))
	t.Cleanup(func() { _ = second.Close() })

	assert.NoError(t, first.Put("a", "1"))
	_, found, err := second.Get("a")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestStoreBuilderIsImmutable(t *testing.T) {
	base := kstate.NewKeyValueStoreBuilder(stores.InMemoryKeyValueStore("s"), kserde.String, kserde.String)
	cfg := map[string]string{"cleanup.policy": "compact"}
	logged := base.WithChangelogEnabled(cfg)
	cfg["cleanup.policy"] = "delete"

	assert.False(t, base.ChangelogEnabled())
	assert.Zero(t, base.LogConfig())

	assert.True(t, logged.ChangelogEnabled())
	assert.Equal(t, map[string]string{"cleanup.policy": "compact"}, logged.LogConfig())

	disabled := logged.WithChangelogDisabled()
	assert.False(t, disabled.ChangelogEnabled())
	assert.True(t, logged.ChangelogEnabled())

	assert.Equal(t, map[string]string{}, base.WithChangelogEnabled(nil).LogConfig())
}

func TestStoreBuilderWrapsChangelog(t *testing.T) {
	builder := kstate.NewKeyValueStoreBuilder(stores.InMemoryKeyValueStore("s"), kserde.String, kserde.String)

	plain, err := builder.Build()
	assert.NoError(t, err)
	_, ok := kstate.RestoreCallbackOf(plain)
	assert.False(t, ok)

	logged, err := builder.WithChangelogEnabled(nil).Build()
	assert.NoError(t, err)
	_, ok = kstate.RestoreCallbackOf(logged)
	assert.True(t, ok)
}

func TestBuildStateStore(t *testing.T) {
	var builders []kstate.TypeErasedStoreBuilder

	builders = append(builders, kstate.NewTimestampedKeyValueStoreBuilder(stores.InMemoryKeyValueStore("kv"), kserde.String, kserde.String))

	supplier, err := stores.InMemoryWindowStore("w", time.Minute, time.Second, time.Second)
	assert.NoError(t, err)
	builders = append(builders, kstate.NewTimestampedWindowStoreBuilder(supplier, kserde.String, kserde.Int64))

	for _, builder := range builders {
		store, err := builder.BuildStateStore()
		assert.NoError(t, err)
		assert.Equal(t, builder.Name(), store.Name())
		assert.False(t, store.Persistent())
		assert.False(t, store.IsOpen())
	}
}

func TestWindowStoreBuilder(t *testing.T) {
	supplier, err := stores.InMemoryWindowStore("w", time.Minute, time.Second, 10*time.Second)
	assert.NoError(t, err)

	s, err := kstate.NewWindowStoreBuilder(supplier, kserde.String, kserde.String).Build()
	assert.NoError(t, err)
	assert.NoError(t, s.Init(contextWithDefaults(t, nil, nil)))
	t.Cleanup(func() { _ = s.Close() })

	assert.Equal(t, int64(1000), s.WindowSize())
	assert.Equal(t, int64(60000), s.Retention())

	assert.NoError(t, s.Put("a", "v", 1000))
	v, found, err := s.Get("a", 1000)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", v)
}
