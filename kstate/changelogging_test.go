package kstate_test

import (
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kstreams-state/kprocessor"
	"github.com/birdayz/kstreams-state/kserde"
	"github.com/birdayz/kstreams-state/kstate"
	"github.com/birdayz/kstreams-state/stores"
	"github.com/twmb/franz-go/pkg/kgo"
)

type change struct {
	store string
	key   string
	value []byte
}

type changeRecorder struct {
	changes []change
	err     error
}

func (r *changeRecorder) LogChange(storeName string, key, value []byte) error {
	if r.err != nil {
		return r.err
	}
	r.changes = append(r.changes, change{store: storeName, key: string(key), value: value})
	return nil
}

func loggingContext(t *testing.T, rec *changeRecorder) *kprocessor.StoreContext {
	t.Helper()
	return kprocessor.NewStoreContext(kprocessor.Config{
		ApplicationID: "app1",
		StateDir:      t.TempDir(),
	}, kprocessor.TaskID{}, kprocessor.WithChangeLogger(rec))
}

func TestChangeLoggingKeyValueStore(t *testing.T) {
	rec := &changeRecorder{}
	s, err := stores.KeyValueStoreBuilder(stores.InMemoryKeyValueStore("s"), kserde.String, kserde.String).
		WithChangelogEnabled(nil).
		Build()
	assert.NoError(t, err)
	assert.NoError(t, s.Init(loggingContext(t, rec)))
	t.Cleanup(func() { _ = s.Close() })

	assert.NoError(t, s.Put("a", "1"))
	_, _, err = s.PutIfAbsent("a", "ignored")
	assert.NoError(t, err)
	_, _, err = s.PutIfAbsent("b", "2")
	assert.NoError(t, err)
	_, _, err = s.Delete("a")
	assert.NoError(t, err)

	assert.Equal(t, []change{
		{store: "s", key: "a", value: []byte("1")},
		{store: "s", key: "b", value: []byte("2")},
		{store: "s", key: "a"},
	}, rec.changes)
}

func TestChangeLoggingRequiresChangeLogger(t *testing.T) {
	s, err := stores.KeyValueStoreBuilder(stores.InMemoryKeyValueStore("s"), kserde.String, kserde.String).
		WithChangelogEnabled(nil).
		Build()
	assert.NoError(t, err)
	assert.IsError(t, s.Init(contextWithDefaults(t, nil, nil)), kprocessor.ErrNoChangeLogger)
}

func TestChangeLoggingLogFailure(t *testing.T) {
	boom := errors.New("broker unavailable")
	rec := &changeRecorder{}
	s, err := stores.KeyValueStoreBuilder(stores.InMemoryKeyValueStore("s"), kserde.String, kserde.String).
		WithChangelogEnabled(nil).
		Build()
	assert.NoError(t, err)
	assert.NoError(t, s.Init(loggingContext(t, rec)))
	t.Cleanup(func() { _ = s.Close() })

	rec.err = boom
	assert.IsError(t, s.Put("a", "1"), boom)
}

func TestChangeLoggingRestore(t *testing.T) {
	rec := &changeRecorder{}
	s, err := stores.KeyValueStoreBuilder(stores.InMemoryKeyValueStore("s"), kserde.String, kserde.String).
		WithChangelogEnabled(nil).
		Build()
	assert.NoError(t, err)
	assert.NoError(t, s.Init(loggingContext(t, rec)))
	t.Cleanup(func() { _ = s.Close() })

	cb, ok := kstate.RestoreCallbackOf(s)
	assert.True(t, ok)

	assert.NoError(t, cb.RestoreBatch([]*kgo.Record{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("a")},
	}))
	assert.NoError(t, cb.Restore([]byte("c"), []byte("3")))
	assert.Zero(t, len(rec.changes))

	it, err := s.All()
	assert.NoError(t, err)
	kvs, err := kstate.Collect(it)
	assert.NoError(t, err)
	assert.Equal(t, []kstate.KeyValue[string, string]{{Key: "b", Value: "2"}, {Key: "c", Value: "3"}}, kvs)
}

func TestChangeLoggingWindowStore(t *testing.T) {
	supplier, err := stores.InMemoryWindowStore("w", time.Minute, time.Second, time.Second)
	assert.NoError(t, err)

	rec := &changeRecorder{}
	s, err := stores.WindowStoreBuilder(supplier, kserde.String, kserde.String).
		WithChangelogEnabled(nil).
		Build()
	assert.NoError(t, err)
	assert.NoError(t, s.Init(loggingContext(t, rec)))
	t.Cleanup(func() { _ = s.Close() })

	assert.NoError(t, s.Put("a", "v", 1000))
	assert.Equal(t, 1, len(rec.changes))
	assert.Equal(t, "a\x00\x00\x00\x00\x00\x00\x03\xe8", rec.changes[0].key)

	replay := rec.changes[0]
	assert.NoError(t, s.Close())

	restored, err := stores.WindowStoreBuilder(supplier, kserde.String, kserde.String).
		WithChangelogEnabled(nil).
		Build()
	assert.NoError(t, err)
	assert.NoError(t, restored.Init(loggingContext(t, &changeRecorder{})))
	t.Cleanup(func() { _ = restored.Close() })

	cb, ok := kstate.RestoreCallbackOf(restored)
	assert.True(t, ok)
	assert.NoError(t, cb.Restore([]byte(replay.key), replay.value))

	v, found, err := restored.Get("a", 1000)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", v)

	assert.IsError(t, cb.Restore([]byte("short"), []byte("x")), kstate.ErrCodec)
}
