// Package storetest holds the behavior suite every KeyValueBytesStore
// backend must pass.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kstreams-state/kprocessor"
	"github.com/birdayz/kstreams-state/kstate"
)

// NewContext returns the context of task 0_0 of application "app1" rooted
// at a temporary directory.
func NewContext(t *testing.T) *kprocessor.StoreContext {
	t.Helper()
	return kprocessor.NewStoreContext(kprocessor.Config{
		ApplicationID: "app1",
		StateDir:      t.TempDir(),
	}, kprocessor.TaskID{})
}

// Open creates a store with newStore, initializes it and closes it on
// cleanup.
func Open(t *testing.T, ctx kprocessor.StateStoreContext, newStore func(name string) kstate.KeyValueBytesStore) kstate.KeyValueBytesStore {
	t.Helper()
	s := newStore("s")
	assert.NoError(t, s.Init(ctx))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func b(s string) kstate.Bytes {
	return kstate.BytesOf(s)
}

// All returns the entries of s as "key=value" strings.
func All(t *testing.T, s kstate.KeyValueBytesStore) []string {
	t.Helper()
	it, err := s.All()
	return entries(t, it, err)
}

// Range returns the entries of s in [from, to] as "key=value" strings.
func Range(t *testing.T, s kstate.KeyValueBytesStore, from, to string) []string {
	t.Helper()
	it, err := s.Range(b(from), b(to))
	return entries(t, it, err)
}

func entries(t *testing.T, it kstate.KeyValueIterator[kstate.Bytes, []byte], err error) []string {
	t.Helper()
	assert.NoError(t, err)
	kvs, err := kstate.Collect(it)
	assert.NoError(t, err)
	res := []string{}
	for _, kv := range kvs {
		res = append(res, string(kv.Key.Get())+"="+string(kv.Value))
	}
	return res
}

// RunKeyValueBytesStore runs the backend behavior suite against newStore.
func RunKeyValueBytesStore(t *testing.T, newStore func(name string) kstate.KeyValueBytesStore) {
	t.Run("get reflects last write", func(t *testing.T) {
		s := Open(t, NewContext(t), newStore)

		v, err := s.Get(b("a"))
		assert.NoError(t, err)
		assert.Zero(t, v)

		assert.NoError(t, s.Put(b("a"), []byte("1")))
		assert.NoError(t, s.Put(b("a"), []byte("2")))
		v, err = s.Get(b("a"))
		assert.NoError(t, err)
		assert.Equal(t, []byte("2"), v)

		prev, err := s.Delete(b("a"))
		assert.NoError(t, err)
		assert.Equal(t, []byte("2"), prev)

		v, err = s.Get(b("a"))
		assert.NoError(t, err)
		assert.Zero(t, v)

		prev, err = s.Delete(b("a"))
		assert.NoError(t, err)
		assert.Zero(t, prev)
	})

	t.Run("put nil deletes", func(t *testing.T) {
		s := Open(t, NewContext(t), newStore)
		assert.NoError(t, s.Put(b("a"), []byte("1")))
		assert.NoError(t, s.Put(b("a"), nil))

		v, err := s.Get(b("a"))
		assert.NoError(t, err)
		assert.Zero(t, v)
	})

	t.Run("empty value is not absent", func(t *testing.T) {
		s := Open(t, NewContext(t), newStore)
		assert.NoError(t, s.Put(b("a"), []byte{}))

		v, err := s.Get(b("a"))
		assert.NoError(t, err)
		assert.True(t, v != nil)
		assert.Equal(t, 0, len(v))

		n, err := s.ApproximateNumEntries()
		assert.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("returned values are copies", func(t *testing.T) {
		s := Open(t, NewContext(t), newStore)
		in := []byte("abc")
		assert.NoError(t, s.Put(b("a"), in))
		in[0] = 'x'

		v, err := s.Get(b("a"))
		assert.NoError(t, err)
		assert.Equal(t, []byte("abc"), v)

		v[0] = 'y'
		v, err = s.Get(b("a"))
		assert.NoError(t, err)
		assert.Equal(t, []byte("abc"), v)
	})

	t.Run("put if absent keeps first value", func(t *testing.T) {
		s := Open(t, NewContext(t), newStore)

		prev, err := s.PutIfAbsent(b("k"), []byte("v1"))
		assert.NoError(t, err)
		assert.Zero(t, prev)

		prev, err = s.PutIfAbsent(b("k"), []byte("v2"))
		assert.NoError(t, err)
		assert.Equal(t, []byte("v1"), prev)

		v, err := s.Get(b("k"))
		assert.NoError(t, err)
		assert.Equal(t, []byte("v1"), v)
	})

	t.Run("put all applies entries in order", func(t *testing.T) {
		s := Open(t, NewContext(t), newStore)
		assert.NoError(t, s.Put(b("c"), []byte("old")))

		assert.NoError(t, s.PutAll([]kstate.KeyValue[kstate.Bytes, []byte]{
			{Key: b("a"), Value: []byte("1")},
			{Key: b("a"), Value: []byte("2")},
			{Key: b("b"), Value: []byte("1")},
			{Key: b("b"), Value: nil},
			{Key: b("c"), Value: nil},
		}))

		assert.Equal(t, []string{"a=2"}, All(t, s))
	})

	t.Run("all and range are ordered", func(t *testing.T) {
		s := Open(t, NewContext(t), newStore)
		for _, k := range []string{"b", "a", "ab", "c", "\xff", "\x01"} {
			assert.NoError(t, s.Put(b(k), []byte(k)))
		}

		all := All(t, s)
		assert.Equal(t, []string{"\x01=\x01", "a=a", "ab=ab", "b=b", "c=c", "\xff=\xff"}, all)

		full := Range(t, s, "\x00", "\xff\xff")
		assert.Equal(t, all, full)

		assert.Equal(t, []string{"ab=ab", "b=b"}, Range(t, s, "ab", "b"))
		assert.Equal(t, []string{"a=a", "ab=ab"}, Range(t, s, "a", "abc"))
		assert.Equal(t, []string{"a=a"}, Range(t, s, "a", "aa"))
		assert.Equal(t, []string{}, Range(t, s, "c", "a"))
	})

	t.Run("iterator contract", func(t *testing.T) {
		s := Open(t, NewContext(t), newStore)
		const n = 25
		for i := range n {
			assert.NoError(t, s.Put(b(fmt.Sprintf("key-%02d", i)), []byte{byte(i)}))
		}

		it, err := s.All()
		assert.NoError(t, err)
		defer it.Close()

		_, err = it.Current()
		assert.IsError(t, err, kstate.ErrNoCurrentElement)

		var prev kstate.Bytes
		count := 0
		for it.Next() {
			kv, err := it.Current()
			assert.NoError(t, err)
			if count > 0 {
				assert.True(t, prev.Less(kv.Key))
			}
			prev = kv.Key
			count++
		}
		assert.NoError(t, it.Err())
		assert.Equal(t, n, count)

		assert.False(t, it.Next())
		_, err = it.Current()
		assert.IsError(t, err, kstate.ErrNoCurrentElement)

		assert.NoError(t, it.Reset())
		again := 0
		for it.Next() {
			again++
		}
		assert.Equal(t, n, again)
	})

	t.Run("iterators read a snapshot", func(t *testing.T) {
		s := Open(t, NewContext(t), newStore)
		assert.NoError(t, s.Put(b("a"), []byte("1")))
		assert.NoError(t, s.Put(b("b"), []byte("2")))

		it, err := s.All()
		assert.NoError(t, err)

		assert.NoError(t, s.Put(b("c"), []byte("3")))
		_, err = s.Delete(b("a"))
		assert.NoError(t, err)

		assert.Equal(t, []string{"a=1", "b=2"}, entries(t, it, nil))
		assert.Equal(t, []string{"b=2", "c=3"}, All(t, s))
	})

	t.Run("approximate num entries", func(t *testing.T) {
		s := Open(t, NewContext(t), newStore)
		for i := range 10 {
			assert.NoError(t, s.Put(b(fmt.Sprint(i)), []byte("v")))
		}
		_, err := s.Delete(b("3"))
		assert.NoError(t, err)

		n, err := s.ApproximateNumEntries()
		assert.NoError(t, err)
		assert.Equal(t, int64(9), n)
	})

	t.Run("lifecycle", func(t *testing.T) {
		ctx := NewContext(t)
		s := newStore("s")
		assert.Equal(t, "s", s.Name())
		assert.False(t, s.IsOpen())

		_, err := s.Get(b("a"))
		assert.IsError(t, err, kstate.ErrNotInitialized)
		assert.IsError(t, s.Put(b("a"), []byte("1")), kstate.ErrNotInitialized)

		assert.NoError(t, s.Init(ctx))
		assert.NoError(t, s.Init(ctx))
		assert.True(t, s.IsOpen())
		assert.NoError(t, s.Put(b("a"), []byte("1")))
		assert.NoError(t, s.Flush(context.Background()))

		assert.NoError(t, s.Close())
		assert.NoError(t, s.Close())
		assert.False(t, s.IsOpen())

		_, err = s.Get(b("a"))
		assert.IsError(t, err, kstate.ErrStoreClosed)
		_, err = s.All()
		assert.IsError(t, err, kstate.ErrStoreClosed)
		assert.IsError(t, s.Flush(context.Background()), kstate.ErrStoreClosed)
	})
}
