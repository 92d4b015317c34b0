package kstate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kstreams-state/internal/storetest"
	"github.com/birdayz/kstreams-state/kprocessor"
	"github.com/birdayz/kstreams-state/kstate"
	"github.com/birdayz/kstreams-state/kstate/inmemory"
	"github.com/birdayz/kstreams-state/kstate/pebble"
	"github.com/go-logr/logr/funcr"
)

func inMemorySegment(name string) kstate.KeyValueBytesStore {
	return inmemory.New(name)
}

func pebbleSegment(name string) kstate.KeyValueBytesStore {
	return pebble.New(name)
}

func b(s string) kstate.Bytes {
	return kstate.BytesOf(s)
}

func fetch(t *testing.T, s kstate.WindowBytesStore, key string, from, to int64) []kstate.KeyValue[int64, string] {
	t.Helper()
	it, err := s.Fetch(b(key), from, to)
	assert.NoError(t, err)
	kvs, err := kstate.Collect(it)
	assert.NoError(t, err)
	res := []kstate.KeyValue[int64, string]{}
	for _, kv := range kvs {
		res = append(res, kstate.KeyValue[int64, string]{Key: kv.Key, Value: string(kv.Value)})
	}
	return res
}

func newSegmented(t *testing.T, retention, windowSize, interval int64, persistent bool) *kstate.SegmentedBytesStore {
	t.Helper()
	newSegment := inMemorySegment
	if persistent {
		newSegment = pebbleSegment
	}
	s, err := kstate.NewSegmentedBytesStore("w", retention, windowSize, interval, persistent, newSegment)
	assert.NoError(t, err)
	return s
}

func openSegmented(t *testing.T, retention, windowSize, interval int64) *kstate.SegmentedBytesStore {
	t.Helper()
	s := newSegmented(t, retention, windowSize, interval, false)
	assert.NoError(t, s.Init(storetest.NewContext(t)))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSegmentedStorePutFetch(t *testing.T) {
	s := openSegmented(t, 100, 10, 10)

	assert.NoError(t, s.Put(b("a"), []byte("v"), 10))

	v, err := s.Get(b("a"), 10)
	assert.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	assert.Equal(t, []kstate.KeyValue[int64, string]{{Key: 10, Value: "v"}}, fetch(t, s, "a", 9, 11))
	assert.Equal(t, []kstate.KeyValue[int64, string]{{Key: 10, Value: "v"}}, fetch(t, s, "a", 10, 10))
	assert.Equal(t, []kstate.KeyValue[int64, string]{}, fetch(t, s, "a", 11, 20))
	assert.Equal(t, []kstate.KeyValue[int64, string]{}, fetch(t, s, "a", 20, 0))
}

func TestSegmentedStoreFetchSpansSegments(t *testing.T) {
	s := openSegmented(t, 1000, 10, 10)

	for _, ts := range []int64{5, 25, 15, 40} {
		assert.NoError(t, s.Put(b("a"), []byte{byte('0' + ts/10)}, ts))
	}
	assert.Equal(t, []int64{0, 1, 2, 4}, s.SegmentIDs())

	assert.Equal(t, []kstate.KeyValue[int64, string]{
		{Key: 15, Value: "1"},
		{Key: 25, Value: "2"},
	}, fetch(t, s, "a", 10, 30))
}

func TestSegmentedStoreFetchMatchesExactKey(t *testing.T) {
	s := openSegmented(t, 100, 10, 10)

	assert.NoError(t, s.Put(b("a"), []byte("short"), 10))
	assert.NoError(t, s.Put(b("a\x00"), []byte("long"), 10))
	assert.NoError(t, s.Put(b("ab"), []byte("other"), 10))

	assert.Equal(t, []kstate.KeyValue[int64, string]{{Key: 10, Value: "short"}}, fetch(t, s, "a", 0, 100))
}

func TestSegmentedStoreRetention(t *testing.T) {
	s := openSegmented(t, 100, 10, 10)

	assert.NoError(t, s.Put(b("a"), []byte("v"), 10))
	assert.NoError(t, s.Put(b("b"), []byte("w"), 111))
	assert.Equal(t, int64(111), s.ObservedMaxTimestamp())

	assert.Equal(t, []kstate.KeyValue[int64, string]{}, fetch(t, s, "a", 0, 20))
	v, err := s.Get(b("a"), 10)
	assert.NoError(t, err)
	assert.Zero(t, v)

	// Segment 1 still holds live window starts 12..19.
	assert.Equal(t, []int64{1, 11}, s.SegmentIDs())

	assert.NoError(t, s.Put(b("b"), []byte("x"), 120))
	assert.Equal(t, []int64{11, 12}, s.SegmentIDs())
}

func TestSegmentedStoreDropsExpiredWrites(t *testing.T) {
	s := openSegmented(t, 100, 10, 10)

	assert.NoError(t, s.Put(b("a"), []byte("v"), 500))
	assert.NoError(t, s.Put(b("a"), []byte("late"), 5))
	assert.Equal(t, int64(1), s.ExpiredRecordsDropped())
	assert.Equal(t, int64(500), s.ObservedMaxTimestamp())
	assert.Equal(t, []int64{50}, s.SegmentIDs())

	v, err := s.Get(b("a"), 5)
	assert.NoError(t, err)
	assert.Zero(t, v)
}

func TestSegmentedStoreNegativeTimestamp(t *testing.T) {
	s := openSegmented(t, 100, 10, 10)
	assert.IsError(t, s.Put(b("a"), []byte("v"), -1), kstate.ErrInvalidTimestamp)
}

func TestSegmentedStoreDeleteWindow(t *testing.T) {
	s := openSegmented(t, 100, 10, 10)

	assert.NoError(t, s.Put(b("a"), []byte("v"), 10))
	assert.NoError(t, s.Put(b("a"), nil, 10))
	assert.Equal(t, []kstate.KeyValue[int64, string]{}, fetch(t, s, "a", 0, 100))

	// Deleting in a segment that does not exist creates nothing.
	assert.NoError(t, s.Put(b("a"), nil, 50))
	assert.Equal(t, []int64{1}, s.SegmentIDs())
}

func TestSegmentedStoreFetchAll(t *testing.T) {
	s := openSegmented(t, 1000, 10, 10)

	assert.NoError(t, s.Put(b("b"), []byte("b20"), 20))
	assert.NoError(t, s.Put(b("a"), []byte("a30"), 30))
	assert.NoError(t, s.Put(b("a"), []byte("a10"), 10))
	assert.NoError(t, s.Put(b("b"), []byte("b10"), 10))

	it, err := s.FetchAll(0, 100)
	assert.NoError(t, err)
	kvs, err := kstate.Collect(it)
	assert.NoError(t, err)

	got := []string{}
	for _, kv := range kvs {
		got = append(got, string(kv.Value))
		assert.Equal(t, kv.Key.Window.Start+10, kv.Key.Window.End)
	}
	assert.Equal(t, []string{"a10", "a30", "b10", "b20"}, got)
	assert.Equal(t, "a", string(kvs[0].Key.Key.Get()))

	it, err = s.FetchAll(15, 25)
	assert.NoError(t, err)
	kvs, err = kstate.Collect(it)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(kvs))
	assert.Equal(t, "b20", string(kvs[0].Value))

	it, err = s.All()
	assert.NoError(t, err)
	kvs, err = kstate.Collect(it)
	assert.NoError(t, err)
	assert.Equal(t, 4, len(kvs))

	n, err := s.ApproximateNumEntries()
	assert.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestSegmentedStoreLifecycle(t *testing.T) {
	s := newSegmented(t, 100, 10, 10, false)

	assert.IsError(t, s.Put(b("a"), []byte("v"), 10), kstate.ErrNotInitialized)

	assert.NoError(t, s.Init(storetest.NewContext(t)))
	assert.True(t, s.IsOpen())
	assert.IsError(t, s.Destroy(), kstate.ErrStoreOpen)

	assert.NoError(t, s.Close())
	_, err := s.Get(b("a"), 10)
	assert.IsError(t, err, kstate.ErrStoreClosed)
	assert.NoError(t, s.Destroy())
}

func TestSegmentedStorePersistentRecovery(t *testing.T) {
	ctx := storetest.NewContext(t)

	s := newSegmented(t, 1000, 10, 100, true)
	assert.NoError(t, s.Init(ctx))
	assert.NoError(t, s.Put(b("a"), []byte("v"), 10))
	assert.NoError(t, s.Put(b("a"), []byte("w"), 200))
	assert.NoError(t, s.Close())

	_, err := os.Stat(filepath.Join(ctx.StateDir(), "w", "w.200"))
	assert.NoError(t, err)

	reopened := newSegmented(t, 1000, 10, 100, true)
	assert.NoError(t, reopened.Init(ctx))
	t.Cleanup(func() { _ = reopened.Close() })

	assert.Equal(t, int64(200), reopened.ObservedMaxTimestamp())
	assert.Equal(t, []int64{0, 2}, reopened.SegmentIDs())
	assert.Equal(t, []kstate.KeyValue[int64, string]{
		{Key: 10, Value: "v"},
		{Key: 200, Value: "w"},
	}, fetch(t, reopened, "a", 0, 1000))
}

func TestSegmentedStoreDestroysExpiredSegments(t *testing.T) {
	ctx := storetest.NewContext(t)

	s := newSegmented(t, 100, 10, 100, true)
	assert.NoError(t, s.Init(ctx))
	t.Cleanup(func() { _ = s.Close() })

	assert.NoError(t, s.Put(b("a"), []byte("v"), 10))
	segmentDir := filepath.Join(ctx.StateDir(), "w", "w.0")
	_, err := os.Stat(segmentDir)
	assert.NoError(t, err)

	assert.NoError(t, s.Put(b("a"), []byte("w"), 350))
	assert.Equal(t, []int64{3}, s.SegmentIDs())
	_, err = os.Stat(segmentDir)
	assert.True(t, os.IsNotExist(err))
}

func TestSegmentedStoreRejectsInvalidParameters(t *testing.T) {
	for name, tt := range map[string]struct {
		name                                   string
		retention, windowSize, segmentInterval int64
		newSegment                             kstate.SegmentFactory
	}{
		"empty name":       {"", 100, 10, 10, inMemorySegment},
		"zero window":      {"w", 100, 0, 10, inMemorySegment},
		"zero retention":   {"w", 0, 10, 10, inMemorySegment},
		"zero segment":     {"w", 100, 10, 0, inMemorySegment},
		"negative segment": {"w", 100, 10, -5, inMemorySegment},
		"no factory":       {"w", 100, 10, 10, nil},
	} {
		t.Run(name, func(t *testing.T) {
			s, err := kstate.NewSegmentedBytesStore(tt.name, tt.retention, tt.windowSize, tt.segmentInterval, false, tt.newSegment)
			assert.IsError(t, err, kstate.ErrInvalidParameter)
			assert.Zero(t, s)
		})
	}
}

func TestSegmentedStoreFetchAllOrdersByWindowStoreKey(t *testing.T) {
	s := openSegmented(t, 1000, 10, 1000)

	assert.NoError(t, s.Put(b("a"), []byte("a@1"), 1))
	assert.NoError(t, s.Put(b("a\x00"), []byte("a0@0"), 0))
	assert.NoError(t, s.Put(b("a"), []byte("a@0"), 0))
	assert.NoError(t, s.Put(b("ab"), []byte("ab@0"), 0))

	it, err := s.FetchAll(0, 10)
	assert.NoError(t, err)
	kvs, err := kstate.Collect(it)
	assert.NoError(t, err)

	got := []string{}
	for _, kv := range kvs {
		got = append(got, string(kv.Value))
	}
	// "a\x00" extends "a" with a 0x00 byte, so their windows interleave.
	assert.Equal(t, []string{"a@0", "a0@0", "a@1", "ab@0"}, got)
}

func TestSegmentedStoreLogsUnrecognizedSegmentDirectories(t *testing.T) {
	stateDir := t.TempDir()
	var logs []string
	log := funcr.New(func(prefix, args string) {
		logs = append(logs, args)
	}, funcr.Options{})
	ctx := kprocessor.NewStoreContext(kprocessor.Config{
		ApplicationID: "app1",
		StateDir:      stateDir,
	}, kprocessor.TaskID{}, kprocessor.WithLogger(log))

	storeDir := filepath.Join(ctx.StateDir(), "w")
	for _, dir := range []string{"w.150", "w.abc", "w.-100", "w.100"} {
		assert.NoError(t, os.MkdirAll(filepath.Join(storeDir, dir), 0o755))
	}

	s := newSegmented(t, 1000, 10, 100, true)
	assert.NoError(t, s.Init(ctx))
	t.Cleanup(func() { _ = s.Close() })

	var ignored []string
	for _, l := range logs {
		if strings.Contains(l, "Ignoring unrecognized segment directory") {
			ignored = append(ignored, l)
		}
	}
	assert.Equal(t, 3, len(ignored))
	for _, dir := range []string{"w.150", "w.abc", "w.-100"} {
		found := false
		for _, l := range ignored {
			found = found || strings.Contains(l, `"dir"="`+dir+`"`)
		}
		assert.True(t, found, "no log line for %s", dir)
	}
	_, err := os.Stat(filepath.Join(storeDir, "w.150"))
	assert.NoError(t, err)
}
