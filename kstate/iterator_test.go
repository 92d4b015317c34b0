package kstate

import (
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kstreams-state/kserde"
)

// sliceIterator iterates a fixed slice.
type sliceIterator struct {
	kvs    []KeyValue[Bytes, []byte]
	pos    int
	err    error
	closed bool
}

func newSliceIterator(keys ...string) *sliceIterator {
	it := &sliceIterator{pos: -1}
	for _, k := range keys {
		it.kvs = append(it.kvs, KeyValue[Bytes, []byte]{Key: BytesOf(k), Value: []byte(k)})
	}
	return it
}

func (it *sliceIterator) Next() bool {
	if it.pos < len(it.kvs) {
		it.pos++
	}
	return it.pos < len(it.kvs) && it.err == nil
}

func (it *sliceIterator) Current() (KeyValue[Bytes, []byte], error) {
	if it.pos < 0 || it.pos >= len(it.kvs) {
		return KeyValue[Bytes, []byte]{}, ErrNoCurrentElement
	}
	return it.kvs[it.pos], nil
}

func (it *sliceIterator) Err() error   { return it.err }
func (it *sliceIterator) Reset() error { it.pos = -1; return nil }
func (it *sliceIterator) Close() error { it.closed = true; return nil }

func keysOf(t *testing.T, it KeyValueIterator[Bytes, []byte]) []string {
	t.Helper()
	kvs, err := Collect(it)
	assert.NoError(t, err)
	keys := []string{}
	for _, kv := range kvs {
		keys = append(keys, string(kv.Key.Get()))
	}
	return keys
}

func TestConcatIterator(t *testing.T) {
	a, b, c := newSliceIterator("a", "b"), newSliceIterator(), newSliceIterator("c")
	it := newConcatIterator([]KeyValueIterator[Bytes, []byte]{a, b, c})

	_, err := it.Current()
	assert.IsError(t, err, ErrNoCurrentElement)

	assert.Equal(t, []string{"a", "b", "c"}, keysOf(t, it))
	assert.True(t, a.closed && b.closed && c.closed)
}

func TestConcatIteratorReset(t *testing.T) {
	it := newConcatIterator([]KeyValueIterator[Bytes, []byte]{newSliceIterator("a"), newSliceIterator("b")})
	for it.Next() {
	}
	_, err := it.Current()
	assert.IsError(t, err, ErrNoCurrentElement)

	assert.NoError(t, it.Reset())
	assert.Equal(t, []string{"a", "b"}, keysOf(t, it))
}

func TestMergeIterator(t *testing.T) {
	it := newMergeIterator([]KeyValueIterator[Bytes, []byte]{
		newSliceIterator("a", "d", "f"),
		newSliceIterator(),
		newSliceIterator("b", "c", "g"),
		newSliceIterator("c", "e"),
	})
	assert.Equal(t, []string{"a", "b", "c", "c", "d", "e", "f", "g"}, keysOf(t, it))
}

func TestMergeIteratorTiesFollowChildOrder(t *testing.T) {
	first := newSliceIterator("k")
	second := newSliceIterator("k")
	first.kvs[0].Value = []byte("first")
	second.kvs[0].Value = []byte("second")

	it := newMergeIterator([]KeyValueIterator[Bytes, []byte]{first, second})
	kvs, err := Collect[Bytes, []byte](it)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(kvs))
	assert.Equal(t, []byte("first"), kvs[0].Value)
	assert.Equal(t, []byte("second"), kvs[1].Value)
}

func TestMergeIteratorReset(t *testing.T) {
	it := newMergeIterator([]KeyValueIterator[Bytes, []byte]{newSliceIterator("b"), newSliceIterator("a")})
	assert.True(t, it.Next())
	assert.NoError(t, it.Reset())
	assert.Equal(t, []string{"a", "b"}, keysOf(t, it))
}

func TestMergeIteratorChildError(t *testing.T) {
	boom := errors.New("boom")
	bad := newSliceIterator("a")
	bad.err = boom

	it := newMergeIterator([]KeyValueIterator[Bytes, []byte]{newSliceIterator("b"), bad})
	assert.False(t, it.Next())
	assert.IsError(t, it.Err(), boom)
}

func TestTransform(t *testing.T) {
	it := Transform[Bytes, []byte, string, int](newSliceIterator("a", "bb", "ccc"), func(kv KeyValue[Bytes, []byte]) (KeyValue[string, int], bool, error) {
		if kv.Key.Len() == 2 {
			return KeyValue[string, int]{}, false, nil
		}
		return KeyValue[string, int]{Key: string(kv.Key.Get()), Value: kv.Key.Len()}, true, nil
	})

	kvs, err := Collect(it)
	assert.NoError(t, err)
	assert.Equal(t, []KeyValue[string, int]{{Key: "a", Value: 1}, {Key: "ccc", Value: 3}}, kvs)
}

func TestTransformError(t *testing.T) {
	boom := errors.New("boom")
	it := Transform[Bytes, []byte, string, string](newSliceIterator("a"), func(KeyValue[Bytes, []byte]) (KeyValue[string, string], bool, error) {
		return KeyValue[string, string]{}, false, boom
	})
	_, err := Collect(it)
	assert.IsError(t, err, boom)
}

func TestMapIter(t *testing.T) {
	it := MapIter[string, int](newSliceIterator("a", "bb"), "s", kserde.String.Deserializer, func(b []byte) (int, error) {
		return len(b), nil
	})
	kvs, err := Collect(it)
	assert.NoError(t, err)
	assert.Equal(t, []KeyValue[string, int]{{Key: "a", Value: 1}, {Key: "bb", Value: 2}}, kvs)
}

func TestMapIterDecodeError(t *testing.T) {
	inner := newSliceIterator("a", "bb")
	it := MapIter[string, int](inner, "s", kserde.String.Deserializer, func(b []byte) (int, error) {
		if len(b) > 1 {
			return 0, errors.New("too long")
		}
		return len(b), nil
	})
	assert.True(t, it.Next())
	kv, err := it.Current()
	assert.NoError(t, err)
	assert.Equal(t, "a", kv.Key)

	assert.False(t, it.Next())
	assert.IsError(t, it.Err(), ErrCodec)
	assert.Contains(t, it.Err().Error(), "decode value")
	assert.NoError(t, it.Close())
	assert.True(t, inner.closed)
}

func TestSeq(t *testing.T) {
	src := newSliceIterator("a", "b", "c")
	var keys []string
	for k := range Seq[Bytes, []byte](src) {
		keys = append(keys, string(k.Get()))
		if len(keys) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, keys)
	assert.True(t, src.closed)
}

func TestEmptyIterator(t *testing.T) {
	it := EmptyIterator[Bytes, []byte]()
	assert.False(t, it.Next())
	_, err := it.Current()
	assert.IsError(t, err, ErrNoCurrentElement)
	assert.NoError(t, it.Close())
}
