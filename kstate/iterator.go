package kstate

import (
	"container/heap"
	"iter"

	"github.com/birdayz/kstreams-state/kserde"
	"go.uber.org/multierr"
)

// KeyValue is a single store entry.
type KeyValue[K, V any] struct {
	Key   K
	Value V
}

// KeyValueIterator iterates store entries.
//
// Access is two-step: call Next, and only if it returned true read the entry
// with Current. Current before the first successful Next, or after Next
// returned false, fails with ErrNoCurrentElement. When Next returns false,
// Err tells exhaustion (nil) from failure.
//
// Iterators hold engine resources and must be closed. Reset restarts
// iteration from the beginning over the same snapshot.
type KeyValueIterator[K, V any] interface {
	Next() bool
	Current() (KeyValue[K, V], error)
	Err() error
	Reset() error
	Close() error
}

// Collect drains it into a slice and closes it.
func Collect[K, V any](it KeyValueIterator[K, V]) (res []KeyValue[K, V], err error) {
	defer func() {
		err = multierr.Append(err, it.Close())
	}()
	for it.Next() {
		kv, err := it.Current()
		if err != nil {
			return nil, err
		}
		res = append(res, kv)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// ForEach calls fn for every entry and closes it. Iteration stops at the
// first error returned by fn.
func ForEach[K, V any](it KeyValueIterator[K, V], fn func(K, V) error) (err error) {
	defer func() {
		err = multierr.Append(err, it.Close())
	}()
	for it.Next() {
		kv, err := it.Current()
		if err != nil {
			return err
		}
		if err := fn(kv.Key, kv.Value); err != nil {
			return err
		}
	}
	return it.Err()
}

// Seq adapts it to a range-over-func sequence. it is closed when the loop
// ends; check it.Err() afterwards to tell exhaustion from failure.
func Seq[K, V any](it KeyValueIterator[K, V]) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		defer it.Close()
		for it.Next() {
			kv, err := it.Current()
			if err != nil || !yield(kv.Key, kv.Value) {
				return
			}
		}
	}
}

// MapIter transforms a byte iterator into a typed iterator.
// Uses provided deserializers to convert keys and values; a failing
// deserializer ends iteration and is reported by Err.
func MapIter[K, V any](
	it KeyValueIterator[Bytes, []byte],
	storeName string,
	keyDeserializer kserde.Deserializer[K],
	valueDeserializer kserde.Deserializer[V],
) KeyValueIterator[K, V] {
	return Transform(it, func(kv KeyValue[Bytes, []byte]) (KeyValue[K, V], bool, error) {
		key, err := keyDeserializer(kv.Key.Get())
		if err != nil {
			return KeyValue[K, V]{}, false, CodecError(storeName, "decode key", err)
		}
		value, err := valueDeserializer(kv.Value)
		if err != nil {
			return KeyValue[K, V]{}, false, CodecError(storeName, "decode value", err)
		}
		return KeyValue[K, V]{Key: key, Value: value}, true, nil
	})
}

// Transform maps every entry of it through fn. Entries for which fn returns
// keep=false are skipped; an error from fn ends iteration.
func Transform[K1, V1, K2, V2 any](
	it KeyValueIterator[K1, V1],
	fn func(KeyValue[K1, V1]) (KeyValue[K2, V2], bool, error),
) KeyValueIterator[K2, V2] {
	return &transformIterator[K1, V1, K2, V2]{inner: it, fn: fn}
}

type transformIterator[K1, V1, K2, V2 any] struct {
	inner KeyValueIterator[K1, V1]
	fn    func(KeyValue[K1, V1]) (KeyValue[K2, V2], bool, error)

	current KeyValue[K2, V2]
	valid   bool
	err     error
}

func (it *transformIterator[K1, V1, K2, V2]) Next() bool {
	it.valid = false
	if it.err != nil {
		return false
	}
	for it.inner.Next() {
		kv, err := it.inner.Current()
		if err != nil {
			it.err = err
			return false
		}
		out, keep, err := it.fn(kv)
		if err != nil {
			it.err = err
			return false
		}
		if !keep {
			continue
		}
		it.current = out
		it.valid = true
		return true
	}
	return false
}

func (it *transformIterator[K1, V1, K2, V2]) Current() (KeyValue[K2, V2], error) {
	if !it.valid {
		return KeyValue[K2, V2]{}, ErrNoCurrentElement
	}
	return it.current, nil
}

func (it *transformIterator[K1, V1, K2, V2]) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.inner.Err()
}

func (it *transformIterator[K1, V1, K2, V2]) Reset() error {
	it.valid = false
	it.err = nil
	return it.inner.Reset()
}

func (it *transformIterator[K1, V1, K2, V2]) Close() error {
	it.valid = false
	return it.inner.Close()
}

// EmptyIterator returns an iterator with no entries.
func EmptyIterator[K, V any]() KeyValueIterator[K, V] {
	return emptyIterator[K, V]{}
}

type emptyIterator[K, V any] struct{}

func (emptyIterator[K, V]) Next() bool { return false }

func (emptyIterator[K, V]) Current() (KeyValue[K, V], error) {
	return KeyValue[K, V]{}, ErrNoCurrentElement
}

func (emptyIterator[K, V]) Err() error   { return nil }
func (emptyIterator[K, V]) Reset() error { return nil }
func (emptyIterator[K, V]) Close() error { return nil }

// concatIterator yields its children one after another.
type concatIterator[K, V any] struct {
	iters []KeyValueIterator[K, V]
	idx   int
	valid bool
	err   error
}

func newConcatIterator[K, V any](iters []KeyValueIterator[K, V]) *concatIterator[K, V] {
	return &concatIterator[K, V]{iters: iters}
}

func (it *concatIterator[K, V]) Next() bool {
	it.valid = false
	if it.err != nil {
		return false
	}
	for it.idx < len(it.iters) {
		child := it.iters[it.idx]
		if child.Next() {
			it.valid = true
			return true
		}
		if err := child.Err(); err != nil {
			it.err = err
			return false
		}
		it.idx++
	}
	return false
}

func (it *concatIterator[K, V]) Current() (KeyValue[K, V], error) {
	if !it.valid {
		return KeyValue[K, V]{}, ErrNoCurrentElement
	}
	return it.iters[it.idx].Current()
}

func (it *concatIterator[K, V]) Err() error {
	return it.err
}

func (it *concatIterator[K, V]) Reset() error {
	var err error
	for _, child := range it.iters {
		err = multierr.Append(err, child.Reset())
	}
	it.idx = 0
	it.valid = false
	it.err = nil
	return err
}

func (it *concatIterator[K, V]) Close() error {
	var err error
	for _, child := range it.iters {
		err = multierr.Append(err, child.Close())
	}
	it.valid = false
	return err
}

// mergeIterator merges children that are each sorted by key into one
// key-ordered sequence. Equal keys are yielded in child order.
type mergeIterator struct {
	iters   []KeyValueIterator[Bytes, []byte]
	heads   mergeHeap
	primed  bool
	current mergeHead
	valid   bool
	err     error
}

type mergeHead struct {
	kv  KeyValue[Bytes, []byte]
	idx int
}

type mergeHeap []mergeHead

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if c := h[i].kv.Key.Compare(h[j].kv.Key); c != 0 {
		return c < 0
	}
	return h[i].idx < h[j].idx
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) { *h = append(*h, x.(mergeHead)) }

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func newMergeIterator(iters []KeyValueIterator[Bytes, []byte]) *mergeIterator {
	return &mergeIterator{iters: iters}
}

// advance pulls the next entry of child i onto the heap.
func (it *mergeIterator) advance(i int) bool {
	child := it.iters[i]
	if child.Next() {
		kv, err := child.Current()
		if err != nil {
			it.err = err
			return false
		}
		heap.Push(&it.heads, mergeHead{kv: kv, idx: i})
		return true
	}
	if err := child.Err(); err != nil {
		it.err = err
		return false
	}
	return true
}

func (it *mergeIterator) Next() bool {
	wasValid := it.valid
	it.valid = false
	if it.err != nil {
		return false
	}
	if !it.primed {
		it.primed = true
		for i := range it.iters {
			if !it.advance(i) {
				return false
			}
		}
	} else if wasValid {
		if !it.advance(it.current.idx) {
			return false
		}
	}
	if it.heads.Len() == 0 {
		return false
	}
	it.current = heap.Pop(&it.heads).(mergeHead)
	it.valid = true
	return true
}

func (it *mergeIterator) Current() (KeyValue[Bytes, []byte], error) {
	if !it.valid {
		return KeyValue[Bytes, []byte]{}, ErrNoCurrentElement
	}
	return it.current.kv, nil
}

func (it *mergeIterator) Err() error {
	return it.err
}

func (it *mergeIterator) Reset() error {
	var err error
	for _, child := range it.iters {
		err = multierr.Append(err, child.Reset())
	}
	it.heads = nil
	it.primed = false
	it.valid = false
	it.err = nil
	return err
}

func (it *mergeIterator) Close() error {
	var err error
	for _, child := range it.iters {
		err = multierr.Append(err, child.Close())
	}
	it.valid = false
	return err
}
