package inmemory

import (
	"bytes"

	"github.com/birdayz/kstreams-state/kstate"
	"github.com/google/btree"
)

// iterator walks a copy-on-write clone of the tree, seeking past the last
// returned key on every Next.
type iterator struct {
	tree *btree.BTreeG[entry]
	from kstate.Bytes
	to   *kstate.Bytes

	started bool
	done    bool
	valid   bool
	current entry
}

func newIterator(tree *btree.BTreeG[entry], from kstate.Bytes, to *kstate.Bytes) *iterator {
	return &iterator{tree: tree, from: from, to: to}
}

func (it *iterator) Next() bool {
	it.valid = false
	if it.done || it.tree == nil {
		return false
	}

	pivot := it.from
	if it.started {
		pivot = it.current.key
	}

	var (
		next  entry
		found bool
	)
	it.tree.AscendGreaterOrEqual(entry{key: pivot}, func(e entry) bool {
		if it.started && e.key.Equal(pivot) {
			return true
		}
		next, found = e, true
		return false
	})
	it.started = true

	if !found || (it.to != nil && it.to.Less(next.key)) {
		it.done = true
		return false
	}
	it.current = next
	it.valid = true
	return true
}

func (it *iterator) Current() (kstate.KeyValue[kstate.Bytes, []byte], error) {
	if !it.valid {
		return kstate.KeyValue[kstate.Bytes, []byte]{}, kstate.ErrNoCurrentElement
	}
	return kstate.KeyValue[kstate.Bytes, []byte]{
		Key:   it.current.key,
		Value: bytes.Clone(it.current.value),
	}, nil
}

func (it *iterator) Err() error {
	return nil
}

func (it *iterator) Reset() error {
	it.started = false
	it.done = false
	it.valid = false
	return nil
}

func (it *iterator) Close() error {
	it.tree = nil
	it.valid = false
	return nil
}
