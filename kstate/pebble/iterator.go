package pebble

import (
	"github.com/birdayz/kstreams-state/kstate"
	"github.com/cockroachdb/pebble"
	"go.uber.org/multierr"
)

// iterator reads from a snapshot taken when it was created, so writes
// after Range/All are not observed, including across Reset.
type iterator struct {
	store *Store
	snap  *pebble.Snapshot
	opts  pebble.IterOptions
	it    *pebble.Iterator

	started bool
	done    bool
	valid   bool
	closed  bool
	current kstate.KeyValue[kstate.Bytes, []byte]
	err     error
}

func (s *Store) newIterator(opts pebble.IterOptions) *iterator {
	snap := s.db.NewSnapshot()
	it := &iterator{
		store: s,
		snap:  snap,
		opts:  opts,
		it:    snap.NewIter(&opts),
	}
	s.iters[it] = struct{}{}
	return it
}

func (it *iterator) Next() bool {
	it.valid = false
	if it.closed || it.done || it.err != nil {
		return false
	}

	var ok bool
	if !it.started {
		it.started = true
		ok = it.it.First()
	} else {
		ok = it.it.Next()
	}
	if !ok {
		it.done = true
		if err := it.it.Error(); err != nil {
			it.err = kstate.EngineError(it.store.name, "iterate", err)
		}
		return false
	}

	v, err := it.it.ValueAndErr()
	if err != nil {
		it.err = kstate.EngineError(it.store.name, "read value", err)
		return false
	}
	value := make([]byte, len(v))
	copy(value, v)

	it.current = kstate.KeyValue[kstate.Bytes, []byte]{
		Key:   kstate.NewBytes(it.it.Key()),
		Value: value,
	}
	it.valid = true
	return true
}

func (it *iterator) Current() (kstate.KeyValue[kstate.Bytes, []byte], error) {
	if !it.valid {
		return kstate.KeyValue[kstate.Bytes, []byte]{}, kstate.ErrNoCurrentElement
	}
	return it.current, nil
}

func (it *iterator) Err() error {
	return it.err
}

// Reset reopens a fresh cursor over the same snapshot.
func (it *iterator) Reset() error {
	if it.closed {
		return kstate.EngineError(it.store.name, "reset", kstate.ErrStoreClosed)
	}
	err := it.it.Close()
	it.it = it.snap.NewIter(&it.opts)
	it.started = false
	it.done = false
	it.valid = false
	it.err = nil
	if err != nil {
		return kstate.EngineError(it.store.name, "reset", err)
	}
	return nil
}

func (it *iterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.valid = false
	delete(it.store.iters, it)

	var err error
	if cerr := it.it.Close(); cerr != nil {
		err = multierr.Append(err, kstate.EngineError(it.store.name, "close iterator", cerr))
	}
	if cerr := it.snap.Close(); cerr != nil {
		err = multierr.Append(err, kstate.EngineError(it.store.name, "close snapshot", cerr))
	}
	return err
}
