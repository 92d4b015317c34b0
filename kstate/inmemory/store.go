// Package inmemory implements a KeyValueBytesStore held entirely in process
// memory, ordered by key in a B-tree.
package inmemory

import (
	"bytes"
	"context"

	"github.com/birdayz/kstreams-state/kprocessor"
	"github.com/birdayz/kstreams-state/kstate"
	"github.com/go-logr/logr"
	"github.com/google/btree"
)

const degree = 32

type entry struct {
	key   kstate.Bytes
	value []byte
}

func entryLess(a, b entry) bool {
	return a.key.Less(b.key)
}

// Store is an in-memory KeyValueBytesStore. Its contents are discarded on
// Close.
type Store struct {
	name string
	lc   kstate.Lifecycle
	log  logr.Logger
	tree *btree.BTreeG[entry]
}

func New(name string) *Store {
	return &Store{
		name: name,
		log:  logr.Discard(),
	}
}

func (s *Store) Name() string {
	return s.name
}

func (s *Store) Persistent() bool {
	return false
}

func (s *Store) IsOpen() bool {
	return s.lc.IsOpen()
}

func (s *Store) Init(ctx kprocessor.StateStoreContext) error {
	if s.lc.IsOpen() {
		return nil
	}
	s.log = ctx.Logger().WithValues("store", s.name)
	s.tree = btree.NewG[entry](degree, entryLess)
	s.lc.MarkOpen()
	s.log.V(1).Info("Opened in-memory store")
	return nil
}

func (s *Store) Get(key kstate.Bytes) ([]byte, error) {
	if err := s.lc.Check(s.name); err != nil {
		return nil, err
	}
	e, ok := s.tree.Get(entry{key: key})
	if !ok {
		return nil, nil
	}
	return bytes.Clone(e.value), nil
}

func (s *Store) Put(key kstate.Bytes, value []byte) error {
	if err := s.lc.Check(s.name); err != nil {
		return err
	}
	s.put(key, value)
	return nil
}

func (s *Store) put(key kstate.Bytes, value []byte) (entry, bool) {
	if value == nil {
		return s.tree.Delete(entry{key: key})
	}
	return s.tree.ReplaceOrInsert(entry{key: key, value: bytes.Clone(value)})
}

func (s *Store) PutIfAbsent(key kstate.Bytes, value []byte) ([]byte, error) {
	if err := s.lc.Check(s.name); err != nil {
		return nil, err
	}
	if e, ok := s.tree.Get(entry{key: key}); ok {
		return bytes.Clone(e.value), nil
	}
	s.put(key, value)
	return nil, nil
}

func (s *Store) PutAll(entries []kstate.KeyValue[kstate.Bytes, []byte]) error {
	if err := s.lc.Check(s.name); err != nil {
		return err
	}
	for _, e := range entries {
		s.put(e.Key, e.Value)
	}
	return nil
}

func (s *Store) Delete(key kstate.Bytes) ([]byte, error) {
	if err := s.lc.Check(s.name); err != nil {
		return nil, err
	}
	prev, ok := s.tree.Delete(entry{key: key})
	if !ok {
		return nil, nil
	}
	return prev.value, nil
}

func (s *Store) Range(from, to kstate.Bytes) (kstate.KeyValueIterator[kstate.Bytes, []byte], error) {
	if err := s.lc.Check(s.name); err != nil {
		return nil, err
	}
	if to.Less(from) {
		return kstate.EmptyIterator[kstate.Bytes, []byte](), nil
	}
	return newIterator(s.tree.Clone(), from, &to), nil
}

func (s *Store) All() (kstate.KeyValueIterator[kstate.Bytes, []byte], error) {
	if err := s.lc.Check(s.name); err != nil {
		return nil, err
	}
	return newIterator(s.tree.Clone(), kstate.Bytes{}, nil), nil
}

// ApproximateNumEntries is exact for this store.
func (s *Store) ApproximateNumEntries() (int64, error) {
	if err := s.lc.Check(s.name); err != nil {
		return 0, err
	}
	return int64(s.tree.Len()), nil
}

func (s *Store) Flush(context.Context) error {
	return s.lc.Check(s.name)
}

func (s *Store) Close() error {
	if !s.lc.IsOpen() {
		return nil
	}
	s.tree = nil
	s.lc.MarkClosed()
	s.log.V(1).Info("Closed in-memory store")
	return nil
}

var _ kstate.KeyValueBytesStore = (*Store)(nil)
