// Package pebble implements the persistent KeyValueBytesStore on top of
// Pebble. Each store owns one database under
// {stateDir}/{applicationId}/{taskId}/{storeName}.
package pebble

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/birdayz/kstreams-state/kprocessor"
	"github.com/birdayz/kstreams-state/kstate"
	"github.com/cockroachdb/pebble"
	"github.com/go-logr/logr"
	"go.uber.org/multierr"
)

// Store is a Pebble-backed KeyValueBytesStore.
type Store struct {
	name string
	lc   kstate.Lifecycle
	log  logr.Logger
	dir  string
	db   *pebble.DB

	// Open iterators; closed with the store so no snapshot outlives the db.
	iters map[*iterator]struct{}
}

// New creates a store that opens its database on Init.
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
	return true
}

func (s *Store) IsOpen() bool {
	return s.lc.IsOpen()
}

// Dir returns the database directory, empty before the first Init.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) Init(ctx kprocessor.StateStoreContext) error {
	if s.lc.IsOpen() {
		return nil
	}
	s.log = ctx.Logger().WithValues("store", s.name)
	s.dir = filepath.Join(ctx.StateDir(), s.name)

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return kstate.EngineError(s.name, "create directory", err)
	}
	db, err := pebble.Open(s.dir, &pebble.Options{})
	if err != nil {
		return kstate.EngineError(s.name, fmt.Sprintf("open %s", s.dir), err)
	}

	s.db = db
	s.iters = make(map[*iterator]struct{})
	s.lc.MarkOpen()
	s.log.V(1).Info("Opened pebble store", "dir", s.dir)
	return nil
}

func (s *Store) Get(key kstate.Bytes) ([]byte, error) {
	if err := s.lc.Check(s.name); err != nil {
		return nil, err
	}
	return s.get(key)
}

func (s *Store) get(key kstate.Bytes) ([]byte, error) {
	v, closer, err := s.db.Get(key.Get())
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, kstate.EngineError(s.name, "get", err)
	}
	defer closer.Close()

	// Copy bytes before closer is called
	res := make([]byte, len(v))
	copy(res, v)
	return res, nil
}

func (s *Store) Put(key kstate.Bytes, value []byte) error {
	if err := s.lc.Check(s.name); err != nil {
		return err
	}
	return s.put(key, value)
}

func (s *Store) put(key kstate.Bytes, value []byte) error {
	if value == nil {
		if err := s.db.Delete(key.Get(), pebble.NoSync); err != nil {
			return kstate.EngineError(s.name, "delete", err)
		}
		return nil
	}
	if err := s.db.Set(key.Get(), value, pebble.NoSync); err != nil {
		return kstate.EngineError(s.name, "set", err)
	}
	return nil
}

func (s *Store) PutIfAbsent(key kstate.Bytes, value []byte) ([]byte, error) {
	if err := s.lc.Check(s.name); err != nil {
		return nil, err
	}
	prev, err := s.get(key)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		return prev, nil
	}
	return nil, s.put(key, value)
}

func (s *Store) PutAll(entries []kstate.KeyValue[kstate.Bytes, []byte]) error {
	if err := s.lc.Check(s.name); err != nil {
		return err
	}
	b := s.db.NewBatch()
	defer b.Close()

	for _, e := range entries {
		var err error
		if e.Value == nil {
			err = b.Delete(e.Key.Get(), nil)
		} else {
			err = b.Set(e.Key.Get(), e.Value, nil)
		}
		if err != nil {
			return kstate.EngineError(s.name, "batch", err)
		}
	}
	if err := b.Commit(pebble.NoSync); err != nil {
		return kstate.EngineError(s.name, "commit batch", err)
	}
	return nil
}

func (s *Store) Delete(key kstate.Bytes) ([]byte, error) {
	if err := s.lc.Check(s.name); err != nil {
		return nil, err
	}
	prev, err := s.get(key)
	if err != nil || prev == nil {
		return prev, err
	}
	if err := s.db.Delete(key.Get(), pebble.NoSync); err != nil {
		return nil, kstate.EngineError(s.name, "delete", err)
	}
	return prev, nil
}

func (s *Store) Range(from, to kstate.Bytes) (kstate.KeyValueIterator[kstate.Bytes, []byte], error) {
	if err := s.lc.Check(s.name); err != nil {
		return nil, err
	}
	if to.Less(from) {
		return kstate.EmptyIterator[kstate.Bytes, []byte](), nil
	}
	return s.newIterator(pebble.IterOptions{
		LowerBound: from.Get(),
		UpperBound: to.UpperBoundExclusive(),
	}), nil
}

func (s *Store) All() (kstate.KeyValueIterator[kstate.Bytes, []byte], error) {
	if err := s.lc.Check(s.name); err != nil {
		return nil, err
	}
	return s.newIterator(pebble.IterOptions{}), nil
}

// ApproximateNumEntries counts live keys with a full scan.
func (s *Store) ApproximateNumEntries() (int64, error) {
	if err := s.lc.Check(s.name); err != nil {
		return 0, err
	}
	it := s.db.NewIter(nil)
	defer it.Close()

	var n int64
	for it.First(); it.Valid(); it.Next() {
		n++
	}
	if err := it.Error(); err != nil {
		return 0, kstate.EngineError(s.name, "count", err)
	}
	return n, nil
}

func (s *Store) Flush(ctx context.Context) error {
	if err := s.lc.Check(s.name); err != nil {
		return err
	}
	if err := s.db.Flush(); err != nil {
		return kstate.EngineError(s.name, "flush", err)
	}
	return nil
}

// Close flushes and closes the database. Iterators still open are closed
// first. Data on disk is retained.
func (s *Store) Close() error {
	if !s.lc.IsOpen() {
		return nil
	}
	var err error
	for it := range s.iters {
		err = multierr.Append(err, it.Close())
	}
	if ferr := s.db.Flush(); ferr != nil {
		err = multierr.Append(err, kstate.EngineError(s.name, "flush", ferr))
	}
	if cerr := s.db.Close(); cerr != nil {
		err = multierr.Append(err, kstate.EngineError(s.name, "close", cerr))
	}
	s.db = nil
	s.iters = nil
	s.lc.MarkClosed()
	s.log.V(1).Info("Closed pebble store")
	return err
}

// Destroy removes the database directory. The store must be closed.
func (s *Store) Destroy() error {
	if s.lc.IsOpen() {
		return fmt.Errorf("destroy store %s: %w", s.name, kstate.ErrStoreOpen)
	}
	if s.dir == "" {
		return nil
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return kstate.EngineError(s.name, "destroy", err)
	}
	s.log.V(1).Info("Destroyed pebble store", "dir", s.dir)
	return nil
}

var (
	_ kstate.KeyValueBytesStore = (*Store)(nil)
	_ kstate.Destroyer          = (*Store)(nil)
)
