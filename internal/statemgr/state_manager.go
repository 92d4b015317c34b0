// Package statemgr manages the lifecycle of the state stores owned by one
// task: registration, directory locking, initialization, flush, close and
// wiping the task's state directory.
package statemgr

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"unicode"

	"github.com/birdayz/kstreams-state/kprocessor"
	"github.com/birdayz/kstreams-state/kstate"
	"github.com/go-logr/logr"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

var (
	ErrStoreNotRegistered = errors.New("store not registered")
	ErrNoRestoreCallback  = errors.New("store has no changelog restore callback")
	ErrManagerClosed      = errors.New("state manager closed")
	ErrReadOnly           = errors.New("state manager is read-only")
)

// Option configures a StateManager.
type Option func(*StateManager)

// ReadOnly opens the task's stores for inspection. Close neither flushes nor
// checkpoints, and Restore, Checkpoint and Wipe fail with ErrReadOnly.
func ReadOnly() Option {
	return func(sm *StateManager) {
		sm.readOnly = true
	}
}

// StateManager coordinates the stores of one task
// Matches Kafka Streams' org.apache.kafka.streams.processor.internals.ProcessorStateManager
//
// Lifecycle: Register* → Init → (Restore, Flush, Checkpoint)* → Close →
// optionally Wipe.
// Like the stores it manages, StateManager is driven by the task's own
// goroutine and is not safe for concurrent use.
type StateManager struct {
	ctx        kprocessor.StateStoreContext
	log        logr.Logger
	lock       *DirectoryLock
	checkpoint *checkpointFile
	stores     map[string]kstate.StateStore
	order      []string

	// Last restored changelog offset per store.
	offsets map[string]int64

	readOnly    bool
	initialized bool
	closed      bool
}

// New creates the manager of the task described by ctx. The task directory
// is ctx.StateDir().
func New(ctx kprocessor.StateStoreContext, opts ...Option) *StateManager {
	log := ctx.Logger().WithValues("component", "state_manager")
	sm := &StateManager{
		ctx:        ctx,
		log:        log,
		lock:       NewDirectoryLock(ctx.StateDir(), log),
		checkpoint: newCheckpointFile(ctx.StateDir()),
		stores:     make(map[string]kstate.StateStore),
		offsets:    make(map[string]int64),
	}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

// Register adds an uninitialized store. Names must be unique per task.
func (sm *StateManager) Register(store kstate.StateStore) error {
	if sm.closed {
		return ErrManagerClosed
	}
	if sm.initialized {
		return fmt.Errorf("register store %s: stores are already initialized", store.Name())
	}
	name := store.Name()
	if name == "" || strings.ContainsFunc(name, unicode.IsSpace) {
		return fmt.Errorf("invalid store name %q", name)
	}
	if _, exists := sm.stores[name]; exists {
		return fmt.Errorf("store '%s' is already registered", name)
	}
	sm.stores[name] = store
	sm.order = append(sm.order, name)
	sm.log.V(1).Info("Registered store", "store", name, "persistent", store.Persistent())
	return nil
}

// RegisterBuilder builds a store from b and registers it.
func (sm *StateManager) RegisterBuilder(b kstate.TypeErasedStoreBuilder) error {
	store, err := b.BuildStateStore()
	if err != nil {
		return fmt.Errorf("build store %s: %w", b.Name(), err)
	}
	return sm.Register(store)
}

// AcquireLock takes the task directory lock. Init acquires it implicitly.
func (sm *StateManager) AcquireLock() error {
	if sm.lock.IsLocked() {
		return nil
	}
	if err := sm.lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire directory lock: %w", err)
	}
	sm.log.V(1).Info("Acquired directory lock", "state_dir", sm.ctx.StateDir())
	return nil
}

// Init locks the task directory, loads the checkpoint and initializes all
// stores in registration order. If a store fails, the stores initialized so
// far are closed and the lock is released.
func (sm *StateManager) Init() error {
	if sm.closed {
		return ErrManagerClosed
	}
	if sm.initialized {
		return nil
	}
	if err := sm.AcquireLock(); err != nil {
		return err
	}
	if err := sm.loadCheckpoint(); err != nil {
		return multierr.Append(err, sm.lock.Unlock())
	}

	for i, name := range sm.order {
		if err := sm.stores[name].Init(sm.ctx); err != nil {
			err = fmt.Errorf("init store %s: %w", name, err)
			for _, done := range sm.order[:i] {
				err = multierr.Append(err, sm.stores[done].Close())
			}
			err = multierr.Append(err, sm.lock.Unlock())
			sm.log.Error(err, "Failed to initialize stores")
			return err
		}
	}

	sm.initialized = true
	sm.log.Info("Initialized state stores", "stores", len(sm.order))
	return nil
}

func (sm *StateManager) loadCheckpoint() error {
	offsets, err := sm.checkpoint.read()
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	for name, offset := range offsets {
		if store, ok := sm.stores[name]; ok && store.Persistent() {
			sm.offsets[name] = offset
		}
	}
	return nil
}

// Store returns the registered store called name.
func (sm *StateManager) Store(name string) (kstate.StateStore, bool) {
	s, ok := sm.stores[name]
	return s, ok
}

// StoreNames returns store names in registration order.
func (sm *StateManager) StoreNames() []string {
	return slices.Clone(sm.order)
}

// Restore applies changelog records to the store called storeName,
// bypassing its changelog.
func (sm *StateManager) Restore(storeName string, records []*kgo.Record) error {
	if sm.readOnly {
		return fmt.Errorf("restore %s: %w", storeName, ErrReadOnly)
	}
	store, ok := sm.stores[storeName]
	if !ok {
		return fmt.Errorf("restore %s: %w", storeName, ErrStoreNotRegistered)
	}
	cb, ok := kstate.RestoreCallbackOf(store)
	if !ok {
		return fmt.Errorf("restore %s: %w", storeName, ErrNoRestoreCallback)
	}
	if err := cb.RestoreBatch(records); err != nil {
		return fmt.Errorf("restore %s: %w", storeName, err)
	}
	if len(records) > 0 {
		sm.offsets[storeName] = records[len(records)-1].Offset
	}
	sm.log.V(1).Info("Restored records", "store", storeName, "records", len(records))
	return nil
}

// RestoredOffset returns the offset of the last changelog record applied to
// storeName, by Restore or from the checkpoint loaded on Init. Restoration
// resumes at offset+1.
func (sm *StateManager) RestoredOffset(storeName string) (int64, bool) {
	offset, ok := sm.offsets[storeName]
	return offset, ok
}

// Checkpoint persists the restored offsets of persistent stores. Entries of
// stores not registered with this manager are carried over from the existing
// file. Call it after Flush so the checkpoint never runs ahead of the data.
func (sm *StateManager) Checkpoint() error {
	if sm.readOnly {
		return fmt.Errorf("write checkpoint: %w", ErrReadOnly)
	}
	offsets, err := sm.checkpoint.read()
	if err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	}
	maps.DeleteFunc(offsets, func(name string, _ int64) bool {
		_, registered := sm.stores[name]
		return registered
	})
	for name, offset := range sm.offsets {
		if sm.stores[name].Persistent() {
			offsets[name] = offset
		}
	}
	if err := sm.checkpoint.write(offsets); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// Flush flushes all stores concurrently. Every store is flushed even if
// another fails; the first failure is returned.
func (sm *StateManager) Flush(ctx context.Context) error {
	var g errgroup.Group
	for _, name := range sm.order {
		store := sm.stores[name]
		g.Go(func() error {
			if err := store.Flush(ctx); err != nil {
				sm.log.Error(err, "Failed to flush store", "store", store.Name())
				return fmt.Errorf("failed to flush store %s: %w", store.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close flushes and checkpoints, unless the manager is read-only, then
// closes all stores in reverse registration order and releases the
// directory lock. All stores are closed even if some step fails.
func (sm *StateManager) Close() error {
	if sm.closed {
		return nil
	}
	sm.closed = true

	var err error
	if sm.initialized && !sm.readOnly {
		if ferr := sm.Flush(context.Background()); ferr != nil {
			err = multierr.Append(err, ferr)
		} else if cerr := sm.Checkpoint(); cerr != nil {
			sm.log.Error(cerr, "Failed to checkpoint before close")
			err = multierr.Append(err, cerr)
		}
	}
	for _, name := range slices.Backward(sm.order) {
		if cerr := sm.stores[name].Close(); cerr != nil {
			sm.log.Error(cerr, "Failed to close store", "store", name)
			err = multierr.Append(err, fmt.Errorf("close store %s: %w", name, cerr))
		}
	}
	if uerr := sm.lock.Unlock(); uerr != nil {
		sm.log.Error(uerr, "Failed to release directory lock")
		err = multierr.Append(err, uerr)
	}
	sm.log.V(1).Info("Closed state manager")
	return err
}

// Wipe deletes the task's state directory. Only valid after Close.
func (sm *StateManager) Wipe() error {
	if sm.readOnly {
		return fmt.Errorf("wipe state: %w", ErrReadOnly)
	}
	if !sm.closed {
		return fmt.Errorf("wipe state: %w", kstate.ErrStoreOpen)
	}
	dir := sm.ctx.StateDir()
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete state dir: %w", err)
	}
	sm.log.Info("Wiped state", "state_dir", dir)
	return nil
}
