package kstate

import (
	"fmt"

	"github.com/birdayz/kstreams-state/kprocessor"
	"github.com/twmb/franz-go/pkg/kgo"
)

// StateRestoreCallback applies changelog records to a store.
// Matches Kafka Streams' org.apache.kafka.streams.processor.StateRestoreCallback
type StateRestoreCallback interface {
	// Restore applies one record. value = nil indicates tombstone (deletion)
	Restore(key, value []byte) error

	// RestoreBatch applies records in order.
	RestoreBatch(records []*kgo.Record) error
}

// RestoreCallbackOf finds the restore callback of store by unwrapping
// typed and decorating layers. ok is false if no layer logs changes.
func RestoreCallbackOf(store StateStore) (StateRestoreCallback, bool) {
	for store != nil {
		if cb, ok := store.(StateRestoreCallback); ok {
			return cb, true
		}
		u, ok := store.(interface{ Unwrap() StateStore })
		if !ok {
			return nil, false
		}
		store = u.Unwrap()
	}
	return nil, false
}

func changeLoggerOf(ctx kprocessor.StateStoreContext, store string) (kprocessor.ChangeLogger, error) {
	cl, ok := ctx.(kprocessor.ChangeLogger)
	if !ok {
		return nil, fmt.Errorf("init store %s: %w", store, kprocessor.ErrNoChangeLogger)
	}
	if h, ok := ctx.(interface{ HasChangeLogger() bool }); ok && !h.HasChangeLogger() {
		return nil, fmt.Errorf("init store %s: %w", store, kprocessor.ErrNoChangeLogger)
	}
	return cl, nil
}

// ChangeLoggingKeyValueBytesStore reports every mutation of the wrapped
// store to the task's ChangeLogger.
// Matches Kafka Streams' ChangeLoggingKeyValueBytesStore
//
// The inner store is written first and the change logged second, so a
// failed log leaves a store write that the next successful write of the key
// supersedes. Delete logs a tombstone (nil value).
type ChangeLoggingKeyValueBytesStore struct {
	KeyValueBytesStore
	logger kprocessor.ChangeLogger
}

func NewChangeLoggingKeyValueBytesStore(inner KeyValueBytesStore) *ChangeLoggingKeyValueBytesStore {
	return &ChangeLoggingKeyValueBytesStore{KeyValueBytesStore: inner}
}

func (c *ChangeLoggingKeyValueBytesStore) Unwrap() StateStore {
	return c.KeyValueBytesStore
}

// Init requires ctx to carry a ChangeLogger.
func (c *ChangeLoggingKeyValueBytesStore) Init(ctx kprocessor.StateStoreContext) error {
	cl, err := changeLoggerOf(ctx, c.Name())
	if err != nil {
		return err
	}
	if err := c.KeyValueBytesStore.Init(ctx); err != nil {
		return err
	}
	c.logger = cl
	return nil
}

func (c *ChangeLoggingKeyValueBytesStore) log(key Bytes, value []byte) error {
	if err := c.logger.LogChange(c.Name(), key.Get(), value); err != nil {
		return fmt.Errorf("store %s: log change: %w", c.Name(), err)
	}
	return nil
}

func (c *ChangeLoggingKeyValueBytesStore) Put(key Bytes, value []byte) error {
	if err := c.KeyValueBytesStore.Put(key, value); err != nil {
		return err
	}
	return c.log(key, value)
}

func (c *ChangeLoggingKeyValueBytesStore) PutIfAbsent(key Bytes, value []byte) ([]byte, error) {
	prev, err := c.KeyValueBytesStore.PutIfAbsent(key, value)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		if err := c.log(key, value); err != nil {
			return nil, err
		}
	}
	return prev, nil
}

// PutAll logs each entry individually after the batch is applied.
func (c *ChangeLoggingKeyValueBytesStore) PutAll(entries []KeyValue[Bytes, []byte]) error {
	if err := c.KeyValueBytesStore.PutAll(entries); err != nil {
		return err
	}
	for _, e := range entries {
		if err := c.log(e.Key, e.Value); err != nil {
			return err
		}
	}
	return nil
}

func (c *ChangeLoggingKeyValueBytesStore) Delete(key Bytes) ([]byte, error) {
	prev, err := c.KeyValueBytesStore.Delete(key)
	if err != nil {
		return nil, err
	}
	return prev, c.log(key, nil)
}

// Restore writes to the inner store without logging.
func (c *ChangeLoggingKeyValueBytesStore) Restore(key, value []byte) error {
	return c.KeyValueBytesStore.Put(NewBytes(key), value)
}

func (c *ChangeLoggingKeyValueBytesStore) RestoreBatch(records []*kgo.Record) error {
	entries := make([]KeyValue[Bytes, []byte], 0, len(records))
	for _, r := range records {
		entries = append(entries, KeyValue[Bytes, []byte]{Key: NewBytes(r.Key), Value: r.Value})
	}
	return c.KeyValueBytesStore.PutAll(entries)
}

// ChangeLoggingWindowBytesStore reports every window write to the task's
// ChangeLogger. Changelog keys are window store keys (key ++ windowStart).
// Matches Kafka Streams' ChangeLoggingWindowBytesStore
type ChangeLoggingWindowBytesStore struct {
	WindowBytesStore
	logger kprocessor.ChangeLogger
}

func NewChangeLoggingWindowBytesStore(inner WindowBytesStore) *ChangeLoggingWindowBytesStore {
	return &ChangeLoggingWindowBytesStore{WindowBytesStore: inner}
}

func (c *ChangeLoggingWindowBytesStore) Unwrap() StateStore {
	return c.WindowBytesStore
}

func (c *ChangeLoggingWindowBytesStore) Init(ctx kprocessor.StateStoreContext) error {
	cl, err := changeLoggerOf(ctx, c.Name())
	if err != nil {
		return err
	}
	if err := c.WindowBytesStore.Init(ctx); err != nil {
		return err
	}
	c.logger = cl
	return nil
}

func (c *ChangeLoggingWindowBytesStore) Put(key Bytes, value []byte, windowStart int64) error {
	if err := c.WindowBytesStore.Put(key, value, windowStart); err != nil {
		return err
	}
	if err := c.logger.LogChange(c.Name(), windowStoreKey(key, windowStart).Get(), value); err != nil {
		return fmt.Errorf("store %s: log change: %w", c.Name(), err)
	}
	return nil
}

func (c *ChangeLoggingWindowBytesStore) Restore(key, value []byte) error {
	k, windowStart, err := splitWindowStoreKey(NewBytes(key))
	if err != nil {
		return CodecError(c.Name(), "restore window key", err)
	}
	return c.WindowBytesStore.Put(k, value, windowStart)
}

func (c *ChangeLoggingWindowBytesStore) RestoreBatch(records []*kgo.Record) error {
	for _, r := range records {
		if err := c.Restore(r.Key, r.Value); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ KeyValueBytesStore   = (*ChangeLoggingKeyValueBytesStore)(nil)
	_ StateRestoreCallback = (*ChangeLoggingKeyValueBytesStore)(nil)
	_ WindowBytesStore     = (*ChangeLoggingWindowBytesStore)(nil)
	_ StateRestoreCallback = (*ChangeLoggingWindowBytesStore)(nil)
)
