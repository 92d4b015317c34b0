package kprocessor

import (
	"fmt"
	"path/filepath"

	"github.com/birdayz/kstreams-state/kserde"
	"github.com/go-logr/logr"
)

// StateStoreContext is what a store sees of the task that owns it.
// Matches the store-facing subset of Kafka Streams' ProcessorContext.
type StateStoreContext interface {
	// ApplicationID is the application identifier shared by all tasks.
	ApplicationID() string

	// TaskID identifies the owning task.
	TaskID() TaskID

	// StateDir is the task-level state directory,
	// {stateDir}/{applicationID}/{taskID}. Persistent stores create their
	// own directory beneath it.
	StateDir() string

	// DefaultKeySerde and DefaultValueSerde return the configured default
	// codecs, untyped. Use DefaultKeySerde[K] / DefaultValueSerde[V] for a
	// typed lookup.
	DefaultKeySerde() any
	DefaultValueSerde() any

	Logger() logr.Logger
}

// ChangeLogger is implemented by contexts that can record store mutations
// to a changelog. value = nil records a tombstone.
type ChangeLogger interface {
	LogChange(storeName string, key, value []byte) error
}

// ChangeLogFunc adapts a function to ChangeLogger.
type ChangeLogFunc func(storeName string, key, value []byte) error

func (f ChangeLogFunc) LogChange(storeName string, key, value []byte) error {
	return f(storeName, key, value)
}

// DefaultKeySerde resolves the context's default key codec as a Serde[K].
func DefaultKeySerde[K any](ctx StateStoreContext) (kserde.Serde[K], error) {
	s, err := kserde.As[K](ctx.DefaultKeySerde())
	if err != nil {
		return s, fmt.Errorf("default key serde: %w", err)
	}
	return s, nil
}

// DefaultValueSerde resolves the context's default value codec as a Serde[V].
func DefaultValueSerde[V any](ctx StateStoreContext) (kserde.Serde[V], error) {
	s, err := kserde.As[V](ctx.DefaultValueSerde())
	if err != nil {
		return s, fmt.Errorf("default value serde: %w", err)
	}
	return s, nil
}

// ContextOption configures a StoreContext.
type ContextOption func(*StoreContext)

// WithLogger sets the logger handed to stores.
var WithLogger = func(log logr.Logger) ContextOption {
	return func(c *StoreContext) {
		c.log = log
	}
}

// WithChangeLogger sets the sink for changelogging stores.
var WithChangeLogger = func(cl ChangeLogger) ContextOption {
	return func(c *StoreContext) {
		c.changeLogger = cl
	}
}

// StoreContext is the standard StateStoreContext for one task.
type StoreContext struct {
	cfg          Config
	taskID       TaskID
	stateDir     string
	log          logr.Logger
	changeLogger ChangeLogger
}

// NewStoreContext builds the context of task taskID under cfg.
func NewStoreContext(cfg Config, taskID TaskID, opts ...ContextOption) *StoreContext {
	c := &StoreContext{
		cfg:      cfg,
		taskID:   taskID,
		stateDir: filepath.Join(cfg.stateDirOrDefault(), cfg.ApplicationID, taskID.String()),
		log:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithValues("task", taskID.String())
	return c
}

func (c *StoreContext) ApplicationID() string { return c.cfg.ApplicationID }

func (c *StoreContext) TaskID() TaskID { return c.taskID }

func (c *StoreContext) StateDir() string { return c.stateDir }

func (c *StoreContext) DefaultKeySerde() any { return c.cfg.DefaultKeySerde }

func (c *StoreContext) DefaultValueSerde() any { return c.cfg.DefaultValueSerde }

func (c *StoreContext) Logger() logr.Logger { return c.log }

// LogChange forwards to the configured ChangeLogger.
func (c *StoreContext) LogChange(storeName string, key, value []byte) error {
	if c.changeLogger == nil {
		return fmt.Errorf("log change for store %s: %w", storeName, ErrNoChangeLogger)
	}
	return c.changeLogger.LogChange(storeName, key, value)
}

// HasChangeLogger reports whether LogChange has a sink.
func (c *StoreContext) HasChangeLogger() bool {
	return c.changeLogger != nil
}

// WithStateDir returns a view of ctx rooted at dir. Segmented stores use it
// to place their segments beneath the store directory.
func WithStateDir(ctx StateStoreContext, dir string) StateStoreContext {
	return &subdirContext{StateStoreContext: ctx, dir: dir}
}

type subdirContext struct {
	StateStoreContext
	dir string
}

func (c *subdirContext) StateDir() string { return c.dir }

var _ ChangeLogger = (*StoreContext)(nil)
