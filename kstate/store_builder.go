package kstate

import (
	"fmt"
	"maps"

	"github.com/birdayz/kstreams-state/kserde"
)

// TypeErasedStoreBuilder is a non-generic interface for store builders.
// This provides type safety when storing builders in maps (avoids using 'any').
// All StoreBuilder[T] implementations must also implement this interface.
type TypeErasedStoreBuilder interface {
	// BuildStateStore constructs the state store (type-erased version)
	BuildStateStore() (StateStore, error)

	// Name returns the store name
	Name() string

	// LogConfig returns the changelog topic configuration
	LogConfig() map[string]string

	// ChangelogEnabled returns whether changelog is enabled
	ChangelogEnabled() bool
}

// StoreBuilder provides a fluent API for configuring and building state stores
// Matches Kafka Streams' org.apache.kafka.streams.state.StoreBuilder interface
//
// Builders are immutable: every With* call returns a new builder. Each Build
// call asks the supplier for a fresh byte store, so built stores never share
// state.
//
// Example usage:
//
//	builder := kstate.NewKeyValueStoreBuilder(
//	    stores.PersistentKeyValueStore("user-store"),
//	    kserde.String, kserde.JSON[User](),
//	).WithChangelogEnabled(map[string]string{
//	    "cleanup.policy": "compact",
//	})
//	store, err := builder.Build()
type StoreBuilder[T StateStore] interface {
	TypeErasedStoreBuilder

	// WithChangelogEnabled reports every write to the task's ChangeLogger.
	// config holds changelog topic settings and may be nil.
	WithChangelogEnabled(config map[string]string) StoreBuilder[T]

	WithChangelogDisabled() StoreBuilder[T]

	// WithMetrics records operation counts and latencies in metrics.
	WithMetrics(metrics *StoreMetrics) StoreBuilder[T]

	// Build constructs a new, uninitialized store.
	Build() (T, error)
}

type storeOptions struct {
	changelog bool
	logConfig map[string]string
	metrics   *StoreMetrics
}

func (o storeOptions) wrapKeyValue(inner KeyValueBytesStore, scope string) KeyValueBytesStore {
	if o.changelog {
		inner = NewChangeLoggingKeyValueBytesStore(inner)
	}
	if o.metrics != nil {
		inner = NewMeteredKeyValueBytesStore(inner, o.metrics, scope)
	}
	return inner
}

func (o storeOptions) wrapWindow(inner WindowBytesStore, scope string) WindowBytesStore {
	if o.changelog {
		inner = NewChangeLoggingWindowBytesStore(inner)
	}
	if o.metrics != nil {
		inner = NewMeteredWindowBytesStore(inner, o.metrics, scope)
	}
	return inner
}

type storeBuilder[T StateStore] struct {
	name  string
	opts  storeOptions
	build func(storeOptions) (T, error)
}

func (b *storeBuilder[T]) Name() string {
	return b.name
}

// LogConfig returns nil if changelog is disabled.
func (b *storeBuilder[T]) LogConfig() map[string]string {
	if !b.opts.changelog {
		return nil
	}
	return maps.Clone(b.opts.logConfig)
}

func (b *storeBuilder[T]) ChangelogEnabled() bool {
	return b.opts.changelog
}

func (b *storeBuilder[T]) WithChangelogEnabled(config map[string]string) StoreBuilder[T] {
	c := *b
	c.opts.changelog = true
	c.opts.logConfig = maps.Clone(config)
	if c.opts.logConfig == nil {
		c.opts.logConfig = make(map[string]string)
	}
	return &c
}

func (b *storeBuilder[T]) WithChangelogDisabled() StoreBuilder[T] {
	c := *b
	c.opts.changelog = false
	c.opts.logConfig = nil
	return &c
}

func (b *storeBuilder[T]) WithMetrics(metrics *StoreMetrics) StoreBuilder[T] {
	c := *b
	c.opts.metrics = metrics
	return &c
}

func (b *storeBuilder[T]) Build() (T, error) {
	return b.build(b.opts)
}

func (b *storeBuilder[T]) BuildStateStore() (StateStore, error) {
	s, err := b.Build()
	if err != nil {
		return nil, err
	}
	return s, nil
}

func getKeyValueBytesStore(supplier KeyValueBytesStoreSupplier) (KeyValueBytesStore, error) {
	inner := supplier.Get()
	if inner == nil {
		return nil, fmt.Errorf("supplier %s returned no store", supplier.Name())
	}
	return inner, nil
}

func getWindowBytesStore(supplier WindowBytesStoreSupplier) (WindowBytesStore, error) {
	inner := supplier.Get()
	if inner == nil {
		return nil, fmt.Errorf("supplier %s returned no store", supplier.Name())
	}
	return inner, nil
}

// NewKeyValueStoreBuilder builds KeyValueStores over supplier's byte
// stores. Zero serdes are resolved from the task's defaults on Init.
// Changelog is disabled by default.
func NewKeyValueStoreBuilder[K, V any](
	supplier KeyValueBytesStoreSupplier,
	keySerde kserde.Serde[K],
	valueSerde kserde.Serde[V],
) StoreBuilder[*KeyValueStore[K, V]] {
	return &storeBuilder[*KeyValueStore[K, V]]{
		name: supplier.Name(),
		build: func(o storeOptions) (*KeyValueStore[K, V], error) {
			inner, err := getKeyValueBytesStore(supplier)
			if err != nil {
				return nil, err
			}
			return NewKeyValueStore(o.wrapKeyValue(inner, supplier.MetricsScope()), keySerde, valueSerde), nil
		},
	}
}

func NewTimestampedKeyValueStoreBuilder[K, V any](
	supplier KeyValueBytesStoreSupplier,
	keySerde kserde.Serde[K],
	valueSerde kserde.Serde[V],
) StoreBuilder[*TimestampedKeyValueStore[K, V]] {
	return &storeBuilder[*TimestampedKeyValueStore[K, V]]{
		name: supplier.Name(),
		build: func(o storeOptions) (*TimestampedKeyValueStore[K, V], error) {
			inner, err := getKeyValueBytesStore(supplier)
			if err != nil {
				return nil, err
			}
			return NewTimestampedKeyValueStore(o.wrapKeyValue(inner, supplier.MetricsScope()), keySerde, valueSerde), nil
		},
	}
}

func NewWindowStoreBuilder[K, V any](
	supplier WindowBytesStoreSupplier,
	keySerde kserde.Serde[K],
	valueSerde kserde.Serde[V],
) StoreBuilder[*WindowStore[K, V]] {
	return &storeBuilder[*WindowStore[K, V]]{
		name: supplier.Name(),
		build: func(o storeOptions) (*WindowStore[K, V], error) {
			inner, err := getWindowBytesStore(supplier)
			if err != nil {
				return nil, err
			}
			return NewWindowStore(o.wrapWindow(inner, supplier.MetricsScope()), keySerde, valueSerde), nil
		},
	}
}

func NewTimestampedWindowStoreBuilder[K, V any](
	supplier WindowBytesStoreSupplier,
	keySerde kserde.Serde[K],
	valueSerde kserde.Serde[V],
) StoreBuilder[*TimestampedWindowStore[K, V]] {
	return &storeBuilder[*TimestampedWindowStore[K, V]]{
		name: supplier.Name(),
		build: func(o storeOptions) (*TimestampedWindowStore[K, V], error) {
			inner, err := getWindowBytesStore(supplier)
			if err != nil {
				return nil, err
			}
			return NewTimestampedWindowStore(o.wrapWindow(inner, supplier.MetricsScope()), keySerde, valueSerde), nil
		},
	}
}
