package kserde

import (
	"fmt"
	"sort"
)

// Named codecs, referenced from configuration files.
var registry = map[string]any{
	"string":  String,
	"int64":   Int64,
	"int32":   Int32,
	"float64": Float64,
	"bytes":   Bytes,
}

// Lookup returns the codec registered under name. The result is a Serde[T]
// for the codec's T, typed as any; callers assert it back with As.
func Lookup(name string) (any, error) {
	s, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown serde %q (known: %v)", name, Names())
	}
	return s, nil
}

// Register adds or replaces a named codec.
func Register[T any](name string, serde Serde[T]) {
	registry[name] = serde
}

// Names returns registered codec names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// As converts an untyped codec reference into a Serde[T]. A nil reference
// yields ErrSerdeNotConfigured.
func As[T any](serde any) (Serde[T], error) {
	if serde == nil {
		return Serde[T]{}, ErrSerdeNotConfigured
	}
	switch s := serde.(type) {
	case Serde[T]:
		if !s.Configured() {
			return Serde[T]{}, ErrSerdeNotConfigured
		}
		return s, nil
	case *Serde[T]:
		if s == nil || !s.Configured() {
			return Serde[T]{}, ErrSerdeNotConfigured
		}
		return *s, nil
	default:
		return Serde[T]{}, fmt.Errorf("serde is %T, expected %T", serde, Serde[T]{})
	}
}
