// Package kserde defines the codec contract used by typed state stores and
// ships codecs for common primitive types.
package kserde

import "errors"

// ErrSerdeNotConfigured is returned when a store needs a codec that was
// neither passed explicitly nor configured as a default.
var ErrSerdeNotConfigured = errors.New("serde not configured")

// Serde pairs a serializer with its inverse.
type Serde[T any] struct {
	Serializer   Serializer[T]
	Deserializer Deserializer[T]
}

type Serializer[T any] func(T) ([]byte, error)

type Deserializer[T any] func([]byte) (T, error)

// Configured reports whether both directions are set. A zero Serde is the
// "resolve from context" marker accepted by store constructors.
func (s Serde[T]) Configured() bool {
	return s.Serializer != nil && s.Deserializer != nil
}
