package kstate

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned by operations invoked before Init.
	ErrNotInitialized = errors.New("store not initialized")

	// ErrStoreClosed is returned by operations invoked after Close.
	ErrStoreClosed = errors.New("store closed")

	// ErrNoCurrentElement is returned when an iterator's current element is
	// read before the first successful Next or after exhaustion.
	ErrNoCurrentElement = errors.New("iterator has no current element")

	// ErrStorageEngine marks failures reported by the underlying engine.
	ErrStorageEngine = errors.New("storage engine failure")

	// ErrCodec marks key or value encode/decode failures.
	ErrCodec = errors.New("codec failure")

	// ErrInvalidTimestamp is returned for negative window start timestamps.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrStoreOpen is returned by Destroy on a store that is still open.
	ErrStoreOpen = errors.New("store still open")

	// ErrInvalidParameter is returned for unusable store parameters.
	ErrInvalidParameter = errors.New("invalid store parameter")
)

// EngineError wraps err as an ErrStorageEngine failure of op on store.
// Both ErrStorageEngine and err remain matchable with errors.Is.
func EngineError(store, op string, err error) error {
	return fmt.Errorf("store %s: %s: %w: %w", store, op, ErrStorageEngine, err)
}

// CodecError wraps err as an ErrCodec failure while handling what
// (e.g. "encode key") on store.
func CodecError(store, what string, err error) error {
	return fmt.Errorf("store %s: %s: %w: %w", store, what, ErrCodec, err)
}
