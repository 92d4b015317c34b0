package kstate

import "fmt"

// Lifecycle tracks the created → open → closed states of a store. Backends
// hold one and call Check at the top of every data operation.
type Lifecycle struct {
	state lifecycleState
}

type lifecycleState uint8

const (
	stateCreated lifecycleState = iota
	stateOpen
	stateClosed
)

// Check returns ErrNotInitialized or ErrStoreClosed unless the store is open.
func (l *Lifecycle) Check(name string) error {
	switch l.state {
	case stateOpen:
		return nil
	case stateClosed:
		return fmt.Errorf("store %s: %w", name, ErrStoreClosed)
	default:
		return fmt.Errorf("store %s: %w", name, ErrNotInitialized)
	}
}

func (l *Lifecycle) IsOpen() bool {
	return l.state == stateOpen
}

func (l *Lifecycle) MarkOpen() {
	l.state = stateOpen
}

func (l *Lifecycle) MarkClosed() {
	l.state = stateClosed
}
