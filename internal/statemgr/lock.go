package statemgr

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/go-logr/logr"
)

// ErrLockHeld is returned by Lock when this instance already holds the lock.
var ErrLockHeld = errors.New("lock already held by this instance")

// DirectoryLock provides exclusive access to a task's state directory
// Matches Kafka Streams' StateDirectory lock file behavior
//
// Lock file lifecycle:
//  1. Lock(): Create .lock file and acquire exclusive lock
//  2. Unlock(): Release lock and remove .lock file
type DirectoryLock struct {
	lockFilePath string
	lockFile     *os.File
	log          logr.Logger
}

// NewDirectoryLock creates a lock on lockDir (e.g. "/tmp/kstreams/app/0_0").
func NewDirectoryLock(lockDir string, log logr.Logger) *DirectoryLock {
	return &DirectoryLock{
		lockFilePath: filepath.Join(lockDir, ".lock"),
		log:          log,
	}
}

// Lock acquires an exclusive, non-blocking flock(2) on the lock file,
// creating the directory if needed. The lock is advisory.
func (l *DirectoryLock) Lock() error {
	if l.lockFile != nil {
		return ErrLockHeld
	}

	if err := os.MkdirAll(filepath.Dir(l.lockFilePath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	file, err := os.OpenFile(l.lockFilePath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		return fmt.Errorf("acquire lock (is another instance running?): %w", err)
	}

	l.lockFile = file
	return nil
}

// Unlock releases the lock and removes the lock file. Failing to remove the
// file is logged, not returned.
func (l *DirectoryLock) Unlock() error {
	if l.lockFile == nil {
		return nil
	}

	// Cleared first: the file is unusable after a failed unlock.
	file := l.lockFile
	l.lockFile = nil

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_UN); err != nil {
		file.Close()
		return fmt.Errorf("release lock: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close lock file: %w", err)
	}
	if err := os.Remove(l.lockFilePath); err != nil && !os.IsNotExist(err) {
		l.log.Error(err, "Failed to remove lock file", "path", l.lockFilePath)
	}
	return nil
}

func (l *DirectoryLock) IsLocked() bool {
	return l.lockFile != nil
}
