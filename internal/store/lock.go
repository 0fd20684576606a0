package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ProjectLock serializes resolutions on one project across processes.
// Concurrent invocations on different repositories run in parallel;
// invocations on the same repository (a sync job and a commit hook firing
// together) take this lock before reading mappings or policies.
type ProjectLock struct {
	fl *flock.Flock
}

// NewProjectLock creates a lock for the given project in the state
// directory. Pass stateDir "" for the standard location.
func NewProjectLock(stateDir, projectID string) (*ProjectLock, error) {
	if stateDir == "" {
		stateDir = DefaultStateDir()
	}
	lockDir := filepath.Join(stateDir, "locks")
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	path := filepath.Join(lockDir, projectID+".lock")
	return &ProjectLock{fl: flock.New(path)}, nil
}

// Lock acquires the lock, blocking until it is available.
func (l *ProjectLock) Lock() error {
	if err := l.fl.Lock(); err != nil {
		return fmt.Errorf("failed to acquire project lock %s: %w", l.fl.Path(), err)
	}
	return nil
}

// TryLock attempts to acquire the lock without blocking.
func (l *ProjectLock) TryLock() (bool, error) {
	ok, err := l.fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to try project lock %s: %w", l.fl.Path(), err)
	}
	return ok, nil
}

// Unlock releases the lock.
func (l *ProjectLock) Unlock() error {
	return l.fl.Unlock()
}
