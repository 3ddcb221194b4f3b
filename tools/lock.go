package tools

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	lockFile      = "search/index.lock"
	lockTimeout   = 5 * time.Second
	lockRetryWait = 500 * time.Millisecond
)

var errLockHeld = errors.New("index lock held by another process")

// indexLock is a PID file guarding the local artifact against concurrent
// writers from other server processes sharing the data directory.
type indexLock struct {
	path string
	pid  int
}

func newIndexLock(dir string) *indexLock {
	return &indexLock{path: filepath.Join(dir, lockFile), pid: os.Getpid()}
}

// owner returns the PID recorded in the lock file. ok is false when the file
// is missing; a file that does not hold a PID reports owner 0.
func (l *indexLock) owner() (pid int, ok bool, err error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read lock file: %w", err)
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, true, nil
	}
	return pid, true, nil
}

// tryTake writes our PID unless a live foreign process holds the lock.
// Stale and corrupted locks are replaced.
func (l *indexLock) tryTake() error {
	pid, ok, err := l.owner()
	if err != nil {
		return err
	}
	if ok {
		switch {
		case pid == l.pid:
			return nil
		case pid == 0:
			log.Printf("Warning: Corrupted lock file (invalid PID), replacing...")
		case isProcessRunning(pid):
			return fmt.Errorf("%w (PID %d)", errLockHeld, pid)
		default:
			log.Printf("Stale lock detected (PID %d not running), replacing...", pid)
		}
	}
	if err := os.WriteFile(l.path, []byte(strconv.Itoa(l.pid)), 0644); err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	return nil
}

// acquire waits up to lockTimeout for a foreign holder to finish.
func (l *indexLock) acquire(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	start := time.Now()
	ticker := time.NewTicker(lockRetryWait)
	defer ticker.Stop()
	for {
		err := l.tryTake()
		if err == nil {
			log.Printf("✓ Index lock acquired (PID %d)", l.pid)
			return nil
		}
		if !errors.Is(err, errLockHeld) {
			return err
		}
		log.Printf("Index locked by another process, waiting... (%v elapsed)", time.Since(start).Round(100*time.Millisecond))

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for index lock after %v: %w", time.Since(start).Round(time.Millisecond), err)
		case <-ticker.C:
		}
	}
}

// release removes the lock file only when this process owns it.
func (l *indexLock) release() error {
	pid, ok, err := l.owner()
	if err != nil || !ok {
		return err
	}
	if pid != l.pid {
		log.Printf("Warning: Lock file owned by PID %d, not removing", pid)
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	log.Printf("✓ Index lock released")
	return nil
}
