//go:build !windows
// +build !windows

package instance

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// executableName is what GetProcessName must return for the PID on file
// to be recognized as a ccswarmd instance rather than a reused PID.
var executableName = "ccswarmd"

// unixLock wraps an flock(2)-held file descriptor backing the lock.
type unixLock struct {
	fd   int
	path string
}

func (l *unixLock) release() error {
	var firstErr error
	if err := unix.Flock(l.fd, unix.LOCK_UN); err != nil {
		firstErr = fmt.Errorf("failed to unlock: %w", err)
	}
	if err := unix.Close(l.fd); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close lock fd: %w", err)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) && firstErr == nil {
		firstErr = fmt.Errorf("failed to remove lock file: %w", err)
	}
	return firstErr
}

// AcquireLock acquires an exclusive advisory lock (flock LOCK_EX|LOCK_NB) on
// the lock file, the Unix equivalent of the Windows no-share-mode handle:
// a second process's non-blocking flock on the same file fails immediately
// rather than waiting for the first to exit.
func (m *InstanceManager) AcquireLock() error {
	lockPath := m.pidFilePath + ".lock"

	fd, err := unix.Open(lockPath, unix.O_CREAT|unix.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to acquire lock (another instance may be starting): %w", err)
	}

	if err := unix.Ftruncate(fd, 0); err == nil {
		pidBytes := []byte(fmt.Sprintf("%d", os.Getpid()))
		if _, err := unix.Write(fd, pidBytes); err != nil {
			fmt.Printf("Warning: failed to write PID to lock file: %v\n", err)
		}
	}

	m.lock = &unixLock{fd: fd, path: lockPath}
	m.acquiredLock = true
	return nil
}

// ReleaseLock releases the exclusive lock acquired by AcquireLock.
func (m *InstanceManager) ReleaseLock() error {
	if !m.acquiredLock {
		return nil
	}

	var err error
	if m.lock != nil {
		if releaseErr := m.lock.release(); releaseErr != nil {
			fmt.Printf("Warning: %v\n", releaseErr)
		}
		m.lock = nil
	} else {
		err = os.Remove(m.pidFilePath + ".lock")
		if os.IsNotExist(err) {
			err = nil
		}
	}

	m.acquiredLock = false
	return err
}
