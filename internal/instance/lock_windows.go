//go:build windows
// +build windows

package instance

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/windows"
)

// executableName is what GetProcessName must return for the PID on file
// to be recognized as a ccswarmd instance rather than a reused PID.
var executableName = "ccswarmd.exe"

// windowsLock wraps the exclusive-access file handle backing the lock.
type windowsLock struct {
	handle windows.Handle
	path   string
}

func (l *windowsLock) release() error {
	var firstErr error
	if l.handle != 0 {
		if err := windows.CloseHandle(l.handle); err != nil {
			firstErr = fmt.Errorf("failed to close lock handle: %w", err)
		}
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) && firstErr == nil {
		firstErr = fmt.Errorf("failed to remove lock file: %w", err)
	}
	return firstErr
}

// AcquireLock acquires an exclusive lock to prevent multiple instances from
// starting, by opening the lock file with no share mode: any concurrent
// CreateFile from a second process fails outright.
func (m *InstanceManager) AcquireLock() error {
	lockPath := m.pidFilePath + ".lock"

	lockPathPtr, err := syscall.UTF16PtrFromString(lockPath)
	if err != nil {
		return fmt.Errorf("failed to convert lock path: %w", err)
	}

	handle, err := windows.CreateFile(
		lockPathPtr,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0, // exclusive access, no sharing
		nil,
		windows.CREATE_ALWAYS,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to acquire lock (another instance may be starting): %w", err)
	}

	m.lock = &windowsLock{handle: handle, path: lockPath}
	m.acquiredLock = true

	pidBytes := []byte(fmt.Sprintf("%d", os.Getpid()))
	var bytesWritten uint32
	if err := windows.WriteFile(handle, pidBytes, &bytesWritten, nil); err != nil {
		fmt.Printf("Warning: failed to write PID to lock file: %v\n", err)
	}

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
		// Fall back to removing a possibly-orphaned lock file.
		err = os.Remove(m.pidFilePath + ".lock")
		if os.IsNotExist(err) {
			err = nil
		}
	}

	m.acquiredLock = false
	return err
}
