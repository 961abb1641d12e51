//go:build !windows
// +build !windows

package instance

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// IsProcessRunning checks if a process with the given PID is running and
// verifies it's actually executableName (not a PID reuse). Signal 0 is the
// standard way to probe for existence without actually signaling anything.
func IsProcessRunning(pid int) (bool, error) {
	if err := syscall.Kill(pid, 0); err != nil {
		if err == syscall.ESRCH {
			return false, nil
		}
		if err == syscall.EPERM {
			// Exists but owned by another user; can't read /proc for the
			// name, so trust the kernel that it's there.
			return true, nil
		}
		return false, fmt.Errorf("failed to signal process %d: %w", pid, err)
	}

	name, err := GetProcessName(pid)
	if err != nil {
		return true, nil
	}
	return name == executableName, nil
}

// GetProcessName reads the executable (comm) name for a PID from procfs.
func GetProcessName(pid int) (string, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return "", fmt.Errorf("failed to read process name: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// GetProcessStartTime returns the process's start time, derived from its
// procfs stat entry (field 22, ticks since boot) and /proc/uptime.
func GetProcessStartTime(pid int) (time.Time, error) {
	uptimeData, err := os.ReadFile("/proc/uptime")
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read /proc/uptime: %w", err)
	}
	uptimeFields := strings.Fields(string(uptimeData))
	if len(uptimeFields) == 0 {
		return time.Time{}, fmt.Errorf("unexpected /proc/uptime format")
	}
	uptimeSeconds, err := strconv.ParseFloat(uptimeFields[0], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse uptime: %w", err)
	}
	bootTime := time.Now().Add(-time.Duration(uptimeSeconds * float64(time.Second)))

	statData, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read process stat: %w", err)
	}
	// The comm field (2nd, parenthesized) may itself contain spaces, so
	// parse from the last ")" rather than splitting on every space.
	closeParen := strings.LastIndex(string(statData), ")")
	if closeParen < 0 {
		return time.Time{}, fmt.Errorf("unexpected stat format for pid %d", pid)
	}
	fields := strings.Fields(string(statData)[closeParen+1:])
	const startTimeFieldIndex = 19 // field 22 overall, 0-indexed after comm
	if len(fields) <= startTimeFieldIndex {
		return time.Time{}, fmt.Errorf("unexpected stat field count for pid %d", pid)
	}
	clockTicks, err := strconv.ParseInt(fields[startTimeFieldIndex], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse start time field: %w", err)
	}
	ticksPerSecond := int64(100) // USER_HZ, the near-universal Linux default
	return bootTime.Add(time.Duration(clockTicks) * time.Second / time.Duration(ticksPerSecond)), nil
}

// KillProcess sends SIGTERM, then escalates to SIGKILL if the process
// hasn't exited shortly after.
func KillProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if syscall.Kill(pid, 0) == syscall.ESRCH {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := proc.Signal(syscall.SIGKILL); err != nil && syscall.Kill(pid, 0) != syscall.ESRCH {
		return fmt.Errorf("failed to kill process %d: %w", pid, err)
	}
	return nil
}
