package instance

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// daemonVersion is reported in the PID file so a newer CLI talking to an
// older running daemon (or vice versa) can tell the difference.
const daemonVersion = "0.1.0"

// fileLock is satisfied by the platform-specific lock returned from
// AcquireLock (lock_windows.go / lock_unix.go). Keeping the concrete handle
// behind this interface is what lets InstanceManager itself stay free of
// any GOOS-specific import.
type fileLock interface {
	release() error
}

// InstanceManager coordinates a single running ccswarmd process per
// pid/lock file pair: it detects an already-running daemon, holds the
// exclusive lock that proves this process is the one and only instance,
// and records enough in the PID file for a second invocation to find and
// talk to the first one.
type InstanceManager struct {
	pidFilePath  string
	statePath    string
	port         int
	lock         fileLock
	acquiredLock bool
}

// InstanceInfo describes a running (or formerly running) instance as read
// back from its PID file plus a live health probe.
type InstanceInfo struct {
	PID          int
	Port         int
	StartTime    time.Time
	IsRunning    bool
	IsResponding bool
	Version      string
	BasePath     string
}

// PIDFileData is the on-disk JSON structure of the PID file.
type PIDFileData struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
	BasePath  string    `json:"base_path"`
	Hostname  string    `json:"hostname"`
}

// NewManager creates a new instance manager bound to the given PID/state
// file paths and the port the daemon intends to listen on.
func NewManager(pidFilePath, statePath string, port int) *InstanceManager {
	return &InstanceManager{
		pidFilePath:  pidFilePath,
		statePath:    statePath,
		port:         port,
		acquiredLock: false,
	}
}

// CheckExistingInstance looks for a live ccswarmd instance recorded in the
// PID file. A nil, nil return means no conflicting instance was found (the
// file is absent, stale, or now owned by an unrelated process that reused
// the PID).
func (m *InstanceManager) CheckExistingInstance() (*InstanceInfo, error) {
	pidData, err := m.ReadPIDFile()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read PID file: %w", err)
	}

	running, err := IsProcessRunning(pidData.PID)
	if err != nil {
		return nil, fmt.Errorf("failed to check process: %w", err)
	}
	if !running {
		fmt.Printf("Detected stale PID file (process %d not running)\n", pidData.PID)
		m.RemovePIDFile()
		return nil, nil
	}

	name, err := GetProcessName(pidData.PID)
	if err != nil {
		fmt.Printf("Warning: failed to get process name for PID %d: %v\n", pidData.PID, err)
	} else if name != executableName {
		// PID was reused by an unrelated process since the instance exited.
		fmt.Printf("Detected PID reuse (process %d is %s, not %s)\n", pidData.PID, name, executableName)
		m.RemovePIDFile()
		return nil, nil
	}

	responding := HealthCheck(pidData.Port) == nil

	return &InstanceInfo{
		PID:          pidData.PID,
		Port:         pidData.Port,
		StartTime:    pidData.StartedAt,
		IsRunning:    true,
		IsResponding: responding,
		Version:      pidData.Version,
		BasePath:     pidData.BasePath,
	}, nil
}

// WritePIDFile records this process's identity so a second invocation can
// find and talk to it.
func (m *InstanceManager) WritePIDFile(pid, port int, basePath string) error {
	hostname, _ := os.Hostname()

	data := PIDFileData{
		PID:       pid,
		Port:      port,
		StartedAt: time.Now(),
		Version:   daemonVersion,
		BasePath:  basePath,
		Hostname:  hostname,
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal PID data: %w", err)
	}

	if err := os.WriteFile(m.pidFilePath, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	return nil
}

// ReadPIDFile reads and parses the PID file.
func (m *InstanceManager) ReadPIDFile() (*PIDFileData, error) {
	jsonData, err := os.ReadFile(m.pidFilePath)
	if err != nil {
		return nil, err
	}

	var data PIDFileData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, fmt.Errorf("failed to parse PID file: %w", err)
	}

	return &data, nil
}

// RemovePIDFile deletes the PID file, if present.
func (m *InstanceManager) RemovePIDFile() error {
	if err := os.Remove(m.pidFilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// GetPort returns the port the instance manager is configured for.
func (m *InstanceManager) GetPort() int {
	return m.port
}

// SetPort updates the port (used when the conflict resolver picks a
// different one).
func (m *InstanceManager) SetPort(port int) {
	m.port = port
}
