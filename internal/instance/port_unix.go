//go:build !windows
// +build !windows

package instance

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// GetProcessUsingPort attempts to find which process is listening on a
// given port by scanning /proc/net/tcp and /proc/net/tcp6 for a socket in
// LISTEN state on that port, then matching its inode against every
// process's open file descriptors under /proc/<pid>/fd. Returns the PID,
// or an error if none is found.
func GetProcessUsingPort(port int) (int, error) {
	inode, err := findListeningInode(port)
	if err != nil {
		return 0, err
	}

	entries, err := os.ReadDir("/proc")
	if err != nil {
		return 0, fmt.Errorf("failed to read /proc: %w", err)
	}

	target := fmt.Sprintf("socket:[%s]", inode)
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		fdDir := fmt.Sprintf("/proc/%d/fd", pid)
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue // process exited or we lack permission
		}
		for _, fd := range fds {
			link, err := os.Readlink(fdDir + "/" + fd.Name())
			if err == nil && link == target {
				return pid, nil
			}
		}
	}

	return 0, fmt.Errorf("no process found listening on port %d", port)
}

const tcpStateListen = "0A"

// findListeningInode scans the procfs TCP socket tables for a LISTEN entry
// bound to port and returns its inode number as a string.
func findListeningInode(port int) (string, error) {
	portHex := strings.ToUpper(strconv.FormatInt(int64(port), 16))

	for _, path := range []string{"/proc/net/tcp", "/proc/net/tcp6"} {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		inode, found := scanTCPTable(f, portHex)
		f.Close()
		if found {
			return inode, nil
		}
	}

	return "", fmt.Errorf("no listening socket found for port %d", port)
}

func scanTCPTable(f *os.File, portHex string) (string, bool) {
	scanner := bufio.NewScanner(f)
	scanner.Scan() // header line
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 10 {
			continue
		}
		localAddr := fields[1] // "ADDR:PORT" in hex
		state := fields[3]
		parts := strings.Split(localAddr, ":")
		if len(parts) != 2 || parts[1] != portHex {
			continue
		}
		if state != tcpStateListen {
			continue
		}
		return fields[9], true // inode field
	}
	return "", false
}
