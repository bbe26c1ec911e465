//go:build linux

package process

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// processTable maps every visible PID to its parent PID using /proc.
func processTable() (map[int]int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("read /proc: %w", err)
	}

	table := make(map[int]int, len(entries))
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || !entry.IsDir() {
			continue
		}
		ppid, err := parentPID(pid)
		if err != nil {
			// Process exited while scanning
			continue
		}
		table[pid] = ppid
	}
	return table, nil
}

// parentPID reads the PPID field of /proc/[pid]/stat.
func parentPID(pid int) (int, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, err
	}

	// The command name may contain spaces and parens; fields resume after
	// the LAST closing paren.
	lastParen := bytes.LastIndexByte(data, ')')
	if lastParen == -1 || len(data) <= lastParen+2 {
		return 0, fmt.Errorf("malformed stat for pid %d", pid)
	}

	// 0=State, 1=PPID
	fields := strings.Fields(string(data[lastParen+2:]))
	if len(fields) < 2 {
		return 0, fmt.Errorf("stat too short for pid %d", pid)
	}
	return strconv.Atoi(fields[1])
}
