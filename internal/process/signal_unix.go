//go:build unix

package process

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// ErrUnknownSignal is returned by ParseSignal for unrecognised names.
var ErrUnknownSignal = errors.New("unknown signal")

// ParseSignal accepts "INT", "SIGINT", "sigint" or a number.
func ParseSignal(s string) (syscall.Signal, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 || unix.SignalName(syscall.Signal(n)) == "" {
			return 0, fmt.Errorf("%w: %s", ErrUnknownSignal, s)
		}
		return syscall.Signal(n), nil
	}
	if !strings.HasPrefix(s, "SIG") {
		s = "SIG" + s
	}
	sig := unix.SignalNum(s)
	if sig == 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSignal, s)
	}
	return sig, nil
}

// SignalName returns the conventional name of sig, e.g. "SIGINT".
func SignalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return strconv.Itoa(int(sig))
}

// setProcessGroup makes the child the leader of a new process group.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// SignalGroup sends sig to every process in the group led by this process.
// A group that no longer exists is not an error.
func (p *Process) SignalGroup(sig syscall.Signal) error {
	if !p.Alive() {
		return nil
	}
	// Negative PID addresses the whole process group
	if err := unix.Kill(-p.PID(), sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal group %d: %w", p.PID(), err)
	}
	return nil
}

// SignalDescendants sends sig to every descendant of this process, leaving
// the process itself untouched. It returns the number of processes signalled.
func (p *Process) SignalDescendants(sig syscall.Signal) (int, error) {
	return p.SignalDescendantsExcept(sig, nil)
}

// SignalDescendantsExcept is SignalDescendants sparing the processes in
// spared together with everything below them.
func (p *Process) SignalDescendantsExcept(sig syscall.Signal, spared map[int]bool) (int, error) {
	if !p.Alive() {
		return 0, ErrNotRunning
	}

	pids, err := descendants(p.PID(), spared)
	if err != nil {
		return 0, fmt.Errorf("list descendants of %d: %w", p.PID(), err)
	}

	sent := 0
	for _, pid := range pids {
		if err := unix.Kill(pid, sig); err != nil {
			// Exited between the scan and the signal
			if errors.Is(err, unix.ESRCH) {
				continue
			}
			return sent, fmt.Errorf("signal %d: %w", pid, err)
		}
		sent++
	}
	return sent, nil
}

// DescendantSet returns the current descendants of this process.
func (p *Process) DescendantSet() (map[int]bool, error) {
	if !p.Alive() {
		return nil, ErrNotRunning
	}
	pids, err := Descendants(p.PID())
	if err != nil {
		return nil, err
	}
	set := make(map[int]bool, len(pids))
	for _, pid := range pids {
		set[pid] = true
	}
	return set, nil
}

// Descendants returns the PIDs of all descendants of root, parents before
// children.
func Descendants(root int) ([]int, error) {
	return descendants(root, nil)
}

// descendants walks the tree below root without entering skipped subtrees.
func descendants(root int, skip map[int]bool) ([]int, error) {
	table, err := processTable()
	if err != nil {
		return nil, err
	}

	children := make(map[int][]int, len(table))
	for pid, ppid := range table {
		children[ppid] = append(children[ppid], pid)
	}

	var result []int
	queue := []int{root}
	seen := map[int]bool{root: true}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, child := range children[parent] {
			if seen[child] || skip[child] {
				continue
			}
			seen[child] = true
			result = append(result, child)
			queue = append(queue, child)
		}
	}
	return result, nil
}
