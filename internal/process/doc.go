// Package process supervises the shell process that backs a session.
//
// A Process owns one child started in its own process group, with a stdin
// pipe and separate stdout/stderr pipes whose read ends belong to the caller.
// Exit is tracked by a single wait goroutine; Done, Alive and ExitCode expose
// it without blocking.
//
// Signal Targeting:
//   - SignalGroup delivers to the whole group (shell included)
//   - SignalDescendants delivers only to the shell's descendants, i.e. the
//     foreground job and anything it spawned
//
// Descendants are found by walking the process table (/proc on Linux, ps(1)
// elsewhere). Only Unix platforms are supported.
//
// Example Usage:
//
//	proc, err := process.Start(process.Config{Path: "/bin/bash", Args: []string{"--norc"}})
//	if err != nil {
//		return err
//	}
//	defer proc.Terminate(time.Second)
//
//	n, err := proc.SignalDescendants(syscall.SIGINT)
package process
