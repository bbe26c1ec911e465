package shell

import (
	"fmt"
	"time"
)

// UnknownExitCode is reported when a command's exit status could not be
// observed, e.g. it was still running when its timeout expired.
const UnknownExitCode = -1

// Stream identifies which output channel a chunk came from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// StreamEvent is a chunk of output delivered to an Observer as it arrives.
type StreamEvent struct {
	Stream    Stream    `json:"stream"`
	Data      string    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Observer receives StreamEvents for a single command. It runs on the
// session's reader goroutines and must not block.
type Observer func(StreamEvent)

// CommandResult is the outcome of one executed command. It is never
// modified after Execute returns it.
type CommandResult struct {
	Command  string `json:"command"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`

	// TimedOut is set when the command's timeout or context expired
	// before it completed.
	TimedOut bool `json:"timed_out"`

	// SessionClosed is set when the shell exited while the command ran.
	SessionClosed bool `json:"session_closed"`

	Duration  time.Duration `json:"duration"`
	StartedAt time.Time     `json:"started_at"`

	// Seq is the session-local sequence number of the command.
	Seq uint64 `json:"seq"`
}

// Success reports whether the command exited 0 within its timeout.
func (r *CommandResult) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut && !r.SessionClosed
}

// String returns a one-line summary.
func (r *CommandResult) String() string {
	status := "OK"
	switch {
	case r.TimedOut:
		status = "TIMEOUT"
	case !r.Success():
		status = fmt.Sprintf("FAIL(%d)", r.ExitCode)
	}
	return fmt.Sprintf("<CommandResult [%s] %q (%.2fs)>", status, r.Command, r.Duration.Seconds())
}
