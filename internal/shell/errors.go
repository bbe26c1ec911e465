package shell

import "errors"

var (
	// ErrSpawn is returned when the shell process could not be started or
	// died before it accepted its first command. It is fatal for the session.
	ErrSpawn = errors.New("shell spawn failed")

	// ErrSessionClosed is returned by every operation once the session was
	// closed or its shell exited. A command that was running when the shell
	// died returns its partial result together with this error.
	ErrSessionClosed = errors.New("session closed")

	// ErrInvalidName is returned for environment variable names that are not
	// shell identifiers.
	ErrInvalidName = errors.New("invalid variable name")

	// ErrInvalidValue is returned for values the shell cannot hold, such as
	// strings containing NUL bytes.
	ErrInvalidValue = errors.New("invalid value")

	// ErrStateQuery is returned when a cwd/env query command fails inside
	// the shell.
	ErrStateQuery = errors.New("state query failed")

	// ErrInvalidTimeout is returned by ParseTimeout for strings that are
	// neither a duration nor a non-negative number of seconds.
	ErrInvalidTimeout = errors.New("invalid timeout")
)
