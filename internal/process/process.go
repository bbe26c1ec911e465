package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Sentinel errors for the process package.
var (
	// ErrNoPath is returned when Config.Path is empty.
	ErrNoPath = errors.New("process path is required")

	// ErrNotRunning is returned when an operation needs a live process.
	ErrNotRunning = errors.New("process not running")
)

// reapTimeout bounds how long Terminate waits after SIGKILL.
const reapTimeout = 2 * time.Second

// Config describes the process to spawn.
type Config struct {
	// Path is the executable, e.g. /bin/bash.
	Path string

	// Args are passed after the executable name.
	Args []string

	// Env is the full environment. Nil inherits the parent's.
	Env []string

	// Dir is the working directory. Empty inherits the parent's.
	Dir string
}

// Process is a supervised child process.
//
// Process is safe for concurrent use.
type Process struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *os.File
	stderr  *os.File
	started time.Time

	// done is closed once the process has been reaped.
	done chan struct{}

	// exitCode is -1 until the process exits, and stays -1 if it was signalled.
	exitCode atomic.Int32
	signaled atomic.Bool

	mu      sync.RWMutex
	exitErr error

	closeOnce sync.Once
}

// Start spawns a new process in its own process group.
//
// The returned Process owns the read ends of stdout and stderr; the caller
// must drain them. They are closed by Terminate.
func Start(cfg Config) (*Process, error) {
	if cfg.Path == "" {
		return nil, ErrNoPath
	}

	cmd := exec.Command(cfg.Path, cfg.Args...)
	cmd.Env = cfg.Env
	cmd.Dir = cfg.Dir
	setProcessGroup(cmd)

	// Track created handles for cleanup on error
	var created []io.Closer
	cleanup := func() {
		for _, c := range created {
			_ = c.Close()
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	created = append(created, stdin)

	// os.Pipe rather than StdoutPipe: Wait must not close the read ends
	// before the readers have drained them.
	outR, outW, err := os.Pipe()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	created = append(created, outR, outW)

	errR, errW, err := os.Pipe()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	created = append(created, errR, errW)

	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		cleanup()
		return nil, fmt.Errorf("start %s: %w", cfg.Path, err)
	}

	// The child holds its own copies now
	_ = outW.Close()
	_ = errW.Close()

	p := &Process{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  outR,
		stderr:  errR,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	p.exitCode.Store(-1)

	go p.waitLoop()

	return p, nil
}

// waitLoop reaps the process and records how it ended.
func (p *Process) waitLoop() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				p.signaled.Store(true)
			}
		} else {
			exitCode = -1
		}
	}

	p.exitCode.Store(int32(exitCode))
	close(p.done)
}

// PID returns the process ID.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Alive reports whether the process has not yet exited.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done returns a channel that is closed when the process has been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit code, or -1 if the process is running or was
// killed by a signal.
func (p *Process) ExitCode() int {
	return int(p.exitCode.Load())
}

// Signaled reports whether the process was terminated by a signal.
func (p *Process) Signaled() bool {
	return p.signaled.Load()
}

// ExitError returns the error from Wait, if any.
func (p *Process) ExitError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitErr
}

// Started returns the time the process was started.
func (p *Process) Started() time.Time {
	return p.started
}

// Stdin returns the write end of the process's standard input.
func (p *Process) Stdin() io.Writer {
	return p.stdin
}

// Stdout returns the read end of the process's standard output.
func (p *Process) Stdout() io.Reader {
	return p.stdout
}

// Stderr returns the read end of the process's standard error.
func (p *Process) Stderr() io.Reader {
	return p.stderr
}

// CloseStdin closes the process's standard input, signalling EOF to it.
func (p *Process) CloseStdin() error {
	return p.stdin.Close()
}

// Wait blocks until the process exits or the timeout elapses.
// It reports whether the process exited.
func (p *Process) Wait(timeout time.Duration) bool {
	select {
	case <-p.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Terminate stops the whole process group and releases the pipes.
//
// SIGTERM is sent first; if the process is still alive after grace, the
// group is killed. Terminate is idempotent and returns nil if the process
// had already exited.
func (p *Process) Terminate(grace time.Duration) error {
	var err error
	if p.Alive() {
		if sigErr := p.SignalGroup(syscall.SIGTERM); sigErr != nil {
			err = sigErr
		}
		if !p.Wait(grace) {
			_ = p.SignalGroup(syscall.SIGKILL)
			if !p.Wait(reapTimeout) {
				err = fmt.Errorf("process %d did not exit after kill", p.PID())
			}
		}
	}
	p.release()
	return err
}

// release closes every pipe handle exactly once.
func (p *Process) release() {
	p.closeOnce.Do(func() {
		_ = p.stdin.Close()
		_ = p.stdout.Close()
		_ = p.stderr.Close()
	})
}
