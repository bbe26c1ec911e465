package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/bashautom/internal/process"
	"github.com/GriffinCanCode/bashautom/internal/shared/id"
)

// setupCommand runs once at startup. The no-op INT trap keeps the shell
// alive when an interrupt reaches its whole process group; the pwd seeds
// the cached working directory.
const setupCommand = "trap : INT\npwd"

// setupTimeout bounds the setup command, so a program that does not speak
// the protocol fails to spawn instead of hanging.
const setupTimeout = 10 * time.Second

// Session is one long-lived shell process plus its protocol state.
//
// Commands run one at a time: a second Execute blocks until the first has
// completed. All methods are safe for concurrent use.
type Session struct {
	name   string
	cfg    config
	logger *zap.Logger
	proc   *process.Process
	tag    string

	// seq is the sequence number of the last submitted command.
	seq atomic.Uint64

	// slot admits one command at a time.
	slot chan struct{}

	// writeMu serializes writes to the shell's stdin.
	writeMu sync.Mutex

	// mu guards everything below.
	mu        sync.Mutex
	pending   *pending
	detectors map[Stream]*detector
	cwd       string
	dead      bool
	commands  uint64

	// abandoned is set once a command was given up on before its markers
	// arrived; held-back bytes must then survive until the stale markers do.
	abandoned bool

	// readers tracks the two stream goroutines.
	readers sync.WaitGroup

	// eof is closed when either output stream ends.
	eof     chan struct{}
	eofOnce sync.Once

	// deadCh is closed once the session can no longer run commands.
	deadCh chan struct{}

	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New spawns a shell and returns a session ready for commands.
//
// An error wrapping ErrSpawn is returned if the shell cannot be started or
// does not complete its setup command.
func New(ctx context.Context, opts ...Option) (*Session, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.name == "" {
		cfg.name = string(id.NewSessionID())
	}

	proc, err := process.Start(process.Config{
		Path: cfg.shell,
		Args: cfg.shellArgs(),
		Env:  buildEnv(cfg),
		Dir:  cfg.dir,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	s := &Session{
		name:   cfg.name,
		cfg:    cfg,
		logger: cfg.logger.With(zap.String("session", cfg.name)),
		proc:   proc,
		tag:    newSessionTag(),
		slot:   make(chan struct{}, 1),
		detectors: map[Stream]*detector{
			StreamStdout: {},
			StreamStderr: {},
		},
		cwd:    cfg.dir,
		eof:    make(chan struct{}),
		deadCh: make(chan struct{}),
	}

	s.startReaders()
	go s.monitor()

	res, err := s.run(ctx, setupCommand, execOptions{timeout: setupTimeout})
	if err != nil || res.ExitCode != 0 {
		_ = s.Close()
		if err == nil {
			err = fmt.Errorf("setup exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrSpawn, cfg.shell, err)
	}
	if lines := strings.Split(strings.TrimRight(res.Stdout, "\n"), "\n"); len(lines) > 0 {
		s.setCwd(lines[len(lines)-1])
	}

	s.logger.Info("Shell session started",
		zap.Int("pid", proc.PID()),
		zap.String("shell", cfg.shell),
		zap.String("cwd", s.Cwd()),
	)
	return s, nil
}

// buildEnv returns the shell's environment, nil to inherit unchanged.
func buildEnv(cfg config) []string {
	if cfg.inheritEnv && len(cfg.env) == 0 {
		return nil
	}

	merged := make(map[string]string)
	if cfg.inheritEnv {
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok {
				merged[k] = v
			}
		}
	}
	for k, v := range cfg.env {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+merged[k])
	}
	return env
}

// Name returns the session name.
func (s *Session) Name() string {
	return s.name
}

// PID returns the shell's process ID.
func (s *Session) PID() int {
	return s.proc.PID()
}

// StartedAt returns when the shell was spawned.
func (s *Session) StartedAt() time.Time {
	return s.proc.Started()
}

// Alive reports whether the session can still run commands.
func (s *Session) Alive() bool {
	if s.closing.Load() {
		return false
	}
	select {
	case <-s.deadCh:
		return false
	default:
		return s.proc.Alive()
	}
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.closing.Load()
}

// Done returns a channel that is closed when the session dies or is closed.
func (s *Session) Done() <-chan struct{} {
	return s.deadCh
}

// Cwd returns the last known working directory without querying the shell.
// Use GetCwd for an authoritative answer.
func (s *Session) Cwd() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

func (s *Session) setCwd(dir string) {
	s.mu.Lock()
	s.cwd = dir
	s.mu.Unlock()
}

// Commands returns how many commands have completed, setup excluded.
func (s *Session) Commands() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commands
}

// Busy reports whether a command is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// String returns a one-line summary.
func (s *Session) String() string {
	status := "closed"
	if s.Alive() {
		status = "alive"
	}
	return fmt.Sprintf("<Session %q [%s] pid=%d>", s.name, status, s.PID())
}

// Execute runs command in the shell and returns its result.
//
// Execute blocks until the command completes, its timeout expires, or ctx
// is done; the latter two interrupt the command but keep the shell. If the
// shell exits while the command runs, the partial result is returned
// together with an error wrapping ErrSessionClosed.
func (s *Session) Execute(ctx context.Context, command string, opts ...ExecOption) (*CommandResult, error) {
	eo := execOptions{timeout: s.cfg.defaultTimeout}
	for _, opt := range opts {
		opt(&eo)
	}

	res, err := s.run(ctx, command, eo)
	if res == nil {
		return nil, err
	}

	if s.cfg.trimOutput {
		res.Stdout = strings.TrimSpace(res.Stdout)
		res.Stderr = strings.TrimSpace(res.Stderr)
	}

	s.mu.Lock()
	s.commands++
	s.mu.Unlock()

	s.logger.Debug("Command finished",
		zap.Uint64("seq", res.Seq),
		zap.Int("exit_code", res.ExitCode),
		zap.Bool("timed_out", res.TimedOut),
		zap.Duration("duration", res.Duration),
	)

	for _, hook := range s.cfg.hooks {
		hook(s.name, res)
	}
	return res, err
}

// run submits one framed command and waits for its result.
// The result is untrimmed; it is nil only when nothing was submitted.
func (s *Session) run(ctx context.Context, command string, eo execOptions) (*CommandResult, error) {
	if !s.Alive() {
		return nil, ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.deadCh:
		return nil, ErrSessionClosed
	}
	defer func() { <-s.slot }()

	seq := s.seq.Add(1)
	p := newPending(command, newMarker(s.tag, seq), eo.observer)

	// Whatever already runs below the shell belongs to earlier commands
	if bg, err := s.proc.DescendantSet(); err != nil {
		s.logger.Debug("Listing background jobs failed", zap.Error(err))
	} else {
		p.background = bg
	}

	s.mu.Lock()
	if s.dead || s.closing.Load() {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if !s.abandoned {
		// Whatever is held back is leftover output nobody waits for
		for _, det := range s.detectors {
			det.reset()
		}
	}
	s.pending = p
	s.mu.Unlock()

	s.logger.Debug("Submitting command", zap.Uint64("seq", seq), zap.String("command", command))

	if err := s.write(frame(command, p.marker)); err != nil {
		// The shell stopped reading; the monitor finalizes once it is gone
		s.logger.Warn("Write to shell failed", zap.Error(err))
		go func() { _ = s.proc.Terminate(s.cfg.gracePeriod) }()
	}

	s.await(ctx, p, eo.timeout)

	// Observers of this command may still be running on the readers
	p.observers.Wait()
	return p.result, p.err
}

// write sends text to the shell's stdin.
func (s *Session) write(text string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.proc.Stdin().Write([]byte(text))
	return err
}

// pending is the state of the command in flight.
type pending struct {
	command  string
	marker   marker
	observer Observer
	started  time.Time

	// background holds processes that predate the command; signals
	// aimed at the command spare them.
	background map[int]bool

	stdout  bytes.Buffer
	stderr  bytes.Buffer
	outDone bool
	errDone bool

	exitCode int
	timedOut bool
	closed   bool

	observers sync.WaitGroup
	done      chan struct{}
	result    *CommandResult
	err       error
}

func newPending(command string, m marker, observer Observer) *pending {
	return &pending{
		command:  command,
		marker:   m,
		observer: observer,
		started:  time.Now(),
		exitCode: UnknownExitCode,
		done:     make(chan struct{}),
	}
}

// streamDone reports whether the marker was already seen on stream.
func (p *pending) streamDone(stream Stream) bool {
	if stream == StreamStdout {
		return p.outDone
	}
	return p.errDone
}

func (p *pending) buffer(stream Stream) *bytes.Buffer {
	if stream == StreamStdout {
		return &p.stdout
	}
	return &p.stderr
}

// markDone records the marker for stream and reports whether both streams
// are now complete.
func (p *pending) markDone(stream Stream, ml *markerLine) bool {
	if stream == StreamStdout {
		p.outDone = true
		if ml.hasCode {
			p.exitCode = ml.exitCode
		}
	} else {
		p.errDone = true
	}
	return p.outDone && p.errDone
}

// wait blocks until the command is finalized or d elapses.
func (p *pending) wait(d time.Duration) bool {
	select {
	case <-p.done:
		return true
	case <-time.After(d):
		return false
	}
}

// finalizeLocked builds the result and releases the in-flight state.
// s.mu must be held.
func (s *Session) finalizeLocked(p *pending) {
	if s.pending != p {
		return
	}
	s.pending = nil

	p.result = &CommandResult{
		Command:       p.command,
		Stdout:        strings.ToValidUTF8(p.stdout.String(), "�"),
		Stderr:        strings.ToValidUTF8(p.stderr.String(), "�"),
		ExitCode:      p.exitCode,
		TimedOut:      p.timedOut,
		SessionClosed: p.closed,
		Duration:      time.Since(p.started),
		StartedAt:     p.started,
		Seq:           p.marker.seq,
	}
	if p.closed {
		p.err = fmt.Errorf("%w: shell exited during %q", ErrSessionClosed, p.command)
	}
	close(p.done)
}

// Close terminates the shell and releases its resources. It is idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)

		if s.proc.Alive() {
			// A running command would hold the exit request behind it
			if s.Busy() {
				_, _ = s.proc.SignalDescendants(sigKill)
			}
			_ = s.write("exit\n")
			_ = s.proc.CloseStdin()
			if !s.proc.Wait(s.cfg.closeTimeout) {
				s.logger.Warn("Shell did not exit, killing process group",
					zap.Duration("close_timeout", s.cfg.closeTimeout))
			}
		}

		s.closeErr = s.proc.Terminate(s.cfg.gracePeriod)

		select {
		case <-s.deadCh:
		case <-time.After(s.cfg.closeTimeout):
			s.logger.Warn("Session readers did not stop")
		}
		s.logger.Info("Shell session closed", zap.Int("exit_code", s.proc.ExitCode()))
	})
	return s.closeErr
}
