package shell

import (
	"context"
	"errors"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/bashautom/internal/process"
)

const (
	sigInt  = syscall.SIGINT
	sigKill = syscall.SIGKILL
)

// await blocks until p is finalized. If the timeout expires or ctx is done
// first, the command is interrupted and a timed-out result is produced.
func (s *Session) await(ctx context.Context, p *pending, timeout time.Duration) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-p.done:
		return
	case <-expired:
		s.logger.Info("Command timed out", zap.Uint64("seq", p.marker.seq), zap.Duration("timeout", timeout))
	case <-ctx.Done():
		s.logger.Info("Command cancelled", zap.Uint64("seq", p.marker.seq), zap.Error(ctx.Err()))
	}
	s.interrupt(p)
}

// interrupt stops the foreground job of p and guarantees p is finalized.
//
// The shell itself is never signalled: SIGINT goes to the processes started
// by this command, then SIGKILL if they outlive the grace period. Jobs left
// running by earlier commands are spared. If the marker still has not arrived
// after a second grace period, the result is synthesized from the output
// buffered so far.
func (s *Session) interrupt(p *pending) {
	s.mu.Lock()
	if s.pending != p {
		s.mu.Unlock()
		return
	}
	p.timedOut = true
	s.mu.Unlock()

	grace := s.cfg.gracePeriod
	if n, err := s.proc.SignalDescendantsExcept(sigInt, p.background); err != nil {
		s.logger.Debug("Interrupt failed", zap.Error(err))
	} else {
		s.logger.Debug("Interrupted foreground job", zap.Int("processes", n))
	}
	if p.wait(grace) {
		return
	}

	if n, err := s.proc.SignalDescendantsExcept(sigKill, p.background); err != nil {
		s.logger.Debug("Kill failed", zap.Error(err))
	} else {
		s.logger.Debug("Killed foreground job", zap.Int("processes", n))
	}
	if p.wait(grace) {
		return
	}

	s.mu.Lock()
	if s.pending == p {
		s.logger.Warn("Command did not yield after kill, abandoning it",
			zap.Uint64("seq", p.marker.seq))
		p.exitCode = UnknownExitCode
		s.abandoned = true
		s.finalizeLocked(p)
	}
	s.mu.Unlock()
}

// SendSignal delivers sig to the running command and everything it spawned,
// never to the shell itself nor to jobs left running by earlier commands.
//
// It reports false without error when no command is in flight or none of
// its processes remain. ErrSessionClosed is returned for a dead session.
func (s *Session) SendSignal(sig syscall.Signal) (bool, error) {
	if !s.Alive() {
		return false, ErrSessionClosed
	}
	s.mu.Lock()
	p := s.pending
	s.mu.Unlock()
	if p == nil {
		return false, nil
	}

	n, err := s.proc.SignalDescendantsExcept(sig, p.background)
	if err != nil {
		if errors.Is(err, process.ErrNotRunning) {
			return false, ErrSessionClosed
		}
		return false, err
	}
	s.logger.Debug("Signal sent", zap.String("signal", sig.String()), zap.Int("processes", n))
	return n > 0, nil
}
