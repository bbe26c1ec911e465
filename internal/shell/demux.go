package shell

import (
	"errors"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
)

const (
	// readChunkSize is the buffer size of each stream reader.
	readChunkSize = 32 * 1024

	// drainTimeout bounds how long the monitor waits for the readers to
	// reach EOF once the shell is gone.
	drainTimeout = 250 * time.Millisecond

	// exitWaitTimeout bounds how long the monitor waits for the exit status
	// after an output stream ended.
	exitWaitTimeout = 500 * time.Millisecond
)

// startReaders launches one reader per output stream. They run for the
// whole life of the session, whether or not a command is in flight.
func (s *Session) startReaders() {
	s.readers.Add(2)
	go s.readStream(StreamStdout, s.proc.Stdout())
	go s.readStream(StreamStderr, s.proc.Stderr())
}

// readStream feeds chunks from r to dispatch until r fails.
func (s *Session) readStream(stream Stream, r io.Reader) {
	defer s.readers.Done()
	defer s.eofOnce.Do(func() { close(s.eof) })

	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.dispatch(stream, buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.logger.Debug("Stream read failed", zap.String("stream", string(stream)), zap.Error(err))
			}
			return
		}
	}
}

// dispatch routes one chunk to the command in flight.
//
// Output arriving while nothing is pending is discarded, but still scanned
// so a marker split across chunks is recognised as stale later.
func (s *Session) dispatch(stream Stream, data []byte) {
	s.mu.Lock()

	p := s.pending
	det := s.detectors[stream]

	if p == nil {
		next := marker{tag: s.tag, seq: s.seq.Load() + 1}
		det.scan(data, next)
		s.mu.Unlock()
		return
	}
	if p.streamDone(stream) {
		s.mu.Unlock()
		return
	}

	res := det.scan(data, p.marker)
	if res.stale > 0 {
		s.logger.Debug("Dropped stale markers", zap.String("stream", string(stream)), zap.Int("count", res.stale))
	}

	var event *StreamEvent
	if len(res.visible) > 0 {
		p.buffer(stream).Write(res.visible)
		if p.observer != nil {
			event = &StreamEvent{Stream: stream, Data: string(res.visible), Timestamp: time.Now()}
			p.observers.Add(1)
		}
	}
	if res.hit != nil && p.markDone(stream, res.hit) {
		s.finalizeLocked(p)
	}
	s.mu.Unlock()

	if event != nil {
		defer p.observers.Done()
		p.observer(*event)
	}
}

// monitor waits for the shell to go away and fails the session.
func (s *Session) monitor() {
	select {
	case <-s.eof:
	case <-s.proc.Done():
	}

	drained := make(chan struct{})
	go func() {
		s.readers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
	}

	s.proc.Wait(exitWaitTimeout)
	s.fail()
}

// fail marks the session dead, finalizes the command in flight with
// whatever it produced, and releases the process.
func (s *Session) fail() {
	s.mu.Lock()
	s.dead = true
	p := s.pending
	for stream, det := range s.detectors {
		rest := det.flush()
		if p != nil && !p.streamDone(stream) {
			p.buffer(stream).Write(rest)
		}
	}
	if p != nil {
		p.closed = true
		if !p.outDone && !s.proc.Alive() && !s.proc.Signaled() {
			p.exitCode = s.proc.ExitCode()
		}
		s.finalizeLocked(p)
	}
	s.mu.Unlock()

	close(s.deadCh)

	if !s.closing.Load() {
		s.logger.Warn("Shell exited unexpectedly",
			zap.Int("pid", s.proc.PID()),
			zap.Int("exit_code", s.proc.ExitCode()),
			zap.Bool("in_flight", p != nil),
			zap.Duration("uptime", time.Since(s.proc.Started())),
			zap.NamedError("wait_error", s.proc.ExitError()),
		)
	}
	if err := s.proc.Terminate(s.cfg.gracePeriod); err != nil {
		s.logger.Warn("Failed to terminate shell", zap.Error(err))
	}
}
