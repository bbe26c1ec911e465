package registry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/bashautom/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/bashautom/internal/shared/id"
	"github.com/GriffinCanCode/bashautom/internal/shell"
)

var (
	// ErrSessionExists is returned by Create for a name already registered.
	ErrSessionExists = errors.New("session already exists")

	// ErrSessionNotFound is returned for names that are not registered.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidName is returned for names that cannot be used as keys.
	ErrInvalidName = errors.New("invalid session name")

	// ErrSpawnCircuitOpen is returned while spawning is suspended after
	// repeated failures.
	ErrSpawnCircuitOpen = errors.New("session spawning suspended")

	// ErrTooManySessions is returned when the session limit is reached.
	ErrTooManySessions = errors.New("too many sessions")
)

// Session end reasons reported to the Recorder.
const (
	ReasonClosed = "closed"
	ReasonExited = "exited"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Spawner starts shell sessions.
type Spawner interface {
	Spawn(ctx context.Context, opts ...shell.Option) (*shell.Session, error)
}

// SpawnerFunc adapts a function to Spawner.
type SpawnerFunc func(ctx context.Context, opts ...shell.Option) (*shell.Session, error)

// Spawn calls f.
func (f SpawnerFunc) Spawn(ctx context.Context, opts ...shell.Option) (*shell.Session, error) {
	return f(ctx, opts...)
}

// Recorder receives registry events, e.g. for metrics.
type Recorder interface {
	SessionCreated()
	SessionEnded(reason string)
	SpawnFailed()
	SetSessionsActive(count int)
}

type nopRecorder struct{}

func (nopRecorder) SessionCreated()       {}
func (nopRecorder) SessionEnded(string)   {}
func (nopRecorder) SpawnFailed()          {}
func (nopRecorder) SetSessionsActive(int) {}

// Registry is a concurrency-safe set of named sessions.
type Registry struct {
	spawner  Spawner
	breaker  *resilience.Breaker
	recorder Recorder
	logger   *zap.Logger
	defaults []shell.Option
	max      int

	mu       sync.Mutex
	sessions map[string]*shell.Session
	// creating holds names being spawned; the channel closes when done.
	creating map[string]chan struct{}
}

// Option configures a Registry.
type Option func(*Registry)

// WithSpawner replaces shell.New as the session constructor.
func WithSpawner(s Spawner) Option {
	return func(r *Registry) {
		if s != nil {
			r.spawner = s
		}
	}
}

// WithRecorder reports registry events to rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Registry) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithLogger sets the logger for the registry and the sessions it spawns.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSessionOptions sets options applied to every spawned session before
// the per-call ones.
func WithSessionOptions(opts ...shell.Option) Option {
	return func(r *Registry) {
		r.defaults = append(r.defaults, opts...)
	}
}

// WithMaxSessions limits the number of registered sessions. Zero means no
// limit.
func WithMaxSessions(n int) Option {
	return func(r *Registry) {
		if n >= 0 {
			r.max = n
		}
	}
}

// WithBreaker guards spawning with the given breaker settings.
func WithBreaker(settings resilience.Settings) Option {
	return func(r *Registry) {
		r.breaker = resilience.New("shell-spawn", settings)
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		spawner:  SpawnerFunc(shell.New),
		recorder: nopRecorder{},
		logger:   zap.NewNop(),
		sessions: make(map[string]*shell.Session),
		creating: make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.breaker == nil {
		r.breaker = resilience.New("shell-spawn", resilience.Settings{})
	}
	return r
}

// ValidateName reports whether name can be used as a session name.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Create spawns and registers a new session. An empty name generates one.
// The registry name always wins over a shell.WithName among opts.
func (r *Registry) Create(ctx context.Context, name string, opts ...shell.Option) (*shell.Session, error) {
	if name == "" {
		name = string(id.NewSessionID())
	} else if err := ValidateName(name); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.takenLocked(name) {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, name)
	}
	if r.fullLocked() {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManySessions, r.max)
	}
	done := r.reserveLocked(name)
	r.mu.Unlock()

	s, err := r.spawn(ctx, name, opts)
	r.finish(name, s, done)
	return s, err
}

// Get returns the session registered under name, alive or not.
func (r *Registry) Get(name string) (*shell.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, name)
	}
	return s, nil
}

// GetOrCreate returns the live session registered under name, spawning one
// if there is none. A dead session under that name is closed and replaced.
// The boolean reports whether a new session was spawned.
func (r *Registry) GetOrCreate(ctx context.Context, name string, opts ...shell.Option) (*shell.Session, bool, error) {
	if err := ValidateName(name); err != nil {
		return nil, false, err
	}

	for {
		r.mu.Lock()
		if s, ok := r.sessions[name]; ok && s.Alive() {
			r.mu.Unlock()
			return s, false, nil
		}
		if wait, ok := r.creating[name]; ok {
			r.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, false, ctx.Err()
			}
		}

		stale := r.sessions[name]
		delete(r.sessions, name)
		if stale == nil && r.fullLocked() {
			r.mu.Unlock()
			return nil, false, fmt.Errorf("%w: limit is %d", ErrTooManySessions, r.max)
		}
		done := r.reserveLocked(name)
		r.mu.Unlock()

		if stale != nil {
			r.logger.Info("Replacing dead session", zap.String("session", name))
			_ = stale.Close()
		}

		s, err := r.spawn(ctx, name, opts)
		r.finish(name, s, done)
		if err != nil {
			return nil, false, err
		}
		return s, true, nil
	}
}

// Close removes the session from the registry and closes it.
func (r *Registry) Close(name string) error {
	r.mu.Lock()
	s, ok := r.sessions[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, name)
	}
	delete(r.sessions, name)
	count := len(r.sessions)
	r.mu.Unlock()

	r.recorder.SetSessionsActive(count)
	return r.closeSession(s)
}

// CloseAll closes every registered session and empties the registry.
// Sessions are closed in parallel; their errors are joined.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*shell.Session)
	r.mu.Unlock()

	r.recorder.SetSessionsActive(0)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for name, s := range sessions {
		wg.Add(1)
		go func(name string, s *shell.Session) {
			defer wg.Done()
			if err := r.closeSession(s); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
				mu.Unlock()
			}
		}(name, s)
	}
	wg.Wait()

	if len(sessions) > 0 {
		r.logger.Info("Closed all sessions", zap.Int("count", len(sessions)))
	}
	return errors.Join(errs...)
}

// Prune closes and removes sessions whose shell has exited. It returns the
// names removed.
func (r *Registry) Prune() []string {
	r.mu.Lock()
	var dead []*shell.Session
	for name, s := range r.sessions {
		if !s.Alive() {
			dead = append(dead, s)
			delete(r.sessions, name)
		}
	}
	count := len(r.sessions)
	r.mu.Unlock()

	names := make([]string, 0, len(dead))
	for _, s := range dead {
		_ = s.Close()
		names = append(names, s.Name())
	}
	sort.Strings(names)

	if len(names) > 0 {
		r.recorder.SetSessionsActive(count)
		r.logger.Info("Pruned dead sessions", zap.Strings("sessions", names))
	}
	return names
}

// Names returns all registered names in order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Active returns the names of sessions whose shell is alive, in order.
func (r *Registry) Active() []string {
	var names []string
	for _, s := range r.List() {
		if s.Alive() {
			names = append(names, s.Name())
		}
	}
	return names
}

// List returns all registered sessions ordered by name.
func (r *Registry) List() []*shell.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]*shell.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// Contains reports whether name is registered.
func (r *Registry) Contains(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[name]
	return ok
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Breaker returns the spawn circuit breaker.
func (r *Registry) Breaker() *resilience.Breaker {
	return r.breaker
}

func (r *Registry) takenLocked(name string) bool {
	_, registered := r.sessions[name]
	_, creating := r.creating[name]
	return registered || creating
}

func (r *Registry) fullLocked() bool {
	return r.max > 0 && len(r.sessions)+len(r.creating) >= r.max
}

// reserveLocked marks name as being spawned. Reservations count toward the
// session limit.
func (r *Registry) reserveLocked(name string) chan struct{} {
	done := make(chan struct{})
	r.creating[name] = done
	return done
}

// finish registers s, if any, and releases the reservation.
func (r *Registry) finish(name string, s *shell.Session, done chan struct{}) {
	r.mu.Lock()
	delete(r.creating, name)
	if s != nil {
		r.sessions[name] = s
	}
	count := len(r.sessions)
	r.mu.Unlock()

	close(done)
	if s != nil {
		r.recorder.SetSessionsActive(count)
	}
}

// spawn starts a session through the breaker.
func (r *Registry) spawn(ctx context.Context, name string, opts []shell.Option) (*shell.Session, error) {
	all := make([]shell.Option, 0, len(r.defaults)+len(opts)+2)
	all = append(all, shell.WithLogger(r.logger))
	all = append(all, r.defaults...)
	all = append(all, opts...)
	all = append(all, shell.WithName(name))

	s, err := resilience.Call(r.breaker, func() (*shell.Session, error) {
		return r.spawner.Spawn(ctx, all...)
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyProbes) {
			return nil, fmt.Errorf("%w: %w", ErrSpawnCircuitOpen, err)
		}
		r.recorder.SpawnFailed()
		r.logger.Warn("Failed to spawn session", zap.String("session", name), zap.Error(err))
		return nil, err
	}

	r.recorder.SessionCreated()
	go r.watch(s)
	return s, nil
}

// watch reports the end of s.
func (r *Registry) watch(s *shell.Session) {
	<-s.Done()
	if s.Closed() {
		return
	}
	r.logger.Warn("Session shell exited", zap.String("session", s.Name()))
	r.recorder.SessionEnded(ReasonExited)
}

// closeSession closes s and reports it. Shells that already exited were
// reported by watch.
func (r *Registry) closeSession(s *shell.Session) error {
	alive := s.Alive()
	err := s.Close()
	if alive {
		r.recorder.SessionEnded(ReasonClosed)
	}
	return err
}
