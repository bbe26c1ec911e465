package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyProbes is returned when the half-open probe quota is used up.
	ErrTooManyProbes = errors.New("circuit breaker is probing")
)

// State is the position of a breaker.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the state name used in logs and API responses.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Settings configures a breaker. Zero values select the defaults.
type Settings struct {
	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold uint32

	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration

	// Probes is how many calls are let through while half-open; that many
	// consecutive successes close the breaker again.
	Probes uint32

	// Window clears the counts of a closed breaker periodically.
	Window time.Duration

	// OnStateChange is called, with the breaker lock held, on every transition.
	OnStateChange func(name string, from, to State)
}

// Defaults for zero Settings fields.
const (
	DefaultThreshold = 5
	DefaultCooldown  = 30 * time.Second
	DefaultProbes    = 1
	DefaultWindow    = time.Minute
)

// Counts are the statistics of the current generation.
type Counts struct {
	Requests             uint32 `json:"requests"`
	Successes            uint32 `json:"successes"`
	Failures             uint32 `json:"failures"`
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
	ConsecutiveFailures  uint32 `json:"consecutive_failures"`
}

// Status is a point-in-time view of a breaker.
type Status struct {
	Name      string     `json:"name"`
	State     State      `json:"state"`
	Counts    Counts     `json:"counts"`
	OpenUntil *time.Time `json:"open_until,omitempty"`
}

// Breaker stops calling an operation that keeps failing.
//
// Each state change starts a new generation; results of calls that began
// in an earlier generation are ignored.
type Breaker struct {
	name     string
	settings Settings

	mu         sync.Mutex
	state      State
	counts     Counts
	generation uint64
	expiry     time.Time
}

// New creates a closed breaker.
func New(name string, settings Settings) *Breaker {
	if settings.Threshold == 0 {
		settings.Threshold = DefaultThreshold
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = DefaultCooldown
	}
	if settings.Probes == 0 {
		settings.Probes = DefaultProbes
	}
	if settings.Window <= 0 {
		settings.Window = DefaultWindow
	}

	return &Breaker{
		name:     name,
		settings: settings,
		state:    StateClosed,
		expiry:   time.Now().Add(settings.Window),
	}
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, _ := b.current(time.Now())
	return state
}

// Counts returns a copy of the current counts.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Status returns the breaker's state and counts.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, _ := b.current(time.Now())
	st := Status{Name: b.name, State: state, Counts: b.counts}
	if state == StateOpen {
		until := b.expiry
		st.OpenUntil = &until
	}
	return st
}

// Reset closes the breaker and clears its counts.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.setState(StateClosed, now)
	b.counts = Counts{}
	b.expiry = now.Add(b.settings.Window)
}

// Do runs fn if the breaker admits it and records the outcome.
func (b *Breaker) Do(fn func() error) error {
	gen, err := b.admit()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.record(gen, false)
			panic(r)
		}
	}()

	err = fn()
	b.record(gen, err == nil)
	return err
}

// Call is Do for functions that return a value.
func Call[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var out T
	err := b.Do(func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

// admit reserves a slot for one call.
func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, gen := b.current(time.Now())
	switch {
	case state == StateOpen:
		return gen, ErrCircuitOpen
	case state == StateHalfOpen && b.counts.Requests >= b.settings.Probes:
		return gen, ErrTooManyProbes
	}

	b.counts.Requests++
	return gen, nil
}

// record books the outcome of a call admitted in generation gen.
func (b *Breaker) record(gen uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, current := b.current(now)
	if current != gen {
		return
	}

	if success {
		b.counts.Successes++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.Probes {
			b.setState(StateClosed, now)
		}
		return
	}

	b.counts.Failures++
	b.counts.ConsecutiveFailures++
	b.counts.ConsecutiveSuccesses = 0
	switch state {
	case StateClosed:
		if b.counts.ConsecutiveFailures >= b.settings.Threshold {
			b.setState(StateOpen, now)
		}
	case StateHalfOpen:
		b.setState(StateOpen, now)
	}
}

// current advances time-based transitions and returns the state and
// generation.
func (b *Breaker) current(now time.Time) (State, uint64) {
	switch b.state {
	case StateClosed:
		if b.expiry.Before(now) {
			b.counts = Counts{}
			b.generation++
			b.expiry = now.Add(b.settings.Window)
		}
	case StateOpen:
		if b.expiry.Before(now) {
			b.setState(StateHalfOpen, now)
		}
	}
	return b.state, b.generation
}

func (b *Breaker) setState(state State, now time.Time) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state
	b.counts = Counts{}
	b.generation++

	switch state {
	case StateClosed:
		b.expiry = now.Add(b.settings.Window)
	case StateOpen:
		b.expiry = now.Add(b.settings.Cooldown)
	case StateHalfOpen:
		b.expiry = time.Time{}
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, prev, state)
	}
}
