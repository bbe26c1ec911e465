package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSpawn = errors.New("spawn failed")

func fail() error    { return errSpawn }
func succeed() error { return nil }

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		settings      Settings
		requests      []bool // true = success, false = failure
		expectedState State
	}{
		{
			name:          "stays closed on successes",
			settings:      Settings{Threshold: 2, Cooldown: time.Minute},
			requests:      []bool{true, true, true},
			expectedState: StateClosed,
		},
		{
			name:          "opens after consecutive failures",
			settings:      Settings{Threshold: 3, Cooldown: time.Minute},
			requests:      []bool{false, false, false},
			expectedState: StateOpen,
		},
		{
			name:          "success resets the streak",
			settings:      Settings{Threshold: 2, Cooldown: time.Minute},
			requests:      []bool{false, true, false},
			expectedState: StateClosed,
		},
		{
			name:          "default threshold",
			settings:      Settings{},
			requests:      []bool{false, false, false, false, false},
			expectedState: StateOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := New("spawn", tt.settings)

			for _, success := range tt.requests {
				if success {
					_ = breaker.Do(succeed)
				} else {
					_ = breaker.Do(fail)
				}
			}

			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	breaker := New("spawn", Settings{Threshold: 3})

	require.NoError(t, breaker.Do(succeed))

	counts := breaker.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.Successes)
	assert.Equal(t, uint32(1), counts.ConsecutiveSuccesses)

	assert.ErrorIs(t, breaker.Do(fail), errSpawn)

	counts = breaker.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.Failures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveSuccesses)
}

func TestBreakerOpenRejects(t *testing.T) {
	breaker := New("spawn", Settings{Threshold: 2, Cooldown: time.Minute})

	for i := 0; i < 2; i++ {
		_ = breaker.Do(fail)
	}
	require.Equal(t, StateOpen, breaker.State())

	called := false
	err := breaker.Do(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	status := breaker.Status()
	assert.Equal(t, "spawn", status.Name)
	assert.Equal(t, StateOpen, status.State)
	require.NotNil(t, status.OpenUntil)
	assert.True(t, status.OpenUntil.After(time.Now()))
}

func TestBreakerHalfOpen(t *testing.T) {
	breaker := New("spawn", Settings{
		Threshold: 2,
		Cooldown:  50 * time.Millisecond,
		Probes:    2,
	})

	for i := 0; i < 2; i++ {
		_ = breaker.Do(fail)
	}
	assert.Equal(t, StateOpen, breaker.State())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, breaker.State())

	for i := 0; i < 2; i++ {
		require.NoError(t, breaker.Do(succeed))
	}
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	breaker := New("spawn", Settings{Threshold: 1, Cooldown: 20 * time.Millisecond})

	_ = breaker.Do(fail)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, breaker.State())

	_ = breaker.Do(fail)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreakerProbeQuota(t *testing.T) {
	breaker := New("spawn", Settings{Threshold: 1, Cooldown: 20 * time.Millisecond, Probes: 1})

	_ = breaker.Do(fail)
	time.Sleep(30 * time.Millisecond)

	inner := make(chan error, 1)
	err := breaker.Do(func() error {
		// The only probe slot is taken
		inner <- breaker.Do(succeed)
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, <-inner, ErrTooManyProbes)
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerCallbacks(t *testing.T) {
	var transitions []string

	breaker := New("spawn", Settings{
		Threshold: 2,
		Cooldown:  10 * time.Millisecond,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	for i := 0; i < 2; i++ {
		_ = breaker.Do(fail)
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, breaker.State())

	assert.Equal(t, []string{"closed->open", "open->half-open"}, transitions)
}

func TestBreakerReset(t *testing.T) {
	breaker := New("spawn", Settings{Threshold: 1, Cooldown: time.Hour})

	_ = breaker.Do(fail)
	require.Equal(t, StateOpen, breaker.State())

	breaker.Reset()
	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, Counts{}, breaker.Counts())
	assert.NoError(t, breaker.Do(succeed))
}

func TestCall(t *testing.T) {
	breaker := New("spawn", Settings{Threshold: 1, Cooldown: time.Hour})

	n, err := Call(breaker, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = Call(breaker, func() (int, error) { return 0, errSpawn })
	assert.ErrorIs(t, err, errSpawn)

	n, err = Call(breaker, func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, n)
}

func TestStateText(t *testing.T) {
	text, err := StateHalfOpen.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "half-open", string(text))
	assert.Equal(t, "unknown", State(99).String())
}
