/*
Package resilience provides a circuit breaker for operations that fail in
bursts, such as spawning shells on a host that has run out of processes or
file descriptors.

# States

	Closed --[Threshold consecutive failures]-> Open --[Cooldown]-> Half-Open
	                                                                  |
	                         Closed <-[Probes consecutive successes]--+
	                                                                  |
	                         Open   <-[any failure]-------------------+

# Usage

	breaker := resilience.New("shell-spawn", resilience.Settings{
		Threshold: 5,
		Cooldown:  30 * time.Second,
	})

	sess, err := resilience.Call(breaker, func() (*shell.Session, error) {
		return shell.New(ctx)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		// fail fast
	}
*/
package resilience
