// Package registry keeps named shell sessions.
//
// A Registry maps names to *shell.Session values and serializes creation,
// lookup and removal. It never serializes work inside a session; concurrent
// Execute calls on one session are handled by the session itself.
//
// Dead sessions stay registered until they are closed, pruned, or replaced
// by GetOrCreate, so callers can still inspect why a shell went away.
//
// Spawning goes through a circuit breaker: after repeated spawn failures the
// registry fails fast with ErrSpawnCircuitOpen until the cooldown expires.
package registry
