// Package shell drives a persistent shell process over its standard streams.
//
// A Session keeps one shell alive and runs commands in it one at a time, so
// state such as the working directory and exported variables carries over
// between commands.
//
// Protocol:
//   - Each command is wrapped in a brace group followed by two printf lines
//     that emit a per-command marker on stdout (with the exit status) and on
//     stderr
//   - Two reader goroutines drain stdout and stderr for the session's whole
//     life and feed a detector per stream
//   - The command is complete once both markers were seen; marker text never
//     reaches the result or an Observer
//
// Markers carry a session tag, a sequence number and a random nonce. Markers
// of abandoned commands (lower sequence) are stripped together with the
// output preceding them; marker-shaped text with an unknown nonce is treated
// as ordinary output.
//
// Timeouts:
//
// A command that outlives its timeout, or whose context is cancelled, gets
// SIGINT on all of the shell's descendants, then SIGKILL after the grace
// period. The shell ignores SIGINT through a no-op trap and is never signalled
// directly. Builtins running inside the shell itself (e.g. a busy "while"
// loop) cannot be interrupted this way.
//
// Concurrency:
//
// Execute blocks while another command is in flight. Observers run on the
// reader goroutines and must not block; all of them have returned before
// Execute returns.
//
// Example Usage:
//
//	s, err := shell.New(ctx, shell.WithName("build"))
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	res, err := s.Execute(ctx, "make test", shell.WithTimeout(time.Minute))
package shell
