// Package history keeps the most recent command results of each session.
//
// Results are held in fixed-capacity ring buffers, one per session, fed by
// shell.WithResultHook. They can be exported as JSON Lines, optionally
// compressed with gzip or zstd.
package history
