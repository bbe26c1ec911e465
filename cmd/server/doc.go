// Package main is the entry point for the bashautom server.
//
// The server keeps named, long-lived bash sessions and exposes them over
// HTTP and WebSocket so clients can run commands that share a working
// directory and environment.
//
// Configuration:
//   - Environment variables prefixed with BASHAUTOM_
//   - CLI flags (override env vars)
//   - An optional profiles file with session presets
//
// Usage:
//
//	# Local service on the default port
//	./server
//
//	# Custom shell and profiles, verbose logs
//	./server -port 9000 -shell /usr/local/bin/bash -profiles profiles.yaml -log-level debug
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown, closing every session
package main
