// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for humans
//
// Logs go to stderr by default so they never mix with anything a caller
// pipes through stdout. The level can be changed at runtime with SetLevel.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("addr", ":8000"))
//	sess, err := shell.New(ctx, shell.WithLogger(logger.Component("shell")))
package logging
