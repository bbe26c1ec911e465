// Package config provides 12-factor configuration for the bashautom server.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags in cmd/server can override them.
//
// Configuration Sections:
//   - Server: HTTP listen address and shutdown timeout
//   - Shell: shell binary, arguments and timing defaults for every session
//   - History: per-session command history size
//   - Profiles: session preset file and hot reload
//   - Breaker: spawn circuit breaker
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting
//   - CORS: allowed browser origins
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Listening on %s\n", cfg.Server.Addr())
//
// Environment Variables:
//   - BASHAUTOM_PORT, BASHAUTOM_HOST, BASHAUTOM_SHUTDOWN_TIMEOUT
//   - BASHAUTOM_SHELL, BASHAUTOM_SHELL_ARGS, BASHAUTOM_SHELL_DIR
//   - BASHAUTOM_GRACE_PERIOD, BASHAUTOM_CLOSE_TIMEOUT, BASHAUTOM_DEFAULT_TIMEOUT
//   - BASHAUTOM_MAX_SESSIONS, BASHAUTOM_HISTORY_SIZE
//   - BASHAUTOM_PROFILES, BASHAUTOM_PROFILES_WATCH
//   - BASHAUTOM_BREAKER_THRESHOLD, BASHAUTOM_BREAKER_COOLDOWN
//   - BASHAUTOM_LOG_LEVEL, BASHAUTOM_LOG_DEV
//   - BASHAUTOM_RATE_LIMIT_RPS, BASHAUTOM_RATE_LIMIT_BURST, BASHAUTOM_RATE_LIMIT_ENABLED
//   - BASHAUTOM_CORS_ORIGINS
//
// Profiles are read from YAML or TOML, chosen by file extension:
//
//	profiles:
//	  - name: build
//	    dir: /srv/app
//	    env: {CI: "1"}
//	    timeout: 10m
//	    autostart: true
package config
