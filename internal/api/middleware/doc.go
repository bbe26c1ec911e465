// Package middleware provides the HTTP middleware of the bashautom API.
//
// Middleware stack:
//   - RequestID: X-Request-ID propagation, generated as req_<ulid> when absent
//   - AccessLog: one zap line per request
//   - CORS: cross-origin resource sharing with configurable origins
//   - RateLimit: per-IP token buckets with idle eviction
//
// Example Usage:
//
//	router.Use(middleware.RequestID(), middleware.AccessLog(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
