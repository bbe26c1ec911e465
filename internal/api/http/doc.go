// Package http exposes the session registry over a REST API built on gin.
//
// Routes:
//
//	GET    /health                            registry and breaker state
//	GET    /metrics                           Prometheus exposition
//	GET    /metrics/json                      metrics snapshot
//	GET    /api/profiles                      configured session profiles
//	GET    /api/history                       every session's history (JSONL)
//	POST   /api/sessions                      create (body: CreateSessionRequest)
//	GET    /api/sessions                      list
//	POST   /api/sessions/prune                drop sessions whose shell exited
//	GET    /api/sessions/:name                describe
//	DELETE /api/sessions/:name                close
//	POST   /api/sessions/:name/exec           run a command (body: ExecRequest)
//	POST   /api/sessions/:name/signal         signal the running command
//	GET    /api/sessions/:name/cwd            working directory
//	PUT    /api/sessions/:name/cwd            change directory
//	GET    /api/sessions/:name/env/:var       read a variable
//	PUT    /api/sessions/:name/env/:var       export a variable
//	DELETE /api/sessions/:name/env/:var       unset a variable
//	GET    /api/sessions/:name/history        history (JSONL, ?compress=gzip|zstd)
//
// Domain errors map to status codes: unknown sessions are 404, duplicate
// names 409, invalid input 400, a dead shell 410, a failed cwd or env query 422, a full registry 429 and an
// open spawn breaker 503.
package http
