// Package internal documents the event proxy internals.
//
// The internal tree is organized by responsibility:
// - upstream: rate limited, retrying executor for the event platform API
// - luma: typed event operations on top of the executor
// - api: HTTP handlers, middleware, problem responses and routing
// - mcp: Model Context Protocol tools and prompts over the same client
// - domain/templates: event template catalog
// - app: shared wiring for the binaries
// - audit, config, metrics, telemetry, validation, sanitize: shared infrastructure
// - loadtest: synthetic traffic against a running proxy
//
// Code in internal/ is not meant for external import.
package internal
