// Package internal holds the gatherings server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, problem responses, and routing
// - domain: event lifecycle and participation admission rules
// - storage: the events.Store drivers (PostgreSQL and in-memory)
// - stats: the client for the external view statistics service
// - jobs: River workers that deliver hits to the stats service
// - audit, config, metrics, telemetry: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
