// Package app loads configuration and assembles the call-routing core into
// a running dependency graph: token authority, anonymizer, session registry,
// rate limiter, circuit breakers, media engine, router, and call flows.
package app
