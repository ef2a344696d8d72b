// Package resilience provides the two guard primitives wrapped around the
// router and orchestrator boundaries: a per-named-operation circuit breaker
// and a per-client sliding-window rate limiter with short-window abuse
// escalation.
//
// Both primitives take an injected clock so that recovery timeouts, rate
// windows, and block durations are testable without sleeping.
package resilience
