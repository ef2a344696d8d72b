// Package callflow sequences the multi-step call lifecycles over the
// routing core: establishing an outgoing call from a scanned QR payload,
// answering on the callee side, and tearing a call down. Each flow reports
// per-step outcomes, and the steps that touch downstream dependencies run
// under circuit breakers.
package callflow
