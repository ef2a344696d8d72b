// Package event carries typed notifications from the routing core to
// external consumers such as the UI or alerting. The contract (event name to
// payload shape) lives in internal/domain; this package only provides the
// non-blocking fan-out.
package event
